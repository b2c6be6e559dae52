package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/commercecore/pkg/batcher"
	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/store/sqlite"
)

func newManager(t *testing.T) (*Manager, context.Context) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(ctx, db))

	b := batcher.New(db)
	require.NoError(t, b.Start(ctx))
	t.Cleanup(func() { b.Stop(context.Background()) })

	return NewManager(db, b), ctx
}

func createdEvent(aggregateID string) *domain.Event {
	return &domain.Event{
		AggregateID:   aggregateID,
		Version:       0,
		EventName:     "variant.created",
		OccurredAt:    domain.Now(),
		CorrelationID: "corr_1",
		UserID:        "user_1",
		Payload:       domain.Payload{NewState: []byte(`{}`)},
	}
}

func TestWithTransactionCommitsStagedWork(t *testing.T) {
	m, ctx := newManager(t)

	err := m.WithTransaction(ctx, func(ctx context.Context, repos *Repositories) error {
		repos.Events.Append(createdEvent("var_1"))
		repos.Snapshots.Save(&domain.Snapshot{
			AggregateID: "var_1", CorrelationID: "corr_1", Version: 0, Payload: []byte(`{}`),
		})
		return nil
	})
	require.NoError(t, err)

	// Committed state is visible to a following transaction's reads.
	err = m.WithTransaction(ctx, func(ctx context.Context, repos *Repositories) error {
		v, err := repos.Events.LatestVersion(ctx, "var_1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), v)

		snap, err := repos.Snapshots.Get(ctx, "var_1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), snap.Version)
		return nil
	})
	require.NoError(t, err)
}

func TestWithTransactionDiscardsOnError(t *testing.T) {
	m, ctx := newManager(t)
	boom := errors.New("boom")

	err := m.WithTransaction(ctx, func(ctx context.Context, repos *Repositories) error {
		repos.Events.Append(createdEvent("var_1"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = m.WithTransaction(ctx, func(ctx context.Context, repos *Repositories) error {
		v, err := repos.Events.LatestVersion(ctx, "var_1")
		require.NoError(t, err)
		assert.Equal(t, int64(-1), v)
		return nil
	})
	require.NoError(t, err)
}

func TestReadsDoNotSeeStagedWrites(t *testing.T) {
	m, ctx := newManager(t)

	err := m.WithTransaction(ctx, func(ctx context.Context, repos *Repositories) error {
		repos.Events.Append(createdEvent("var_1"))

		// Still staged, not committed.
		v, err := repos.Events.LatestVersion(ctx, "var_1")
		require.NoError(t, err)
		assert.Equal(t, int64(-1), v)
		return nil
	})
	require.NoError(t, err)
}

func TestEmptyTransactionCommitsNothing(t *testing.T) {
	m, ctx := newManager(t)
	require.NoError(t, m.WithTransaction(ctx, func(ctx context.Context, repos *Repositories) error {
		return nil
	}))
}
