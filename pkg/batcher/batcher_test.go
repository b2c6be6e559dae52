package batcher

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/store"
	"github.com/plaenen/commercecore/pkg/store/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE items (id TEXT PRIMARY KEY, value INTEGER NOT NULL)`)
	require.NoError(t, err)
	return db
}

func startBatcher(t *testing.T, db *sql.DB, config Config) *Batcher {
	t.Helper()
	b := New(db, WithConfig(config))
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { b.Stop(context.Background()) })
	return b
}

func insertBatch(pairs ...any) *store.Batch {
	batch := store.NewBatch()
	for i := 0; i < len(pairs); i += 2 {
		batch.Add(store.StatementInsert,
			`INSERT INTO items (id, value) VALUES (?, ?)`, pairs[i], pairs[i+1])
	}
	return batch
}

func countItems(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestSubmitCommitsBatch(t *testing.T) {
	db := openTestDB(t)
	b := startBatcher(t, db, DefaultConfig())

	err := b.Submit(context.Background(), insertBatch("a", 1, "b", 2))
	require.NoError(t, err)
	assert.Equal(t, 2, countItems(t, db))
}

func TestConcurrentSubmissionsAllCommit(t *testing.T) {
	db := openTestDB(t)
	b := startBatcher(t, db, Config{
		FlushInterval: time.Millisecond,
		SizeThreshold: 10,
		MaxQueueDepth: 128,
	})

	var wg sync.WaitGroup
	errs := make([]error, 50)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = b.Submit(context.Background(), insertBatch(string(rune('A'+i%26))+string(rune('0'+i/26)), i))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 50, countItems(t, db))
}

func TestFailedStatementRollsBackWholeGroup(t *testing.T) {
	db := openTestDB(t)
	// A long interval and a threshold of two force both batches into one
	// flush.
	b := New(db, WithConfig(Config{
		FlushInterval: time.Hour,
		SizeThreshold: 2,
		MaxQueueDepth: 16,
	}))
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop(context.Background())

	var (
		wg     sync.WaitGroup
		okErr  error
		dupErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		okErr = b.Submit(context.Background(), insertBatch("good", 1))
	}()
	go func() {
		defer wg.Done()
		// Primary-key conflict within a single batch fails the statement.
		dupErr = b.Submit(context.Background(), insertBatch("dup", 1, "dup", 2))
	}()
	wg.Wait()

	// Group atomicity: the same storage error reaches every submitter and
	// nothing from the group is visible.
	require.Error(t, okErr)
	require.Error(t, dupErr)
	assert.ErrorIs(t, okErr, domain.ErrStorage)
	assert.ErrorIs(t, dupErr, domain.ErrStorage)
	assert.Equal(t, 0, countItems(t, db))
}

func TestBackPressureWhenQueueFull(t *testing.T) {
	db := openTestDB(t)
	b := New(db, WithConfig(Config{
		FlushInterval: time.Hour,
		SizeThreshold: 1000,
		MaxQueueDepth: 1,
	}))
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop(context.Background())

	// Flushes are effectively disabled, so submissions pile up. Each call
	// uses a short deadline: a timed-out submit means the batch was queued
	// but not yet committed, so keep filling until the queue rejects.
	for i := 0; ; i++ {
		if i > 16 {
			t.Fatal("queue never filled")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := b.Submit(ctx, insertBatch(string(rune('a'+i)), i))
		cancel()
		if errors.Is(err, domain.ErrBackPressure) {
			break
		}
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
}

func TestQueueCapacityFreesAfterFlush(t *testing.T) {
	db := openTestDB(t)
	b := startBatcher(t, db, Config{
		FlushInterval: time.Millisecond,
		SizeThreshold: 1,
		MaxQueueDepth: 1,
	})

	// Submit blocks until its flush resolves, so each iteration must find
	// the single queue slot free again.
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Submit(context.Background(), insertBatch(string(rune('a'+i)), i)))
	}
	assert.Equal(t, 5, countItems(t, db))
}

func TestStopFlushesPendingWork(t *testing.T) {
	db := openTestDB(t)
	b := New(db, WithConfig(Config{
		FlushInterval: time.Hour,
		SizeThreshold: 1000,
		MaxQueueDepth: 16,
	}))
	require.NoError(t, b.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		done <- b.Submit(context.Background(), insertBatch("a", 1))
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Stop(context.Background()))

	require.NoError(t, <-done)
	assert.Equal(t, 1, countItems(t, db))
}

func TestSubmitAfterStopIsRejected(t *testing.T) {
	db := openTestDB(t)
	b := New(db)
	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, b.Stop(context.Background()))

	err := b.Submit(context.Background(), insertBatch("a", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	db := openTestDB(t)
	b := New(db)
	ctx := context.Background()

	require.NoError(t, b.Start(ctx))
	require.NoError(t, b.Start(ctx))
	require.NoError(t, b.Stop(ctx))
	require.NoError(t, b.Stop(ctx))

	// A stopped batcher can be started again.
	require.NoError(t, b.Start(ctx))
	require.NoError(t, b.Submit(ctx, insertBatch("a", 1)))
	require.NoError(t, b.Stop(ctx))
	assert.Equal(t, 1, countItems(t, db))
}
