package outbox

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

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	db, err := sqlite.Open(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, sqlite.Migrate(ctx, db))
	return db, ctx
}

func enqueue(t *testing.T, db *sql.DB, id string) *store.OutboxEntry {
	t.Helper()
	entry, err := store.NewOutboxEntry(id, &domain.Event{
		AggregateID:   "var_1",
		Version:       0,
		EventName:     "variant.created",
		OccurredAt:    domain.Now().Add(-time.Second),
		CorrelationID: "corr_1",
		UserID:        "user_1",
		Payload:       domain.Payload{NewState: []byte(`{}`)},
	})
	require.NoError(t, err)

	batch := store.NewBatch()
	sqlite.NewOutboxAppender(batch).Enqueue(entry)
	tx, err := db.Begin()
	require.NoError(t, err)
	for _, stmt := range batch.Statements() {
		_, err := tx.Exec(stmt.SQL, stmt.Args...)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	return entry
}

// recordingPublisher fails the first failures deliveries of each entry and
// records every attempt.
type recordingPublisher struct {
	mu       sync.Mutex
	failures int
	attempts map[string]int
}

func newRecordingPublisher(failures int) *recordingPublisher {
	return &recordingPublisher{failures: failures, attempts: make(map[string]int)}
}

func (p *recordingPublisher) Publish(ctx context.Context, entry *store.OutboxEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[entry.ID]++
	if p.attempts[entry.ID] <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func (p *recordingPublisher) count(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[id]
}

func testConfig() Config {
	return Config{
		Workers:       2,
		BatchSize:     8,
		PollInterval:  5 * time.Millisecond,
		LeaseDuration: time.Second,
		MaxAttempts:   3,
		BaseBackoff:   time.Millisecond,
		Retention:     time.Hour,
	}
}

func waitForStatus(t *testing.T, db *sql.DB, id, status string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var got string
		require.NoError(t, db.QueryRow(`SELECT status FROM outbox WHERE id = ?`, id).Scan(&got))
		if got == status {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("entry %s never reached status %s", id, status)
}

func TestDeliversPendingEntries(t *testing.T) {
	db, ctx := openTestDB(t)
	entry := enqueue(t, db, "obx_1")

	pub := newRecordingPublisher(0)
	p := New(sqlite.NewOutboxStore(db), pub, WithConfig(testConfig()))
	require.NoError(t, p.Start(ctx))
	defer p.Stop(context.Background())

	waitForStatus(t, db, entry.ID, "delivered")
	assert.Equal(t, 1, pub.count(entry.ID))
}

func TestRetriesUntilDelivered(t *testing.T) {
	db, ctx := openTestDB(t)
	entry := enqueue(t, db, "obx_1")

	// Two failures, then success: under MaxAttempts of three.
	pub := newRecordingPublisher(2)
	p := New(sqlite.NewOutboxStore(db), pub, WithConfig(testConfig()))
	require.NoError(t, p.Start(ctx))
	defer p.Stop(context.Background())

	waitForStatus(t, db, entry.ID, "delivered")
	assert.Equal(t, 3, pub.count(entry.ID))

	// Retries reuse the same entry id (consumers can deduplicate) and the
	// successful attempt counts: two failures plus one delivery.
	var attempts int
	require.NoError(t, db.QueryRow(`SELECT attempts FROM outbox WHERE id = ?`, entry.ID).Scan(&attempts))
	assert.Equal(t, 3, attempts)
}

func TestDeadLettersAfterMaxAttempts(t *testing.T) {
	db, ctx := openTestDB(t)
	entry := enqueue(t, db, "obx_1")

	pub := newRecordingPublisher(1000)
	p := New(sqlite.NewOutboxStore(db), pub, WithConfig(testConfig()))
	require.NoError(t, p.Start(ctx))
	defer p.Stop(context.Background())

	waitForStatus(t, db, entry.ID, "dead")
	assert.Equal(t, 3, pub.count(entry.ID))

	letters, err := sqlite.NewOutboxStore(db).DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, entry.ID, letters[0].ID)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.Equal(t, "connection refused", letters[0].LastError)
}

func TestHaltsOnStorageFailureAndResumes(t *testing.T) {
	db, ctx := openTestDB(t)

	pub := newRecordingPublisher(0)
	p := New(sqlite.NewOutboxStore(db), pub, WithConfig(testConfig()))

	// Take the outbox table away: every poll fails with a storage error and
	// the loop must halt without crashing.
	_, err := db.Exec(`DROP TABLE outbox`)
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))
	defer p.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	// Storage recovers; polling picks the entry up on a later tick.
	require.NoError(t, sqlite.Migrate(ctx, db))
	entry := enqueue(t, db, "obx_1")
	waitForStatus(t, db, entry.ID, "delivered")
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	db, ctx := openTestDB(t)

	p := New(sqlite.NewOutboxStore(db), newRecordingPublisher(0), WithConfig(testConfig()))
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop(ctx))
	require.NoError(t, p.Stop(ctx))
}

func TestBackoffGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	for attempts := 1; attempts <= 4; attempts++ {
		max := base << (attempts - 1)
		for i := 0; i < 50; i++ {
			d := backoff(base, attempts)
			assert.Greater(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, max)
		}
	}
}
