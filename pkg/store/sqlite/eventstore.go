package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/store"
)

// EventStore stages appends into a transaction batch and serves reads from
// committed state. One instance exists per Unit-of-Work.
type EventStore struct {
	db    *sql.DB
	batch *store.Batch
}

// NewEventStore binds an event store to a database handle and a batch.
func NewEventStore(db *sql.DB, batch *store.Batch) *EventStore {
	return &EventStore{db: db, batch: batch}
}

const insertEventSQL = `INSERT INTO events
	(aggregate_id, version, event_name, occurred_at, correlation_id, user_id, payload_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// Append stages an event insert into the batch.
func (s *EventStore) Append(ev *domain.Event) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		// Payloads are produced by aggregate state marshalling, which has
		// already succeeded once by the time an event exists.
		panic(fmt.Sprintf("unmarshalable event payload for %s v%d: %v", ev.AggregateID, ev.Version, err))
	}
	s.batch.Add(store.StatementInsert, insertEventSQL,
		ev.AggregateID, ev.Version, ev.EventName, formatTime(ev.OccurredAt),
		ev.CorrelationID, ev.UserID, string(payload))
}

// Load returns all committed events for an aggregate ordered by version.
func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT aggregate_id, version, event_name, occurred_at, correlation_id, user_id, payload_json
		FROM events WHERE aggregate_id = ? ORDER BY version`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var (
			ev         domain.Event
			occurredAt string
			payload    string
		)
		if err := rows.Scan(&ev.AggregateID, &ev.Version, &ev.EventName, &occurredAt,
			&ev.CorrelationID, &ev.UserID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if ev.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
		// An absent prior state marshals as JSON null; round-trip it back
		// to nil so created events load the way they were appended.
		ev.Payload.PriorState = nilIfJSONNull(ev.Payload.PriorState)
		ev.Payload.NewState = nilIfJSONNull(ev.Payload.NewState)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func nilIfJSONNull(raw json.RawMessage) json.RawMessage {
	if string(raw) == "null" {
		return nil
	}
	return raw
}

// LatestVersion returns the newest committed event version, or -1 when the
// aggregate has no events.
func (s *EventStore) LatestVersion(ctx context.Context, aggregateID string) (int64, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM events WHERE aggregate_id = ?`, aggregateID).Scan(&version)
	if err != nil {
		return -1, fmt.Errorf("failed to read latest version: %w", err)
	}
	if !version.Valid {
		return -1, nil
	}
	return version.Int64, nil
}

// SnapshotStore stages in-place snapshot replaces and serves committed
// reads. One instance exists per Unit-of-Work.
type SnapshotStore struct {
	db    *sql.DB
	batch *store.Batch
}

// NewSnapshotStore binds a snapshot store to a database handle and a batch.
func NewSnapshotStore(db *sql.DB, batch *store.Batch) *SnapshotStore {
	return &SnapshotStore{db: db, batch: batch}
}

const saveSnapshotSQL = `INSERT INTO snapshots (aggregate_id, correlation_id, version, payload_json)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (aggregate_id) DO UPDATE SET
		correlation_id = excluded.correlation_id,
		version        = excluded.version,
		payload_json   = excluded.payload_json`

// Save stages an upsert of the aggregate's latest snapshot.
func (s *SnapshotStore) Save(snap *domain.Snapshot) {
	s.batch.Add(store.StatementUpsert, saveSnapshotSQL,
		snap.AggregateID, snap.CorrelationID, snap.Version, string(snap.Payload))
}

// Get returns the committed snapshot for an aggregate.
func (s *SnapshotStore) Get(ctx context.Context, aggregateID string) (*domain.Snapshot, error) {
	var (
		snap    domain.Snapshot
		payload string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT aggregate_id, correlation_id, version, payload_json
		FROM snapshots WHERE aggregate_id = ?`, aggregateID).
		Scan(&snap.AggregateID, &snap.CorrelationID, &snap.Version, &payload)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	snap.Payload = []byte(payload)
	return &snap, nil
}

// OutboxAppender stages outbox inserts into the batch.
type OutboxAppender struct {
	batch *store.Batch
}

// NewOutboxAppender binds an outbox appender to a batch.
func NewOutboxAppender(batch *store.Batch) *OutboxAppender {
	return &OutboxAppender{batch: batch}
}

const insertOutboxSQL = `INSERT INTO outbox
	(id, aggregate_id, event_name, occurred_at, payload_json, status, attempts, last_error, next_attempt_at)
	VALUES (?, ?, ?, ?, ?, ?, 0, '', ?)`

// Enqueue stages an outbox insert.
func (a *OutboxAppender) Enqueue(entry *store.OutboxEntry) {
	a.batch.Add(store.StatementInsert, insertOutboxSQL,
		entry.ID, entry.AggregateID, entry.EventName, formatTime(entry.OccurredAt),
		string(entry.Payload), string(store.OutboxPending), formatTime(entry.NextAttemptAt))
}
