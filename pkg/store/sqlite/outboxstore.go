package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/plaenen/commercecore/pkg/store"
)

// OutboxStore is the processing-side view of the outbox. Unlike the staged
// write-path stores it executes directly against the database: leasing and
// settlement happen outside logical transactions.
type OutboxStore struct {
	db *sql.DB
}

// NewOutboxStore binds an outbox store to a database handle.
func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Lease claims up to limit due pending entries for owner until leaseUntil.
// The conditional update makes the claim exclusive: a row moves to inflight
// exactly once, so concurrent workers never lease the same entry.
func (s *OutboxStore) Lease(ctx context.Context, owner string, limit int, now, leaseUntil time.Time) ([]*store.OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE outbox
		SET status = 'inflight', lease_owner = ?, lease_expires_at = ?
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending' AND next_attempt_at <= ?
			ORDER BY occurred_at, id
			LIMIT ?
		)
		RETURNING id, aggregate_id, event_name, occurred_at, payload_json,
		          status, attempts, last_error, next_attempt_at, lease_owner, lease_expires_at`,
		owner, formatTime(leaseUntil), formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to lease outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*store.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkDelivered settles a leased entry as delivered, counting the
// successful attempt, and releases its lease.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = 'delivered', attempts = attempts + 1, lease_owner = '', lease_expires_at = NULL
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry delivered: %w", err)
	}
	return nil
}

// Reschedule returns a leased entry to pending with its attempt count and
// next due time advanced.
func (s *OutboxStore) Reschedule(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = 'pending', attempts = ?, next_attempt_at = ?, last_error = ?,
		    lease_owner = '', lease_expires_at = NULL
		WHERE id = ?`, attempts, formatTime(nextAttemptAt), lastError, id)
	if err != nil {
		return fmt.Errorf("failed to reschedule outbox entry: %w", err)
	}
	return nil
}

// MarkDead moves an exhausted entry into the dead-letter table and settles
// the original row as dead. Both writes happen in one transaction.
func (s *OutboxStore) MarkDead(ctx context.Context, id string, attempts int, lastError string, deadSince time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin dead-letter transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_dlq (id, aggregate_id, event_name, occurred_at, payload_json, attempts, last_error, dead_since)
		SELECT id, aggregate_id, event_name, occurred_at, payload_json, ?, ?, ?
		FROM outbox WHERE id = ?`,
		attempts, lastError, formatTime(deadSince), id); err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE outbox
		SET status = 'dead', attempts = ?, last_error = ?, lease_owner = '', lease_expires_at = NULL
		WHERE id = ?`, attempts, lastError, id); err != nil {
		return fmt.Errorf("failed to mark outbox entry dead: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dead-letter transaction: %w", err)
	}
	return nil
}

// ReapExpired returns inflight entries whose lease expired back to pending.
// Recovers work claimed by a worker that crashed mid-delivery.
func (s *OutboxStore) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = 'pending', lease_owner = '', lease_expires_at = NULL
		WHERE status = 'inflight' AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?`,
		formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}
	return res.RowsAffected()
}

// DeleteDelivered prunes delivered entries that occurred before the cutoff.
func (s *OutboxStore) DeleteDelivered(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE status = 'delivered' AND occurred_at < ?`,
		formatTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune delivered entries: %w", err)
	}
	return res.RowsAffected()
}

// Requeue moves a dead letter back to the pending outbox with a reset
// attempt counter. The dead-letter row is removed.
func (s *OutboxStore) Requeue(ctx context.Context, id string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin requeue transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE outbox
		SET status = 'pending', attempts = 0, last_error = '', next_attempt_at = ?,
		    lease_owner = '', lease_expires_at = NULL
		WHERE id = ? AND status = 'dead'`, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("failed to requeue dead letter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no dead outbox entry with id %s", id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox_dlq WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove dead letter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit requeue transaction: %w", err)
	}
	return nil
}

// DeadLetters lists dead letters ordered by when they died, newest first.
func (s *OutboxStore) DeadLetters(ctx context.Context, limit int) ([]*store.DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_name, occurred_at, payload_json, attempts, last_error, dead_since
		FROM outbox_dlq ORDER BY dead_since DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*store.DeadLetter
	for rows.Next() {
		var (
			letter               store.DeadLetter
			occurredAt, payload  string
			lastError, deadSince string
		)
		if err := rows.Scan(&letter.ID, &letter.AggregateID, &letter.EventName, &occurredAt,
			&payload, &letter.Attempts, &lastError, &deadSince); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		if letter.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		if letter.DeadSince, err = parseTime(deadSince); err != nil {
			return nil, err
		}
		letter.Payload = []byte(payload)
		letter.LastError = lastError
		letter.Status = store.OutboxDead
		letters = append(letters, &letter)
	}
	return letters, rows.Err()
}

func scanOutboxEntry(rows *sql.Rows) (*store.OutboxEntry, error) {
	var (
		entry                     store.OutboxEntry
		occurredAt, nextAttemptAt string
		payload, status           string
		leaseExpiresAt            sql.NullString
	)
	if err := rows.Scan(&entry.ID, &entry.AggregateID, &entry.EventName, &occurredAt,
		&payload, &status, &entry.Attempts, &entry.LastError, &nextAttemptAt,
		&entry.LeaseOwner, &leaseExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
	}

	var err error
	if entry.OccurredAt, err = parseTime(occurredAt); err != nil {
		return nil, err
	}
	if entry.NextAttemptAt, err = parseTime(nextAttemptAt); err != nil {
		return nil, err
	}
	if entry.LeaseExpiresAt, err = parseTimePtr(leaseExpiresAt); err != nil {
		return nil, err
	}
	entry.Payload = []byte(payload)
	entry.Status = store.OutboxStatus(status)
	return &entry, nil
}
