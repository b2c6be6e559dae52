package store

import (
	"context"

	"github.com/plaenen/commercecore/pkg/domain"
)

// EventStore is the write-path view of the append-only event log. Append
// stages into the owning transaction batch; reads go straight to the
// database and see committed state only.
type EventStore interface {
	// Append stages an event insert. (aggregate_id, version) is unique; a
	// duplicate fails the physical commit of the whole logical transaction.
	Append(ev *domain.Event)

	// Load returns all committed events for an aggregate ordered by version.
	Load(ctx context.Context, aggregateID string) ([]*domain.Event, error)

	// LatestVersion returns the newest committed event version, or -1 when
	// the aggregate has no events.
	LatestVersion(ctx context.Context, aggregateID string) (int64, error)
}

// SnapshotStore is the latest-state-per-aggregate store. Save stages an
// in-place replace; Get reads committed state.
type SnapshotStore interface {
	Save(snap *domain.Snapshot)
	Get(ctx context.Context, aggregateID string) (*domain.Snapshot, error)
}

// OutboxAppender stages outbox inserts into the owning transaction batch.
// Processing-side operations live on the outbox processor's own store
// handle, off the write path.
type OutboxAppender interface {
	Enqueue(entry *OutboxEntry)
}
