// Package uow provides the Unit-of-Work over a transaction batch: one
// logical transaction that stages event appends, snapshot replaces, outbox
// inserts and read-model updates, then commits them atomically through the
// batcher.
package uow

import (
	"context"
	"database/sql"

	"github.com/plaenen/commercecore/pkg/batcher"
	"github.com/plaenen/commercecore/pkg/store"
	"github.com/plaenen/commercecore/pkg/store/sqlite"
)

// Repositories is the per-transaction view of the stores. Writes stage into
// the owning batch; reads bypass it and see committed state only, so a
// transaction never observes its own staged writes.
type Repositories struct {
	Events      store.EventStore
	Snapshots   store.SnapshotStore
	Outbox      store.OutboxAppender
	Variants    store.VariantWriter
	Products    store.ProductWriter
	Collections store.CollectionWriter
	Schedules   store.ScheduleWriter
}

// Manager builds logical transactions and submits them to the batcher.
type Manager struct {
	db      *sql.DB
	batcher *batcher.Batcher
}

// NewManager creates a unit-of-work manager.
func NewManager(db *sql.DB, b *batcher.Batcher) *Manager {
	return &Manager{db: db, batcher: b}
}

// WithTransaction runs fn against a fresh batch. When fn succeeds the batch
// is submitted and WithTransaction blocks until the physical commit
// resolves; when fn fails the staged work is discarded and nothing reaches
// the database. An fn that stages nothing commits nothing.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error {
	batch := store.NewBatch()
	repos := &Repositories{
		Events:      sqlite.NewEventStore(m.db, batch),
		Snapshots:   sqlite.NewSnapshotStore(m.db, batch),
		Outbox:      sqlite.NewOutboxAppender(batch),
		Variants:    sqlite.NewVariantWriter(batch),
		Products:    sqlite.NewProductWriter(batch),
		Collections: sqlite.NewCollectionWriter(batch),
		Schedules:   sqlite.NewScheduleWriter(batch),
	}

	if err := fn(ctx, repos); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	return m.batcher.Submit(ctx, batch)
}
