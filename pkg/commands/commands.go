// Package commands implements the write-side application services. Every
// command validates, loads the target aggregate from its snapshot, checks
// the caller's expected version, runs the domain operation, and persists
// the result through one logical transaction: event appends, in-transaction
// read-model projection, outbox enqueue, and snapshot replace.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asaskevich/govalidator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/idgen"
	"github.com/plaenen/commercecore/pkg/projection"
	"github.com/plaenen/commercecore/pkg/store"
	"github.com/plaenen/commercecore/pkg/uow"
)

const meterName = "commercecore.commands"

// Envelope carries the identity every command must present.
type Envelope struct {
	CommandID     string `valid:"required"`
	CorrelationID string `valid:"required"`
	UserID        string `valid:"required"`
}

func validate(cmd any) error {
	if ok, err := govalidator.ValidateStruct(cmd); !ok {
		return fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	return nil
}

// core bundles the collaborators shared by every command service.
type core struct {
	uow    *uow.Manager
	router *projection.Router
	logger *slog.Logger

	commands metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

func newCore(m *uow.Manager, router *projection.Router, logger *slog.Logger) *core {
	c := &core{uow: m, router: router, logger: logger}

	meter := otel.Meter(meterName)
	c.commands, _ = meter.Int64Counter("commands.handled",
		metric.WithDescription("Commands handled, by name and outcome"))
	c.failures, _ = meter.Int64Counter("commands.failed",
		metric.WithDescription("Commands that returned an error, by name and error kind"))
	c.duration, _ = meter.Float64Histogram("commands.duration",
		metric.WithDescription("Command handling duration"),
		metric.WithUnit("ms"))

	return c
}

// handle wraps a command execution with logging and metrics.
func (c *core) handle(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	attrs := metric.WithAttributes(attribute.String("command", name))
	c.commands.Add(ctx, 1, attrs)
	c.duration.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)

	if err != nil {
		c.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("command", name),
			attribute.String("kind", string(domain.KindOf(err)))))
		c.logger.Warn("command failed", "command", name, "kind", domain.KindOf(err), "error", err)
		return err
	}
	c.logger.Debug("command handled", "command", name, "duration", elapsed)
	return nil
}

// persist stages an aggregate's uncommitted events, their projections, one
// outbox entry per event, and the replacing snapshot into the transaction.
func (c *core) persist(ctx context.Context, repos *uow.Repositories, agg domain.Aggregate) error {
	for _, ev := range agg.UncommittedEvents() {
		repos.Events.Append(ev)
		if err := c.router.Apply(ctx, repos, ev); err != nil {
			return err
		}
		entry, err := store.NewOutboxEntry(idgen.MustUUIDv7(), ev)
		if err != nil {
			return err
		}
		repos.Outbox.Enqueue(entry)
	}

	snap, err := agg.ToSnapshot()
	if err != nil {
		return err
	}
	repos.Snapshots.Save(snap)
	agg.ClearUncommittedEvents()
	return nil
}

// getSnapshot loads a committed snapshot, translating a missing snapshot
// into the aggregate-not-found error.
func getSnapshot(ctx context.Context, repos *uow.Repositories, aggregateID string) (*domain.Snapshot, error) {
	snap, err := repos.Snapshots.Get(ctx, aggregateID)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil, fmt.Errorf("aggregate %s: %w", aggregateID, domain.ErrAggregateNotFound)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// checkVersion enforces optimistic concurrency against the committed
// snapshot version.
func checkVersion(expected, found int64) error {
	if expected != found {
		return &domain.ConcurrencyError{Expected: expected, Found: found}
	}
	return nil
}
