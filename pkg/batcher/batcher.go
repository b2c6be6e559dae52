// Package batcher serialises logical transactions into grouped physical
// database commits. It is the single writer: every mutation in the system
// funnels through one flush loop, which keeps SQLite contention-free and
// amortises fsync cost across concurrent callers.
package batcher

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/store"
)

const meterName = "commercecore.batcher"

// Config tunes the flush policy.
type Config struct {
	// FlushInterval is the longest a submitted batch waits before a
	// physical commit is attempted.
	FlushInterval time.Duration

	// SizeThreshold flushes early once this many logical batches are
	// pending.
	SizeThreshold int

	// MaxQueueDepth bounds the submission queue. A full queue rejects
	// submissions with a back-pressure error instead of blocking.
	MaxQueueDepth int
}

// DefaultConfig returns the flush policy used when none is given.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 5 * time.Millisecond,
		SizeThreshold: 200,
		MaxQueueDepth: 1024,
	}
}

type submission struct {
	batch *store.Batch
	done  chan error
}

// Batcher coalesces logical batches into single physical transactions.
// Batches commit in submission order; all submitters of one physical
// transaction observe the same outcome.
type Batcher struct {
	db     *sql.DB
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	submit  chan submission
	stopped chan struct{}
	loop    sync.WaitGroup
	running bool

	// depth counts every accepted batch that has not resolved yet,
	// whether it sits in the submit channel or in the flush loop's
	// pending slice. The channel alone cannot bound the queue because
	// the loop drains it eagerly.
	depth atomic.Int64

	queueDepth    metric.Int64UpDownCounter
	flushSize     metric.Int64Histogram
	flushDuration metric.Float64Histogram
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithConfig sets the flush policy.
func WithConfig(config Config) Option {
	return func(b *Batcher) { b.config = config }
}

// WithLogger sets the batcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) { b.logger = logger }
}

// New creates a Batcher over the given database handle.
func New(db *sql.DB, opts ...Option) *Batcher {
	b := &Batcher{
		db:     db,
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	meter := otel.Meter(meterName)
	b.queueDepth, _ = meter.Int64UpDownCounter("batcher.queue_depth",
		metric.WithDescription("Logical batches waiting for a physical commit"))
	b.flushSize, _ = meter.Int64Histogram("batcher.flush.batches",
		metric.WithDescription("Logical batches grouped into one physical commit"))
	b.flushDuration, _ = meter.Float64Histogram("batcher.flush.duration",
		metric.WithDescription("Physical commit duration"),
		metric.WithUnit("ms"))

	return b
}

// Name implements runner.Service.
func (b *Batcher) Name() string { return "transaction-batcher" }

// Start launches the flush loop. Starting a running batcher is a no-op.
func (b *Batcher) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	b.submit = make(chan submission, b.config.MaxQueueDepth)
	b.stopped = make(chan struct{})
	b.running = true

	b.loop.Add(1)
	go b.run()

	b.logger.Info("batcher started",
		"flush_interval", b.config.FlushInterval,
		"size_threshold", b.config.SizeThreshold,
		"max_queue_depth", b.config.MaxQueueDepth)
	return nil
}

// Stop drains and flushes the queue, then rejects further submissions.
// Stopping a stopped batcher is a no-op.
func (b *Batcher) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.stopped)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.loop.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("batcher did not drain before deadline: %w", ctx.Err())
	}

	// A submitter may have slipped a batch in between the loop draining and
	// exiting; reject it rather than leaving the caller waiting.
	for {
		select {
		case sub := <-b.submit:
			b.depth.Add(-1)
			sub.done <- fmt.Errorf("batcher is stopped: %w", domain.ErrStorage)
		default:
			b.logger.Info("batcher stopped")
			return nil
		}
	}
}

// Submit enqueues a logical batch and blocks until its physical commit
// resolves. Returns domain.ErrBackPressure when the queue is full and a
// wrapped domain.ErrStorage when the physical transaction fails.
func (b *Batcher) Submit(ctx context.Context, batch *store.Batch) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("batcher is stopped: %w", domain.ErrStorage)
	}
	submitCh := b.submit
	b.mu.Unlock()

	if b.depth.Add(1) > int64(b.config.MaxQueueDepth) {
		b.depth.Add(-1)
		return fmt.Errorf("submission queue is full: %w", domain.ErrBackPressure)
	}

	sub := submission{batch: batch, done: make(chan error, 1)}
	select {
	case submitCh <- sub:
		b.queueDepth.Add(ctx, 1)
	default:
		// Unreachable while the channel capacity matches MaxQueueDepth,
		// kept so a misconfigured capacity degrades to rejection rather
		// than blocking.
		b.depth.Add(-1)
		return fmt.Errorf("submission queue is full: %w", domain.ErrBackPressure)
	}

	select {
	case err := <-sub.done:
		return err
	case <-ctx.Done():
		// The batch is already queued and will still commit; the caller
		// just stops waiting for the outcome.
		return ctx.Err()
	}
}

func (b *Batcher) run() {
	defer b.loop.Done()

	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	var pending []submission

	flush := func() {
		if len(pending) == 0 {
			return
		}
		b.flush(pending)
		pending = nil
	}

	for {
		select {
		case sub := <-b.submit:
			pending = append(pending, sub)
			if len(pending) >= b.config.SizeThreshold {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-b.stopped:
			// Drain whatever was queued before the stop, then exit.
			for {
				select {
				case sub := <-b.submit:
					pending = append(pending, sub)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush commits every pending logical batch in one physical transaction.
// Statement order within a batch and batch order within the flush are
// preserved. On failure the whole group rolls back and every submitter
// receives the same error.
func (b *Batcher) flush(pending []submission) {
	ctx := context.Background()
	start := time.Now()

	err := b.commit(ctx, pending)

	elapsed := time.Since(start)
	b.depth.Add(-int64(len(pending)))
	b.queueDepth.Add(ctx, -int64(len(pending)))
	b.flushSize.Record(ctx, int64(len(pending)))
	b.flushDuration.Record(ctx, float64(elapsed.Microseconds())/1000.0)

	if err != nil {
		b.logger.Error("flush failed", "batches", len(pending), "error", err)
	} else {
		b.logger.Debug("flushed", "batches", len(pending), "duration", elapsed)
	}

	for _, sub := range pending {
		sub.done <- err
	}
}

func (b *Batcher) commit(ctx context.Context, pending []submission) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", domain.ErrStorage)
	}

	for _, sub := range pending {
		for _, stmt := range sub.batch.Statements() {
			if _, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
				tx.Rollback()
				return fmt.Errorf("statement failed (%s): %v: %w", stmt.Kind, err, domain.ErrStorage)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v: %w", err, domain.ErrStorage)
	}
	return nil
}
