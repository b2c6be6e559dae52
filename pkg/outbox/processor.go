// Package outbox delivers committed events to the outside world. A leased
// polling loop claims due entries, a worker pool publishes them, and
// settlement either confirms delivery, reschedules with exponential backoff
// and jitter, or dead-letters the entry after its attempts run out.
// Delivery is at-least-once; consumers deduplicate on the entry id.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/plaenen/commercecore/pkg/idgen"
	"github.com/plaenen/commercecore/pkg/store"
	"github.com/plaenen/commercecore/pkg/store/sqlite"
)

const meterName = "commercecore.outbox"

// Publisher pushes one entry to the external transport.
type Publisher interface {
	Publish(ctx context.Context, entry *store.OutboxEntry) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, entry *store.OutboxEntry) error

func (f PublisherFunc) Publish(ctx context.Context, entry *store.OutboxEntry) error {
	return f(ctx, entry)
}

// Config tunes the delivery loop.
type Config struct {
	// Workers is the number of concurrent delivery goroutines.
	Workers int

	// BatchSize is the maximum number of entries leased per poll.
	BatchSize int

	// PollInterval is the idle wait between polls.
	PollInterval time.Duration

	// LeaseDuration is how long a claimed entry stays invisible to other
	// workers before the reaper returns it.
	LeaseDuration time.Duration

	// MaxAttempts dead-letters an entry once its delivery has failed this
	// many times.
	MaxAttempts int

	// BaseBackoff seeds the exponential retry delay.
	BaseBackoff time.Duration

	// Retention prunes delivered entries older than this. Zero disables
	// pruning.
	Retention time.Duration
}

// DefaultConfig returns the delivery policy used when none is given.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		BatchSize:     32,
		PollInterval:  250 * time.Millisecond,
		LeaseDuration: 30 * time.Second,
		MaxAttempts:   5,
		BaseBackoff:   500 * time.Millisecond,
		Retention:     24 * time.Hour,
	}
}

// Processor drains the outbox table.
type Processor struct {
	store     *sqlite.OutboxStore
	publisher Publisher
	config    Config
	logger    *slog.Logger
	owner     string

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped sync.WaitGroup
	running bool

	delivered metric.Int64Counter
	retried   metric.Int64Counter
	dead      metric.Int64Counter
}

// Option configures a Processor.
type Option func(*Processor)

// WithConfig sets the delivery policy.
func WithConfig(config Config) Option {
	return func(p *Processor) { p.config = config }
}

// WithLogger sets the processor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// New creates a Processor over the given outbox store and publisher.
func New(s *sqlite.OutboxStore, publisher Publisher, opts ...Option) *Processor {
	p := &Processor{
		store:     s,
		publisher: publisher,
		config:    DefaultConfig(),
		logger:    slog.Default(),
		owner:     "outbox-" + idgen.MustUUIDv7(),
	}
	for _, opt := range opts {
		opt(p)
	}

	meter := otel.Meter(meterName)
	p.delivered, _ = meter.Int64Counter("outbox.delivered",
		metric.WithDescription("Entries delivered to the external transport"))
	p.retried, _ = meter.Int64Counter("outbox.retried",
		metric.WithDescription("Failed deliveries rescheduled for retry"))
	p.dead, _ = meter.Int64Counter("outbox.dead_lettered",
		metric.WithDescription("Entries moved to the dead-letter set"))

	return p
}

// Name implements runner.Service.
func (p *Processor) Name() string { return "outbox-processor" }

// Start launches the polling loop and the lease reaper.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	p.stopped.Add(2)
	go p.pollLoop(loopCtx)
	go p.maintenanceLoop(loopCtx)

	p.logger.Info("outbox processor started",
		"workers", p.config.Workers,
		"batch_size", p.config.BatchSize,
		"poll_interval", p.config.PollInterval,
		"max_attempts", p.config.MaxAttempts)
	return nil
}

// Stop halts polling. In-flight deliveries finish; their leases expire and
// the reaper recovers anything unsettled.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.stopped.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbox processor did not stop before deadline: %w", ctx.Err())
	}
}

func (p *Processor) pollLoop(ctx context.Context) {
	defer p.stopped.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		drained, err := p.drainOnce(ctx)
		if err != nil {
			// Delivery errors never land here, only outbox storage
			// failures do. Halt until the next tick finds storage healthy
			// again; leases recover through the reaper.
			if ctx.Err() == nil {
				p.logger.Error("outbox storage unavailable, delivery halted", "error", err)
			}
			continue
		}
		// Keep draining without the poll delay while full batches come
		// back; a short batch falls back to the ticker.
		for drained == p.config.BatchSize && ctx.Err() == nil {
			if drained, err = p.drainOnce(ctx); err != nil {
				if ctx.Err() == nil {
					p.logger.Error("outbox storage unavailable, delivery halted", "error", err)
				}
				break
			}
		}
	}
}

// drainOnce leases one batch and delivers it through the worker pool. The
// returned error is a storage failure from leasing or settlement.
func (p *Processor) drainOnce(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	entries, err := p.store.Lease(ctx, p.owner, p.config.BatchSize, now, now.Add(p.config.LeaseDuration))
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var (
		errMu    sync.Mutex
		firstErr error
	)
	work := make(chan *store.OutboxEntry)
	var wg sync.WaitGroup
	for i := 0; i < p.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range work {
				if err := p.deliver(ctx, entry); err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
				}
			}
		}()
	}
	for _, entry := range entries {
		work <- entry
	}
	close(work)
	wg.Wait()

	return len(entries), firstErr
}

// deliver publishes one entry and settles the outcome. Publish failures are
// handled here (reschedule or dead-letter); settlement failures are storage
// errors and propagate.
func (p *Processor) deliver(ctx context.Context, entry *store.OutboxEntry) error {
	err := p.publisher.Publish(ctx, entry)
	if err == nil {
		if err := p.store.MarkDelivered(ctx, entry.ID); err != nil {
			return fmt.Errorf("failed to settle delivery of %s: %w", entry.ID, err)
		}
		p.delivered.Add(ctx, 1)
		p.logger.Debug("delivered", "entry", entry.ID, "event", entry.EventName)
		return nil
	}

	attempts := entry.Attempts + 1
	if attempts >= p.config.MaxAttempts {
		if deadErr := p.store.MarkDead(ctx, entry.ID, attempts, err.Error(), time.Now().UTC()); deadErr != nil {
			return fmt.Errorf("failed to dead-letter %s: %w", entry.ID, deadErr)
		}
		p.dead.Add(ctx, 1)
		p.logger.Error("entry dead-lettered",
			"entry", entry.ID, "event", entry.EventName, "attempts", attempts, "error", err)
		return nil
	}

	delay := backoff(p.config.BaseBackoff, attempts)
	if reschedErr := p.store.Reschedule(ctx, entry.ID, attempts, time.Now().UTC().Add(delay), err.Error()); reschedErr != nil {
		return fmt.Errorf("failed to reschedule %s: %w", entry.ID, reschedErr)
	}
	p.retried.Add(ctx, 1)
	p.logger.Warn("delivery failed, rescheduled",
		"entry", entry.ID, "event", entry.EventName, "attempts", attempts, "retry_in", delay, "error", err)
	return nil
}

// maintenanceLoop reaps expired leases and prunes delivered entries.
func (p *Processor) maintenanceLoop(ctx context.Context) {
	defer p.stopped.Done()

	ticker := time.NewTicker(p.config.LeaseDuration / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now().UTC()
		if n, err := p.store.ReapExpired(ctx, now); err != nil {
			p.logger.Error("failed to reap expired leases", "error", err)
		} else if n > 0 {
			p.logger.Warn("recovered expired leases", "count", n)
		}

		if p.config.Retention > 0 {
			if _, err := p.store.DeleteDelivered(ctx, now.Add(-p.config.Retention)); err != nil {
				p.logger.Error("failed to prune delivered entries", "error", err)
			}
		}
	}
}

// backoff returns base·2^(attempts-1) with full jitter, capped at one
// minute before jitter.
func backoff(base time.Duration, attempts int) time.Duration {
	d := base << (attempts - 1)
	if d <= 0 {
		return 0
	}
	if d > time.Minute {
		d = time.Minute
	}
	return time.Duration(rand.Int63n(int64(d)) + 1)
}
