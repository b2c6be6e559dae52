// Package runner manages the lifecycle of long-running services: ordered
// startup, signal handling, and reverse-order graceful shutdown.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Service is a long-running component with explicit start and stop phases.
type Service interface {
	// Name identifies the service in logs and errors.
	Name() string

	// Start brings the service up. It must return once the service is
	// ready and must respect context cancellation.
	Start(ctx context.Context) error

	// Stop shuts the service down gracefully within the context deadline.
	Stop(ctx context.Context) error
}

// Runner starts services in registration order and stops them in reverse.
type Runner struct {
	services        []Service
	logger          *slog.Logger
	startupTimeout  time.Duration
	shutdownTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithStartupTimeout bounds each service's Start call. Default one minute.
func WithStartupTimeout(d time.Duration) Option {
	return func(r *Runner) { r.startupTimeout = d }
}

// WithShutdownTimeout bounds the whole shutdown phase. Default 30 seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Runner) { r.shutdownTimeout = d }
}

// New creates a Runner over the given services.
func New(services []Service, opts ...Option) *Runner {
	r := &Runner{
		services:        services,
		logger:          slog.Default(),
		startupTimeout:  time.Minute,
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts every service, blocks until the context is cancelled or a
// termination signal arrives, then stops the started services in reverse
// order.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		WaitForShutdownSignal()
		r.logger.Info("shutdown signal received")
		cancel()
	}()

	var started []Service
	for _, svc := range r.services {
		r.logger.Info("starting service", "service", svc.Name())

		startCtx, startCancel := context.WithTimeout(ctx, r.startupTimeout)
		err := svc.Start(startCtx)
		startCancel()
		if err != nil {
			r.logger.Error("service failed to start", "service", svc.Name(), "error", err)
			r.stop(started)
			return fmt.Errorf("start service %s: %w", svc.Name(), err)
		}
		started = append(started, svc)
	}
	r.logger.Info("all services started", "count", len(started))

	<-ctx.Done()
	r.logger.Info("shutting down", "timeout", r.shutdownTimeout)
	return r.stop(started)
}

func (r *Runner) stop(services []Service) error {
	if len(services) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	var (
		wg   sync.WaitGroup
		errs = make(chan error, len(services))
	)
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Stop(ctx); err != nil {
				r.logger.Error("service failed to stop", "service", svc.Name(), "error", err)
				errs <- fmt.Errorf("stop service %s: %w", svc.Name(), err)
				return
			}
			r.logger.Info("service stopped", "service", svc.Name())
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errs)
		var all []error
		for err := range errs {
			all = append(all, err)
		}
		return errors.Join(all...)
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout of %s exceeded", r.shutdownTimeout)
	}
}

// WaitForShutdownSignal blocks until SIGINT or SIGTERM.
func WaitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
