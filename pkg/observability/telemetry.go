// Package observability bootstraps OpenTelemetry metrics for the daemon.
// Instruments live next to the code they measure (batcher, commands,
// outbox); this package installs the global provider they resolve against.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config describes the service and the optional metric reader.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// MetricReader exports the collected metrics. Nil disables metrics;
	// instrument calls then cost nothing.
	MetricReader sdkmetric.Reader

	Logger *slog.Logger
}

// Telemetry holds the installed providers and their shutdown hook.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	logger   *slog.Logger
}

// Init installs the global meter provider. With no reader configured the
// provider stays empty and every instrument is a no-op.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to describe service resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.MetricReader != nil {
		opts = append(opts, sdkmetric.WithReader(cfg.MetricReader))
		cfg.Logger.Info("metrics enabled", "service", cfg.ServiceName)
	} else {
		cfg.Logger.Info("metrics disabled (no reader configured)")
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	return &Telemetry{provider: provider, logger: cfg.Logger}, nil
}

// Shutdown flushes and stops the provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down meter provider: %w", err)
	}
	return nil
}
