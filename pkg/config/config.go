// Package config loads the daemon configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/plaenen/commercecore/pkg/batcher"
	"github.com/plaenen/commercecore/pkg/outbox"
)

// Config is the full daemon configuration.
type Config struct {
	// DatabaseDSN is the SQLite data source (file path or ":memory:").
	DatabaseDSN string

	// NATSURL connects the outbox publisher. Empty runs an embedded
	// server instead.
	NATSURL string

	// AssetBucketURL opens the digital-asset bucket. Empty disables
	// asset commands.
	AssetBucketURL string

	Batcher batcher.Config
	Outbox  outbox.Config

	Environment string
}

// FromEnv reads configuration from COMMERCE_* variables, falling back to
// defaults tuned for a single-node deployment.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseDSN:    envString("COMMERCE_DB_DSN", "commerce.db"),
		NATSURL:        envString("COMMERCE_NATS_URL", ""),
		AssetBucketURL: envString("COMMERCE_ASSET_BUCKET_URL", ""),
		Batcher:        batcher.DefaultConfig(),
		Outbox:         outbox.DefaultConfig(),
		Environment:    envString("COMMERCE_ENV", "dev"),
	}

	var err error
	if cfg.Batcher.FlushInterval, err = envDuration("COMMERCE_FLUSH_INTERVAL", cfg.Batcher.FlushInterval); err != nil {
		return Config{}, err
	}
	if cfg.Batcher.SizeThreshold, err = envInt("COMMERCE_BATCH_THRESHOLD", cfg.Batcher.SizeThreshold); err != nil {
		return Config{}, err
	}
	if cfg.Batcher.MaxQueueDepth, err = envInt("COMMERCE_QUEUE_DEPTH", cfg.Batcher.MaxQueueDepth); err != nil {
		return Config{}, err
	}
	if cfg.Outbox.Workers, err = envInt("COMMERCE_OUTBOX_WORKERS", cfg.Outbox.Workers); err != nil {
		return Config{}, err
	}
	if cfg.Outbox.BatchSize, err = envInt("COMMERCE_OUTBOX_BATCH_SIZE", cfg.Outbox.BatchSize); err != nil {
		return Config{}, err
	}
	if cfg.Outbox.PollInterval, err = envDuration("COMMERCE_OUTBOX_POLL_INTERVAL", cfg.Outbox.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.Outbox.LeaseDuration, err = envDuration("COMMERCE_OUTBOX_LEASE", cfg.Outbox.LeaseDuration); err != nil {
		return Config{}, err
	}
	if cfg.Outbox.MaxAttempts, err = envInt("COMMERCE_OUTBOX_MAX_ATTEMPTS", cfg.Outbox.MaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.Outbox.BaseBackoff, err = envDuration("COMMERCE_OUTBOX_BASE_BACKOFF", cfg.Outbox.BaseBackoff); err != nil {
		return Config{}, err
	}
	if cfg.Outbox.Retention, err = envDuration("COMMERCE_OUTBOX_RETENTION", cfg.Outbox.Retention); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
