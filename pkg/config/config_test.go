package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "commerce.db", cfg.DatabaseDSN)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 4, cfg.Outbox.Workers)
}

func TestOverrides(t *testing.T) {
	t.Setenv("COMMERCE_DB_DSN", ":memory:")
	t.Setenv("COMMERCE_FLUSH_INTERVAL", "10ms")
	t.Setenv("COMMERCE_BATCH_THRESHOLD", "50")
	t.Setenv("COMMERCE_OUTBOX_MAX_ATTEMPTS", "7")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.DatabaseDSN)
	assert.Equal(t, 10*time.Millisecond, cfg.Batcher.FlushInterval)
	assert.Equal(t, 50, cfg.Batcher.SizeThreshold)
	assert.Equal(t, 7, cfg.Outbox.MaxAttempts)
}

func TestInvalidValues(t *testing.T) {
	t.Setenv("COMMERCE_OUTBOX_LEASE", "soon")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMMERCE_OUTBOX_LEASE")
}
