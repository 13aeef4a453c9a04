package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultAppName, cfg.AppName)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, 5*time.Minute, cfg.WebhookTolerance)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.NotEmpty(t, cfg.WebhookSecret)
	assert.Equal(t, ":8080", cfg.Address())
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/escrow")
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "w")

	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_URL")

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "")
	_, err = Load()
	assert.ErrorContains(t, err, "GATEWAY_WEBHOOK_SECRET")
}

func TestLoadDurations(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("IDEMPOTENCY_TTL_SECONDS", "60")
	t.Setenv("WEBHOOK_TOLERANCE", "90s")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.IdempotencyTTL)
	assert.Equal(t, 90*time.Second, cfg.WebhookTolerance)
	assert.Equal(t, 3*time.Second, cfg.ShutdownPeriod)

	t.Setenv("LOCK_TTL", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "LOCK_TTL")
}
