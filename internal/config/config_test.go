package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "data/site4me.db", cfg.DatabaseURL)
	assert.Empty(t, cfg.MirrorURI)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileEvery)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 30, cfg.RecentVisitLimit)
	assert.Equal(t, 10, cfg.RetryLimit)
	assert.Equal(t, 1.0, cfg.MinVisitSeconds)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", ":9999")
	t.Setenv("APP_RECONCILE_EVERY", "90s")
	t.Setenv("APP_RECENT_VISIT_LIMIT", "50")
	t.Setenv("APP_MIN_VISIT_SECONDS", "2.5")
	t.Setenv("APP_MIRROR_WATCH", "true")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 90*time.Second, cfg.ReconcileEvery)
	assert.Equal(t, 50, cfg.RecentVisitLimit)
	assert.Equal(t, 2.5, cfg.MinVisitSeconds)
	assert.True(t, cfg.MirrorWatch)
}

func TestLoadIgnoresInvalidOverrides(t *testing.T) {
	t.Setenv("APP_RECONCILE_EVERY", "not-a-duration")
	t.Setenv("APP_RETRY_LIMIT", "-5")

	cfg := Load()

	assert.Equal(t, 5*time.Minute, cfg.ReconcileEvery)
	assert.Equal(t, 10, cfg.RetryLimit)
}
