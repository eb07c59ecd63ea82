package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	ListenAddr string

	// AllowedOrigin is the origin the tracked website is served from, for
	// CORS. Defaults to * because the stats are public anyway.
	AllowedOrigin string

	// DatabaseURL selects the local authoritative store. A postgres://
	// URL connects to PostgreSQL; anything else is treated as a SQLite
	// file path. Defaults to an embedded SQLite file so a personal site
	// needs no external database.
	DatabaseURL string

	// MirrorURI is the MongoDB connection string for the mirror store.
	// If empty, mirroring and reconciliation are disabled and the
	// service runs local-only.
	MirrorURI      string
	MirrorDatabase string

	// MirrorWatch enables the change-stream listener that applies remote
	// updates to the local store as they happen, in addition to the
	// periodic reconciliation pass. Requires a replica-set deployment.
	MirrorWatch bool

	MirrorTimeout  time.Duration
	ReconcileEvery time.Duration
	CacheTTL       time.Duration

	// RecentVisitLimit caps the rolling recent-visit log.
	RecentVisitLimit int

	// RetryLimit caps the durable retry buffer; the oldest event is
	// dropped when a new one arrives at capacity.
	RetryLimit int

	// MinVisitSeconds is the shortest dwell time the duration tracker
	// will emit as a completed visit.
	MinVisitSeconds float64

	// SessionIdleTimeout is how long a tracker session may go without a
	// signal before the sweep finalizes it.
	SessionIdleTimeout time.Duration
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		ListenAddr:         getenv("APP_LISTEN_ADDR", ":8080"),
		AllowedOrigin:      getenv("APP_ALLOWED_ORIGIN", "*"),
		DatabaseURL:        getenv("APP_DATABASE_URL", "data/site4me.db"),
		MirrorURI:          os.Getenv("APP_MIRROR_URI"),
		MirrorDatabase:     getenv("APP_MIRROR_DB", "site4me"),
		MirrorWatch:        os.Getenv("APP_MIRROR_WATCH") == "true",
		MirrorTimeout:      getduration("APP_MIRROR_TIMEOUT", 10*time.Second),
		ReconcileEvery:     getduration("APP_RECONCILE_EVERY", 5*time.Minute),
		CacheTTL:           getduration("APP_CACHE_TTL", 30*time.Second),
		RecentVisitLimit:   30,
		RetryLimit:         10,
		MinVisitSeconds:    1,
		SessionIdleTimeout: getduration("APP_SESSION_IDLE_TIMEOUT", 5*time.Minute),
	}

	if v := os.Getenv("APP_RECENT_VISIT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RecentVisitLimit = n
		}
	}
	if v := os.Getenv("APP_RETRY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetryLimit = n
		}
	}
	if v := os.Getenv("APP_MIN_VISIT_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.MinVisitSeconds = f
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
