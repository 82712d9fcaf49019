package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL string
	ServerAddr  string

	Provider string
	Model    string

	SystemPrompt string

	GenerationTimeout time.Duration
	LockTTL           time.Duration
	TypingTTL         time.Duration
	LockWait          time.Duration

	SweepInterval time.Duration
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "turnhub")
		pass := getenv("POSTGRES_PASSWORD", "turnhub_pass")
		db := getenv("POSTGRES_DB", "turnhub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}
	addr := getenv("SERVER_ADDR", "0.0.0.0:8080")

	provider := getenv("PROVIDER", "anthropic")
	model := os.Getenv("MODEL")

	generationTimeout := parseDuration(getenv("GENERATION_TIMEOUT", "120s"), 120*time.Second)
	lockTTL := parseDuration(getenv("LOCK_TTL", "150s"), 150*time.Second)
	if lockTTL <= generationTimeout {
		return nil, fmt.Errorf("LOCK_TTL (%s) must exceed GENERATION_TIMEOUT (%s)", lockTTL, generationTimeout)
	}

	return &Config{
		DatabaseURL:       dsn,
		ServerAddr:        addr,
		Provider:          provider,
		Model:             model,
		SystemPrompt:      os.Getenv("SYSTEM_PROMPT"),
		GenerationTimeout: generationTimeout,
		LockTTL:           lockTTL,
		TypingTTL:         parseDuration(getenv("TYPING_TTL", "15s"), 15*time.Second),
		LockWait:          parseDuration(getenv("LOCK_WAIT", "2s"), 2*time.Second),
		SweepInterval:     parseDuration(getenv("SWEEP_INTERVAL", "30s"), 30*time.Second),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}
