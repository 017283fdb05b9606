// Package config holds the environment driven settings of the event sourcing engine.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Store names accepted in EVENTSOURCING_STORE
const (
	StoreMemory   = "memory"
	StoreBBolt    = "bbolt"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config selects the event store backend and the snapshot policy.
type Config struct {
	Store       string `env:"EVENTSOURCING_STORE"        envDefault:"memory"`
	BBoltPath   string `env:"EVENTSOURCING_BBOLT_PATH"   envDefault:"eventsourcing.db"`
	SQLiteDSN   string `env:"EVENTSOURCING_SQLITE_DSN"   envDefault:"file:eventsourcing.sqlite?_busy_timeout=5000"`
	PostgresURL string `env:"EVENTSOURCING_POSTGRES_URL"`
	RedisAddr   string `env:"EVENTSOURCING_REDIS_ADDR"   envDefault:"localhost:6379"`
	RedisPrefix string `env:"EVENTSOURCING_REDIS_PREFIX" envDefault:"es"`

	SnapshotEvery    uint64 `env:"EVENTSOURCING_SNAPSHOT_EVERY"     envDefault:"100"`
	SnapshotsEnabled bool   `env:"EVENTSOURCING_SNAPSHOTS_ENABLED"  envDefault:"true"`

	// RecoveryConcurrency bounds the parallel recoveries of one GetMany call
	RecoveryConcurrency int `env:"EVENTSOURCING_RECOVERY_CONCURRENCY" envDefault:"8"`

	LogMode string `env:"EVENTSOURCING_LOG_MODE" envDefault:"development"`
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected store is known and has its connection setting.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreBBolt:
		if c.BBoltPath == "" {
			return fmt.Errorf("store %s needs EVENTSOURCING_BBOLT_PATH", c.Store)
		}
	case StoreSQLite:
		if c.SQLiteDSN == "" {
			return fmt.Errorf("store %s needs EVENTSOURCING_SQLITE_DSN", c.Store)
		}
	case StorePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("store %s needs EVENTSOURCING_POSTGRES_URL", c.Store)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("store %s needs EVENTSOURCING_REDIS_ADDR", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.SnapshotsEnabled && c.SnapshotEvery == 0 {
		return fmt.Errorf("EVENTSOURCING_SNAPSHOT_EVERY must be positive when snapshots are enabled")
	}
	if c.RecoveryConcurrency < 1 {
		return fmt.Errorf("EVENTSOURCING_RECOVERY_CONCURRENCY must be at least 1")
	}
	return nil
}
