// Package eventstore opens the event store backend selected by the configuration.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	goredis "github.com/redis/go-redis/v9"

	"github.com/bennyboer/eventsourcing/config"
	"github.com/bennyboer/eventsourcing/core"
	"github.com/bennyboer/eventsourcing/eventstore/bbolt"
	"github.com/bennyboer/eventsourcing/eventstore/memory"
	"github.com/bennyboer/eventsourcing/eventstore/postgres"
	"github.com/bennyboer/eventsourcing/eventstore/redis"
	sqlstore "github.com/bennyboer/eventsourcing/eventstore/sql"
)

// Open connects to the configured backend and prepares its schema. The returned func
// releases the backend.
func Open(ctx context.Context, cfg config.Config) (core.EventStore, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		m := memory.Create()
		return m, m.Close, nil

	case config.StoreBBolt:
		b, err := bbolt.New(cfg.BBoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open bbolt %s: %w", cfg.BBoltPath, err)
		}
		return b, func() { b.Close() }, nil

	case config.StoreSQLite:
		db, err := sql.Open("sqlite3", cfg.SQLiteDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		s := sqlstore.Open(db)
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return s, s.Close, nil

	case config.StorePostgres:
		p, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := p.Migrate(ctx); err != nil {
			p.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return p, p.Close, nil

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		r := redis.New(client, cfg.RedisPrefix)
		return r, func() { r.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}
