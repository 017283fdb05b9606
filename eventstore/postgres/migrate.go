package postgres

import (
	"context"
	"fmt"
)

// Migrate creates the events table and its indexes
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			seq BIGSERIAL PRIMARY KEY,
			aggregate_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			version BIGINT NOT NULL,
			agent_type TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL,
			snapshot BOOLEAN NOT NULL DEFAULT FALSE,
			timestamp TIMESTAMPTZ NOT NULL,
			data BYTEA
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS events_aggregate_version ON events (aggregate_id, aggregate_type, version) WHERE NOT snapshot`,
		`CREATE INDEX IF NOT EXISTS events_aggregate_snapshot ON events (aggregate_id, aggregate_type, snapshot, version)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}
