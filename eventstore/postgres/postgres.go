package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bennyboer/eventsourcing/core"
)

const uniqueViolation = "23505"

// Postgres event store backed by a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens a pool for the connection string
func Connect(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(pool), nil
}

// Close the pool
func (p *Postgres) Close() {
	p.pool.Close()
}

// Save appends the events in one transaction
func (p *Postgres) Save(ctx context.Context, events []core.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := core.ValidateEvents(events); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, event := range events {
		_, err = tx.Exec(ctx, `
			INSERT INTO events (
				aggregate_id, aggregate_type, version, agent_type, agent_id,
				reason, snapshot, timestamp, data
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			event.AggregateID,
			event.AggregateType,
			int64(event.Version),
			event.AgentType,
			event.AgentID,
			event.Reason,
			event.Snapshot,
			event.Timestamp.UTC(),
			event.Data,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return core.ErrConcurrency
			}
			return fmt.Errorf("failed to insert event %d: %w", event.Version, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.ErrConcurrency
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get returns the records of a stream from version on
func (p *Postgres) Get(ctx context.Context, id string, aggregateType string, from core.Version) (core.Iterator, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT aggregate_id, aggregate_type, version, agent_type, agent_id, reason, snapshot, timestamp, data
		FROM events
		WHERE aggregate_id = $1 AND aggregate_type = $2 AND version >= $3
		ORDER BY version ASC, snapshot ASC, seq ASC
	`, id, aggregateType, int64(from))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return &iterator{rows: rows}, nil
}

// LatestSnapshot returns the newest snapshot at or below upTo
func (p *Postgres) LatestSnapshot(ctx context.Context, id string, aggregateType string, upTo core.Version) (core.Event, error) {
	query := `
		SELECT aggregate_id, aggregate_type, version, agent_type, agent_id, reason, snapshot, timestamp, data
		FROM events
		WHERE aggregate_id = $1 AND aggregate_type = $2 AND snapshot`
	args := []interface{}{id, aggregateType}
	if upTo != core.MaxVersion {
		query += ` AND version <= $3`
		args = append(args, int64(upTo))
	}
	query += ` ORDER BY version DESC, seq DESC LIMIT 1`

	event, err := scanEvent(p.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Event{}, core.ErrSnapshotNotFound
	}
	if err != nil {
		return core.Event{}, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return event, nil
}

// LatestVersion returns the version of the last domain event
func (p *Postgres) LatestVersion(ctx context.Context, id string, aggregateType string) (core.Version, error) {
	var version *int64
	err := p.pool.QueryRow(ctx, `
		SELECT MAX(version) FROM events
		WHERE aggregate_id = $1 AND aggregate_type = $2 AND NOT snapshot
	`, id, aggregateType).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query latest version: %w", err)
	}
	if version == nil {
		return 0, core.ErrNoEvents
	}
	return core.Version(*version), nil
}

func scanEvent(row pgx.Row) (core.Event, error) {
	var event core.Event
	var version int64
	err := row.Scan(
		&event.AggregateID,
		&event.AggregateType,
		&version,
		&event.AgentType,
		&event.AgentID,
		&event.Reason,
		&event.Snapshot,
		&event.Timestamp,
		&event.Data,
	)
	if err != nil {
		return core.Event{}, err
	}
	event.Version = core.Version(version)
	event.Timestamp = event.Timestamp.UTC()
	return event, nil
}
