package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bennyboer/eventsourcing/core"
	"github.com/mattn/go-sqlite3"
)

// SQL event store handler
type SQL struct {
	db *sql.DB
}

// Open connection to database
func Open(db *sql.DB) *SQL {
	return &SQL{
		db: db,
	}
}

// Close the connection
func (s *SQL) Close() {
	s.db.Close()
}

// Save persists events to the database
func (s *SQL) Save(ctx context.Context, events []core.Event) error {
	// If no event return no error
	if len(events) == 0 {
		return nil
	}
	if err := core.ValidateEvents(events); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not start a write transaction, %w", err)
	}
	defer tx.Rollback()

	insert := `INSERT INTO events (aggregate_id, aggregate_type, version, agent_type, agent_id, reason, snapshot, timestamp, data) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, event := range events {
		snapshot := 0
		if event.Snapshot {
			snapshot = 1
		}
		_, err = tx.ExecContext(ctx, insert,
			event.AggregateID,
			event.AggregateType,
			int64(event.Version),
			event.AgentType,
			event.AgentID,
			event.Reason,
			snapshot,
			event.Timestamp.UTC().Format(time.RFC3339Nano),
			event.Data,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return core.ErrConcurrency
			}
			return fmt.Errorf("could not save event: %w", err)
		}
	}
	return tx.Commit()
}

// Get the events from database
func (s *SQL) Get(ctx context.Context, id string, aggregateType string, from core.Version) (core.Iterator, error) {
	selectStm := `SELECT aggregate_id, aggregate_type, version, agent_type, agent_id, reason, snapshot, timestamp, data FROM events WHERE aggregate_id=$1 AND aggregate_type=$2 AND version>=$3 ORDER BY version ASC, snapshot ASC, seq ASC`
	rows, err := s.db.QueryContext(ctx, selectStm, id, aggregateType, int64(from))
	if err != nil {
		return nil, err
	}
	return &iterator{rows: rows}, nil
}

// LatestSnapshot returns the newest snapshot at or below upTo
func (s *SQL) LatestSnapshot(ctx context.Context, id string, aggregateType string, upTo core.Version) (core.Event, error) {
	selectStm := `SELECT aggregate_id, aggregate_type, version, agent_type, agent_id, reason, snapshot, timestamp, data FROM events WHERE aggregate_id=$1 AND aggregate_type=$2 AND snapshot=1`
	args := []interface{}{id, aggregateType}
	if upTo != core.MaxVersion {
		selectStm += ` AND version<=$3`
		args = append(args, int64(upTo))
	}
	selectStm += ` ORDER BY version DESC, seq DESC LIMIT 1`

	rows, err := s.db.QueryContext(ctx, selectStm, args...)
	if err != nil {
		return core.Event{}, err
	}
	i := iterator{rows: rows}
	defer i.Close()
	if !i.Next() {
		if err := rows.Err(); err != nil {
			return core.Event{}, err
		}
		return core.Event{}, core.ErrSnapshotNotFound
	}
	return i.Value()
}

// LatestVersion returns the version of the last domain event
func (s *SQL) LatestVersion(ctx context.Context, id string, aggregateType string) (core.Version, error) {
	var version sql.NullInt64
	selectStm := `SELECT MAX(version) FROM events WHERE aggregate_id=$1 AND aggregate_type=$2 AND snapshot=0`
	err := s.db.QueryRowContext(ctx, selectStm, id, aggregateType).Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, core.ErrNoEvents
	}
	return core.Version(version.Int64), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
