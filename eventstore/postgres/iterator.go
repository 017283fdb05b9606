package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/bennyboer/eventsourcing/core"
)

type iterator struct {
	rows pgx.Rows
}

// Next return true if there are more data
func (i *iterator) Next() bool {
	return i.rows.Next()
}

// Value return the current event
func (i *iterator) Value() (core.Event, error) {
	return scanEvent(i.rows)
}

// Err returns the error that ended the iteration, if any
func (i *iterator) Err() error {
	return i.rows.Err()
}

// Close closes the iterator
func (i *iterator) Close() {
	i.rows.Close()
}
