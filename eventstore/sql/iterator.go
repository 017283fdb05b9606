package sql

import (
	"database/sql"
	"time"

	"github.com/bennyboer/eventsourcing/core"
)

type iterator struct {
	rows *sql.Rows
}

// Next return true if there are more data
func (i *iterator) Next() bool {
	return i.rows.Next()
}

// Value return the an event
func (i *iterator) Value() (core.Event, error) {
	var version int64
	var snapshot int
	var id, typ, agentType, agentID, reason, timestamp string
	var data []byte
	if err := i.rows.Scan(&id, &typ, &version, &agentType, &agentID, &reason, &snapshot, &timestamp, &data); err != nil {
		return core.Event{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return core.Event{}, err
	}

	event := core.Event{
		AggregateID:   id,
		AggregateType: typ,
		Version:       core.Version(version),
		AgentType:     agentType,
		AgentID:       agentID,
		Timestamp:     t,
		Snapshot:      snapshot == 1,
		Reason:        reason,
		Data:          data,
	}
	return event, nil
}

// Err returns the error that ended the iteration, if any
func (i *iterator) Err() error {
	return i.rows.Err()
}

// Close closes the iterator
func (i *iterator) Close() {
	i.rows.Close()
}
