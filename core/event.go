package core

import (
	"time"
)

// SnapshotReason is the reason stored on snapshot records.
const SnapshotReason = "Snapshot"

// Event is the stored unit of an aggregate stream. It holds either a domain event or,
// when Snapshot is set, a full state snapshot tagged with the version it was taken at.
type Event struct {
	AggregateID   string
	AggregateType string
	Version       Version
	AgentType     string
	AgentID       string
	Timestamp     time.Time
	Snapshot      bool
	Reason        string // based on the Data type
	Data          []byte // interface{} on the external Event type
}
