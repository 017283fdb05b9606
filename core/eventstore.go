package core

import (
	"context"
	"errors"
)

// ErrConcurrency when a record already exists at the version of an appended event
var ErrConcurrency = errors.New("concurrency error")

// ErrNoEvents when a stream holds no domain events
var ErrNoEvents = errors.New("no events")

// ErrSnapshotNotFound when a stream holds no snapshot at or below the requested version
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Iterator is the interface an event store Get needs to return. Next returns false both
// at the end of the stream and when reading fails, Err tells the two apart.
type Iterator interface {
	Next() bool
	Value() (Event, error)
	Err() error
	Close()
}

// EventStore interface expose the methods an event store must uphold
type EventStore interface {
	// Save appends the events atomically. It fails with ErrConcurrency if a domain event
	// already exists at any of the versions. Snapshot records never conflict.
	Save(ctx context.Context, events []Event) error
	// Get returns all records of the stream with version >= from in ascending order.
	Get(ctx context.Context, id, aggregateType string, from Version) (Iterator, error)
	// LatestSnapshot returns the newest snapshot with version <= upTo.
	LatestSnapshot(ctx context.Context, id, aggregateType string, upTo Version) (Event, error)
	// LatestVersion returns the version of the last domain event of the stream.
	LatestVersion(ctx context.Context, id, aggregateType string) (Version, error)
}
