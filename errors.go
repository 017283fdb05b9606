package eventsourcing

import (
	"errors"
	"fmt"

	"github.com/bennyboer/eventsourcing/core"
)

var (
	// ErrAggregateNotFound returns if no events or snapshots exist for the aggregate
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrConcurrency when the current version of the aggregate differs from the expected one
	ErrConcurrency = core.ErrConcurrency

	// ErrEventNotRegistered when a tracked event type is not part of the aggregate's vocabulary
	ErrEventNotRegistered = errors.New("event not registered")

	// ErrAggregateNameMissing when the aggregate type has no name (anonymous struct)
	ErrAggregateNameMissing = errors.New("missing aggregate name")

	// ErrEventNameMissing when a registered event type has no name
	ErrEventNameMissing = errors.New("missing event name")

	// ErrAggregateNeedsToBeAPointer return if aggregate is sent in as value object
	ErrAggregateNeedsToBeAPointer = errors.New("aggregate needs to be a pointer")

	// ErrNoChanges when a create command did not produce any event
	ErrNoChanges = errors.New("command produced no events")

	// ErrUnknownCommand can be returned by aggregates for commands outside their vocabulary
	ErrUnknownCommand = errors.New("unknown command")
)

// VersionConflictError is returned when the expected version of a command does not match
// the stream, or when another writer appended at the same version first. Version is the
// current version of the stream in the store.
type VersionConflictError struct {
	AggregateType string
	AggregateID   string
	Version       Version
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s %s, current version is %d", e.AggregateType, e.AggregateID, e.Version)
}

// Is makes errors.Is(err, ErrConcurrency) hold
func (e *VersionConflictError) Is(target error) bool {
	return target == ErrConcurrency
}

// NotFoundError is returned when a stream holds no records
type NotFoundError struct {
	AggregateType string
	AggregateID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.AggregateType, e.AggregateID)
}

// Is makes errors.Is(err, ErrAggregateNotFound) hold
func (e *NotFoundError) Is(target error) bool {
	return target == ErrAggregateNotFound
}
