package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/bennyboer/eventsourcing/core"
)

// Memory is a handler for event streaming
type Memory struct {
	aggregateEvents map[string][]core.Event // The memory structure where we store aggregate events and snapshots
	lock            sync.RWMutex
}

// Create in memory event store
func Create() *Memory {
	return &Memory{
		aggregateEvents: make(map[string][]core.Event),
	}
}

// Save an aggregate (its events)
func (e *Memory) Save(ctx context.Context, events []core.Event) error {
	// Return if there is no events to save
	if len(events) == 0 {
		return nil
	}
	if err := core.ValidateEvents(events); err != nil {
		return err
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	bucketName := aggregateKey(events[0].AggregateType, events[0].AggregateID)
	evBucket := e.aggregateEvents[bucketName]

	// check every domain event version before touching the bucket so a conflicting batch
	// leaves no trace
	for _, event := range events {
		if event.Snapshot {
			continue
		}
		if hasEventAt(evBucket, event.Version) {
			return core.ErrConcurrency
		}
	}

	for _, event := range events {
		evBucket = insertOrdered(evBucket, event)
	}
	e.aggregateEvents[bucketName] = evBucket
	return nil
}

// Get aggregate events
func (e *Memory) Get(ctx context.Context, id string, aggregateType string, from core.Version) (core.Iterator, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	var events []core.Event
	for _, event := range e.aggregateEvents[aggregateKey(aggregateType, id)] {
		if event.Version >= from {
			events = append(events, event)
		}
	}
	return core.NewSliceIterator(events), nil
}

// LatestSnapshot returns the newest snapshot at or below upTo
func (e *Memory) LatestSnapshot(ctx context.Context, id string, aggregateType string, upTo core.Version) (core.Event, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	evBucket := e.aggregateEvents[aggregateKey(aggregateType, id)]
	for i := len(evBucket) - 1; i >= 0; i-- {
		event := evBucket[i]
		if event.Snapshot && event.Version <= upTo {
			return event, nil
		}
	}
	return core.Event{}, core.ErrSnapshotNotFound
}

// LatestVersion returns the version of the last domain event
func (e *Memory) LatestVersion(ctx context.Context, id string, aggregateType string) (core.Version, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	evBucket := e.aggregateEvents[aggregateKey(aggregateType, id)]
	for i := len(evBucket) - 1; i >= 0; i-- {
		if !evBucket[i].Snapshot {
			return evBucket[i].Version, nil
		}
	}
	return 0, core.ErrNoEvents
}

// Count returns the number of stored records including snapshots
func (e *Memory) Count() int {
	e.lock.RLock()
	defer e.lock.RUnlock()

	count := 0
	for _, events := range e.aggregateEvents {
		count += len(events)
	}
	return count
}

// Close does nothing
func (e *Memory) Close() {}

func hasEventAt(events []core.Event, version core.Version) bool {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Version < version {
			return false
		}
		if events[i].Version == version && !events[i].Snapshot {
			return true
		}
	}
	return false
}

// insertOrdered keeps the bucket sorted on version with an event placed before the
// snapshots sharing its version.
func insertOrdered(events []core.Event, event core.Event) []core.Event {
	i := len(events)
	for i > 0 && after(events[i-1], event) {
		i--
	}
	events = append(events, core.Event{})
	copy(events[i+1:], events[i:])
	events[i] = event
	return events
}

func after(stored, event core.Event) bool {
	if stored.Version != event.Version {
		return stored.Version > event.Version
	}
	return stored.Snapshot && !event.Snapshot
}

// aggregateKey generate a aggregate key to store events against from aggregateType and aggregateID.
// The length prefix keeps ("a_b", "c") and ("a", "b_c") apart.
func aggregateKey(aggregateType, aggregateID string) string {
	return fmt.Sprintf("%d:%s_%s", len(aggregateType), aggregateType, aggregateID)
}
