package core

import "errors"

// ErrEventMultipleAggregates when events holds different id
var ErrEventMultipleAggregates = errors.New("events holds events for more than one aggregate")

// ErrEventMultipleAggregateTypes when events holds different aggregate types
var ErrEventMultipleAggregateTypes = errors.New("events holds events for more than one aggregate type")

// ErrReasonMissing when the reason is not present in the events
var ErrReasonMissing = errors.New("event holds no reason")

// ErrVersionGap when the domain events in a batch are not consecutive
var ErrVersionGap = errors.New("event versions are not consecutive")

// ErrSnapshotAhead when a snapshot in a batch is tagged after the last domain event before it
var ErrSnapshotAhead = errors.New("snapshot version is ahead of the events")

// ValidateEvents make sure the incoming events are valid. Whether the versions are free in
// the stream is up to the store.
func ValidateEvents(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	aggregateID := events[0].AggregateID
	aggregateType := events[0].AggregateType

	var last Version
	seen := false
	for _, event := range events {
		if event.AggregateID != aggregateID {
			return ErrEventMultipleAggregates
		}

		if event.AggregateType != aggregateType {
			return ErrEventMultipleAggregateTypes
		}

		if event.Reason == "" {
			return ErrReasonMissing
		}

		if event.Snapshot {
			if seen && event.Version > last {
				return ErrSnapshotAhead
			}
			continue
		}

		if seen && last.Next() != event.Version {
			return ErrVersionGap
		}
		last = event.Version
		seen = true
	}
	return nil
}
