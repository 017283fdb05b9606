package eventsourcing

import (
	"reflect"
	"time"

	"github.com/bennyboer/eventsourcing/core"
)

// Aggregate is implemented by the business aggregates the Service operates on. The
// implementation is a pointer to a struct embedding AggregateRoot.
type Aggregate interface {
	Root() *AggregateRoot
	// Transition applies one event to the state. It is used both when replaying the
	// stream and when a command tracks a new change.
	Transition(event Event)
	// Register lists the event payload types of the aggregate
	Register(RegisterFunc)
	// Handle turns a command into new events by calling TrackChange, or rejects it
	Handle(cmd interface{}, agent Agent) error
}

// AggregateRoot to be included into aggregates. None of its fields are exported so the
// identity and version never end up in a snapshot.
type AggregateRoot struct {
	aggregateID      string
	aggregateType    string
	aggregateVersion Version
	exists           bool
	agent            Agent
	now              func() time.Time
	aggregateEvents  []Event
}

// TrackChange is used by command handlers to apply a state change to the current
// instance and also track it in order that it can be persisted later.
func (ar *AggregateRoot) TrackChange(a Aggregate, data interface{}) {
	now := ar.now
	if now == nil {
		now = time.Now
	}
	typ := ar.aggregateType
	if typ == "" {
		typ = aggregateType(a)
	}
	event := Event{
		event: core.Event{
			AggregateID:   ar.aggregateID,
			AggregateType: typ,
			Version:       ar.nextVersion(),
			AgentType:     string(ar.agent.Type),
			AgentID:       ar.agent.ID,
			Timestamp:     now().UTC(),
			Reason:        eventReason(data),
		},
		data: data,
	}
	ar.aggregateEvents = append(ar.aggregateEvents, event)
	a.Transition(event)
}

func (ar *AggregateRoot) nextVersion() Version {
	if !ar.exists && len(ar.aggregateEvents) == 0 {
		return core.Zero()
	}
	return ar.Version().Next()
}

// setInternals is called by the service when the state is recovered or prepared for a
// command
func (ar *AggregateRoot) setInternals(id, typ string, version Version, exists bool) {
	ar.aggregateID = id
	ar.aggregateType = typ
	ar.aggregateVersion = version
	ar.exists = exists
}

// update moves the version to the last tracked event once the events are stored
func (ar *AggregateRoot) update() {
	if len(ar.aggregateEvents) > 0 {
		ar.aggregateVersion = ar.aggregateEvents[len(ar.aggregateEvents)-1].Version()
		ar.exists = true
		ar.aggregateEvents = nil
	}
}

// ID returns the aggregate ID as a string
func (ar *AggregateRoot) ID() string {
	return ar.aggregateID
}

// Root returns the included Aggregate Root state, and is used from the interface Aggregate.
func (ar *AggregateRoot) Root() *AggregateRoot {
	return ar
}

// Version return the version including events that are not stored yet
func (ar *AggregateRoot) Version() Version {
	if len(ar.aggregateEvents) > 0 {
		return ar.aggregateEvents[len(ar.aggregateEvents)-1].Version()
	}
	return ar.aggregateVersion
}

// Exists reports whether the aggregate has any stored or tracked event
func (ar *AggregateRoot) Exists() bool {
	return ar.exists || len(ar.aggregateEvents) > 0
}

// Events return the tracked events that are not stored yet
// make a copy of the slice preventing outsiders modifying events.
func (ar *AggregateRoot) Events() []Event {
	e := make([]Event, len(ar.aggregateEvents))
	copy(e, ar.aggregateEvents)
	return e
}

// UnsavedEvents return true if there's unsaved events on the aggregate
func (ar *AggregateRoot) UnsavedEvents() bool {
	return len(ar.aggregateEvents) > 0
}

func aggregateType(a interface{}) string {
	t := reflect.TypeOf(a)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
