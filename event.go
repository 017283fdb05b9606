package eventsourcing

import (
	"time"

	"github.com/bennyboer/eventsourcing/core"
)

// Version is the position of an event in its aggregate stream, zero being the first
type Version = core.Version

// Event is a decoded domain event handed to Transition
type Event struct {
	event core.Event // internal event
	data  interface{}
}

// NewEvent wraps a stored event with its decoded payload
func NewEvent(e core.Event, data interface{}) Event {
	return Event{event: e, data: data}
}

// Data returns the typed payload, one of the types the aggregate registered
func (e Event) Data() interface{} {
	return e.data
}

func (e Event) AggregateType() string {
	return e.event.AggregateType
}

func (e Event) AggregateID() string {
	return e.event.AggregateID
}

// Reason is the name of the payload type
func (e Event) Reason() string {
	return e.event.Reason
}

func (e Event) Version() Version {
	return e.event.Version
}

func (e Event) Timestamp() time.Time {
	return e.event.Timestamp
}

func (e Event) Agent() Agent {
	return Agent{Type: AgentType(e.event.AgentType), ID: e.event.AgentID}
}
