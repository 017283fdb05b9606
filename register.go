package eventsourcing

import (
	"encoding/json"
	"reflect"
)

// RegisterFunc is handed to Aggregate.Register to list the aggregate's event types
type RegisterFunc = func(events ...interface{})

// register maps event reasons to the payload types of one aggregate type
type register struct {
	types map[string]reflect.Type
}

func newRegister() *register {
	return &register{
		types: make(map[string]reflect.Type),
	}
}

func (r *register) Register(a Aggregate) error {
	var err error
	a.Register(func(events ...interface{}) {
		for _, e := range events {
			reason := eventReason(e)
			if reason == "" {
				err = ErrEventNameMissing
				continue
			}
			r.types[reason] = reflect.TypeOf(e)
		}
	})
	return err
}

// EventRegistered tells if the reason belongs to a registered payload type
func (r *register) EventRegistered(reason string) bool {
	_, ok := r.types[reason]
	return ok
}

// decode returns the payload of a stored event in the shape it was registered with,
// pointer or value
func (r *register) decode(reason string, data []byte) (interface{}, error) {
	t, ok := r.types[reason]
	if !ok {
		return nil, ErrEventNotRegistered
	}
	if t.Kind() == reflect.Ptr {
		v := reflect.New(t.Elem())
		if err := json.Unmarshal(data, v.Interface()); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
	v := reflect.New(t)
	if err := json.Unmarshal(data, v.Interface()); err != nil {
		return nil, err
	}
	return v.Elem().Interface(), nil
}

// eventReason is the name of the payload type, pointers dereferenced
func eventReason(data interface{}) string {
	t := reflect.TypeOf(data)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
