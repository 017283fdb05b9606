// Package snapshot converts aggregate state to and from a generic field record that keeps
// old snapshots readable while the aggregate struct evolves.
//
// Decoding never fails on schema drift: fields missing from the record keep their zero
// value, fields unknown to the struct are ignored and values of the wrong type are
// coerced through their string form, or left at the zero value if that form does not
// parse into the field.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrNotStruct is returned when the value to encode or decode is not a struct (pointer)
var ErrNotStruct = errors.New("snapshot value needs to be a pointer to a struct")

// Record is the loosely typed form of an aggregate state. Values are strings, bools,
// int64, uint64, float64, nil, []interface{} and nested Records.
type Record map[string]interface{}

// Codec encodes and decodes aggregate state. Field accessors are resolved once per type
// and shared by all calls.
type Codec struct {
	schemas sync.Map // reflect.Type -> *schema
}

// NewCodec returns a codec with an empty schema cache
func NewCodec() *Codec {
	return &Codec{}
}

// Encode returns the record of the exported fields of v
func (c *Codec) Encode(v interface{}) (Record, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, ErrNotStruct
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, ErrNotStruct
	}
	return c.schemaOf(rv.Type()).encode(rv), nil
}

// Decode populates v, a pointer to a struct, from the record
func (c *Codec) Decode(r Record, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrNotStruct
	}
	c.schemaOf(rv.Elem().Type()).decode(r, rv.Elem())
	return nil
}

// Marshal encodes v into json bytes
func (c *Codec) Marshal(v interface{}) ([]byte, error) {
	r, err := c.Encode(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// Unmarshal decodes json bytes produced by Marshal, possibly from an older version of the
// struct, into v
func (c *Codec) Unmarshal(data []byte, v interface{}) error {
	r, err := Parse(data)
	if err != nil {
		return err
	}
	return c.Decode(r, v)
}

// Parse reads the record from json bytes keeping numbers exact
func Parse(data []byte) (Record, error) {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	var r Record
	if err := d.Decode(&r); err != nil {
		return nil, fmt.Errorf("could not parse snapshot record: %w", err)
	}
	if r == nil {
		r = Record{}
	}
	return r, nil
}

func (c *Codec) schemaOf(t reflect.Type) *schema {
	if s, ok := c.schemas.Load(t); ok {
		return s.(*schema)
	}
	s, _ := c.schemas.LoadOrStore(t, c.buildSchema(t))
	return s.(*schema)
}
