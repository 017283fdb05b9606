package snapshot

import (
	"encoding/base64"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

type encodeFunc func(v reflect.Value) interface{}

// decodeFunc sets v from raw. It never fails, a value it can not use leaves v untouched.
type decodeFunc func(raw interface{}, v reflect.Value)

type field struct {
	name   string
	index  []int
	encode encodeFunc
	decode decodeFunc
}

type schema struct {
	fields []field
}

var timeType = reflect.TypeOf(time.Time{})

func (s *schema) encode(v reflect.Value) Record {
	r := make(Record, len(s.fields))
	for i := range s.fields {
		f := &s.fields[i]
		fv, ok := fieldByIndex(v, f.index, false)
		if !ok {
			continue
		}
		r[f.name] = f.encode(fv)
	}
	return r
}

func (s *schema) decode(r Record, v reflect.Value) {
	for i := range s.fields {
		f := &s.fields[i]
		raw, ok := r[f.name]
		if !ok {
			continue
		}
		fv, _ := fieldByIndex(v, f.index, true)
		f.decode(raw, fv)
	}
}

// fieldByIndex follows index like reflect.Value.FieldByIndex. A nil embedded pointer
// on the way is allocated when alloc is set, otherwise the field is reported missing.
func fieldByIndex(v reflect.Value, index []int, alloc bool) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				if !alloc {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

func (c *Codec) buildSchema(t reflect.Type) *schema {
	var fields []field
	c.collectFields(t, nil, &fields, map[reflect.Type]bool{t: true})

	// an outer field shadows a promoted field with the same name
	byName := make(map[string]int, len(fields))
	s := &schema{}
	for _, f := range fields {
		if i, ok := byName[f.name]; ok {
			if len(f.index) < len(s.fields[i].index) {
				s.fields[i] = f
			}
			continue
		}
		byName[f.name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s
}

// collectFields flattens embedded structs and embedded pointers to exported struct types.
// A pointer to an unexported type can not be allocated from outside its package and is
// skipped, as is an embedded type already on the path.
func (c *Codec) collectFields(t reflect.Type, index []int, fields *[]field, path map[reflect.Type]bool) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("snapshot")
		if tag == "-" {
			continue
		}
		fieldIndex := make([]int, len(index)+1)
		copy(fieldIndex, index)
		fieldIndex[len(index)] = i

		if sf.Anonymous && tag == "" {
			et := sf.Type
			if et.Kind() == reflect.Ptr {
				if !sf.IsExported() {
					continue
				}
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct && et != timeType && !path[et] {
				path[et] = true
				c.collectFields(et, fieldIndex, fields, path)
				delete(path, et)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}
		enc, dec := c.encoderFor(sf.Type), c.decoderFor(sf.Type)
		if enc == nil || dec == nil {
			continue
		}
		*fields = append(*fields, field{
			name:   fieldName(sf, tag),
			index:  fieldIndex,
			encode: enc,
			decode: dec,
		})
	}
}

func fieldName(sf reflect.StructField, tag string) string {
	if name := strings.Split(tag, ",")[0]; name != "" {
		return name
	}
	if name := strings.Split(sf.Tag.Get("json"), ",")[0]; name != "" && name != "-" {
		return name
	}
	return sf.Name
}

func (c *Codec) encoderFor(t reflect.Type) encodeFunc {
	if t == timeType {
		return func(v reflect.Value) interface{} {
			return v.Interface().(time.Time).Format(time.RFC3339Nano)
		}
	}
	switch t.Kind() {
	case reflect.String:
		return func(v reflect.Value) interface{} { return v.String() }
	case reflect.Bool:
		return func(v reflect.Value) interface{} { return v.Bool() }
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(v reflect.Value) interface{} { return v.Int() }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return func(v reflect.Value) interface{} { return v.Uint() }
	case reflect.Float32, reflect.Float64:
		return func(v reflect.Value) interface{} {
			f := v.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				// json has no representation for these, the string form parses back
				return strconv.FormatFloat(f, 'g', -1, 64)
			}
			return f
		}
	case reflect.Ptr:
		elem := c.encoderFor(t.Elem())
		if elem == nil {
			return nil
		}
		return func(v reflect.Value) interface{} {
			if v.IsNil() {
				return nil
			}
			return elem(v.Elem())
		}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return func(v reflect.Value) interface{} {
				if v.IsNil() {
					return nil
				}
				return base64.StdEncoding.EncodeToString(v.Bytes())
			}
		}
		elem := c.encoderFor(t.Elem())
		if elem == nil {
			return nil
		}
		return func(v reflect.Value) interface{} {
			if v.IsNil() {
				return nil
			}
			return encodeList(v, elem)
		}
	case reflect.Array:
		elem := c.encoderFor(t.Elem())
		if elem == nil {
			return nil
		}
		return func(v reflect.Value) interface{} { return encodeList(v, elem) }
	case reflect.Map:
		key := keyEncoderFor(t.Key())
		elem := c.encoderFor(t.Elem())
		if key == nil || elem == nil {
			return nil
		}
		return func(v reflect.Value) interface{} {
			if v.IsNil() {
				return nil
			}
			r := make(Record, v.Len())
			iter := v.MapRange()
			for iter.Next() {
				r[key(iter.Key())] = elem(iter.Value())
			}
			return r
		}
	case reflect.Struct:
		return func(v reflect.Value) interface{} {
			return c.schemaOf(t).encode(v)
		}
	case reflect.Interface:
		return func(v reflect.Value) interface{} {
			if v.IsNil() {
				return nil
			}
			return v.Interface()
		}
	}
	return nil
}

func encodeList(v reflect.Value, elem encodeFunc) []interface{} {
	list := make([]interface{}, v.Len())
	for i := range list {
		list[i] = elem(v.Index(i))
	}
	return list
}

func keyEncoderFor(t reflect.Type) func(v reflect.Value) string {
	switch t.Kind() {
	case reflect.String:
		return func(v reflect.Value) string { return v.String() }
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(v reflect.Value) string { return strconv.FormatInt(v.Int(), 10) }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(v reflect.Value) string { return strconv.FormatUint(v.Uint(), 10) }
	}
	return nil
}

func (c *Codec) decoderFor(t reflect.Type) decodeFunc {
	if t == timeType {
		return func(raw interface{}, v reflect.Value) {
			if tm, ok := toTime(raw); ok {
				v.Set(reflect.ValueOf(tm))
			}
		}
	}
	switch t.Kind() {
	case reflect.String:
		return func(raw interface{}, v reflect.Value) {
			if raw == nil {
				return
			}
			v.SetString(toString(raw))
		}
	case reflect.Bool:
		return func(raw interface{}, v reflect.Value) {
			if b, ok := toBool(raw); ok {
				v.SetBool(b)
			}
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(raw interface{}, v reflect.Value) {
			if n, ok := toInt(raw); ok && !v.OverflowInt(n) {
				v.SetInt(n)
			}
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return func(raw interface{}, v reflect.Value) {
			if n, ok := toUint(raw); ok && !v.OverflowUint(n) {
				v.SetUint(n)
			}
		}
	case reflect.Float32, reflect.Float64:
		return func(raw interface{}, v reflect.Value) {
			if f, ok := toFloat(raw); ok && !v.OverflowFloat(f) {
				v.SetFloat(f)
			}
		}
	case reflect.Ptr:
		elem := c.decoderFor(t.Elem())
		if elem == nil {
			return nil
		}
		return func(raw interface{}, v reflect.Value) {
			if raw == nil {
				return
			}
			p := reflect.New(t.Elem())
			elem(raw, p.Elem())
			v.Set(p)
		}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return func(raw interface{}, v reflect.Value) {
				s, ok := raw.(string)
				if !ok {
					return
				}
				b, err := base64.StdEncoding.DecodeString(s)
				if err != nil {
					return
				}
				v.SetBytes(b)
			}
		}
		elem := c.decoderFor(t.Elem())
		if elem == nil {
			return nil
		}
		return func(raw interface{}, v reflect.Value) {
			list, ok := raw.([]interface{})
			if !ok {
				return
			}
			s := reflect.MakeSlice(t, len(list), len(list))
			for i, item := range list {
				elem(item, s.Index(i))
			}
			v.Set(s)
		}
	case reflect.Array:
		elem := c.decoderFor(t.Elem())
		if elem == nil {
			return nil
		}
		return func(raw interface{}, v reflect.Value) {
			list, ok := raw.([]interface{})
			if !ok {
				return
			}
			for i := 0; i < len(list) && i < v.Len(); i++ {
				elem(list[i], v.Index(i))
			}
		}
	case reflect.Map:
		key := keyDecoderFor(t.Key())
		elem := c.decoderFor(t.Elem())
		if key == nil || elem == nil {
			return nil
		}
		return func(raw interface{}, v reflect.Value) {
			m, ok := toMap(raw)
			if !ok {
				return
			}
			out := reflect.MakeMapWithSize(t, len(m))
			for k, item := range m {
				kv, ok := key(k)
				if !ok {
					continue
				}
				ev := reflect.New(t.Elem()).Elem()
				elem(item, ev)
				out.SetMapIndex(kv, ev)
			}
			v.Set(out)
		}
	case reflect.Struct:
		return func(raw interface{}, v reflect.Value) {
			m, ok := toMap(raw)
			if !ok {
				return
			}
			c.schemaOf(t).decode(m, v)
		}
	case reflect.Interface:
		return func(raw interface{}, v reflect.Value) {
			if raw == nil {
				return
			}
			rv := reflect.ValueOf(raw)
			if rv.Type().AssignableTo(t) {
				v.Set(rv)
			}
		}
	}
	return nil
}

func keyDecoderFor(t reflect.Type) func(k string) (reflect.Value, bool) {
	switch t.Kind() {
	case reflect.String:
		return func(k string) (reflect.Value, bool) {
			return reflect.ValueOf(k).Convert(t), true
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(k string) (reflect.Value, bool) {
			n, err := strconv.ParseInt(k, 10, 64)
			if err != nil {
				return reflect.Value{}, false
			}
			kv := reflect.New(t).Elem()
			if kv.OverflowInt(n) {
				return reflect.Value{}, false
			}
			kv.SetInt(n)
			return kv, true
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(k string) (reflect.Value, bool) {
			n, err := strconv.ParseUint(k, 10, 64)
			if err != nil {
				return reflect.Value{}, false
			}
			kv := reflect.New(t).Elem()
			if kv.OverflowUint(n) {
				return reflect.Value{}, false
			}
			kv.SetUint(n)
			return kv, true
		}
	}
	return nil
}
