package graph

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Field is one named entity attribute.
type Field struct {
	Name  string
	Value Value
}

// Entity is an ordered set of fields. Field order is preserved through the
// codec, so the same entity always encodes to the same entries.
type Entity struct {
	fields []Field
}

// NewEntity builds an entity from fields. Later duplicates replace earlier
// ones in place.
func NewEntity(fields ...Field) *Entity {
	e := &Entity{}
	for _, f := range fields {
		e.Set(f.Name, f.Value)
	}
	return e
}

// Get returns the value of name.
func (e *Entity) Get(name string) (Value, bool) {
	for _, f := range e.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set assigns name, keeping its position if it already exists.
func (e *Entity) Set(name string, v Value) {
	for i := range e.fields {
		if e.fields[i].Name == name {
			e.fields[i].Value = v
			return
		}
	}
	e.fields = append(e.fields, Field{Name: name, Value: v})
}

// Delete removes name.
func (e *Entity) Delete(name string) {
	for i := range e.fields {
		if e.fields[i].Name == name {
			e.fields = append(e.fields[:i], e.fields[i+1:]...)
			return
		}
	}
}

// ID returns the string value of the id field.
func (e *Entity) ID() (string, bool) {
	v, ok := e.Get("id")
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok
}

// Fields returns the fields in order. The slice must not be modified.
func (e *Entity) Fields() []Field {
	if e == nil {
		return nil
	}
	return e.fields
}

// Len returns the number of fields.
func (e *Entity) Len() int { return len(e.Fields()) }

// Merge overlays the fields of o onto e.
func (e *Entity) Merge(o *Entity) {
	for _, f := range o.Fields() {
		e.Set(f.Name, f.Value)
	}
}

// Equal compares fields in order.
func (e *Entity) Equal(o *Entity) bool {
	a, b := e.Fields(), o.Fields()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !ValuesEqual(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

type jsonValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

type jsonField struct {
	Name  string    `json:"name"`
	Value jsonValue `json:"value"`
}

// MarshalJSON encodes the entity as an ordered list of tagged fields.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := make([]jsonField, 0, e.Len())
	for _, f := range e.Fields() {
		v, err := marshalValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out = append(out, jsonField{Name: f.Name, Value: v})
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Entity) UnmarshalJSON(b []byte) error {
	var in []jsonField
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	e.fields = e.fields[:0]
	for _, f := range in {
		v, err := unmarshalValue(f.Value)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		e.Set(f.Name, v)
	}
	return nil
}

func marshalValue(v Value) (jsonValue, error) {
	var payload any
	switch x := v.(type) {
	case nil, Null:
		return jsonValue{Kind: KindNull.String()}, nil
	case String:
		payload = string(x)
	case Int:
		payload = int32(x)
	case Int8:
		payload = int64(x)
	case Bool:
		payload = bool(x)
	case Bytes:
		payload = fmt.Sprintf("0x%x", []byte(x))
	case BigInt:
		payload = x.Int.String()
	case Decimal:
		payload = x.BigDecimal.String()
	case Array:
		items := make([]jsonValue, 0, len(x))
		for _, item := range x {
			jv, err := marshalValue(item)
			if err != nil {
				return jsonValue{}, err
			}
			items = append(items, jv)
		}
		payload = items
	default:
		return jsonValue{}, fmt.Errorf("unsupported value %T", v)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return jsonValue{}, err
	}
	return jsonValue{Kind: v.Kind().String(), Value: raw}, nil
}

func unmarshalValue(jv jsonValue) (Value, error) {
	switch jv.Kind {
	case KindNull.String():
		return Null{}, nil
	case KindString.String():
		var s string
		err := json.Unmarshal(jv.Value, &s)
		return String(s), err
	case KindInt.String():
		var n int32
		err := json.Unmarshal(jv.Value, &n)
		return Int(n), err
	case KindInt8.String():
		var n int64
		err := json.Unmarshal(jv.Value, &n)
		return Int8(n), err
	case KindBool.String():
		var b bool
		err := json.Unmarshal(jv.Value, &b)
		return Bool(b), err
	case KindBytes.String():
		var s string
		if err := json.Unmarshal(jv.Value, &s); err != nil {
			return nil, err
		}
		b, err := DecodeHex(s)
		return Bytes(b), err
	case KindBigInt.String():
		var s string
		if err := json.Unmarshal(jv.Value, &s); err != nil {
			return nil, err
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid big integer %q", s)
		}
		return BigInt{Int: n}, nil
	case KindBigDecimal.String():
		var s string
		if err := json.Unmarshal(jv.Value, &s); err != nil {
			return nil, err
		}
		d, err := ParseBigDecimal(s)
		return Decimal{BigDecimal: d}, err
	case KindArray.String():
		var items []jsonValue
		if err := json.Unmarshal(jv.Value, &items); err != nil {
			return nil, err
		}
		arr := make(Array, 0, len(items))
		for _, item := range items {
			v, err := unmarshalValue(item)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unknown value kind %q", jv.Kind)
}
