package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// JSONKind is the discriminant of a JSON value.
type JSONKind uint32

const (
	JSONKindNull JSONKind = iota
	JSONKindBool
	JSONKindNumber
	JSONKindString
	JSONKindArray
	JSONKindObject
)

// JSON is a parsed JSON document node. Numbers keep their literal text so no
// precision is lost before the mapping picks a conversion.
type JSON interface {
	JSONKind() JSONKind
	isJSON()
}

type (
	JSONNull   struct{}
	JSONBool   bool
	JSONNumber string
	JSONString string
	JSONArray  []JSON
	// JSONObject keeps members in document order.
	JSONObject []JSONMember
)

// JSONMember is one key of a JSON object.
type JSONMember struct {
	Key   string
	Value JSON
}

func (JSONNull) JSONKind() JSONKind   { return JSONKindNull }
func (JSONBool) JSONKind() JSONKind   { return JSONKindBool }
func (JSONNumber) JSONKind() JSONKind { return JSONKindNumber }
func (JSONString) JSONKind() JSONKind { return JSONKindString }
func (JSONArray) JSONKind() JSONKind  { return JSONKindArray }
func (JSONObject) JSONKind() JSONKind { return JSONKindObject }

func (JSONNull) isJSON()   {}
func (JSONBool) isJSON()   {}
func (JSONNumber) isJSON() {}
func (JSONString) isJSON() {}
func (JSONArray) isJSON()  {}
func (JSONObject) isJSON() {}

// Get returns the value of key.
func (o JSONObject) Get(key string) (JSON, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// ParseJSON parses a single JSON document, keeping object member order.
func ParseJSON(data []byte) (JSON, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := parseJSON(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON document")
	}
	return v, nil
}

func parseJSON(dec *json.Decoder) (JSON, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return JSONNull{}, nil
	case bool:
		return JSONBool(t), nil
	case json.Number:
		return JSONNumber(t.String()), nil
	case string:
		return JSONString(t), nil
	case json.Delim:
		switch t {
		case '[':
			arr := JSONArray{}
			for dec.More() {
				v, err := parseJSON(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			_, err := dec.Token()
			return arr, err
		case '{':
			obj := JSONObject{}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", kt)
				}
				v, err := parseJSON(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, JSONMember{Key: key, Value: v})
			}
			_, err := dec.Token()
			return obj, err
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

// MarshalJSONValue renders v back to JSON text.
func MarshalJSONValue(v JSON) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v JSON) error {
	switch x := v.(type) {
	case nil, JSONNull:
		buf.WriteString("null")
	case JSONBool:
		buf.WriteString(strconv.FormatBool(bool(x)))
	case JSONNumber:
		buf.WriteString(string(x))
	case JSONString:
		b, err := json.Marshal(string(x))
		if err != nil {
			return err
		}
		buf.Write(b)
	case JSONArray:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case JSONObject:
		buf.WriteByte('{')
		for i, m := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := writeJSON(buf, m.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported JSON value %T", v)
	}
	return nil
}

// JSONEqual compares two JSON values structurally, including member order.
func JSONEqual(a, b JSON) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.JSONKind() != b.JSONKind() {
		return false
	}
	switch x := a.(type) {
	case JSONArray:
		y := b.(JSONArray)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !JSONEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case JSONObject:
		y := b.(JSONObject)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i].Key != y[i].Key || !JSONEqual(x[i].Value, y[i].Value) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
