package codec

import (
	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

type mapClasses struct {
	mapIdx, arrayIdx, entryIdx asc.TypeIndex
}

var (
	entityClasses = mapClasses{asc.IndexTypedMapStringStoreValue, asc.IndexArrayTypedMapEntryStringStoreValue, asc.IndexTypedMapEntryStringStoreValue}
	jsonClasses   = mapClasses{asc.IndexTypedMapStringJSONValue, asc.IndexArrayTypedMapEntryStringJSONValue, asc.IndexTypedMapEntryStringJSONValue}
)

type entry struct {
	key   string
	value asc.Ptr
}

func encodeMap(a *asc.Arena, c mapClasses, entries []entry) (asc.Handle[asc.RecordShape], error) {
	entrySchema := TypedMapEntrySchema[c.entryIdx]
	arr, err := EncodeArrayOf(a, c.arrayIdx, entries, func(a *asc.Arena, e entry) (asc.Ptr, error) {
		w := NewRecord(a, entrySchema)
		w.Encode("key", func() (asc.Ptr, error) {
			h, err := EncodeString(a, e.key)
			return h.Ptr(), err
		})
		w.SetPtr("value", e.value)
		h, err := w.Finish()
		return h.Ptr(), err
	})
	if err != nil {
		return asc.Null[asc.RecordShape](), err
	}
	w := NewRecord(a, TypedMapSchema[c.mapIdx])
	w.SetPtr("entries", arr.Ptr())
	return w.Finish()
}

func decodeMap[T any](a *asc.Arena, p asc.Ptr, c mapClasses, value func(*asc.Arena, asc.Ptr) (T, error)) ([]string, []T, error) {
	var keys []string
	var values []T
	r := OpenRecord(a, p, TypedMapSchema[c.mapIdx])
	r.Decode("entries", func(entries asc.Ptr) error {
		entrySchema := TypedMapEntrySchema[c.entryIdx]
		_, err := ReadArray(a, entries, c.arrayIdx, func(a *asc.Arena, ep asc.Ptr) (struct{}, error) {
			er := OpenRecord(a, ep, entrySchema)
			var (
				key string
				val T
			)
			er.Decode("key", func(kp asc.Ptr) (err error) {
				key, err = ReadString(a, kp)
				return
			})
			er.Decode("value", func(vp asc.Ptr) (err error) {
				val, err = value(a, vp)
				return
			})
			if err := er.Err(); err != nil {
				return struct{}{}, err
			}
			keys = append(keys, key)
			values = append(values, val)
			return struct{}{}, nil
		})
		return err
	})
	return keys, values, r.Err()
}

// EncodeEntity stores e as TypedMap<string, StoreValue>, keeping field order.
func EncodeEntity(a *asc.Arena, e *graph.Entity) (asc.Handle[asc.RecordShape], error) {
	entries := make([]entry, 0, e.Len())
	for _, f := range e.Fields() {
		p, err := WriteValue(a, f.Value)
		if err != nil {
			return asc.Null[asc.RecordShape](), err
		}
		entries = append(entries, entry{key: f.Name, value: p})
	}
	return encodeMap(a, entityClasses, entries)
}

// WriteEntity is EncodeEntity returning the raw pointer.
func WriteEntity(a *asc.Arena, e *graph.Entity) (asc.Ptr, error) {
	h, err := EncodeEntity(a, e)
	return h.Ptr(), err
}

// DecodeEntity reads a TypedMap<string, StoreValue>.
func DecodeEntity(a *asc.Arena, h asc.Handle[asc.RecordShape]) (*graph.Entity, error) {
	return ReadEntity(a, h.Ptr())
}

// ReadEntity validates p as an entity map and decodes it.
func ReadEntity(a *asc.Arena, p asc.Ptr) (*graph.Entity, error) {
	keys, values, err := decodeMap(a, p, entityClasses, ReadValue)
	if err != nil {
		return nil, err
	}
	e := &graph.Entity{}
	for i, k := range keys {
		e.Set(k, values[i])
	}
	return e, nil
}

// EncodeJSONObject stores obj as TypedMap<string, JSONValue>.
func EncodeJSONObject(a *asc.Arena, obj graph.JSONObject) (asc.Handle[asc.RecordShape], error) {
	entries := make([]entry, 0, len(obj))
	for _, m := range obj {
		p, err := WriteJSON(a, m.Value)
		if err != nil {
			return asc.Null[asc.RecordShape](), err
		}
		entries = append(entries, entry{key: m.Key, value: p})
	}
	return encodeMap(a, jsonClasses, entries)
}

// ReadJSONObject validates p as a JSON object map and decodes it.
func ReadJSONObject(a *asc.Arena, p asc.Ptr) (graph.JSONObject, error) {
	keys, values, err := decodeMap(a, p, jsonClasses, ReadJSON)
	if err != nil {
		return nil, err
	}
	obj := make(graph.JSONObject, len(keys))
	for i, k := range keys {
		obj[i] = graph.JSONMember{Key: k, Value: values[i]}
	}
	return obj, nil
}

// EncodeJSONResult stores the outcome of json.try_fromBytes as
// Result<JSONValue, bool>: either value or error is set.
func EncodeJSONResult(a *asc.Arena, v graph.JSON, ok bool) (asc.Handle[asc.RecordShape], error) {
	w := NewRecord(a, ResultSchema[asc.IndexResultJSONValueBool])
	if ok {
		w.Encode("value", func() (asc.Ptr, error) {
			ww := NewRecord(a, WrappedSchema[asc.IndexWrappedJSONValue])
			ww.Encode("inner", func() (asc.Ptr, error) { return WriteJSON(a, v) })
			h, err := ww.Finish()
			return h.Ptr(), err
		})
	} else {
		w.Encode("error", func() (asc.Ptr, error) {
			ww := NewRecord(a, WrappedSchema[asc.IndexWrappedBool])
			ww.SetBool("inner", true)
			h, err := ww.Finish()
			return h.Ptr(), err
		})
	}
	return w.Finish()
}

// ReadJSONResult decodes a Result<JSONValue, bool>. ok is false when the
// error side is set.
func ReadJSONResult(a *asc.Arena, p asc.Ptr) (v graph.JSON, ok bool, err error) {
	r := OpenRecord(a, p, ResultSchema[asc.IndexResultJSONValueBool])
	r.Decode("value", func(vp asc.Ptr) error {
		if vp == 0 {
			return nil
		}
		wr := OpenRecord(a, vp, WrappedSchema[asc.IndexWrappedJSONValue])
		wr.Decode("inner", func(ip asc.Ptr) (err error) {
			v, err = ReadJSON(a, ip)
			return
		})
		ok = wr.Err() == nil
		return wr.Err()
	})
	if err := r.Err(); err != nil {
		return nil, false, err
	}
	return v, ok, nil
}
