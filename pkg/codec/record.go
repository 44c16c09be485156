package codec

import (
	"fmt"
	"math"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
)

// FieldKind is the storage class of a record field.
type FieldKind uint8

const (
	FieldPtr FieldKind = iota
	FieldU32
	FieldI32
	FieldU64
	FieldI64
	FieldF64
	FieldBool
)

func (k FieldKind) width() uint32 {
	switch k {
	case FieldU64, FieldI64, FieldF64:
		return 8
	case FieldBool:
		return 1
	}
	return 4
}

// FieldSpec names one field of a record schema.
type FieldSpec struct {
	Name string
	Kind FieldKind
}

// Schema is the fixed layout of a class instance: fields in declaration order,
// each aligned to its own width, with no trailing padding.
type Schema struct {
	Index  asc.TypeIndex
	Fields []FieldSpec

	offsets map[string]uint32
	size    uint32
}

// NewSchema computes field offsets for idx.
func NewSchema(idx asc.TypeIndex, fields ...FieldSpec) *Schema {
	s := &Schema{Index: idx, Fields: fields, offsets: make(map[string]uint32, len(fields))}
	var off uint32
	for _, f := range fields {
		w := f.Kind.width()
		off = (off + w - 1) &^ (w - 1)
		s.offsets[f.Name] = off
		off += w
	}
	s.size = off
	return s
}

// Size is the payload size of an instance.
func (s *Schema) Size() uint32 { return s.size }

// Offset returns the byte offset of name.
func (s *Schema) Offset(name string) (uint32, bool) {
	off, ok := s.offsets[name]
	return off, ok
}

// Has reports whether the schema declares name.
func (s *Schema) Has(name string) bool {
	_, ok := s.offsets[name]
	return ok
}

func (s *Schema) field(name string, kind FieldKind) (uint32, error) {
	off, ok := s.offsets[name]
	if !ok {
		return 0, fmt.Errorf("%s has no field %q", s.Index, name)
	}
	for _, f := range s.Fields {
		if f.Name == name && f.Kind != kind {
			return 0, fmt.Errorf("%s.%s is not of the requested kind", s.Index, name)
		}
	}
	return off, nil
}

// RecordWriter fills a freshly allocated record. The first failure is kept
// and every later call becomes a no-op; check it with Finish.
type RecordWriter struct {
	a      *asc.Arena
	schema *Schema
	h      asc.Handle[asc.RecordShape]
	err    error
}

// NewRecord allocates an instance of schema.
func NewRecord(a *asc.Arena, schema *Schema) *RecordWriter {
	h, err := asc.Alloc[asc.RecordShape](a, schema.Size(), schema.Index)
	return &RecordWriter{a: a, schema: schema, h: h, err: err}
}

func (w *RecordWriter) put(name string, kind FieldKind, write func(off uint32) error) {
	if w.err != nil {
		return
	}
	off, err := w.schema.field(name, kind)
	if err != nil {
		w.err = err
		return
	}
	w.err = write(off)
}

func (w *RecordWriter) SetPtr(name string, p asc.Ptr) {
	w.put(name, FieldPtr, func(off uint32) error { return w.a.WriteU32(w.h.Ptr(), off, uint32(p)) })
}

func (w *RecordWriter) SetU32(name string, v uint32) {
	w.put(name, FieldU32, func(off uint32) error { return w.a.WriteU32(w.h.Ptr(), off, v) })
}

func (w *RecordWriter) SetI32(name string, v int32) {
	w.put(name, FieldI32, func(off uint32) error { return w.a.WriteU32(w.h.Ptr(), off, uint32(v)) })
}

func (w *RecordWriter) SetU64(name string, v uint64) {
	w.put(name, FieldU64, func(off uint32) error { return w.a.WriteU64(w.h.Ptr(), off, v) })
}

func (w *RecordWriter) SetI64(name string, v int64) {
	w.put(name, FieldI64, func(off uint32) error { return w.a.WriteU64(w.h.Ptr(), off, uint64(v)) })
}

func (w *RecordWriter) SetF64(name string, v float64) {
	w.put(name, FieldF64, func(off uint32) error { return w.a.WriteU64(w.h.Ptr(), off, math.Float64bits(v)) })
}

func (w *RecordWriter) SetBool(name string, v bool) {
	w.put(name, FieldBool, func(off uint32) error {
		var b byte
		if v {
			b = 1
		}
		return w.a.Write(w.h.Ptr(), off, []byte{b})
	})
}

// Encode runs fn and stores the resulting pointer in name. It is the usual
// way to nest a value: w.Encode("hash", func() (asc.Ptr, error) {...}).
func (w *RecordWriter) Encode(name string, fn func() (asc.Ptr, error)) {
	if w.err != nil {
		return
	}
	p, err := fn()
	if err != nil {
		w.err = fmt.Errorf("%s.%s: %w", w.schema.Index, name, err)
		return
	}
	w.SetPtr(name, p)
}

// Fail records err unless an earlier failure is already recorded.
func (w *RecordWriter) Fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Finish returns the record handle or the first failure.
func (w *RecordWriter) Finish() (asc.Handle[asc.RecordShape], error) {
	if w.err != nil {
		return asc.Null[asc.RecordShape](), w.err
	}
	return w.h, nil
}

// RecordReader reads fields from a validated record. Like RecordWriter it
// keeps the first failure; accessors return zero values afterwards.
type RecordReader struct {
	a      *asc.Arena
	schema *Schema
	p      asc.Ptr
	err    error
}

// OpenRecord validates p as an instance of schema. The header size must cover
// the schema so field reads can not spill into a neighbouring block.
func OpenRecord(a *asc.Arena, p asc.Ptr, schema *Schema) *RecordReader {
	r := &RecordReader{a: a, schema: schema, p: p}
	h, err := asc.ValidateIndex[asc.RecordShape](a, p, schema.Index)
	switch {
	case err != nil:
		r.err = err
	case h.IsNull():
		r.err = nullError(p, schema.Index.String())
	default:
		hdr, err := a.HeaderOf(p)
		if err != nil {
			r.err = err
		} else if hdr.RTSize < schema.Size() {
			r.err = &asc.BoundsViolation{Ptr: p, Length: schema.Size(), Limit: hdr.RTSize}
		}
	}
	return r
}

// Record returns the record pointer.
func (r *RecordReader) Record() asc.Ptr { return r.p }

func (r *RecordReader) get(name string, kind FieldKind, read func(off uint32) error) {
	if r.err != nil {
		return
	}
	off, err := r.schema.field(name, kind)
	if err != nil {
		r.err = err
		return
	}
	r.err = read(off)
}

func (r *RecordReader) Ptr(name string) asc.Ptr {
	var v uint32
	r.get(name, FieldPtr, func(off uint32) (err error) { v, err = r.a.ReadU32(r.p, off); return })
	return asc.Ptr(v)
}

func (r *RecordReader) U32(name string) uint32 {
	var v uint32
	r.get(name, FieldU32, func(off uint32) (err error) { v, err = r.a.ReadU32(r.p, off); return })
	return v
}

func (r *RecordReader) I32(name string) int32 {
	var v uint32
	r.get(name, FieldI32, func(off uint32) (err error) { v, err = r.a.ReadU32(r.p, off); return })
	return int32(v)
}

func (r *RecordReader) U64(name string) uint64 {
	var v uint64
	r.get(name, FieldU64, func(off uint32) (err error) { v, err = r.a.ReadU64(r.p, off); return })
	return v
}

func (r *RecordReader) I64(name string) int64 {
	var v uint64
	r.get(name, FieldI64, func(off uint32) (err error) { v, err = r.a.ReadU64(r.p, off); return })
	return int64(v)
}

func (r *RecordReader) F64(name string) float64 {
	var v uint64
	r.get(name, FieldF64, func(off uint32) (err error) { v, err = r.a.ReadU64(r.p, off); return })
	return math.Float64frombits(v)
}

func (r *RecordReader) Bool(name string) bool {
	var b []byte
	r.get(name, FieldBool, func(off uint32) (err error) { b, err = r.a.Read(r.p, off, 1); return })
	return len(b) == 1 && b[0] != 0
}

// Decode reads the pointer in name and passes it to fn, recording any error.
func (r *RecordReader) Decode(name string, fn func(p asc.Ptr) error) {
	p := r.Ptr(name)
	if r.err != nil {
		return
	}
	if err := fn(p); err != nil {
		r.err = fmt.Errorf("%s.%s: %w", r.schema.Index, name, err)
	}
}

// Err returns the first failure.
func (r *RecordReader) Err() error { return r.err }

// Record schemas. Fields marked nullable in the comments may hold 0.
var (
	EventParamSchema = NewSchema(asc.IndexEventParam,
		FieldSpec{"name", FieldPtr},
		FieldSpec{"value", FieldPtr},
	)

	SmartContractCallSchema = NewSchema(asc.IndexSmartContractCall,
		FieldSpec{"contractName", FieldPtr},
		FieldSpec{"contractAddress", FieldPtr},
		FieldSpec{"functionName", FieldPtr},
		FieldSpec{"functionSignature", FieldPtr},
		FieldSpec{"functionParams", FieldPtr},
	)

	CallSchema = NewSchema(asc.IndexEthereumCall,
		FieldSpec{"to", FieldPtr},
		FieldSpec{"from", FieldPtr},
		FieldSpec{"block", FieldPtr},
		FieldSpec{"transaction", FieldPtr},
		FieldSpec{"inputValues", FieldPtr},
		FieldSpec{"outputValues", FieldPtr},
	)

	BigDecimalSchema = NewSchema(asc.IndexBigDecimal,
		FieldSpec{"digits", FieldPtr},
		FieldSpec{"exp", FieldPtr},
	)

	TypedMapEntrySchema = map[asc.TypeIndex]*Schema{
		asc.IndexTypedMapEntryStringStoreValue: NewSchema(asc.IndexTypedMapEntryStringStoreValue,
			FieldSpec{"key", FieldPtr}, FieldSpec{"value", FieldPtr}),
		asc.IndexTypedMapEntryStringJSONValue: NewSchema(asc.IndexTypedMapEntryStringJSONValue,
			FieldSpec{"key", FieldPtr}, FieldSpec{"value", FieldPtr}),
	}

	TypedMapSchema = map[asc.TypeIndex]*Schema{
		asc.IndexTypedMapStringStoreValue: NewSchema(asc.IndexTypedMapStringStoreValue,
			FieldSpec{"entries", FieldPtr}),
		asc.IndexTypedMapStringJSONValue: NewSchema(asc.IndexTypedMapStringJSONValue,
			FieldSpec{"entries", FieldPtr}),
		asc.IndexTypedMapStringTypedMapStringJSONValue: NewSchema(asc.IndexTypedMapStringTypedMapStringJSONValue,
			FieldSpec{"entries", FieldPtr}),
	}

	// ResultSchema: value and error are nullable Wrapped pointers.
	ResultSchema = map[asc.TypeIndex]*Schema{
		asc.IndexResultJSONValueBool: NewSchema(asc.IndexResultJSONValueBool,
			FieldSpec{"value", FieldPtr}, FieldSpec{"error", FieldPtr}),
		asc.IndexResultTypedMapStringJSONValueBool: NewSchema(asc.IndexResultTypedMapStringJSONValueBool,
			FieldSpec{"value", FieldPtr}, FieldSpec{"error", FieldPtr}),
	}

	WrappedSchema = map[asc.TypeIndex]*Schema{
		asc.IndexWrappedBool: NewSchema(asc.IndexWrappedBool,
			FieldSpec{"inner", FieldBool}),
		asc.IndexWrappedJSONValue: NewSchema(asc.IndexWrappedJSONValue,
			FieldSpec{"inner", FieldPtr}),
		asc.IndexWrappedTypedMapStringJSONValue: NewSchema(asc.IndexWrappedTypedMapStringJSONValue,
			FieldSpec{"inner", FieldPtr}),
	}
)

var (
	blockFields = []FieldSpec{
		{"hash", FieldPtr},
		{"parentHash", FieldPtr},
		{"unclesHash", FieldPtr},
		{"author", FieldPtr},
		{"stateRoot", FieldPtr},
		{"transactionsRoot", FieldPtr},
		{"receiptsRoot", FieldPtr},
		{"number", FieldPtr},
		{"gasUsed", FieldPtr},
		{"gasLimit", FieldPtr},
		{"timestamp", FieldPtr},
		{"difficulty", FieldPtr},
		{"totalDifficulty", FieldPtr},
		{"size", FieldPtr},
	}
	transactionFields = []FieldSpec{
		{"hash", FieldPtr},
		{"index", FieldPtr},
		{"from", FieldPtr},
		{"to", FieldPtr},
		{"value", FieldPtr},
		{"gasLimit", FieldPtr},
		{"gasPrice", FieldPtr},
		{"input", FieldPtr},
	}
	eventFields = []FieldSpec{
		{"address", FieldPtr},
		{"logIndex", FieldPtr},
		{"transactionLogIndex", FieldPtr},
		{"logType", FieldPtr},
		{"block", FieldPtr},
		{"transaction", FieldPtr},
		{"params", FieldPtr},
	}

	blockSchemas = map[asc.Version]*Schema{
		asc.V0_0_5: NewSchema(asc.IndexEthereumBlock, blockFields...),
		asc.V0_0_6: NewSchema(asc.IndexEthereumBlock, append(blockFields[:len(blockFields):len(blockFields)], FieldSpec{"baseFeePerGas", FieldPtr})...),
	}
	transactionSchemas = map[asc.Version]*Schema{
		asc.V0_0_5: NewSchema(asc.IndexEthereumTransaction, transactionFields...),
		asc.V0_0_6: NewSchema(asc.IndexEthereumTransaction, append(transactionFields[:len(transactionFields):len(transactionFields)], FieldSpec{"nonce", FieldPtr})...),
	}
	eventSchemas = map[asc.Version]*Schema{
		asc.V0_0_5: NewSchema(asc.IndexEthereumEvent, eventFields...),
		asc.V0_0_7: NewSchema(asc.IndexEthereumEvent, append(eventFields[:len(eventFields):len(eventFields)], FieldSpec{"receipt", FieldPtr})...),
	}
)

// BlockSchema returns the EthereumBlock layout for v. baseFeePerGas exists
// from 0.0.6.
func BlockSchema(v asc.Version) *Schema { return schemaFor(blockSchemas, v) }

// TransactionSchema returns the EthereumTransaction layout for v. nonce exists
// from 0.0.6.
func TransactionSchema(v asc.Version) *Schema { return schemaFor(transactionSchemas, v) }

// EventSchema returns the EthereumEvent layout for v. receipt exists from
// 0.0.7.
func EventSchema(v asc.Version) *Schema { return schemaFor(eventSchemas, v) }

// schemaFor picks the newest schema introduced at or before v.
func schemaFor(m map[asc.Version]*Schema, v asc.Version) *Schema {
	var best *Schema
	var bestV asc.Version
	for sv, s := range m {
		if v.AtLeast(sv) && (best == nil || sv.AtLeast(bestV)) {
			best, bestV = s, sv
		}
	}
	if best == nil {
		return m[asc.V0_0_5]
	}
	return best
}
