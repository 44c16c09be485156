package asc

import "fmt"

// TypeIndex enumerates every class the host knows how to read or write. The
// numbering is the host's own and is stable across ABI versions; the runtime
// id stored in a header is obtained through a TypeRegistry.
type TypeIndex uint32

const (
	IndexString TypeIndex = iota
	IndexArrayBuffer
	IndexInt8Array
	IndexInt16Array
	IndexInt32Array
	IndexInt64Array
	IndexUint8Array
	IndexUint16Array
	IndexUint32Array
	IndexUint64Array
	IndexFloat32Array
	IndexFloat64Array
	IndexBigDecimal
	IndexArrayBool
	IndexArrayUint8Array
	IndexArrayEthereumValue
	IndexArrayStoreValue
	IndexArrayJSONValue
	IndexArrayString
	IndexArrayEventParam
	IndexArrayTypedMapEntryStringJSONValue
	IndexArrayTypedMapEntryStringStoreValue
	IndexSmartContractCall
	IndexEventParam
	IndexEthereumTransaction
	IndexEthereumBlock
	IndexEthereumCall
	IndexWrappedTypedMapStringJSONValue
	IndexWrappedBool
	IndexWrappedJSONValue
	IndexEthereumValue
	IndexStoreValue
	IndexJSONValue
	IndexEthereumEvent
	IndexTypedMapEntryStringStoreValue
	IndexTypedMapEntryStringJSONValue
	IndexTypedMapStringStoreValue
	IndexTypedMapStringJSONValue
	IndexTypedMapStringTypedMapStringJSONValue
	IndexResultTypedMapStringJSONValueBool
	IndexResultJSONValueBool
	IndexArrayU8
	IndexArrayU16
	IndexArrayU32
	IndexArrayU64
	IndexArrayI8
	IndexArrayI16
	IndexArrayI32
	IndexArrayI64
	IndexArrayF32
	IndexArrayF64
	IndexArrayBigDecimal

	indexCount
)

var indexNames = [indexCount]string{
	"String", "ArrayBuffer",
	"Int8Array", "Int16Array", "Int32Array", "Int64Array",
	"Uint8Array", "Uint16Array", "Uint32Array", "Uint64Array",
	"Float32Array", "Float64Array",
	"BigDecimal", "ArrayBool", "ArrayUint8Array", "ArrayEthereumValue",
	"ArrayStoreValue", "ArrayJsonValue", "ArrayString", "ArrayEventParam",
	"ArrayTypedMapEntryStringJsonValue", "ArrayTypedMapEntryStringStoreValue",
	"SmartContractCall", "EventParam", "EthereumTransaction", "EthereumBlock",
	"EthereumCall", "WrappedTypedMapStringJsonValue", "WrappedBool",
	"WrappedJsonValue", "EthereumValue", "StoreValue", "JsonValue",
	"EthereumEvent", "TypedMapEntryStringStoreValue", "TypedMapEntryStringJsonValue",
	"TypedMapStringStoreValue", "TypedMapStringJsonValue",
	"TypedMapStringTypedMapStringJsonValue", "ResultTypedMapStringJsonValueBool",
	"ResultJsonValueBool",
	"ArrayU8", "ArrayU16", "ArrayU32", "ArrayU64",
	"ArrayI8", "ArrayI16", "ArrayI32", "ArrayI64",
	"ArrayF32", "ArrayF64", "ArrayBigDecimal",
}

func (i TypeIndex) String() string {
	if i.Valid() {
		return indexNames[i]
	}
	return fmt.Sprintf("TypeIndex(%d)", uint32(i))
}

// Valid reports whether i belongs to the closed set.
func (i TypeIndex) Valid() bool {
	return i < indexCount
}

// Indexes returns every valid index in order.
func Indexes() []TypeIndex {
	out := make([]TypeIndex, indexCount)
	for i := range out {
		out[i] = TypeIndex(i)
	}
	return out
}

// TypeRegistry maps type indexes to the runtime ids written in headers, and back.
type TypeRegistry struct {
	ids     [indexCount]uint32
	indexes map[uint32]TypeIndex
}

// NewTypeRegistry builds a registry from a lookup function, typically the
// guest's id_of_type export. Duplicate runtime ids are rejected since the
// reverse lookup would be ambiguous.
func NewTypeRegistry(idOf func(TypeIndex) (uint32, error)) (*TypeRegistry, error) {
	r := &TypeRegistry{indexes: make(map[uint32]TypeIndex, indexCount)}
	for _, idx := range Indexes() {
		id, err := idOf(idx)
		if err != nil {
			return nil, fmt.Errorf("resolve runtime id of %s: %w", idx, err)
		}
		if prev, dup := r.indexes[id]; dup {
			return nil, fmt.Errorf("runtime id %d assigned to both %s and %s", id, prev, idx)
		}
		r.ids[idx] = id
		r.indexes[id] = idx
	}
	return r, nil
}

// DefaultRegistry is the id assignment used by guests built with this module:
// ArrayBuffer and String keep the AssemblyScript builtin ids 1 and 2, every
// other class follows at index+2.
var DefaultRegistry = func() *TypeRegistry {
	r, err := NewTypeRegistry(func(idx TypeIndex) (uint32, error) {
		switch idx {
		case IndexArrayBuffer:
			return 1, nil
		case IndexString:
			return 2, nil
		default:
			return uint32(idx) + 2, nil
		}
	})
	if err != nil {
		panic(err)
	}
	return r
}()

// ID returns the runtime id of idx.
func (r *TypeRegistry) ID(idx TypeIndex) (uint32, bool) {
	if !idx.Valid() {
		return 0, false
	}
	return r.ids[idx], true
}

// Index returns the type index carrying runtime id id.
func (r *TypeRegistry) Index(id uint32) (TypeIndex, bool) {
	idx, ok := r.indexes[id]
	return idx, ok
}
