package codec

import (
	"fmt"
	"math/big"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// enumSize is the payload of an AscEnum: kind u32, padding u32, payload u64.
const enumSize = 16

func writeEnum(a *asc.Arena, idx asc.TypeIndex, kind uint32, payload uint64) (asc.Handle[asc.EnumShape], error) {
	h, err := asc.Alloc[asc.EnumShape](a, enumSize, idx)
	if err != nil {
		return h, err
	}
	if err := a.WriteU32(h.Ptr(), 0, kind); err != nil {
		return h, err
	}
	return h, a.WriteU64(h.Ptr(), 8, payload)
}

func readEnum(a *asc.Arena, p asc.Ptr, idx asc.TypeIndex) (kind uint32, payload uint64, err error) {
	h, err := asc.ValidateIndex[asc.EnumShape](a, p, idx)
	if err != nil {
		return 0, 0, err
	}
	if h.IsNull() {
		return 0, 0, nullError(p, idx.String())
	}
	if kind, err = a.ReadU32(p, 0); err != nil {
		return 0, 0, err
	}
	payload, err = a.ReadU64(p, 8)
	return kind, payload, err
}

func payloadPtr(payload uint64) asc.Ptr { return asc.Ptr(uint32(payload)) }

func boolPayload(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// EncodeValue stores a store value as a StoreValue enum.
func EncodeValue(a *asc.Arena, v graph.Value) (asc.Handle[asc.EnumShape], error) {
	if v == nil {
		v = graph.Null{}
	}
	var payload uint64
	switch x := v.(type) {
	case graph.String:
		h, err := EncodeString(a, string(x))
		if err != nil {
			return asc.Null[asc.EnumShape](), err
		}
		payload = uint64(h.Ptr())
	case graph.Int:
		payload = uint64(int64(x))
	case graph.Int8:
		payload = uint64(int64(x))
	case graph.Bool:
		payload = boolPayload(bool(x))
	case graph.Null:
	case graph.Bytes:
		p, err := WriteBytes(a, x)
		if err != nil {
			return asc.Null[asc.EnumShape](), err
		}
		payload = uint64(p)
	case graph.BigInt:
		p, err := WriteBigInt(a, x.Int)
		if err != nil {
			return asc.Null[asc.EnumShape](), err
		}
		payload = uint64(p)
	case graph.Decimal:
		p, err := WriteBigDecimal(a, x.BigDecimal)
		if err != nil {
			return asc.Null[asc.EnumShape](), err
		}
		payload = uint64(p)
	case graph.Array:
		h, err := EncodeArrayOf(a, asc.IndexArrayStoreValue, x, WriteValue)
		if err != nil {
			return asc.Null[asc.EnumShape](), err
		}
		payload = uint64(h.Ptr())
	default:
		return asc.Null[asc.EnumShape](), fmt.Errorf("unsupported store value %T", v)
	}
	return writeEnum(a, asc.IndexStoreValue, uint32(v.Kind()), payload)
}

// WriteValue is EncodeValue returning the raw pointer.
func WriteValue(a *asc.Arena, v graph.Value) (asc.Ptr, error) {
	h, err := EncodeValue(a, v)
	return h.Ptr(), err
}

// DecodeValue reads a StoreValue enum.
func DecodeValue(a *asc.Arena, h asc.Handle[asc.EnumShape]) (graph.Value, error) {
	return ReadValue(a, h.Ptr())
}

// ReadValue validates p as a StoreValue and decodes it.
func ReadValue(a *asc.Arena, p asc.Ptr) (graph.Value, error) {
	kind, payload, err := readEnum(a, p, asc.IndexStoreValue)
	if err != nil {
		return nil, err
	}
	switch graph.ValueKind(kind) {
	case graph.KindString:
		s, err := ReadString(a, payloadPtr(payload))
		return graph.String(s), err
	case graph.KindInt:
		return graph.Int(int32(uint32(payload))), nil
	case graph.KindInt8:
		return graph.Int8(int64(payload)), nil
	case graph.KindBool:
		return graph.Bool(payload != 0), nil
	case graph.KindNull:
		return graph.Null{}, nil
	case graph.KindBytes:
		b, err := ReadBytes(a, payloadPtr(payload))
		return graph.Bytes(b), err
	case graph.KindBigInt:
		x, err := ReadBigInt(a, payloadPtr(payload))
		return graph.BigInt{Int: x}, err
	case graph.KindBigDecimal:
		d, err := ReadBigDecimal(a, payloadPtr(payload))
		return graph.Decimal{BigDecimal: d}, err
	case graph.KindArray:
		items, err := ReadArray(a, payloadPtr(payload), asc.IndexArrayStoreValue, ReadValue)
		return graph.Array(items), err
	}
	return nil, &asc.EncodingError{Ptr: p, Kind: "StoreValue", Detail: fmt.Sprintf("unknown kind %d", kind)}
}

// EncodeToken stores an ethereum value as an EthereumValue enum.
func EncodeToken(a *asc.Arena, t graph.Token) (asc.Handle[asc.EnumShape], error) {
	if t == nil {
		return asc.Null[asc.EnumShape](), fmt.Errorf("nil ethereum value")
	}
	var (
		payload uint64
		p       asc.Ptr
		err     error
	)
	switch x := t.(type) {
	case graph.AddressToken:
		p, err = WriteBytes(a, x[:])
	case graph.FixedBytesToken:
		p, err = WriteBytes(a, x)
	case graph.BytesToken:
		p, err = WriteBytes(a, x)
	case graph.IntToken:
		p, err = WriteBigInt(a, x.Int)
	case graph.UintToken:
		p, err = WriteBigInt(a, x.Int)
	case graph.BoolToken:
		payload = boolPayload(bool(x))
	case graph.StringToken:
		var h asc.Handle[asc.StringShape]
		h, err = EncodeString(a, string(x))
		p = h.Ptr()
	case graph.FixedArrayToken:
		p, err = writeTokens(a, x)
	case graph.ArrayToken:
		p, err = writeTokens(a, x)
	case graph.TupleToken:
		p, err = writeTokens(a, x)
	default:
		return asc.Null[asc.EnumShape](), fmt.Errorf("unsupported ethereum value %T", t)
	}
	if err != nil {
		return asc.Null[asc.EnumShape](), err
	}
	if p != 0 {
		payload = uint64(p)
	}
	return writeEnum(a, asc.IndexEthereumValue, uint32(t.TokenKind()), payload)
}

// WriteToken is EncodeToken returning the raw pointer.
func WriteToken(a *asc.Arena, t graph.Token) (asc.Ptr, error) {
	h, err := EncodeToken(a, t)
	return h.Ptr(), err
}

func writeTokens(a *asc.Arena, ts []graph.Token) (asc.Ptr, error) {
	h, err := EncodeArrayOf(a, asc.IndexArrayEthereumValue, ts, WriteToken)
	return h.Ptr(), err
}

// DecodeToken reads an EthereumValue enum.
func DecodeToken(a *asc.Arena, h asc.Handle[asc.EnumShape]) (graph.Token, error) {
	return ReadToken(a, h.Ptr())
}

// ReadToken validates p as an EthereumValue and decodes it.
func ReadToken(a *asc.Arena, p asc.Ptr) (graph.Token, error) {
	kind, payload, err := readEnum(a, p, asc.IndexEthereumValue)
	if err != nil {
		return nil, err
	}
	inner := payloadPtr(payload)
	switch graph.TokenKind(kind) {
	case graph.TokenAddress:
		addr, err := ReadAddress(a, inner)
		return graph.AddressToken(addr), err
	case graph.TokenFixedBytes:
		b, err := ReadBytes(a, inner)
		return graph.FixedBytesToken(b), err
	case graph.TokenBytes:
		b, err := ReadBytes(a, inner)
		return graph.BytesToken(b), err
	case graph.TokenInt:
		x, err := ReadBigInt(a, inner)
		return graph.IntToken{Int: x}, err
	case graph.TokenUint:
		x, err := ReadBigInt(a, inner)
		return graph.UintToken{Int: x}, err
	case graph.TokenBool:
		return graph.BoolToken(payload != 0), nil
	case graph.TokenString:
		s, err := ReadString(a, inner)
		return graph.StringToken(s), err
	case graph.TokenFixedArray:
		ts, err := ReadArray(a, inner, asc.IndexArrayEthereumValue, ReadToken)
		return graph.FixedArrayToken(ts), err
	case graph.TokenArray:
		ts, err := ReadArray(a, inner, asc.IndexArrayEthereumValue, ReadToken)
		return graph.ArrayToken(ts), err
	case graph.TokenTuple:
		ts, err := ReadArray(a, inner, asc.IndexArrayEthereumValue, ReadToken)
		return graph.TupleToken(ts), err
	}
	return nil, &asc.EncodingError{Ptr: p, Kind: "EthereumValue", Detail: fmt.Sprintf("unknown kind %d", kind)}
}

// EncodeJSON stores a JSON value as a JSONValue enum.
func EncodeJSON(a *asc.Arena, v graph.JSON) (asc.Handle[asc.EnumShape], error) {
	if v == nil {
		v = graph.JSONNull{}
	}
	var (
		payload uint64
		p       asc.Ptr
		err     error
	)
	switch x := v.(type) {
	case graph.JSONNull:
	case graph.JSONBool:
		payload = boolPayload(bool(x))
	case graph.JSONNumber:
		var h asc.Handle[asc.StringShape]
		h, err = EncodeString(a, string(x))
		p = h.Ptr()
	case graph.JSONString:
		var h asc.Handle[asc.StringShape]
		h, err = EncodeString(a, string(x))
		p = h.Ptr()
	case graph.JSONArray:
		var h asc.Handle[asc.ArrayShape]
		h, err = EncodeArrayOf(a, asc.IndexArrayJSONValue, x, WriteJSON)
		p = h.Ptr()
	case graph.JSONObject:
		var h asc.Handle[asc.RecordShape]
		h, err = EncodeJSONObject(a, x)
		p = h.Ptr()
	default:
		return asc.Null[asc.EnumShape](), fmt.Errorf("unsupported JSON value %T", v)
	}
	if err != nil {
		return asc.Null[asc.EnumShape](), err
	}
	if p != 0 {
		payload = uint64(p)
	}
	return writeEnum(a, asc.IndexJSONValue, uint32(v.JSONKind()), payload)
}

// WriteJSON is EncodeJSON returning the raw pointer.
func WriteJSON(a *asc.Arena, v graph.JSON) (asc.Ptr, error) {
	h, err := EncodeJSON(a, v)
	return h.Ptr(), err
}

// DecodeJSON reads a JSONValue enum.
func DecodeJSON(a *asc.Arena, h asc.Handle[asc.EnumShape]) (graph.JSON, error) {
	return ReadJSON(a, h.Ptr())
}

// ReadJSON validates p as a JSONValue and decodes it.
func ReadJSON(a *asc.Arena, p asc.Ptr) (graph.JSON, error) {
	kind, payload, err := readEnum(a, p, asc.IndexJSONValue)
	if err != nil {
		return nil, err
	}
	inner := payloadPtr(payload)
	switch graph.JSONKind(kind) {
	case graph.JSONKindNull:
		return graph.JSONNull{}, nil
	case graph.JSONKindBool:
		return graph.JSONBool(payload != 0), nil
	case graph.JSONKindNumber:
		s, err := ReadString(a, inner)
		return graph.JSONNumber(s), err
	case graph.JSONKindString:
		s, err := ReadString(a, inner)
		return graph.JSONString(s), err
	case graph.JSONKindArray:
		items, err := ReadArray(a, inner, asc.IndexArrayJSONValue, ReadJSON)
		return graph.JSONArray(items), err
	case graph.JSONKindObject:
		return ReadJSONObject(a, inner)
	}
	return nil, &asc.EncodingError{Ptr: p, Kind: "JSONValue", Detail: fmt.Sprintf("unknown kind %d", kind)}
}

// ReadAddress reads a 20 byte Address.
func ReadAddress(a *asc.Arena, p asc.Ptr) (graph.Address, error) {
	b, err := ReadBytes(a, p)
	if err != nil {
		return graph.Address{}, err
	}
	addr, err := graph.AddressFromBytes(b)
	if err != nil {
		return addr, &asc.EncodingError{Ptr: p, Kind: "Address", Detail: err.Error()}
	}
	return addr, nil
}

// WriteAddress stores addr as Bytes.
func WriteAddress(a *asc.Arena, addr graph.Address) (asc.Ptr, error) {
	return WriteBytes(a, addr[:])
}

// ReadHash reads a 32 byte hash.
func ReadHash(a *asc.Arena, p asc.Ptr) (graph.Hash, error) {
	b, err := ReadBytes(a, p)
	if err != nil {
		return graph.Hash{}, err
	}
	h, err := graph.HashFromBytes(b)
	if err != nil {
		return h, &asc.EncodingError{Ptr: p, Kind: "Hash", Detail: err.Error()}
	}
	return h, nil
}

// WriteHash stores h as Bytes.
func WriteHash(a *asc.Arena, h graph.Hash) (asc.Ptr, error) {
	return WriteBytes(a, h[:])
}

// bigOrZero guards required numeric fields.
func bigOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
