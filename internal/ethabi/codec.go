package ethabi

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// ErrInvalidData is returned when data does not decode as the given type.
var ErrInvalidData = errors.New("invalid ABI data")

// Encode ABI-encodes t as the only parameter of a call.
func Encode(t graph.Token) ([]byte, error) {
	typ, err := TypeOf(t)
	if err != nil {
		return nil, err
	}
	at, err := typ.abiType()
	if err != nil {
		return nil, err
	}
	v, err := toValue(&at, t)
	if err != nil {
		return nil, err
	}
	return abi.Arguments{{Type: at}}.Pack(v.Interface())
}

// Decode decodes data as a single parameter of the given type.
func Decode(types string, data []byte) (graph.Token, error) {
	t, err := ParseType(types)
	if err != nil {
		return nil, err
	}
	at, err := t.abiType()
	if err != nil {
		return nil, err
	}
	vals, err := abi.Arguments{{Type: at}}.UnpackValues(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("%w: %d values for one parameter", ErrInvalidData, len(vals))
	}
	return fromValue(&at, reflect.ValueOf(vals[0]))
}

// toValue builds the Go value abi.Arguments.Pack expects for t.
func toValue(t *abi.Type, tok graph.Token) (reflect.Value, error) {
	mismatch := func() (reflect.Value, error) {
		return reflect.Value{}, fmt.Errorf("cannot encode %s as %s", tok.TokenKind(), t)
	}
	rt := t.GetType()
	switch t.T {
	case abi.AddressTy:
		x, ok := tok.(graph.AddressToken)
		if !ok {
			return mismatch()
		}
		return reflect.ValueOf(common.Address(x)), nil
	case abi.BoolTy:
		x, ok := tok.(graph.BoolToken)
		if !ok {
			return mismatch()
		}
		return reflect.ValueOf(bool(x)), nil
	case abi.StringTy:
		x, ok := tok.(graph.StringToken)
		if !ok {
			return mismatch()
		}
		return reflect.ValueOf(string(x)), nil
	case abi.BytesTy:
		x, ok := tok.(graph.BytesToken)
		if !ok {
			return mismatch()
		}
		return reflect.ValueOf([]byte(x)), nil
	case abi.FixedBytesTy:
		x, ok := tok.(graph.FixedBytesToken)
		if !ok || len(x) != t.Size {
			return mismatch()
		}
		v := reflect.New(rt).Elem()
		reflect.Copy(v, reflect.ValueOf([]byte(x)))
		return v, nil
	case abi.IntTy, abi.UintTy:
		var x *big.Int
		switch n := tok.(type) {
		case graph.IntToken:
			x = n.Int
		case graph.UintToken:
			x = n.Int
		}
		if x == nil {
			return mismatch()
		}
		if !fits(x, t.Size, t.T == abi.IntTy) {
			return reflect.Value{}, fmt.Errorf("value %s out of range for %s", x, t)
		}
		return integer(rt, x), nil
	case abi.SliceTy:
		items, ok := tok.(graph.ArrayToken)
		if !ok {
			return mismatch()
		}
		return fill(reflect.MakeSlice(rt, len(items), len(items)), t.Elem, items)
	case abi.ArrayTy:
		items, ok := tok.(graph.FixedArrayToken)
		if !ok || len(items) != t.Size {
			return mismatch()
		}
		return fill(reflect.New(rt).Elem(), t.Elem, items)
	case abi.TupleTy:
		fields, ok := tok.(graph.TupleToken)
		if !ok || len(fields) != len(t.TupleElems) {
			return mismatch()
		}
		v := reflect.New(rt).Elem()
		for i, f := range fields {
			fv, err := toValue(t.TupleElems[i], f)
			if err != nil {
				return reflect.Value{}, err
			}
			v.Field(i).Set(fv)
		}
		return v, nil
	}
	return mismatch()
}

func fill(v reflect.Value, elem *abi.Type, items []graph.Token) (reflect.Value, error) {
	for i, item := range items {
		ev, err := toValue(elem, item)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
		}
		v.Index(i).Set(ev)
	}
	return v, nil
}

// fits reports whether x is representable in size bits.
func fits(x *big.Int, size int, signed bool) bool {
	if !signed {
		return x.Sign() >= 0 && x.BitLen() <= size
	}
	if x.Sign() >= 0 {
		return x.BitLen() < size
	}
	return new(big.Int).Add(x, big.NewInt(1)).BitLen() < size
}

// integer converts x to the Go type go-ethereum uses for its width: sized
// ints up to 64 bits and *big.Int above.
func integer(rt reflect.Type, x *big.Int) reflect.Value {
	v := reflect.New(rt).Elem()
	switch rt.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetInt(x.Int64())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(x.Uint64())
	default:
		v.Set(reflect.ValueOf(new(big.Int).Set(x)))
	}
	return v
}

func bigOf(v reflect.Value) *big.Int {
	switch v.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(v.Int())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(v.Uint())
	}
	return new(big.Int).Set(v.Interface().(*big.Int))
}

// fromValue converts a value returned by abi.Arguments.UnpackValues.
func fromValue(t *abi.Type, v reflect.Value) (graph.Token, error) {
	switch t.T {
	case abi.AddressTy:
		return graph.AddressToken(v.Interface().(common.Address)), nil
	case abi.BoolTy:
		return graph.BoolToken(v.Bool()), nil
	case abi.StringTy:
		return graph.StringToken(v.String()), nil
	case abi.BytesTy:
		return graph.BytesToken(bytes.Clone(v.Bytes())), nil
	case abi.FixedBytesTy:
		b := make([]byte, v.Len())
		reflect.Copy(reflect.ValueOf(b), v)
		return graph.FixedBytesToken(b), nil
	case abi.IntTy:
		return graph.IntToken{Int: bigOf(v)}, nil
	case abi.UintTy:
		return graph.UintToken{Int: bigOf(v)}, nil
	case abi.SliceTy, abi.ArrayTy:
		items := make([]graph.Token, v.Len())
		for i := range items {
			tok, err := fromValue(t.Elem, v.Index(i))
			if err != nil {
				return nil, err
			}
			items[i] = tok
		}
		if t.T == abi.SliceTy {
			return graph.ArrayToken(items), nil
		}
		return graph.FixedArrayToken(items), nil
	case abi.TupleTy:
		fields := make([]graph.Token, len(t.TupleElems))
		for i, e := range t.TupleElems {
			tok, err := fromValue(e, v.Field(i))
			if err != nil {
				return nil, err
			}
			fields[i] = tok
		}
		return graph.TupleToken(fields), nil
	}
	return nil, fmt.Errorf("cannot decode type %s", t)
}
