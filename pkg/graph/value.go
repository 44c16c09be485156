package graph

import (
	"bytes"
	"fmt"
	"math/big"
)

// ValueKind is the discriminant of a store value. The numbering is part of the
// wire format.
type ValueKind uint32

const (
	KindString ValueKind = iota
	KindInt
	KindBigDecimal
	KindBool
	KindArray
	KindNull
	KindBytes
	KindBigInt
	KindInt8
)

var valueKindNames = [...]string{
	"String", "Int", "BigDecimal", "Bool", "Array", "Null", "Bytes", "BigInt", "Int8",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", uint32(k))
}

// Value is an entity field value. The set of implementations is closed.
type Value interface {
	Kind() ValueKind
	isValue()
}

type (
	// String is a text value.
	String string
	// Int is a 32 bit integer value.
	Int int32
	// Int8 is a 64 bit integer value.
	Int8 int64
	// Bool is a boolean value.
	Bool bool
	// Bytes is a byte string value.
	Bytes []byte
	// Array is a list of values.
	Array []Value
	// Null is the absent value.
	Null struct{}
	// BigInt is an arbitrary precision integer value.
	BigInt struct{ Int *big.Int }
	// Decimal is an arbitrary precision decimal value.
	Decimal struct{ BigDecimal }
)

func (String) Kind() ValueKind  { return KindString }
func (Int) Kind() ValueKind     { return KindInt }
func (Int8) Kind() ValueKind    { return KindInt8 }
func (Bool) Kind() ValueKind    { return KindBool }
func (Bytes) Kind() ValueKind   { return KindBytes }
func (Array) Kind() ValueKind   { return KindArray }
func (Null) Kind() ValueKind    { return KindNull }
func (BigInt) Kind() ValueKind  { return KindBigInt }
func (Decimal) Kind() ValueKind { return KindBigDecimal }

func (String) isValue()  {}
func (Int) isValue()     {}
func (Int8) isValue()    {}
func (Bool) isValue()    {}
func (Bytes) isValue()   {}
func (Array) isValue()   {}
func (Null) isValue()    {}
func (BigInt) isValue()  {}
func (Decimal) isValue() {}

// NewBigInt wraps x as a store value.
func NewBigInt(x *big.Int) BigInt { return BigInt{Int: new(big.Int).Set(x)} }

// NewDecimal wraps d as a store value.
func NewDecimal(d BigDecimal) Decimal { return Decimal{BigDecimal: d} }

// ValuesEqual compares two values structurally. Numbers compare by value.
func ValuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Bytes:
		return bytes.Equal(x, b.(Bytes))
	case BigInt:
		return x.Int.Cmp(b.(BigInt).Int) == 0
	case Decimal:
		return x.Equal(b.(Decimal).BigDecimal)
	case Array:
		y := b.(Array)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !ValuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// FormatValue renders v for logs and test failures.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case String:
		return fmt.Sprintf("%q", string(x))
	case Bytes:
		return fmt.Sprintf("0x%x", []byte(x))
	case BigInt:
		return x.Int.String()
	case Decimal:
		return x.BigDecimal.String()
	case Null:
		return "null"
	case Array:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(FormatValue(e))
		}
		buf.WriteByte(']')
		return buf.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
