package codec

import (
	"math/big"
	"slices"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// SignedBytesLE returns the minimal little-endian two's complement encoding
// of x. Zero encodes as no bytes.
func SignedBytesLE(x *big.Int) []byte {
	if x == nil || x.Sign() == 0 {
		return []byte{}
	}
	if x.Sign() > 0 {
		b := x.Bytes()
		slices.Reverse(b)
		if b[len(b)-1]&0x80 != 0 {
			b = append(b, 0)
		}
		return b
	}

	// -x-1 has the same bits as x inverted.
	m := new(big.Int).Neg(x)
	m.Sub(m, big.NewInt(1))
	b := m.Bytes()
	slices.Reverse(b)
	for i := range b {
		b[i] = ^b[i]
	}
	if len(b) == 0 || b[len(b)-1]&0x80 == 0 {
		b = append(b, 0xFF)
	}
	return b
}

// FromSignedBytesLE is the inverse of SignedBytesLE. Non-minimal input is
// accepted.
func FromSignedBytesLE(b []byte) *big.Int {
	x := FromUnsignedBytesLE(b)
	if len(b) > 0 && b[len(b)-1]&0x80 != 0 {
		x.Sub(x, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return x
}

// FromUnsignedBytesLE reads b as an unsigned little-endian integer.
func FromUnsignedBytesLE(b []byte) *big.Int {
	be := slices.Clone(b)
	slices.Reverse(be)
	return new(big.Int).SetBytes(be)
}

// EncodeBigInt stores x as a Uint8Array of its signed little-endian bytes.
// A nil x encodes as zero.
func EncodeBigInt(a *asc.Arena, x *big.Int) (asc.Handle[asc.ViewShape], error) {
	return EncodeBytes(a, SignedBytesLE(x))
}

// DecodeBigInt reads a BigInt.
func DecodeBigInt(a *asc.Arena, h asc.Handle[asc.ViewShape]) (*big.Int, error) {
	b, err := DecodeBytes(a, h)
	if err != nil {
		return nil, err
	}
	return FromSignedBytesLE(b), nil
}

// ReadBigInt validates p as a BigInt and decodes it.
func ReadBigInt(a *asc.Arena, p asc.Ptr) (*big.Int, error) {
	b, err := ReadBytes(a, p)
	if err != nil {
		return nil, err
	}
	return FromSignedBytesLE(b), nil
}

// WriteBigInt is EncodeBigInt returning the raw pointer.
func WriteBigInt(a *asc.Arena, x *big.Int) (asc.Ptr, error) {
	h, err := EncodeBigInt(a, x)
	return h.Ptr(), err
}

// ReadOptionalBigInt maps null to nil.
func ReadOptionalBigInt(a *asc.Arena, p asc.Ptr) (*big.Int, error) {
	if p == 0 {
		return nil, nil
	}
	return ReadBigInt(a, p)
}

// WriteOptionalBigInt maps nil to null.
func WriteOptionalBigInt(a *asc.Arena, x *big.Int) (asc.Ptr, error) {
	if x == nil {
		return 0, nil
	}
	return WriteBigInt(a, x)
}

// EncodeBigDecimal stores d as a BigDecimal record {digits, exp}. Decimals
// outside the graph-node exponent range are rejected.
func EncodeBigDecimal(a *asc.Arena, d graph.BigDecimal) (asc.Handle[asc.RecordShape], error) {
	if err := d.CheckRange(); err != nil {
		return asc.Null[asc.RecordShape](), &asc.EncodingError{Kind: "BigDecimal", Detail: err.Error()}
	}
	w := NewRecord(a, BigDecimalSchema)
	w.Encode("digits", func() (asc.Ptr, error) { return WriteBigInt(a, d.Digits) })
	w.Encode("exp", func() (asc.Ptr, error) { return WriteBigInt(a, big.NewInt(d.Exp)) })
	return w.Finish()
}

// DecodeBigDecimal reads a BigDecimal record.
func DecodeBigDecimal(a *asc.Arena, h asc.Handle[asc.RecordShape]) (graph.BigDecimal, error) {
	var d graph.BigDecimal
	r := OpenRecord(a, h.Ptr(), BigDecimalSchema)
	r.Decode("digits", func(p asc.Ptr) (err error) {
		d.Digits, err = ReadBigInt(a, p)
		return
	})
	r.Decode("exp", func(p asc.Ptr) error {
		exp, err := ReadBigInt(a, p)
		if err != nil {
			return err
		}
		if !exp.IsInt64() {
			return &asc.EncodingError{Ptr: p, Kind: "BigDecimal", Detail: "exponent out of range"}
		}
		d.Exp = exp.Int64()
		return nil
	})
	if err := r.Err(); err != nil {
		return graph.BigDecimal{}, err
	}
	d = d.Normalize()
	if err := d.CheckRange(); err != nil {
		return graph.BigDecimal{}, &asc.EncodingError{Ptr: h.Ptr(), Kind: "BigDecimal", Detail: err.Error()}
	}
	return d, nil
}

// ReadBigDecimal validates p as a BigDecimal and decodes it.
func ReadBigDecimal(a *asc.Arena, p asc.Ptr) (graph.BigDecimal, error) {
	h, err := asc.ValidateIndex[asc.RecordShape](a, p, asc.IndexBigDecimal)
	if err != nil {
		return graph.BigDecimal{}, err
	}
	return DecodeBigDecimal(a, h)
}

// WriteBigDecimal is EncodeBigDecimal returning the raw pointer.
func WriteBigDecimal(a *asc.Arena, d graph.BigDecimal) (asc.Ptr, error) {
	h, err := EncodeBigDecimal(a, d)
	return h.Ptr(), err
}
