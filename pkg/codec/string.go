// Package codec converts between native Go values and their AssemblyScript
// object encodings inside an asc.Arena. Decoders never allocate in the arena;
// encoders allocate one top-level block plus whatever nested blocks the value
// needs.
package codec

import (
	"encoding/binary"
	"fmt"
	"unicode"
	"unicode/utf16"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
)

// EncodeString stores s as a UTF-16LE string block.
func EncodeString(a *asc.Arena, s string) (asc.Handle[asc.StringShape], error) {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2*i:], u)
	}

	h, err := asc.Alloc[asc.StringShape](a, uint32(len(buf)), asc.IndexString)
	if err != nil {
		return h, err
	}
	if len(buf) > 0 {
		if err := a.Write(h.Ptr(), 0, buf); err != nil {
			return h, err
		}
	}
	return h, nil
}

// DecodeString reads a string block. Unpaired surrogates are rejected with an
// *asc.EncodingError instead of being replaced.
func DecodeString(a *asc.Arena, h asc.Handle[asc.StringShape]) (string, error) {
	if h.IsNull() {
		return "", nullError(h.Ptr(), "string")
	}
	b, err := a.Payload(h.Ptr())
	if err != nil {
		return "", err
	}
	if len(b)%2 != 0 {
		return "", &asc.EncodingError{Ptr: h.Ptr(), Kind: "string", Detail: fmt.Sprintf("odd byte length %d", len(b))}
	}

	runes := make([]rune, 0, len(b)/2)
	for i := 0; i < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if !utf16.IsSurrogate(rune(u)) {
			runes = append(runes, rune(u))
			continue
		}
		if u >= 0xDC00 || i+2 >= len(b) {
			return "", surrogateError(h.Ptr(), i/2, u)
		}
		lo := binary.LittleEndian.Uint16(b[i+2:])
		r := utf16.DecodeRune(rune(u), rune(lo))
		if r == unicode.ReplacementChar {
			return "", surrogateError(h.Ptr(), i/2, u)
		}
		runes = append(runes, r)
		i += 2
	}
	return string(runes), nil
}

// ReadString validates p as a string block and decodes it.
func ReadString(a *asc.Arena, p asc.Ptr) (string, error) {
	h, err := asc.ValidateIndex[asc.StringShape](a, p, asc.IndexString)
	if err != nil {
		return "", err
	}
	return DecodeString(a, h)
}

// ReadOptionalString is ReadString that maps null to nil.
func ReadOptionalString(a *asc.Arena, p asc.Ptr) (*string, error) {
	if p == 0 {
		return nil, nil
	}
	s, err := ReadString(a, p)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// WriteOptionalString encodes s, or returns the null pointer for nil.
func WriteOptionalString(a *asc.Arena, s *string) (asc.Ptr, error) {
	if s == nil {
		return 0, nil
	}
	h, err := EncodeString(a, *s)
	return h.Ptr(), err
}

func surrogateError(p asc.Ptr, unit int, u uint16) error {
	return &asc.EncodingError{
		Ptr:    p,
		Kind:   "string",
		Detail: fmt.Sprintf("unpaired surrogate %#04x at code unit %d", u, unit),
	}
}

func nullError(p asc.Ptr, kind string) error {
	return &asc.EncodingError{Ptr: p, Kind: kind, Detail: "unexpected null pointer"}
}
