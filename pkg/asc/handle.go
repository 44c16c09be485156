package asc

import "fmt"

// Ptr is a raw payload offset into linear memory. 0 is the null pointer.
type Ptr uint32

// Shape is the compile-time marker carried by a Handle. The set of shapes is
// closed; each one accepts a fixed group of classes.
type Shape interface {
	name() string
	accepts(idx TypeIndex) bool
}

// StringShape marks UTF-16 string blocks.
type StringShape struct{}

// BufferShape marks ArrayBuffer blocks.
type BufferShape struct{}

// ViewShape marks typed array views such as Uint8Array.
type ViewShape struct{}

// ArrayShape marks Array<T> blocks.
type ArrayShape struct{}

// EnumShape marks tagged-union blocks such as StoreValue.
type EnumShape struct{}

// RecordShape marks fixed-layout class instances.
type RecordShape struct{}

func (StringShape) name() string { return "string" }
func (BufferShape) name() string { return "buffer" }
func (ViewShape) name() string   { return "typed array" }
func (ArrayShape) name() string  { return "array" }
func (EnumShape) name() string   { return "enum" }
func (RecordShape) name() string { return "record" }

func (StringShape) accepts(idx TypeIndex) bool { return idx == IndexString }
func (BufferShape) accepts(idx TypeIndex) bool { return idx == IndexArrayBuffer }

func (ViewShape) accepts(idx TypeIndex) bool {
	return idx >= IndexInt8Array && idx <= IndexFloat64Array
}

func (ArrayShape) accepts(idx TypeIndex) bool {
	switch {
	case idx >= IndexArrayBool && idx <= IndexArrayTypedMapEntryStringStoreValue:
		return true
	case idx >= IndexArrayU8 && idx <= IndexArrayBigDecimal:
		return true
	}
	return false
}

func (EnumShape) accepts(idx TypeIndex) bool {
	return idx == IndexEthereumValue || idx == IndexStoreValue || idx == IndexJSONValue
}

func (RecordShape) accepts(idx TypeIndex) bool {
	if !idx.Valid() {
		return false
	}
	return !StringShape{}.accepts(idx) && !BufferShape{}.accepts(idx) &&
		!ViewShape{}.accepts(idx) && !ArrayShape{}.accepts(idx) && !EnumShape{}.accepts(idx)
}

// ShapeName returns the name of the shape that owns idx.
func ShapeName(idx TypeIndex) string {
	for _, s := range []Shape{StringShape{}, BufferShape{}, ViewShape{}, ArrayShape{}, EnumShape{}, RecordShape{}} {
		if s.accepts(idx) {
			return s.name()
		}
	}
	return "unknown"
}

// Handle is a non-owning reference to a block whose class belongs to shape S.
// It is valid only for the invocation that produced it.
type Handle[S Shape] struct {
	ptr Ptr
}

// Null returns the null handle of shape S.
func Null[S Shape]() Handle[S] {
	return Handle[S]{}
}

func (h Handle[S]) Ptr() Ptr { return h.ptr }

func (h Handle[S]) IsNull() bool { return h.ptr == 0 }

// Equal compares offsets, not content.
func (h Handle[S]) Equal(o Handle[S]) bool { return h.ptr == o.ptr }

func (h Handle[S]) String() string {
	var s S
	return fmt.Sprintf("%s@%#x", s.name(), uint32(h.ptr))
}

// Validate turns a raw pointer received from the other side of the boundary
// into a handle. The block must lie inside memory and carry a class accepted by
// S. A zero pointer yields the null handle.
func Validate[S Shape](a *Arena, p Ptr) (Handle[S], error) {
	if p == 0 {
		return Handle[S]{}, nil
	}
	idx, err := a.IndexOf(p)
	if err != nil {
		return Handle[S]{}, err
	}
	var s S
	if !s.accepts(idx) {
		h, _ := a.HeaderOf(p)
		return Handle[S]{}, &TagMismatchError{Ptr: p, Expected: s.name(), Actual: h.RTID}
	}
	return Handle[S]{ptr: p}, nil
}

// ValidateIndex is Validate pinned to one exact class.
func ValidateIndex[S Shape](a *Arena, p Ptr, want TypeIndex) (Handle[S], error) {
	h, err := Validate[S](a, p)
	if err != nil || h.IsNull() {
		return h, err
	}
	idx, err := a.IndexOf(p)
	if err != nil {
		return Handle[S]{}, err
	}
	if idx != want {
		id, _ := a.registry.ID(idx)
		return Handle[S]{}, &TagMismatchError{Ptr: p, Expected: want.String(), Actual: id}
	}
	return h, nil
}

// Alloc allocates a block of class idx and returns it as a handle of shape S.
func Alloc[S Shape](a *Arena, size uint32, idx TypeIndex) (Handle[S], error) {
	var s S
	if !s.accepts(idx) {
		return Handle[S]{}, &TagMismatchError{Expected: s.name(), Actual: uint32(idx)}
	}
	p, err := a.Allocate(size, idx)
	if err != nil {
		return Handle[S]{}, err
	}
	return Handle[S]{ptr: p}, nil
}
