package codec

import (
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
)

// arraySize is the payload of Array<T>: buffer, dataStart, byteLength, length.
const arraySize = 16

// Sequence is a lazy view over the elements of an Array<T> of pointers.
// Elements are decoded on access, and every call to All starts over from the
// arena, so a sequence can be walked any number of times within the
// invocation that produced it.
type Sequence[T any] struct {
	a      *asc.Arena
	owner  asc.Ptr
	buffer asc.Ptr
	off    uint32
	length uint32
	elem   func(*asc.Arena, asc.Ptr) (T, error)
	err    error
}

// Len returns the element count.
func (s *Sequence[T]) Len() int { return int(s.length) }

// Ptr returns the raw pointer of element i.
func (s *Sequence[T]) Ptr(i int) (asc.Ptr, error) {
	if i < 0 || uint32(i) >= s.length {
		return 0, &asc.BoundsViolation{Ptr: s.owner, Offset: uint32(i), Length: 1, Limit: s.length}
	}
	v, err := s.a.ReadU32(s.buffer, s.off+4*uint32(i))
	return asc.Ptr(v), err
}

// At decodes element i.
func (s *Sequence[T]) At(i int) (T, error) {
	p, err := s.Ptr(i)
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := s.elem(s.a, p)
	if err != nil {
		return v, fmt.Errorf("element %d: %w", i, err)
	}
	return v, nil
}

// All yields elements in order and stops at the first failure, which Err
// reports afterwards.
func (s *Sequence[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		s.err = nil
		for i := 0; i < s.Len(); i++ {
			v, err := s.At(i)
			if err != nil {
				s.err = err
				return
			}
			if !yield(i, v) {
				return
			}
		}
	}
}

// Err returns the failure that ended the last walk of All.
func (s *Sequence[T]) Err() error { return s.err }

// Collect decodes every element.
func (s *Sequence[T]) Collect() ([]T, error) {
	out := make([]T, 0, s.Len())
	for _, v := range s.All() {
		out = append(out, v)
	}
	return out, s.Err()
}

// EncodeArray stores ptrs as an Array<T> of class idx.
func EncodeArray(a *asc.Arena, idx asc.TypeIndex, ptrs []asc.Ptr) (asc.Handle[asc.ArrayShape], error) {
	raw := make([]byte, 4*len(ptrs))
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(raw[4*i:], uint32(p))
	}
	return encodeArray(a, idx, raw, uint32(len(ptrs)))
}

// EncodeArrayOf encodes every item with enc and stores the pointers as an
// Array<T> of class idx.
func EncodeArrayOf[T any](a *asc.Arena, idx asc.TypeIndex, items []T, enc func(*asc.Arena, T) (asc.Ptr, error)) (asc.Handle[asc.ArrayShape], error) {
	ptrs := make([]asc.Ptr, len(items))
	for i, item := range items {
		p, err := enc(a, item)
		if err != nil {
			return asc.Null[asc.ArrayShape](), fmt.Errorf("element %d: %w", i, err)
		}
		ptrs[i] = p
	}
	return EncodeArray(a, idx, ptrs)
}

// DecodeArray opens an array of pointers for lazy decoding with elem.
func DecodeArray[T any](a *asc.Arena, h asc.Handle[asc.ArrayShape], elem func(*asc.Arena, asc.Ptr) (T, error)) (*Sequence[T], error) {
	if h.IsNull() {
		return nil, nullError(h.Ptr(), "array")
	}
	buffer, off, length, err := openArray(a, h, 4)
	if err != nil {
		return nil, err
	}
	return &Sequence[T]{a: a, owner: h.Ptr(), buffer: buffer, off: off, length: length, elem: elem}, nil
}

// ReadArray validates p as an Array of class idx and collects it with elem.
func ReadArray[T any](a *asc.Arena, p asc.Ptr, idx asc.TypeIndex, elem func(*asc.Arena, asc.Ptr) (T, error)) ([]T, error) {
	h, err := asc.ValidateIndex[asc.ArrayShape](a, p, idx)
	if err != nil {
		return nil, err
	}
	seq, err := DecodeArray(a, h, elem)
	if err != nil {
		return nil, err
	}
	return seq.Collect()
}

// EncodeStringArray stores ss as Array<string>.
func EncodeStringArray(a *asc.Arena, ss []string) (asc.Handle[asc.ArrayShape], error) {
	return EncodeArrayOf(a, asc.IndexArrayString, ss, func(a *asc.Arena, s string) (asc.Ptr, error) {
		h, err := EncodeString(a, s)
		return h.Ptr(), err
	})
}

// DecodeStringArray opens an Array<string> lazily.
func DecodeStringArray(a *asc.Arena, h asc.Handle[asc.ArrayShape]) (*Sequence[string], error) {
	if _, err := asc.ValidateIndex[asc.ArrayShape](a, h.Ptr(), asc.IndexArrayString); err != nil {
		return nil, err
	}
	return DecodeArray(a, h, ReadString)
}

// EncodeScalarArray stores vals inline as Array<T>, e.g. Array<i32>.
func EncodeScalarArray[T Element](a *asc.Arena, vals []T) (asc.Handle[asc.ArrayShape], error) {
	raw, err := binary.Append(nil, binary.LittleEndian, vals)
	if err != nil {
		return asc.Null[asc.ArrayShape](), err
	}
	return encodeArray(a, infoOf[T]().array, raw, uint32(len(vals)))
}

// DecodeScalarArray reads an inline Array<T>.
func DecodeScalarArray[T Element](a *asc.Arena, h asc.Handle[asc.ArrayShape]) ([]T, error) {
	info := infoOf[T]()
	if h.IsNull() {
		return nil, nullError(h.Ptr(), "array")
	}
	if _, err := asc.ValidateIndex[asc.ArrayShape](a, h.Ptr(), info.array); err != nil {
		return nil, err
	}
	buffer, off, length, err := openArray(a, h, info.size)
	if err != nil {
		return nil, err
	}
	raw, err := a.Read(buffer, off, length*info.size)
	if err != nil {
		return nil, err
	}
	out := make([]T, length)
	if _, err := binary.Decode(raw, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeArray(a *asc.Arena, idx asc.TypeIndex, raw []byte, length uint32) (asc.Handle[asc.ArrayShape], error) {
	buf, err := EncodeArrayBuffer(a, raw)
	if err != nil {
		return asc.Null[asc.ArrayShape](), err
	}
	arr, err := asc.Alloc[asc.ArrayShape](a, arraySize, idx)
	if err != nil {
		return arr, err
	}
	fields := make([]byte, arraySize)
	binary.LittleEndian.PutUint32(fields[0:], uint32(buf.Ptr()))
	binary.LittleEndian.PutUint32(fields[4:], uint32(buf.Ptr()))
	binary.LittleEndian.PutUint32(fields[8:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(fields[12:], length)
	return arr, a.Write(arr.Ptr(), 0, fields)
}

// openArray reads the array header and checks that length elements of width
// bytes fit in the visible part of the buffer.
func openArray(a *asc.Arena, h asc.Handle[asc.ArrayShape], width uint32) (buffer asc.Ptr, off, length uint32, err error) {
	if _, err = asc.Validate[asc.ArrayShape](a, h.Ptr()); err != nil {
		return 0, 0, 0, err
	}
	fields, err := a.Read(h.Ptr(), 0, arraySize)
	if err != nil {
		return 0, 0, 0, err
	}
	buffer = asc.Ptr(binary.LittleEndian.Uint32(fields[0:]))
	dataStart := binary.LittleEndian.Uint32(fields[4:])
	byteLength := binary.LittleEndian.Uint32(fields[8:])
	length = binary.LittleEndian.Uint32(fields[12:])

	if uint64(length)*uint64(width) > uint64(byteLength) {
		return 0, 0, 0, &asc.BoundsViolation{Ptr: h.Ptr(), Length: length * width, Limit: byteLength}
	}
	off, err = bufferOffset(a, h.Ptr(), buffer, dataStart, byteLength)
	return buffer, off, length, err
}
