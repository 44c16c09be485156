package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
)

// Element is a fixed-width number stored in typed arrays and scalar arrays.
type Element interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

type elementInfo struct {
	size  uint32
	view  asc.TypeIndex
	array asc.TypeIndex
}

func infoOf[T Element]() elementInfo {
	var zero T
	switch any(zero).(type) {
	case int8:
		return elementInfo{1, asc.IndexInt8Array, asc.IndexArrayI8}
	case int16:
		return elementInfo{2, asc.IndexInt16Array, asc.IndexArrayI16}
	case int32:
		return elementInfo{4, asc.IndexInt32Array, asc.IndexArrayI32}
	case int64:
		return elementInfo{8, asc.IndexInt64Array, asc.IndexArrayI64}
	case uint8:
		return elementInfo{1, asc.IndexUint8Array, asc.IndexArrayU8}
	case uint16:
		return elementInfo{2, asc.IndexUint16Array, asc.IndexArrayU16}
	case uint32:
		return elementInfo{4, asc.IndexUint32Array, asc.IndexArrayU32}
	case uint64:
		return elementInfo{8, asc.IndexUint64Array, asc.IndexArrayU64}
	case float32:
		return elementInfo{4, asc.IndexFloat32Array, asc.IndexArrayF32}
	case float64:
		return elementInfo{8, asc.IndexFloat64Array, asc.IndexArrayF64}
	}
	panic(fmt.Sprintf("codec: no array class for %T", zero))
}

// viewSize is the payload of a typed array view: buffer, dataStart, byteLength.
const viewSize = 12

// EncodeArrayBuffer stores b as a raw ArrayBuffer block.
func EncodeArrayBuffer(a *asc.Arena, b []byte) (asc.Handle[asc.BufferShape], error) {
	h, err := asc.Alloc[asc.BufferShape](a, uint32(len(b)), asc.IndexArrayBuffer)
	if err != nil {
		return h, err
	}
	if len(b) > 0 {
		err = a.Write(h.Ptr(), 0, b)
	}
	return h, err
}

// DecodeArrayBuffer returns a copy of the buffer contents.
func DecodeArrayBuffer(a *asc.Arena, h asc.Handle[asc.BufferShape]) ([]byte, error) {
	if h.IsNull() {
		return nil, nullError(h.Ptr(), "buffer")
	}
	return a.Payload(h.Ptr())
}

// EncodeTypedArray stores vals in a fresh ArrayBuffer and returns a view over
// the whole buffer.
func EncodeTypedArray[T Element](a *asc.Arena, vals []T) (asc.Handle[asc.ViewShape], error) {
	info := infoOf[T]()
	raw, err := binary.Append(nil, binary.LittleEndian, vals)
	if err != nil {
		return asc.Null[asc.ViewShape](), err
	}
	return encodeView(a, info.view, raw)
}

// DecodeTypedArray reads the elements visible through a view.
func DecodeTypedArray[T Element](a *asc.Arena, h asc.Handle[asc.ViewShape]) ([]T, error) {
	info := infoOf[T]()
	raw, err := decodeView(a, h, info)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(raw)/int(info.size))
	if _, err := binary.Decode(raw, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeBytes stores b as a Uint8Array, the representation of Bytes,
// Address and BigInt.
func EncodeBytes(a *asc.Arena, b []byte) (asc.Handle[asc.ViewShape], error) {
	return encodeView(a, asc.IndexUint8Array, b)
}

// DecodeBytes reads a Uint8Array.
func DecodeBytes(a *asc.Arena, h asc.Handle[asc.ViewShape]) ([]byte, error) {
	return decodeView(a, h, elementInfo{1, asc.IndexUint8Array, asc.IndexArrayU8})
}

// ReadBytes validates p as a Uint8Array and decodes it.
func ReadBytes(a *asc.Arena, p asc.Ptr) ([]byte, error) {
	h, err := asc.ValidateIndex[asc.ViewShape](a, p, asc.IndexUint8Array)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(a, h)
}

// WriteBytes is EncodeBytes returning the raw pointer.
func WriteBytes(a *asc.Arena, b []byte) (asc.Ptr, error) {
	h, err := EncodeBytes(a, b)
	return h.Ptr(), err
}

func encodeView(a *asc.Arena, idx asc.TypeIndex, raw []byte) (asc.Handle[asc.ViewShape], error) {
	buf, err := EncodeArrayBuffer(a, raw)
	if err != nil {
		return asc.Null[asc.ViewShape](), err
	}
	view, err := asc.Alloc[asc.ViewShape](a, viewSize, idx)
	if err != nil {
		return view, err
	}
	fields := make([]byte, viewSize)
	binary.LittleEndian.PutUint32(fields[0:], uint32(buf.Ptr()))
	binary.LittleEndian.PutUint32(fields[4:], uint32(buf.Ptr()))
	binary.LittleEndian.PutUint32(fields[8:], uint32(len(raw)))
	return view, a.Write(view.Ptr(), 0, fields)
}

func decodeView(a *asc.Arena, h asc.Handle[asc.ViewShape], info elementInfo) ([]byte, error) {
	if h.IsNull() {
		return nil, nullError(h.Ptr(), "typed array")
	}
	if _, err := asc.ValidateIndex[asc.ViewShape](a, h.Ptr(), info.view); err != nil {
		return nil, err
	}
	fields, err := a.Read(h.Ptr(), 0, viewSize)
	if err != nil {
		return nil, err
	}
	bufPtr := asc.Ptr(binary.LittleEndian.Uint32(fields[0:]))
	dataStart := binary.LittleEndian.Uint32(fields[4:])
	byteLength := binary.LittleEndian.Uint32(fields[8:])

	off, err := bufferOffset(a, h.Ptr(), bufPtr, dataStart, byteLength)
	if err != nil {
		return nil, err
	}
	if byteLength%info.size != 0 {
		return nil, &asc.EncodingError{
			Ptr:    h.Ptr(),
			Kind:   "typed array",
			Detail: fmt.Sprintf("byte length %d is not a multiple of %d", byteLength, info.size),
		}
	}
	return a.Read(bufPtr, off, byteLength)
}

// bufferOffset checks that [dataStart, dataStart+byteLength) lies inside the
// buffer at bufPtr and returns dataStart relative to the buffer payload.
func bufferOffset(a *asc.Arena, owner, bufPtr asc.Ptr, dataStart, byteLength uint32) (uint32, error) {
	buf, err := asc.Validate[asc.BufferShape](a, bufPtr)
	if err != nil {
		return 0, err
	}
	if buf.IsNull() {
		return 0, nullError(owner, "buffer")
	}
	hdr, err := a.HeaderOf(buf.Ptr())
	if err != nil {
		return 0, err
	}
	start := uint64(bufPtr)
	if uint64(dataStart) < start || uint64(dataStart)+uint64(byteLength) > start+uint64(hdr.RTSize) {
		return 0, &asc.BoundsViolation{
			Ptr:    owner,
			Offset: dataStart - uint32(bufPtr),
			Length: byteLength,
			Limit:  hdr.RTSize,
		}
	}
	return dataStart - uint32(bufPtr), nil
}
