package asc

import (
	"encoding/binary"
	"fmt"
)

// Header is the metadata block that precedes every object payload.
//
// Layout for the AssemblyScript 0.19 runtime (ABI 0.0.5 and later), 20 bytes
// little endian, the payload pointer pointing just past it:
//
//	ptr-20  mmInfo   block size as seen by the memory manager
//	ptr-16  gcInfo   reserved for the collector, written as 0
//	ptr-12  gcInfo2  reserved for the collector, written as 0
//	ptr-8   rtId     runtime class id
//	ptr-4   rtSize   payload size in bytes
type Header struct {
	MMInfo  uint32
	GCInfo  uint32
	GCInfo2 uint32
	RTID    uint32
	RTSize  uint32
}

// HeaderCodec encodes and decodes object headers for one ABI version.
type HeaderCodec interface {
	Version() Version
	Size() uint32
	Encode(h Header) []byte
	Decode(b []byte) (Header, error)
}

// NewHeader returns the header for a freshly allocated block.
func NewHeader(rtID, payloadSize uint32) Header {
	return Header{
		MMInfo: ObjectOverhead + alignUp(payloadSize, PayloadAlign),
		RTID:   rtID,
		RTSize: payloadSize,
	}
}

const (
	// HeaderSize is the full header width in front of a payload.
	HeaderSize = 20
	// ObjectOverhead is the header minus the memory manager word.
	ObjectOverhead = 16
	// PayloadAlign is the alignment of every payload pointer.
	PayloadAlign = 16
)

type headerV5 struct {
	version Version
}

func (c headerV5) Version() Version { return c.version }

func (c headerV5) Size() uint32 { return HeaderSize }

func (c headerV5) Encode(h Header) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:], h.MMInfo)
	binary.LittleEndian.PutUint32(b[4:], h.GCInfo)
	binary.LittleEndian.PutUint32(b[8:], h.GCInfo2)
	binary.LittleEndian.PutUint32(b[12:], h.RTID)
	binary.LittleEndian.PutUint32(b[16:], h.RTSize)
	return b
}

func (c headerV5) Decode(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedHeader, len(b), HeaderSize)
	}
	return Header{
		MMInfo:  binary.LittleEndian.Uint32(b[0:]),
		GCInfo:  binary.LittleEndian.Uint32(b[4:]),
		GCInfo2: binary.LittleEndian.Uint32(b[8:]),
		RTID:    binary.LittleEndian.Uint32(b[12:]),
		RTSize:  binary.LittleEndian.Uint32(b[16:]),
	}, nil
}

var headerCodecs = map[Version]HeaderCodec{
	V0_0_5: headerV5{version: V0_0_5},
	V0_0_6: headerV5{version: V0_0_6},
	V0_0_7: headerV5{version: V0_0_7},
}

// CodecFor returns the header codec pinned to v.
func CodecFor(v Version) (HeaderCodec, error) {
	c, ok := headerCodecs[v]
	if !ok {
		return nil, &VersionMismatchError{
			Version: v,
			Detail:  fmt.Sprintf("no object header codec; supported: %v", SupportedVersions()),
		}
	}
	return c, nil
}

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}
