package wasm

import (
	"fmt"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
)

// region is one block of memory whose first byte sits at address base. It
// serves as both the asc.Memory and the asc.RegionSource of the arena:
// reservations are carved from its start upward, so addresses only increase
// and objects never move.
type region struct {
	buf  []byte
	base uint32
	used uint32
}

// Size is the end of the reserved prefix.
func (r *region) Size() uint32 { return r.base + r.used }

func (r *region) Read(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if r.buf == nil || offset < r.base || end > uint64(r.Size()) {
		return nil, &asc.BoundsViolation{Offset: offset, Length: length, Limit: r.Size()}
	}
	if length == 0 {
		return nil, nil
	}
	return r.buf[offset-r.base : end-uint64(r.base)], nil
}

func (r *region) Write(offset uint32, data []byte) error {
	b, err := r.Read(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (r *region) Reserve(size uint32) (uint32, error) {
	start := (uint64(r.used) + asc.PayloadAlign - 1) &^ (asc.PayloadAlign - 1)
	if start+uint64(size) > uint64(len(r.buf)) {
		return 0, fmt.Errorf("%w: %d bytes requested, %d of %d in use", asc.ErrOutOfMemory, size, r.used, len(r.buf))
	}
	r.used = uint32(start) + size
	return r.base + uint32(start), nil
}
