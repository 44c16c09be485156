//go:build wasip1

package wasm

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
)

// HeapSize is the size of the region objects are placed in. It is reserved
// from the Go heap on first use, so a mapping that needs more must set it
// from an init function.
var HeapSize uint32 = 16 << 20

// heap exposes the module's own linear memory as an asc.Memory. The Go
// runtime owns that memory, so objects live in one region allocated from
// the Go heap and kept reachable for the lifetime of the module.
type heap struct {
	region
}

func (h *heap) Reserve(size uint32) (uint32, error) {
	if h.buf == nil {
		if err := h.init(); err != nil {
			return 0, err
		}
	}
	return h.region.Reserve(size)
}

func (h *heap) init() error {
	buf := make([]byte, uint64(HeapSize)+asc.PayloadAlign)
	addr := uint64(uintptr(unsafe.Pointer(&buf[0])))
	base := (addr + asc.PayloadAlign - 1) &^ (asc.PayloadAlign - 1)
	if base+uint64(HeapSize) > math.MaxUint32 {
		return fmt.Errorf("%w: heap region at %#x", asc.ErrOutOfMemory, addr)
	}
	h.buf = buf[base-addr : base-addr+uint64(HeapSize)]
	h.base = uint32(base)
	return nil
}
