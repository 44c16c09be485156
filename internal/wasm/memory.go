package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
)

// Memory adapts a guest's exported memory to asc.Memory so the codec can read
// and write AssemblyScript objects in it.
//
// Read returns a view into guest memory. The view is only valid until the
// guest runs again, since memory.grow may move the backing buffer; callers
// copy what they keep.
type Memory struct {
	mem api.Memory
}

// NewMemory creates a memory adapter.
func NewMemory(module api.Module) *Memory {
	return &Memory{mem: module.Memory()}
}

func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	buf, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, &asc.BoundsViolation{Offset: offset, Length: length, Limit: m.mem.Size()}
	}
	return buf, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return &asc.BoundsViolation{Offset: offset, Length: uint32(len(data)), Limit: m.mem.Size()}
	}
	return nil
}

// allocator serves arena regions through the guest allocate export.
type allocator struct {
	inst *Instance
	fn   api.Function
}

func (a *allocator) Reserve(size uint32) (uint32, error) {
	ctx := a.inst.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := a.fn.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("%w: guest allocate(%d): %v", asc.ErrOutOfMemory, size, err)
	}
	if len(res) != 1 || uint32(res[0]) == 0 {
		return 0, fmt.Errorf("%w: guest allocate(%d) returned no region", asc.ErrOutOfMemory, size)
	}
	return uint32(res[0]), nil
}
