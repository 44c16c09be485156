package asc

import "fmt"

// PageSize is the WebAssembly page size.
const PageSize = 65536

// Memory is a byte-addressable linear memory. Read may return a view into the
// underlying memory; callers copy before retaining it.
type Memory interface {
	Read(offset, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	Size() uint32
}

// RegionSource hands out raw memory regions to an Arena. Regions returned by
// successive calls must lie at increasing addresses.
type RegionSource interface {
	Reserve(size uint32) (base uint32, err error)
}

// LinearMemory is an in-process Memory that grows in whole pages, the way
// memory.grow does. It is also a RegionSource that serves regions by growing.
type LinearMemory struct {
	buf      []byte
	maxPages uint32
}

// NewLinearMemory returns a memory of initial pages that may grow to maxPages.
// A maxPages of 0 means 65536 pages (4 GiB).
func NewLinearMemory(initial, maxPages uint32) *LinearMemory {
	if maxPages == 0 {
		maxPages = 65536
	}
	return &LinearMemory{
		buf:      make([]byte, uint64(initial)*PageSize),
		maxPages: maxPages,
	}
}

func (m *LinearMemory) Size() uint32 {
	return uint32(len(m.buf))
}

func (m *LinearMemory) Read(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m.buf)) {
		return nil, &BoundsViolation{Offset: offset, Length: length, Limit: m.Size()}
	}
	return m.buf[offset:end], nil
}

func (m *LinearMemory) Write(offset uint32, data []byte) error {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m.buf)) {
		return &BoundsViolation{Offset: offset, Length: uint32(len(data)), Limit: m.Size()}
	}
	copy(m.buf[offset:end], data)
	return nil
}

// Grow adds delta pages and returns the previous size in pages.
func (m *LinearMemory) Grow(delta uint32) (uint32, bool) {
	prev := uint32(len(m.buf) / PageSize)
	if uint64(prev)+uint64(delta) > uint64(m.maxPages) {
		return prev, false
	}
	m.buf = append(m.buf, make([]byte, uint64(delta)*PageSize)...)
	return prev, true
}

// Reserve grows the memory by enough pages for size bytes and returns the old
// end of memory as the region base.
func (m *LinearMemory) Reserve(size uint32) (uint32, error) {
	pages := (uint64(size) + PageSize - 1) / PageSize
	prev, ok := m.Grow(uint32(pages))
	if !ok {
		return 0, fmt.Errorf("%w: cannot grow by %d pages past %d", ErrOutOfMemory, pages, m.maxPages)
	}
	return prev * PageSize, nil
}
