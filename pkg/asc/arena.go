package asc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultChunkSize is the size of regions requested from a RegionSource.
const DefaultChunkSize = 64 * 1024

// Arena owns object allocation in a linear memory. It is a bump allocator:
// the allocation pointer only moves forward, blocks are never freed, and the
// host reclaims the whole memory between independent calls.
//
// An Arena is not safe for concurrent use; a module instance executes one
// call at a time.
type Arena struct {
	mem      Memory
	codec    HeaderCodec
	registry *TypeRegistry
	source   RegionSource
	chunk    uint32

	next  uint32
	end   uint32
	count int
}

type arenaOptions struct {
	version  Version
	registry *TypeRegistry
	source   RegionSource
	chunk    uint32
	base     uint32
	end      uint32
	region   bool
}

// ArenaOption configures NewArena.
type ArenaOption func(*arenaOptions)

// WithVersion pins the header layout to ABI version v.
func WithVersion(v Version) ArenaOption {
	return func(o *arenaOptions) { o.version = v }
}

// WithRegistry sets the runtime id assignment written into headers.
func WithRegistry(r *TypeRegistry) ArenaOption {
	return func(o *arenaOptions) { o.registry = r }
}

// WithRegion makes [base, end) the initial allocation region.
func WithRegion(base, end uint32) ArenaOption {
	return func(o *arenaOptions) {
		o.base, o.end, o.region = base, end, true
	}
}

// WithSource sets where additional regions come from once the current one is
// exhausted. Without a source the arena fails with ErrOutOfMemory.
func WithSource(src RegionSource) ArenaOption {
	return func(o *arenaOptions) { o.source = src }
}

// WithChunkSize sets the minimum size of regions requested from the source.
func WithChunkSize(n uint32) ArenaOption {
	return func(o *arenaOptions) { o.chunk = n }
}

// NewArena creates an arena over mem. If mem is itself a RegionSource and no
// source is given, regions are taken from mem.
func NewArena(mem Memory, opts ...ArenaOption) (*Arena, error) {
	o := arenaOptions{
		version:  Latest,
		registry: DefaultRegistry,
		chunk:    DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	codec, err := CodecFor(o.version)
	if err != nil {
		return nil, err
	}
	if o.source == nil {
		if src, ok := mem.(RegionSource); ok {
			o.source = src
		}
	}
	if o.region && o.end < o.base {
		return nil, fmt.Errorf("invalid arena region [%d, %d)", o.base, o.end)
	}
	if o.chunk == 0 {
		o.chunk = DefaultChunkSize
	}

	return &Arena{
		mem:      mem,
		codec:    codec,
		registry: o.registry,
		source:   o.source,
		chunk:    o.chunk,
		next:     o.base,
		end:      o.end,
	}, nil
}

// Memory returns the memory the arena allocates in.
func (a *Arena) Memory() Memory { return a.mem }

// Version returns the ABI version of the header codec.
func (a *Arena) Version() Version { return a.codec.Version() }

// Registry returns the runtime id registry.
func (a *Arena) Registry() *TypeRegistry { return a.registry }

// Top returns the current allocation pointer.
func (a *Arena) Top() uint32 { return a.next }

// Allocations returns the number of objects allocated so far.
func (a *Arena) Allocations() int { return a.count }

// Allocate reserves a block for size payload bytes tagged with idx, writes
// its header, zero-fills the payload and returns the payload pointer.
func (a *Arena) Allocate(size uint32, idx TypeIndex) (Ptr, error) {
	id, ok := a.registry.ID(idx)
	if !ok {
		return 0, &TagMismatchError{Expected: "a registered class", Actual: uint32(idx)}
	}

	payload, err := a.place(HeaderSize, size)
	if err != nil {
		return 0, err
	}

	block := make([]byte, HeaderSize+int(size))
	copy(block, a.codec.Encode(NewHeader(id, size)))
	if err := a.mem.Write(payload-HeaderSize, block); err != nil {
		return 0, a.bounds(Ptr(payload), 0, size, err)
	}
	a.count++
	return Ptr(payload), nil
}

// Reserve hands out a raw, header-less region of size bytes aligned to
// PayloadAlign. It backs the allocate export through which the host places its
// own objects in guest memory.
func (a *Arena) Reserve(size uint32) (uint32, error) {
	return a.place(0, size)
}

func (a *Arena) place(prefix, size uint32) (uint32, error) {
	start, end := a.fit(prefix, size)
	if end > uint64(a.end) {
		if err := a.grow(uint64(prefix) + uint64(size) + PayloadAlign); err != nil {
			return 0, err
		}
		start, end = a.fit(prefix, size)
		if end > uint64(a.end) {
			return 0, fmt.Errorf("%w: %d bytes do not fit the new region", ErrOutOfMemory, size)
		}
	}
	a.next = uint32(end)
	return uint32(start), nil
}

func (a *Arena) fit(prefix, size uint32) (start, end uint64) {
	start = uint64(a.next) + uint64(prefix)
	start = (start + PayloadAlign - 1) &^ (PayloadAlign - 1)
	return start, start + uint64(size)
}

func (a *Arena) grow(need uint64) error {
	if a.source == nil {
		return fmt.Errorf("%w: no region source", ErrOutOfMemory)
	}
	size := uint64(a.chunk)
	if need > size {
		size = need
	}
	if size > 1<<32-1 {
		return fmt.Errorf("%w: request of %d bytes", ErrOutOfMemory, size)
	}
	base, err := a.source.Reserve(uint32(size))
	if err != nil {
		return err
	}
	if base < a.end {
		return fmt.Errorf("%w: region %#x below allocation pointer %#x", ErrOutOfMemory, base, a.end)
	}
	a.next, a.end = base, base+uint32(size)
	return nil
}

// HeaderOf decodes the header of the block at p and checks that its payload
// lies within the memory.
func (a *Arena) HeaderOf(p Ptr) (Header, error) {
	if p < HeaderSize {
		return Header{}, &BoundsViolation{Ptr: p, Limit: a.mem.Size()}
	}
	b, err := a.mem.Read(uint32(p)-HeaderSize, HeaderSize)
	if err != nil {
		return Header{}, a.bounds(p, 0, HeaderSize, err)
	}
	h, err := a.codec.Decode(b)
	if err != nil {
		return Header{}, err
	}
	if uint64(p)+uint64(h.RTSize) > uint64(a.mem.Size()) {
		return Header{}, &BoundsViolation{Ptr: p, Length: h.RTSize, Limit: a.mem.Size() - uint32(p)}
	}
	return h, nil
}

// IndexOf resolves the class of the block at p.
func (a *Arena) IndexOf(p Ptr) (TypeIndex, error) {
	h, err := a.HeaderOf(p)
	if err != nil {
		return 0, err
	}
	idx, ok := a.registry.Index(h.RTID)
	if !ok {
		return 0, &TagMismatchError{Ptr: p, Expected: "a registered class", Actual: h.RTID}
	}
	return idx, nil
}

// Read returns n bytes at off within the payload of p. The result is a copy.
func (a *Arena) Read(p Ptr, off, n uint32) ([]byte, error) {
	if err := a.check(p, off, n); err != nil {
		return nil, err
	}
	b, err := a.mem.Read(uint32(p)+off, n)
	if err != nil {
		return nil, a.bounds(p, off, n, err)
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Write stores b at off within the payload of p.
func (a *Arena) Write(p Ptr, off uint32, b []byte) error {
	if err := a.check(p, off, uint32(len(b))); err != nil {
		return err
	}
	if err := a.mem.Write(uint32(p)+off, b); err != nil {
		return a.bounds(p, off, uint32(len(b)), err)
	}
	return nil
}

// Payload returns a copy of the whole payload of p.
func (a *Arena) Payload(p Ptr) ([]byte, error) {
	h, err := a.HeaderOf(p)
	if err != nil {
		return nil, err
	}
	return a.Read(p, 0, h.RTSize)
}

func (a *Arena) ReadU32(p Ptr, off uint32) (uint32, error) {
	b, err := a.Read(p, off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (a *Arena) WriteU32(p Ptr, off, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return a.Write(p, off, b[:])
}

func (a *Arena) ReadU64(p Ptr, off uint32) (uint64, error) {
	b, err := a.Read(p, off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (a *Arena) WriteU64(p Ptr, off uint32, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return a.Write(p, off, b[:])
}

func (a *Arena) check(p Ptr, off, n uint32) error {
	h, err := a.HeaderOf(p)
	if err != nil {
		return err
	}
	if uint64(off)+uint64(n) > uint64(h.RTSize) {
		return &BoundsViolation{Ptr: p, Offset: off, Length: n, Limit: h.RTSize}
	}
	return nil
}

func (a *Arena) bounds(p Ptr, off, n uint32, err error) error {
	var bv *BoundsViolation
	if errors.As(err, &bv) {
		return &BoundsViolation{Ptr: p, Offset: off, Length: n, Limit: bv.Limit}
	}
	return fmt.Errorf("memory access at %#x: %w", uint32(p)+off, err)
}
