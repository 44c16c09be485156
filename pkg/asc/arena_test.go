package asc

import (
	"bytes"
	"errors"
	"testing"
)

func newTestArena(t *testing.T, opts ...ArenaOption) *Arena {
	t.Helper()
	mem := NewLinearMemory(1, 0)
	opts = append([]ArenaOption{WithRegion(16, mem.Size())}, opts...)
	a, err := NewArena(mem, opts...)
	if err != nil {
		t.Fatalf("NewArena() error = %v", err)
	}
	return a
}

func TestArenaAllocateWritesHeader(t *testing.T) {
	a := newTestArena(t)

	p, err := a.Allocate(10, IndexString)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if uint32(p)%PayloadAlign != 0 {
		t.Errorf("payload %#x is not %d-byte aligned", uint32(p), PayloadAlign)
	}

	h, err := a.HeaderOf(p)
	if err != nil {
		t.Fatalf("HeaderOf() error = %v", err)
	}
	want := Header{MMInfo: 32, RTID: 2, RTSize: 10}
	if h != want {
		t.Errorf("HeaderOf() = %+v, want %+v", h, want)
	}

	idx, err := a.IndexOf(p)
	if err != nil {
		t.Fatalf("IndexOf() error = %v", err)
	}
	if idx != IndexString {
		t.Errorf("IndexOf() = %v, want %v", idx, IndexString)
	}
}

func TestArenaAllocateZeroFills(t *testing.T) {
	mem := NewLinearMemory(1, 0)
	junk := bytes.Repeat([]byte{0xAA}, 256)
	if err := mem.Write(0, junk); err != nil {
		t.Fatal(err)
	}
	a, err := NewArena(mem, WithRegion(0, mem.Size()))
	if err != nil {
		t.Fatal(err)
	}

	p, err := a.Allocate(64, IndexUint8Array)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := a.Payload(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, make([]byte, 64)) {
		t.Errorf("payload not zeroed: %x", payload)
	}
}

func TestArenaMonotonicAllocation(t *testing.T) {
	a := newTestArena(t)

	var prevEnd uint64
	sizes := []uint32{0, 1, 15, 16, 17, 100, 3, 4096}
	for _, size := range sizes {
		p, err := a.Allocate(size, IndexArrayBuffer)
		if err != nil {
			t.Fatalf("Allocate(%d) error = %v", size, err)
		}
		start := uint64(p) - HeaderSize
		if start < prevEnd {
			t.Fatalf("block at %#x overlaps previous block ending at %#x", start, prevEnd)
		}
		prevEnd = uint64(p) + uint64(size)
	}
	if got := a.Allocations(); got != len(sizes) {
		t.Errorf("Allocations() = %d, want %d", got, len(sizes))
	}
	if uint64(a.Top()) != prevEnd {
		t.Errorf("Top() = %#x, want %#x", a.Top(), prevEnd)
	}
}

func TestArenaBounds(t *testing.T) {
	a := newTestArena(t)

	first, err := a.Allocate(8, IndexArrayBuffer)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Allocate(8, IndexArrayBuffer)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Write(second, 0, []byte("neighbor")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		off  uint32
		n    uint32
	}{
		{"past end", 8, 1},
		{"straddles end", 4, 8},
		{"overflowing offset", 0xFFFFFFFF, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Read(first, tt.off, tt.n)
			var bv *BoundsViolation
			if !errors.As(err, &bv) {
				t.Fatalf("Read() error = %v, want *BoundsViolation", err)
			}
			if bv.Limit != 8 {
				t.Errorf("Limit = %d, want 8", bv.Limit)
			}
			if err := a.Write(first, tt.off, make([]byte, tt.n)); !errors.Is(err, ErrBounds) {
				t.Errorf("Write() error = %v, want ErrBounds", err)
			}
		})
	}

	got, err := a.Read(second, 0, 8)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "neighbor" {
		t.Errorf("adjacent block modified: %q", got)
	}
}

func TestArenaHeaderOfInvalidPointer(t *testing.T) {
	a := newTestArena(t)

	for _, p := range []Ptr{0, 4, Ptr(a.Memory().Size() + 4), Ptr(a.Memory().Size() + 64)} {
		if _, err := a.HeaderOf(p); !errors.Is(err, ErrBounds) {
			t.Errorf("HeaderOf(%#x) error = %v, want ErrBounds", uint32(p), err)
		}
	}
}

func TestArenaHeaderOfCorruptSize(t *testing.T) {
	a := newTestArena(t)

	p, err := a.Allocate(4, IndexArrayBuffer)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHeader(1, 1<<30)
	codec, _ := CodecFor(Latest)
	if err := a.Memory().Write(uint32(p)-HeaderSize, codec.Encode(h)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Read(p, 0, 4); !errors.Is(err, ErrBounds) {
		t.Errorf("Read() error = %v, want ErrBounds", err)
	}
}

func TestArenaScalars(t *testing.T) {
	a := newTestArena(t)

	p, err := a.Allocate(16, IndexEthereumValue)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.WriteU32(p, 0, 7); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteU64(p, 8, 1<<40+3); err != nil {
		t.Fatal(err)
	}

	kind, err := a.ReadU32(p, 0)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := a.ReadU64(p, 8)
	if err != nil {
		t.Fatal(err)
	}
	if kind != 7 || payload != 1<<40+3 {
		t.Errorf("got (%d, %d), want (7, %d)", kind, payload, uint64(1<<40+3))
	}
	if err := a.WriteU64(p, 12, 0); !errors.Is(err, ErrBounds) {
		t.Errorf("WriteU64() past end error = %v, want ErrBounds", err)
	}
}

func TestArenaGrowsFromSource(t *testing.T) {
	mem := NewLinearMemory(1, 4)
	a, err := NewArena(mem, WithRegion(mem.Size()-64, mem.Size()), WithChunkSize(PageSize))
	if err != nil {
		t.Fatal(err)
	}

	p, err := a.Allocate(1000, IndexArrayBuffer)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if uint32(p) < PageSize {
		t.Errorf("block at %#x, want it in the grown region", uint32(p))
	}
	if mem.Size() != 2*PageSize {
		t.Errorf("memory size = %d, want %d", mem.Size(), 2*PageSize)
	}
}

func TestArenaOutOfMemory(t *testing.T) {
	mem := NewLinearMemory(1, 1)
	a, err := NewArena(mem, WithRegion(0, mem.Size()))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.Allocate(2*PageSize, IndexArrayBuffer); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Allocate() error = %v, want ErrOutOfMemory", err)
	}
	if !IsFatal(ErrOutOfMemory) {
		t.Error("ErrOutOfMemory should be fatal")
	}
}

type fixedSource struct{ base uint32 }

func (s fixedSource) Reserve(uint32) (uint32, error) { return s.base, nil }

func TestArenaRejectsRegionBelowPointer(t *testing.T) {
	mem := NewLinearMemory(2, 2)
	a, err := NewArena(mem, WithRegion(1024, 1088), WithSource(fixedSource{base: 0}))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.Allocate(256, IndexArrayBuffer); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Allocate() error = %v, want ErrOutOfMemory", err)
	}
}

func TestArenaReserve(t *testing.T) {
	a := newTestArena(t)

	base, err := a.Reserve(40)
	if err != nil {
		t.Fatal(err)
	}
	if base%PayloadAlign != 0 {
		t.Errorf("Reserve() = %#x, not aligned", base)
	}
	p, err := a.Allocate(4, IndexString)
	if err != nil {
		t.Fatal(err)
	}
	if uint32(p)-HeaderSize < base+40 {
		t.Errorf("allocation at %#x overlaps reserved region [%#x, %#x)", uint32(p), base, base+40)
	}
}

func TestArenaUnknownIndex(t *testing.T) {
	a := newTestArena(t)

	_, err := a.Allocate(4, TypeIndex(999))
	if !errors.Is(err, ErrTagMismatch) {
		t.Errorf("Allocate() error = %v, want ErrTagMismatch", err)
	}
}

func TestNewArenaUnsupportedVersion(t *testing.T) {
	_, err := NewArena(NewLinearMemory(1, 0), WithVersion(Version{0, 0, 4}))
	var vm *VersionMismatchError
	if !errors.As(err, &vm) {
		t.Fatalf("NewArena() error = %v, want *VersionMismatchError", err)
	}
	if vm.Version != (Version{0, 0, 4}) {
		t.Errorf("Version = %v, want 0.0.4", vm.Version)
	}
}
