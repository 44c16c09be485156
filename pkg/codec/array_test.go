package codec

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
)

func TestDecodeArrayOfThreeStrings(t *testing.T) {
	a := newArena(t, asc.Latest)

	var ptrs []asc.Ptr
	for _, s := range []string{"first", "second", "third"} {
		h, err := EncodeString(a, s)
		if err != nil {
			t.Fatal(err)
		}
		ptrs = append(ptrs, h.Ptr())
	}
	arr, err := EncodeArray(a, asc.IndexArrayString, ptrs)
	if err != nil {
		t.Fatal(err)
	}

	seq, err := DecodeStringArray(a, arr)
	if err != nil {
		t.Fatalf("DecodeStringArray() error = %v", err)
	}
	if seq.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", seq.Len())
	}

	want := []string{"first", "second", "third"}
	for pass := 0; pass < 2; pass++ {
		got, err := seq.Collect()
		if err != nil {
			t.Fatalf("pass %d: Collect() error = %v", pass, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("pass %d mismatch (-want +got):\n%s", pass, diff)
		}
	}
}

func TestSequenceIsLazy(t *testing.T) {
	a := newArena(t, asc.Latest)

	good, err := EncodeString(a, "ok")
	if err != nil {
		t.Fatal(err)
	}
	bad := rawString(t, a, 0xD800)
	arr, err := EncodeArray(a, asc.IndexArrayString, []asc.Ptr{good.Ptr(), bad.Ptr(), good.Ptr()})
	if err != nil {
		t.Fatal(err)
	}

	seq, err := DecodeStringArray(a, arr)
	if err != nil {
		t.Fatalf("DecodeStringArray() error = %v", err)
	}

	first, err := seq.At(0)
	if err != nil || first != "ok" {
		t.Fatalf("At(0) = %q, %v", first, err)
	}

	var seen []string
	for _, s := range seq.All() {
		seen = append(seen, s)
	}
	if len(seen) != 1 {
		t.Errorf("yielded %v before the failure, want one element", seen)
	}
	if !errors.Is(seq.Err(), asc.ErrEncoding) {
		t.Errorf("Err() = %v, want ErrEncoding", seq.Err())
	}

	if _, err := seq.At(3); !errors.Is(err, asc.ErrBounds) {
		t.Errorf("At(3) error = %v, want ErrBounds", err)
	}
}

func TestEncodeStringArray(t *testing.T) {
	a := newArena(t, asc.Latest)

	h, err := EncodeStringArray(a, []string{"x", "", "z"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadArray(a, h.Ptr(), asc.IndexArrayString, ReadString)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"x", "", "z"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if _, err := ReadArray(a, h.Ptr(), asc.IndexArrayEventParam, ReadString); !errors.Is(err, asc.ErrTagMismatch) {
		t.Errorf("ReadArray(wrong class) error = %v, want ErrTagMismatch", err)
	}
}

func TestArrayLengthPastBuffer(t *testing.T) {
	a := newArena(t, asc.Latest)

	h, err := EncodeStringArray(a, []string{"only"})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.WriteU32(h.Ptr(), 12, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeStringArray(a, h); !errors.Is(err, asc.ErrBounds) {
		t.Errorf("DecodeStringArray() error = %v, want ErrBounds", err)
	}
}

func TestScalarArrayRoundTrip(t *testing.T) {
	a := newArena(t, asc.Latest)

	vals := []int64{1, -2, 1 << 50}
	h, err := EncodeScalarArray(a, vals)
	if err != nil {
		t.Fatal(err)
	}
	idx, _ := a.IndexOf(h.Ptr())
	if idx != asc.IndexArrayI64 {
		t.Errorf("class = %v, want %v", idx, asc.IndexArrayI64)
	}
	got, err := DecodeScalarArray[int64](a, h)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(vals, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	empty, err := EncodeScalarArray(a, []uint8{})
	if err != nil {
		t.Fatal(err)
	}
	gotEmpty, err := DecodeScalarArray[uint8](a, empty)
	if err != nil || len(gotEmpty) != 0 {
		t.Errorf("empty array = %v, %v", gotEmpty, err)
	}
}
