package ethabi

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

func words(ws ...string) []byte {
	var sb strings.Builder
	for _, w := range ws {
		sb.WriteString(strings.Repeat("0", 64-len(w)) + w)
	}
	b, _ := hex.DecodeString(sb.String())
	return b
}

var tokenComparer = cmp.Comparer(graph.TokensEqual)

func TestParseType(t *testing.T) {
	tests := []string{
		"address",
		"uint256",
		"int8",
		"bytes32",
		"bytes",
		"string",
		"uint256[]",
		"address[3]",
		"(address,uint256)",
		"(string,(bool,bytes4)[])[2]",
	}
	for _, s := range tests {
		typ, err := ParseType(s)
		if err != nil {
			t.Errorf("ParseType(%q) failed: %v", s, err)
			continue
		}
		if typ.String() != s {
			t.Errorf("ParseType(%q).String() = %q", s, typ.String())
		}
	}

	if typ, err := ParseType("tuple(uint,bool)"); err != nil || typ.String() != "(uint256,bool)" {
		t.Errorf("ParseType(tuple(uint,bool)) = %v, %v", typ, err)
	}

	for _, bad := range []string{"uint7", "bytes33", "foo", "(address", "uint256[x]", "address,"} {
		if _, err := ParseType(bad); err == nil {
			t.Errorf("ParseType(%q) succeeded", bad)
		}
	}
}

func TestEncodeStatic(t *testing.T) {
	addr := graph.MustParseAddress("0x00000000000000000000000000000000000000ff")
	got, err := Encode(graph.TupleToken{
		graph.AddressToken(addr),
		graph.UintToken{Int: big.NewInt(1)},
		graph.IntToken{Int: big.NewInt(-1)},
		graph.BoolToken(true),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := words("ff", "1", strings.Repeat("f", 64), "1")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Encode mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDynamic(t *testing.T) {
	got, err := Encode(graph.TupleToken{
		graph.UintToken{Int: big.NewInt(7)},
		graph.StringToken("hi"),
	})
	if err != nil {
		t.Fatal(err)
	}
	// The tuple itself is dynamic, so it sits behind an offset.
	want := words("20", "7", "40", "2", "6869"+strings.Repeat("0", 60))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Encode mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		types string
		token graph.Token
	}{
		{"uint256", graph.UintToken{Int: big.NewInt(42)}},
		{"int64", graph.IntToken{Int: big.NewInt(-42)}},
		{"bytes4", graph.FixedBytesToken{1, 2, 3, 4}},
		{"bytes", graph.BytesToken(make([]byte, 40))},
		{"string", graph.StringToken("transfer")},
		{"uint8[]", graph.ArrayToken{graph.UintToken{Int: big.NewInt(1)}, graph.UintToken{Int: big.NewInt(2)}}},
		{"string[2]", graph.FixedArrayToken{graph.StringToken("a"), graph.StringToken("bc")}},
		{"(address,string[],bool)", graph.TupleToken{
			graph.AddressToken(graph.MustParseAddress("0x1111111111111111111111111111111111111111")),
			graph.ArrayToken{graph.StringToken("x")},
			graph.BoolToken(false),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.types, func(t *testing.T) {
			data, err := Encode(tt.token)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(tt.types, data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if diff := cmp.Diff(tt.token, got, tokenComparer); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeShortData(t *testing.T) {
	if _, err := Decode("uint256", make([]byte, 31)); !errors.Is(err, ErrInvalidData) {
		t.Errorf("Decode of short word = %v, want ErrInvalidData", err)
	}
	if _, err := Decode("bytes", words("20", "ff")); !errors.Is(err, ErrInvalidData) {
		t.Errorf("Decode of truncated bytes = %v, want ErrInvalidData", err)
	}
}

func TestDecodeNarrowIntegers(t *testing.T) {
	got, err := Decode("(uint8,int16,uint24)", words("ff", strings.Repeat("f", 64), "10000"))
	if err != nil {
		t.Fatal(err)
	}
	want := graph.TupleToken{
		graph.UintToken{Int: big.NewInt(255)},
		graph.IntToken{Int: big.NewInt(-1)},
		graph.UintToken{Int: big.NewInt(0x10000)},
	}
	if diff := cmp.Diff(want, got, tokenComparer); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		token graph.Token
		want  string
	}{
		{graph.UintToken{Int: big.NewInt(1)}, "uint256"},
		{graph.IntToken{Int: big.NewInt(-1)}, "int256"},
		{graph.FixedBytesToken{1, 2}, "bytes2"},
		{graph.ArrayToken{}, "uint256[]"},
		{graph.FixedArrayToken{graph.StringToken("a"), graph.StringToken("b")}, "string[2]"},
		{graph.TupleToken{graph.BoolToken(true), graph.ArrayToken{graph.BytesToken{1}}}, "(bool,bytes[])"},
	}
	for _, tt := range tests {
		got, err := TypeOf(tt.token)
		if err != nil {
			t.Errorf("TypeOf(%s) failed: %v", tt.want, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("TypeOf() = %s, want %s", got, tt.want)
		}
	}

	for _, bad := range []graph.Token{graph.FixedBytesToken{}, graph.FixedArrayToken{}} {
		if _, err := TypeOf(bad); err == nil {
			t.Errorf("TypeOf(%T) succeeded", bad)
		}
	}
}

func TestEncodeMixedArray(t *testing.T) {
	_, err := Encode(graph.ArrayToken{graph.UintToken{Int: big.NewInt(1)}, graph.StringToken("x")})
	if err == nil || !strings.Contains(err.Error(), "[1]") {
		t.Errorf("Encode of a mixed array = %v, want an error at [1]", err)
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	big257 := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := Encode(graph.UintToken{Int: big257}); err == nil {
		t.Error("Encode accepted a 257 bit uint")
	}
	if _, err := Encode(graph.UintToken{Int: big.NewInt(-1)}); err == nil {
		t.Error("Encode accepted a negative uint")
	}
}
