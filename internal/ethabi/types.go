// Package ethabi adapts the go-ethereum ABI codec to graph tokens for the
// ethereum.encode and ethereum.decode host imports. It parses the type
// strings mappings pass, such as "(address,uint256[])", which abi.NewType
// only accepts in its JSON component form.
package ethabi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// Type is a parsed ABI parameter type.
type Type struct {
	Kind graph.TokenKind
	// Size is the bit width of int and uint, the length of fixed bytes and
	// of fixed arrays.
	Size   int
	Elem   *Type
	Fields []Type
}

// ParseType parses a type such as "uint256", "(address,bytes32[])" or
// "tuple(string,int8)[2]".
func ParseType(s string) (Type, error) {
	p := &typeParser{src: strings.TrimSpace(s)}
	t, err := p.parse()
	if err != nil {
		return Type{}, fmt.Errorf("parse ABI type %q: %w", s, err)
	}
	if p.pos != len(p.src) {
		return Type{}, fmt.Errorf("parse ABI type %q: unexpected %q", s, p.src[p.pos:])
	}
	if _, err := t.abiType(); err != nil {
		return Type{}, fmt.Errorf("parse ABI type %q: %w", s, err)
	}
	return t, nil
}

func (t Type) String() string {
	switch t.Kind {
	case graph.TokenAddress:
		return "address"
	case graph.TokenBool:
		return "bool"
	case graph.TokenString:
		return "string"
	case graph.TokenBytes:
		return "bytes"
	case graph.TokenFixedBytes:
		return "bytes" + strconv.Itoa(t.Size)
	case graph.TokenInt:
		return "int" + strconv.Itoa(t.Size)
	case graph.TokenUint:
		return "uint" + strconv.Itoa(t.Size)
	case graph.TokenArray:
		return t.Elem.String() + "[]"
	case graph.TokenFixedArray:
		return fmt.Sprintf("%s[%d]", t.Elem, t.Size)
	case graph.TokenTuple:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "(" + strings.Join(parts, ",") + ")"
	}
	return t.Kind.String()
}

// TypeOf returns the type t is encoded as when no type is declared. Integers
// are 256 bits wide and an empty array is a uint256[].
func TypeOf(t graph.Token) (Type, error) {
	switch x := t.(type) {
	case graph.AddressToken, graph.BytesToken, graph.BoolToken, graph.StringToken:
		return Type{Kind: t.TokenKind()}, nil
	case graph.FixedBytesToken:
		if len(x) < 1 || len(x) > 32 {
			return Type{}, fmt.Errorf("fixed bytes of length %d", len(x))
		}
		return Type{Kind: graph.TokenFixedBytes, Size: len(x)}, nil
	case graph.IntToken, graph.UintToken:
		return Type{Kind: t.TokenKind(), Size: 256}, nil
	case graph.ArrayToken:
		elem := Type{Kind: graph.TokenUint, Size: 256}
		if len(x) > 0 {
			var err error
			if elem, err = TypeOf(x[0]); err != nil {
				return Type{}, err
			}
		}
		return Type{Kind: graph.TokenArray, Elem: &elem}, nil
	case graph.FixedArrayToken:
		if len(x) == 0 {
			return Type{}, errors.New("empty fixed array")
		}
		elem, err := TypeOf(x[0])
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: graph.TokenFixedArray, Size: len(x), Elem: &elem}, nil
	case graph.TupleToken:
		tt := Type{Kind: graph.TokenTuple, Fields: make([]Type, len(x))}
		for i, f := range x {
			var err error
			if tt.Fields[i], err = TypeOf(f); err != nil {
				return Type{}, err
			}
		}
		return tt, nil
	}
	return Type{}, fmt.Errorf("cannot encode token %T", t)
}

// abiType builds the go-ethereum type for t. Tuple members get positional
// names since abi.NewType rejects anonymous components.
func (t Type) abiType() (abi.Type, error) {
	s, components := t.marshaling()
	return abi.NewType(s, "", components)
}

func (t Type) marshaling() (string, []abi.ArgumentMarshaling) {
	switch t.Kind {
	case graph.TokenArray:
		s, c := t.Elem.marshaling()
		return s + "[]", c
	case graph.TokenFixedArray:
		s, c := t.Elem.marshaling()
		return fmt.Sprintf("%s[%d]", s, t.Size), c
	case graph.TokenTuple:
		components := make([]abi.ArgumentMarshaling, len(t.Fields))
		for i, f := range t.Fields {
			s, c := f.marshaling()
			components[i] = abi.ArgumentMarshaling{Name: fmt.Sprintf("field%d", i), Type: s, Components: c}
		}
		return "tuple", components
	}
	return t.String(), nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) parse() (Type, error) {
	var t Type
	var err error
	if strings.HasPrefix(p.src[p.pos:], "tuple(") {
		p.pos += len("tuple")
	}
	if p.pos < len(p.src) && p.src[p.pos] == '(' {
		t, err = p.tuple()
	} else {
		t, err = p.elementary()
	}
	if err != nil {
		return Type{}, err
	}
	for p.pos < len(p.src) && p.src[p.pos] == '[' {
		end := strings.IndexByte(p.src[p.pos:], ']')
		if end < 0 {
			return Type{}, fmt.Errorf("unterminated array suffix")
		}
		size := p.src[p.pos+1 : p.pos+end]
		p.pos += end + 1
		elem := t
		if size == "" {
			t = Type{Kind: graph.TokenArray, Elem: &elem}
			continue
		}
		n, err := strconv.Atoi(size)
		if err != nil || n <= 0 {
			return Type{}, fmt.Errorf("invalid array length %q", size)
		}
		t = Type{Kind: graph.TokenFixedArray, Size: n, Elem: &elem}
	}
	return t, nil
}

func (p *typeParser) tuple() (Type, error) {
	p.pos++ // (
	t := Type{Kind: graph.TokenTuple}
	if p.pos < len(p.src) && p.src[p.pos] == ')' {
		p.pos++
		return t, nil
	}
	for {
		f, err := p.parse()
		if err != nil {
			return Type{}, err
		}
		t.Fields = append(t.Fields, f)
		if p.pos >= len(p.src) {
			return Type{}, fmt.Errorf("unterminated tuple")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return t, nil
		default:
			return Type{}, fmt.Errorf("unexpected %q in tuple", p.src[p.pos])
		}
	}
}

func (p *typeParser) elementary() (Type, error) {
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte(",)[", p.src[p.pos]) < 0 {
		p.pos++
	}
	name := p.src[start:p.pos]
	switch name {
	case "address":
		return Type{Kind: graph.TokenAddress}, nil
	case "bool":
		return Type{Kind: graph.TokenBool}, nil
	case "string":
		return Type{Kind: graph.TokenString}, nil
	case "bytes":
		return Type{Kind: graph.TokenBytes}, nil
	case "int":
		return Type{Kind: graph.TokenInt, Size: 256}, nil
	case "uint":
		return Type{Kind: graph.TokenUint, Size: 256}, nil
	}
	for prefix, kind := range map[string]graph.TokenKind{"bytes": graph.TokenFixedBytes, "uint": graph.TokenUint, "int": graph.TokenInt} {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		if kind == graph.TokenFixedBytes && (n < 1 || n > 32) {
			return Type{}, fmt.Errorf("invalid fixed bytes length %d", n)
		}
		if kind != graph.TokenFixedBytes && (n < 8 || n > 256 || n%8 != 0) {
			return Type{}, fmt.Errorf("invalid integer width %d", n)
		}
		return Type{Kind: kind, Size: n}, nil
	}
	return Type{}, fmt.Errorf("unknown type %q", name)
}
