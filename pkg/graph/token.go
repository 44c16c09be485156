package graph

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
)

// TokenKind is the discriminant of an ethereum ABI value.
type TokenKind uint32

const (
	TokenAddress TokenKind = iota
	TokenFixedBytes
	TokenBytes
	TokenInt
	TokenUint
	TokenBool
	TokenString
	TokenFixedArray
	TokenArray
	TokenTuple
)

var tokenKindNames = [...]string{
	"address", "fixedBytes", "bytes", "int", "uint", "bool", "string", "fixedArray", "array", "tuple",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", uint32(k))
}

// Token is a decoded ethereum ABI value. The set of implementations is closed.
type Token interface {
	TokenKind() TokenKind
	isToken()
}

type (
	AddressToken    Address
	FixedBytesToken []byte
	BytesToken      []byte
	IntToken        struct{ Int *big.Int }
	UintToken       struct{ Int *big.Int }
	BoolToken       bool
	StringToken     string
	FixedArrayToken []Token
	ArrayToken      []Token
	TupleToken      []Token
)

func (AddressToken) TokenKind() TokenKind    { return TokenAddress }
func (FixedBytesToken) TokenKind() TokenKind { return TokenFixedBytes }
func (BytesToken) TokenKind() TokenKind      { return TokenBytes }
func (IntToken) TokenKind() TokenKind        { return TokenInt }
func (UintToken) TokenKind() TokenKind       { return TokenUint }
func (BoolToken) TokenKind() TokenKind       { return TokenBool }
func (StringToken) TokenKind() TokenKind     { return TokenString }
func (FixedArrayToken) TokenKind() TokenKind { return TokenFixedArray }
func (ArrayToken) TokenKind() TokenKind      { return TokenArray }
func (TupleToken) TokenKind() TokenKind      { return TokenTuple }

func (AddressToken) isToken()    {}
func (FixedBytesToken) isToken() {}
func (BytesToken) isToken()      {}
func (IntToken) isToken()        {}
func (UintToken) isToken()       {}
func (BoolToken) isToken()       {}
func (StringToken) isToken()     {}
func (FixedArrayToken) isToken() {}
func (ArrayToken) isToken()      {}
func (TupleToken) isToken()      {}

// TokensEqual compares two tokens structurally.
func TokensEqual(a, b Token) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.TokenKind() != b.TokenKind() {
		return false
	}
	switch x := a.(type) {
	case FixedBytesToken:
		return bytes.Equal(x, b.(FixedBytesToken))
	case BytesToken:
		return bytes.Equal(x, b.(BytesToken))
	case IntToken:
		return x.Int.Cmp(b.(IntToken).Int) == 0
	case UintToken:
		return x.Int.Cmp(b.(UintToken).Int) == 0
	case FixedArrayToken:
		return tokenListsEqual(x, b.(FixedArrayToken))
	case ArrayToken:
		return tokenListsEqual(x, b.(ArrayToken))
	case TupleToken:
		return tokenListsEqual(x, b.(TupleToken))
	default:
		return a == b
	}
}

func tokenListsEqual(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !TokensEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// FormatToken renders t for logs and test failures.
func FormatToken(t Token) string {
	switch x := t.(type) {
	case nil:
		return "<nil>"
	case AddressToken:
		return Address(x).Hex()
	case FixedBytesToken:
		return fmt.Sprintf("0x%x", []byte(x))
	case BytesToken:
		return fmt.Sprintf("0x%x", []byte(x))
	case IntToken:
		return x.Int.String()
	case UintToken:
		return x.Int.String()
	case StringToken:
		return fmt.Sprintf("%q", string(x))
	case FixedArrayToken:
		return formatTokens("[", x, "]")
	case ArrayToken:
		return formatTokens("[", x, "]")
	case TupleToken:
		return formatTokens("(", x, ")")
	default:
		return fmt.Sprintf("%v", x)
	}
}

func formatTokens(open string, ts []Token, close string) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = FormatToken(t)
	}
	return open + strings.Join(parts, ", ") + close
}
