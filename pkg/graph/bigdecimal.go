package graph

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// DivisionPrecision is the number of significant digits kept by Quo.
const DivisionPrecision = 34

// Exponent range of a normalized BigDecimal, as enforced by graph-node.
const (
	MinExp = -6143
	MaxExp = 6144
)

var (
	// ErrDivisionByZero is returned by Quo and by integer division helpers.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrExponentRange is returned for decimals whose normalized exponent lies
	// outside [MinExp, MaxExp].
	ErrExponentRange = errors.New("big decimal exponent out of range")
)

var (
	bigTen  = big.NewInt(10)
	bigZero = new(big.Int)
)

// BigDecimal is an arbitrary precision decimal Digits * 10^Exp. The zero value
// is 0.
type BigDecimal struct {
	Digits *big.Int
	Exp    int64
}

// NewBigDecimal returns digits * 10^exp, normalized.
func NewBigDecimal(digits *big.Int, exp int64) BigDecimal {
	return BigDecimal{Digits: new(big.Int).Set(digits), Exp: exp}.Normalize()
}

// BigDecimalFromInt returns the decimal value of x.
func BigDecimalFromInt(x *big.Int) BigDecimal {
	return NewBigDecimal(x, 0)
}

// ParseBigDecimal parses plain or scientific decimal notation, such as
// "-12.5", "1e18" or "3.2E-4".
func ParseBigDecimal(s string) (BigDecimal, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return BigDecimal{}, fmt.Errorf("parse big decimal %q: empty", s)
	}

	var exp int64
	if i := strings.IndexAny(in, "eE"); i >= 0 {
		e, err := strconv.ParseInt(in[i+1:], 10, 64)
		if err != nil {
			return BigDecimal{}, fmt.Errorf("parse big decimal %q: %w", s, err)
		}
		// Fraction digits and trailing zeros move the exponent by at most
		// len(in), so anything further out can never normalize into range.
		slack := int64(len(in))
		if e < MinExp-slack || e > MaxExp+slack {
			return BigDecimal{}, fmt.Errorf("parse big decimal %q: %w", s, ErrExponentRange)
		}
		exp = e
		in = in[:i]
	}

	mantissa := in
	if i := strings.IndexByte(in, '.'); i >= 0 {
		frac := in[i+1:]
		if strings.ContainsAny(frac, "+-") {
			return BigDecimal{}, fmt.Errorf("parse big decimal %q: misplaced sign", s)
		}
		mantissa = in[:i] + frac
		exp -= int64(len(frac))
	}
	if mantissa == "" || mantissa == "-" || mantissa == "+" {
		return BigDecimal{}, fmt.Errorf("parse big decimal %q: no digits", s)
	}

	digits, ok := new(big.Int).SetString(mantissa, 10)
	if !ok {
		return BigDecimal{}, fmt.Errorf("parse big decimal %q: invalid digits", s)
	}
	d := BigDecimal{Digits: digits, Exp: exp}.Normalize()
	if err := d.CheckRange(); err != nil {
		return BigDecimal{}, fmt.Errorf("parse big decimal %q: %w", s, err)
	}
	return d, nil
}

// MustParseBigDecimal is ParseBigDecimal for constants and tests.
func MustParseBigDecimal(s string) BigDecimal {
	d, err := ParseBigDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d BigDecimal) digits() *big.Int {
	if d.Digits == nil {
		return bigZero
	}
	return d.Digits
}

// Normalize strips trailing zero digits. Zero normalizes to exponent 0.
func (d BigDecimal) Normalize() BigDecimal {
	digits := new(big.Int).Set(d.digits())
	if digits.Sign() == 0 {
		return BigDecimal{Digits: digits}
	}
	text := digits.String()
	zeros := len(text) - len(strings.TrimRight(text, "0"))
	if zeros > 0 {
		digits.Quo(digits, pow10(int64(zeros)))
	}
	return BigDecimal{Digits: digits, Exp: d.Exp + int64(zeros)}
}

// CheckRange returns ErrExponentRange when the normalized exponent of d lies
// outside [MinExp, MaxExp]. Zero is always in range.
func (d BigDecimal) CheckRange() error {
	n := d.Normalize()
	if n.Digits.Sign() != 0 && (n.Exp < MinExp || n.Exp > MaxExp) {
		return fmt.Errorf("%w: %d", ErrExponentRange, n.Exp)
	}
	return nil
}

// Sign returns -1, 0 or 1.
func (d BigDecimal) Sign() int { return d.digits().Sign() }

// Cmp compares d and o numerically. Operands of different magnitude are
// ordered without scaling, so Cmp stays cheap for any exponent.
func (d BigDecimal) Cmp(o BigDecimal) int {
	ds, xs := d.Sign(), o.Sign()
	if ds != xs {
		if ds < xs {
			return -1
		}
		return 1
	}
	if ds == 0 {
		return 0
	}
	// magnitude lies in [10^(m-1), 10^m).
	dm, om := d.Exp+int64(numDigits(d.digits())), o.Exp+int64(numDigits(o.digits()))
	if dm != om {
		if (dm < om) == (ds > 0) {
			return -1
		}
		return 1
	}
	x, y, _ := align(d, o)
	return x.Cmp(y)
}

// Equal reports numeric equality, ignoring representation.
func (d BigDecimal) Equal(o BigDecimal) bool { return d.Cmp(o) == 0 }

// Add, Sub and Mul are exact. Their operands must be in range; the result may
// not be, and callers handing it on check it with CheckRange.
func (d BigDecimal) Add(o BigDecimal) BigDecimal {
	x, y, exp := align(d, o)
	return BigDecimal{Digits: x.Add(x, y), Exp: exp}.Normalize()
}

func (d BigDecimal) Sub(o BigDecimal) BigDecimal {
	x, y, exp := align(d, o)
	return BigDecimal{Digits: x.Sub(x, y), Exp: exp}.Normalize()
}

func (d BigDecimal) Mul(o BigDecimal) BigDecimal {
	digits := new(big.Int).Mul(d.digits(), o.digits())
	return BigDecimal{Digits: digits, Exp: d.Exp + o.Exp}.Normalize()
}

// Quo divides d by o, truncating to DivisionPrecision significant digits.
func (d BigDecimal) Quo(o BigDecimal) (BigDecimal, error) {
	if o.Sign() == 0 {
		return BigDecimal{}, ErrDivisionByZero
	}
	if d.Sign() == 0 {
		return BigDecimal{Digits: new(big.Int)}, nil
	}
	shift := int64(DivisionPrecision + numDigits(o.digits()) - numDigits(d.digits()) + 1)
	if shift < 0 {
		shift = 0
	}
	num := new(big.Int).Mul(d.digits(), pow10(shift))
	q := num.Quo(num, o.digits())
	out := BigDecimal{Digits: q, Exp: d.Exp - o.Exp - shift}
	return out.truncate(DivisionPrecision).Normalize(), nil
}

func (d BigDecimal) truncate(precision int) BigDecimal {
	n := numDigits(d.digits())
	if n <= precision {
		return d
	}
	drop := int64(n - precision)
	digits := new(big.Int).Quo(d.digits(), pow10(drop))
	return BigDecimal{Digits: digits, Exp: d.Exp + drop}
}

// String renders plain decimal notation without exponent. Decimals outside
// the exponent range render as digits followed by "E" and the exponent.
func (d BigDecimal) String() string {
	d = d.Normalize()
	if d.CheckRange() != nil {
		return d.Digits.String() + "E" + strconv.FormatInt(d.Exp, 10)
	}
	neg := d.Digits.Sign() < 0
	s := new(big.Int).Abs(d.Digits).String()

	switch {
	case d.Exp >= 0:
		s += strings.Repeat("0", int(d.Exp))
	case int64(len(s)) > -d.Exp:
		i := int64(len(s)) + d.Exp
		s = s[:i] + "." + s[i:]
	default:
		s = "0." + strings.Repeat("0", int(-d.Exp)-len(s)) + s
	}
	if neg {
		return "-" + s
	}
	return s
}

// Int returns the integer part of d, truncated toward zero. d must be in
// range.
func (d BigDecimal) Int() *big.Int {
	if d.Exp >= 0 {
		return new(big.Int).Mul(d.digits(), pow10(d.Exp))
	}
	return new(big.Int).Quo(d.digits(), pow10(-d.Exp))
}

func align(a, b BigDecimal) (x, y *big.Int, exp int64) {
	x, y = new(big.Int).Set(a.digits()), new(big.Int).Set(b.digits())
	switch {
	case a.Exp > b.Exp:
		x.Mul(x, pow10(a.Exp-b.Exp))
		return x, y, b.Exp
	case b.Exp > a.Exp:
		y.Mul(y, pow10(b.Exp-a.Exp))
		return x, y, a.Exp
	}
	return x, y, a.Exp
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(n), nil)
}

func numDigits(x *big.Int) int {
	if x.Sign() == 0 {
		return 1
	}
	return len(new(big.Int).Abs(x).String())
}
