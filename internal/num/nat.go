// Package num provides the arbitrary-precision unsigned integer used for every
// token amount, reserve and LP-share quantity in the vault engine.
//
// Amounts never use fixed-width integers: a Nat cannot overflow, and it can
// never become negative. Division is floor division.
package num

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// ErrInvalidNat is returned when text does not encode a non-negative integer.
var ErrInvalidNat = errors.New("num: not a non-negative integer")

// Nat is an immutable non-negative integer. The zero value is 0.
type Nat struct {
	v *big.Int
}

var (
	Zero = Nat{}
	One  = NewNat(1)
	two  = big.NewInt(2)
)

// NewNat returns n as a Nat.
func NewNat(n uint64) Nat {
	return Nat{v: new(big.Int).SetUint64(n)}
}

// FromBig copies b into a Nat. Negative values are rejected.
func FromBig(b *big.Int) (Nat, error) {
	if b == nil {
		return Zero, nil
	}
	if b.Sign() < 0 {
		return Zero, fmt.Errorf("%w: %s", ErrInvalidNat, b.String())
	}
	return Nat{v: new(big.Int).Set(b)}, nil
}

// ParseNat parses a base-10 digit string.
func ParseNat(s string) (Nat, error) {
	if s == "" {
		return Zero, fmt.Errorf("%w: empty", ErrInvalidNat)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return Zero, fmt.Errorf("%w: %q", ErrInvalidNat, s)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidNat, s)
	}
	return Nat{v: v}, nil
}

// MustParse is ParseNat for constants and tests.
func MustParse(s string) Nat {
	n, err := ParseNat(s)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Nat) big() *big.Int {
	if n.v == nil {
		return new(big.Int)
	}
	return n.v
}

// BigInt returns a copy of the underlying value.
func (n Nat) BigInt() *big.Int {
	return new(big.Int).Set(n.big())
}

func (n Nat) Add(m Nat) Nat {
	return Nat{v: new(big.Int).Add(n.big(), m.big())}
}

func (n Nat) Mul(m Nat) Nat {
	return Nat{v: new(big.Int).Mul(n.big(), m.big())}
}

// Div is floor division. It panics if m is zero; callers guard divisors.
func (n Nat) Div(m Nat) Nat {
	if m.IsZero() {
		panic("num: division by zero")
	}
	return Nat{v: new(big.Int).Quo(n.big(), m.big())}
}

// CheckedSub returns n-m, or ok=false when m > n.
func (n Nat) CheckedSub(m Nat) (Nat, bool) {
	if n.LessThan(m) {
		return Zero, false
	}
	return Nat{v: new(big.Int).Sub(n.big(), m.big())}, true
}

// Sub returns n-m and panics on underflow. Use it only where m <= n is an
// invariant already established under the caller's lock.
func (n Nat) Sub(m Nat) Nat {
	d, ok := n.CheckedSub(m)
	if !ok {
		panic(fmt.Sprintf("num: underflow %s - %s", n, m))
	}
	return d
}

func (n Nat) Cmp(m Nat) int {
	return n.big().Cmp(m.big())
}

func (n Nat) Equal(m Nat) bool { return n.Cmp(m) == 0 }
func (n Nat) LessThan(m Nat) bool { return n.Cmp(m) < 0 }
func (n Nat) GreaterThan(m Nat) bool { return n.Cmp(m) > 0 }
func (n Nat) IsZero() bool { return n.v == nil || n.v.Sign() == 0 }
func (n Nat) IsPositive() bool { return !n.IsZero() }

// Min returns the smaller of a and b.
func Min(a, b Nat) Nat {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sqrt returns the largest r such that r*r <= n.
//
// Binary search over [1, n/2+1]; 0 and 1 are their own roots.
func Sqrt(n Nat) Nat {
	x := n.big()
	if x.Cmp(big.NewInt(1)) <= 0 {
		return Nat{v: new(big.Int).Set(x)}
	}

	low := big.NewInt(1)
	high := new(big.Int).Quo(x, two)
	high.Add(high, big.NewInt(1))

	mid := new(big.Int)
	sq := new(big.Int)
	for low.Cmp(high) < 0 {
		// mid = (low+high)/2 + 1, biased up so low always advances.
		mid.Add(low, high)
		mid.Quo(mid, two)
		mid.Add(mid, big.NewInt(1))

		sq.Mul(mid, mid)
		if sq.Cmp(x) > 0 {
			high.Sub(mid, big.NewInt(1))
		} else {
			low.Set(mid)
		}
	}
	return Nat{v: low}
}

func (n Nat) String() string {
	return n.big().String()
}

// Float64 returns the nearest float64; for metrics only.
func (n Nat) Float64() float64 {
	f, _ := n.Decimal().Float64()
	return f
}

// Decimal converts n for NUMERIC columns and price math.
func (n Nat) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(n.big(), 0)
}

// FromDecimal converts an integral, non-negative decimal back into a Nat.
func FromDecimal(d decimal.Decimal) (Nat, error) {
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return Zero, fmt.Errorf("%w: %s", ErrInvalidNat, d.String())
	}
	return FromBig(d.BigInt())
}

// MarshalJSON encodes n as a decimal string so large values survive
// JavaScript clients.
func (n Nat) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(n.String())), nil
}

// UnmarshalJSON accepts either a quoted digit string or a bare JSON integer.
func (n *Nat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*n = Zero
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidNat, s)
		}
		s = unq
	}
	parsed, err := ParseNat(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
