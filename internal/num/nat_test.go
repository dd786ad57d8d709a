package num

import (
	"encoding/json"
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func n(s string) Nat { return MustParse(s) }

func TestSqrt_SmallValues(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{0, 0}, {1, 1}, {2, 1}, {3, 1}, {4, 2}, {5, 2},
		{8, 2}, {9, 3}, {15, 3}, {16, 4}, {24, 4}, {25, 5},
		{99, 9}, {100, 10}, {101, 10},
	}
	for _, tt := range tests {
		got := Sqrt(NewNat(tt.in))
		if !got.Equal(NewNat(tt.want)) {
			t.Errorf("Sqrt(%d) = %s, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSqrt_BootstrapMint(t *testing.T) {
	got := Sqrt(NewNat(1_000_000).Mul(NewNat(4_000_000)))
	if !got.Equal(NewNat(2_000_000)) {
		t.Fatalf("Sqrt(4e12) = %s, want 2000000", got)
	}
}

func TestSqrt_BoundsHoldAcrossWideSample(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	check := func(x Nat) {
		r := Sqrt(x)
		r1 := r.Add(One)
		if r.Mul(r).GreaterThan(x) {
			t.Fatalf("Sqrt(%s)=%s: r*r > n", x, r)
		}
		if !x.LessThan(r1.Mul(r1)) {
			t.Fatalf("Sqrt(%s)=%s: (r+1)^2 <= n", x, r)
		}
	}

	for i := uint64(0); i < 2000; i++ {
		check(NewNat(i))
	}
	for i := 0; i < 500; i++ {
		check(NewNat(rng.Uint64()))
	}
	// Well past 64 bits.
	for i := 0; i < 100; i++ {
		b := new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), 200))
		x, _ := FromBig(b)
		check(x)
	}
}

func TestSqrt_Monotonic(t *testing.T) {
	prev := Zero
	for i := uint64(0); i < 5000; i += 7 {
		r := Sqrt(NewNat(i))
		if r.LessThan(prev) {
			t.Fatalf("Sqrt not monotonic at %d: %s < %s", i, r, prev)
		}
		prev = r
	}
}

func TestDiv_Floors(t *testing.T) {
	if got := NewNat(7).Div(NewNat(2)); !got.Equal(NewNat(3)) {
		t.Errorf("7/2 = %s, want 3", got)
	}
	if got := NewNat(1).Div(NewNat(1000)); !got.IsZero() {
		t.Errorf("1/1000 = %s, want 0", got)
	}
}

func TestDiv_ByZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on division by zero")
		}
	}()
	NewNat(1).Div(Zero)
}

func TestCheckedSub(t *testing.T) {
	if d, ok := NewNat(10).CheckedSub(NewNat(4)); !ok || !d.Equal(NewNat(6)) {
		t.Errorf("10-4 = %s ok=%v", d, ok)
	}
	if _, ok := NewNat(3).CheckedSub(NewNat(4)); ok {
		t.Error("3-4 should underflow")
	}
}

func TestImmutability(t *testing.T) {
	a := NewNat(5)
	b := a.Add(NewNat(1))
	_ = a.Mul(NewNat(100))
	if !a.Equal(NewNat(5)) || !b.Equal(NewNat(6)) {
		t.Errorf("operands mutated: a=%s b=%s", a, b)
	}
}

func TestZeroValue(t *testing.T) {
	var z Nat
	if !z.IsZero() || z.String() != "0" {
		t.Errorf("zero value = %q", z.String())
	}
	if !z.Add(NewNat(3)).Equal(NewNat(3)) {
		t.Error("zero value should behave as 0")
	}
}

func TestParseNat_Rejects(t *testing.T) {
	for _, s := range []string{"", "-1", "1.5", "abc", "+3", " 1"} {
		if _, err := ParseNat(s); !errors.Is(err, ErrInvalidNat) {
			t.Errorf("ParseNat(%q) err = %v, want ErrInvalidNat", s, err)
		}
	}
}

func TestJSON(t *testing.T) {
	huge := n("340282366920938463463374607431768211456")
	data, err := json.Marshal(struct {
		A Nat `json:"a"`
	}{huge})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":"340282366920938463463374607431768211456"}` {
		t.Errorf("unexpected encoding %s", data)
	}

	var out struct {
		A Nat `json:"a"`
		B Nat `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"12","b":34}`), &out); err != nil {
		t.Fatal(err)
	}
	if !out.A.Equal(NewNat(12)) || !out.B.Equal(NewNat(34)) {
		t.Errorf("decoded a=%s b=%s", out.A, out.B)
	}

	if err := json.Unmarshal([]byte(`{"a":"-5"}`), &out); err == nil {
		t.Error("negative amount should be rejected")
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	x := n("123456789012345678901234567890")
	back, err := FromDecimal(x.Decimal())
	if err != nil || !back.Equal(x) {
		t.Fatalf("round trip = %s, %v", back, err)
	}
	if _, err := FromDecimal(decimal.RequireFromString("1.5")); err == nil {
		t.Error("fractional decimal should be rejected")
	}
}
