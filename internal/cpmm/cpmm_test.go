package cpmm

import (
	"testing"

	"github.com/atmx/vault-engine/internal/num"
)

// u is a test helper for creating Nats from uint64.
func u(v uint64) num.Nat {
	return num.NewNat(v)
}

// --- Mint tests ---

func TestMint_Bootstrap(t *testing.T) {
	got, err := Mint(u(1_000_000), u(4_000_000), u(0), u(0), u(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(u(2_000_000)) {
		t.Errorf("expected 2000000 shares, got %s", got)
	}
}

func TestMint_ProportionalTakesScarcerSide(t *testing.T) {
	// Pool 1000:4000 with 2000 shares. Depositing 100 A and 800 B: A side
	// yields 200 shares, B side 400; the scarcer A contribution wins.
	got, err := Mint(u(100), u(800), u(1000), u(4000), u(2000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(u(200)) {
		t.Errorf("expected 200 shares, got %s", got)
	}
}

func TestMint_ZeroMinted(t *testing.T) {
	// sqrt(1*0) == 0
	if _, err := Mint(u(1), u(0), u(0), u(0), u(0)); err != ErrZeroLPMinted {
		t.Errorf("expected ErrZeroLPMinted, got %v", err)
	}
	// 1 * 10 / 1000 rounds to zero.
	if _, err := Mint(u(1), u(1), u(1000), u(1000), u(10)); err != ErrZeroLPMinted {
		t.Errorf("expected ErrZeroLPMinted, got %v", err)
	}
}

func TestMint_SupplyWithoutReserves(t *testing.T) {
	if _, err := Mint(u(10), u(10), u(0), u(5), u(100)); err != ErrNoLiquidity {
		t.Errorf("expected ErrNoLiquidity, got %v", err)
	}
}

// --- Redeem tests ---

func TestRedeem_Proportional(t *testing.T) {
	a, b, err := Redeem(u(500), u(1000), u(4000), u(2000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Equal(u(250)) || !b.Equal(u(1000)) {
		t.Errorf("expected (250, 1000), got (%s, %s)", a, b)
	}
}

func TestRedeem_NoSupply(t *testing.T) {
	if _, _, err := Redeem(u(1), u(10), u(10), u(0)); err != ErrNoLiquidity {
		t.Errorf("expected ErrNoLiquidity, got %v", err)
	}
}

func TestRedeem_ZeroLeg(t *testing.T) {
	// 1 * 1 / 2000 floors to 0 on the A side.
	if _, _, err := Redeem(u(1), u(1), u(1_000_000), u(2000)); err != ErrZeroAmountOut {
		t.Errorf("expected ErrZeroAmountOut, got %v", err)
	}
}

func TestRoundTrip_NeverReturnsMoreThanDeposited(t *testing.T) {
	tests := []struct {
		ra, rb, supply, a, b uint64
	}{
		{0, 0, 0, 1_000_000, 4_000_000},
		{1000, 4000, 2000, 100, 400},
		{1000, 4000, 2000, 333, 1001},
		{7919, 104729, 28800, 17, 9973},
	}
	for _, tt := range tests {
		minted, err := Mint(u(tt.a), u(tt.b), u(tt.ra), u(tt.rb), u(tt.supply))
		if err != nil {
			t.Fatalf("mint %+v: %v", tt, err)
		}
		ra := u(tt.ra).Add(u(tt.a))
		rb := u(tt.rb).Add(u(tt.b))
		supply := u(tt.supply).Add(minted)

		outA, outB, err := Redeem(minted, ra, rb, supply)
		if err != nil {
			t.Fatalf("redeem %+v: %v", tt, err)
		}
		if outA.GreaterThan(u(tt.a)) || outB.GreaterThan(u(tt.b)) {
			t.Errorf("%+v: round trip returned (%s, %s) > (%d, %d)", tt, outA, outB, tt.a, tt.b)
		}
	}
}

// --- Swap pricing tests ---

func TestAmountOut_MatchesFormula(t *testing.T) {
	// in=1000, fee -> 997; out = 1_000_000 * 997 / (1_000_000 + 997) = 996
	got, err := AmountOut(u(1000), u(1_000_000), u(1_000_000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(u(996)) {
		t.Errorf("expected 996, got %s", got)
	}
}

func TestAmountOut_NoLiquidity(t *testing.T) {
	if _, err := AmountOut(u(10), u(0), u(100)); err != ErrNoLiquidity {
		t.Errorf("expected ErrNoLiquidity, got %v", err)
	}
	if _, err := AmountOut(u(10), u(100), u(0)); err != ErrNoLiquidity {
		t.Errorf("expected ErrNoLiquidity, got %v", err)
	}
}

func TestAmountOut_DustRoundsToZero(t *testing.T) {
	// 1 * 997 / 1000 == 0 after the fee.
	if _, err := AmountOut(u(1), u(1000), u(1000)); err != ErrZeroAmountOut {
		t.Errorf("expected ErrZeroAmountOut, got %v", err)
	}
}

func TestAmountOut_NeverDrainsReserve(t *testing.T) {
	got, err := AmountOut(u(1_000_000_000_000), u(10), u(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.LessThan(u(10)) {
		t.Errorf("output %s should stay below reserve 10", got)
	}
}

func TestSwapSequence_KNonDecreasing(t *testing.T) {
	ra, rb := u(1_000_000), u(3_000_000)
	inputs := []uint64{1000, 50_000, 7, 123_456, 999, 400_000}

	for i, in := range inputs {
		kBefore := K(ra, rb)
		aToB := i%2 == 0

		var out num.Nat
		var err error
		if aToB {
			out, err = AmountOut(u(in), ra, rb)
		} else {
			out, err = AmountOut(u(in), rb, ra)
		}
		if err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
		if aToB {
			ra, rb = ra.Add(u(in)), rb.Sub(out)
		} else {
			rb, ra = rb.Add(u(in)), ra.Sub(out)
		}

		kAfter := K(ra, rb)
		if !kAfter.GreaterThan(kBefore) {
			t.Errorf("swap %d: k should strictly increase, before=%s after=%s", i, kBefore, kAfter)
		}
	}
}

// --- Quote tests ---

func TestQuoteSwap(t *testing.T) {
	q, err := QuoteSwap(u(1000), u(1_000_000), u(2_000_000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Fee.Equal(u(3)) {
		t.Errorf("expected fee 3, got %s", q.Fee)
	}
	if !q.SpotPrice.Equal(u(2).Decimal()) {
		t.Errorf("expected spot price 2, got %s", q.SpotPrice)
	}
	if !q.FillPrice.LessThan(q.SpotPrice) {
		t.Errorf("fill %s should be below spot %s", q.FillPrice, q.SpotPrice)
	}
	if !q.PriceImpact.IsPositive() {
		t.Errorf("price impact should be positive, got %s", q.PriceImpact)
	}
}

func TestSpotPrice_EmptyPool(t *testing.T) {
	if p := SpotPrice(u(0), u(0)); !p.IsZero() {
		t.Errorf("expected 0 for empty pool, got %s", p)
	}
}
