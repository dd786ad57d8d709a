// Package cpmm implements constant-product market maker pricing for a
// two-asset reserve pool.
//
// The invariant is x * y = k. Swaps charge a 0.3% fee by scaling the input
// (amountIn * 997 / 1000) before applying the curve, so k grows with every
// trade. LP shares are minted at sqrt(a*b) for the first deposit and
// proportionally to the scarcer contribution afterwards.
//
// All quantities are num.Nat: exact, unsigned, floor division. The package is
// stateless; reserves and supply are passed in, never stored.
package cpmm

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/num"
)

var (
	// ErrNoLiquidity is returned when a reserve needed for pricing is zero.
	ErrNoLiquidity = errors.New("cpmm: pool has no liquidity")

	// ErrZeroLPMinted is returned when a deposit would mint no shares.
	ErrZeroLPMinted = errors.New("cpmm: zero LP shares minted")

	// ErrZeroAmountOut is returned when a redemption or swap rounds to nothing.
	ErrZeroAmountOut = errors.New("cpmm: zero amount out")

	// FeeNumerator / FeeDenominator is the share of the input that reaches
	// the curve (0.3% fee).
	FeeNumerator   = num.NewNat(997)
	FeeDenominator = num.NewNat(1000)

	// PriceScale is the number of decimal places for quoted prices.
	PriceScale int32 = 18
)

// Mint computes the LP shares for depositing amountA and amountB into a pool
// with the given reserves and total supply.
//
//	totalLP == 0: sqrt(amountA * amountB)
//	otherwise:    min(amountA*totalLP/reserveA, amountB*totalLP/reserveB)
func Mint(amountA, amountB, reserveA, reserveB, totalLP num.Nat) (num.Nat, error) {
	var minted num.Nat
	if totalLP.IsZero() {
		minted = num.Sqrt(amountA.Mul(amountB))
	} else {
		if reserveA.IsZero() || reserveB.IsZero() {
			return num.Zero, ErrNoLiquidity
		}
		fromA := amountA.Mul(totalLP).Div(reserveA)
		fromB := amountB.Mul(totalLP).Div(reserveB)
		minted = num.Min(fromA, fromB)
	}
	if minted.IsZero() {
		return num.Zero, ErrZeroLPMinted
	}
	return minted, nil
}

// Redeem computes the reserve amounts paid out for burning lp shares.
func Redeem(lp, reserveA, reserveB, totalLP num.Nat) (outA, outB num.Nat, err error) {
	if totalLP.IsZero() {
		return num.Zero, num.Zero, ErrNoLiquidity
	}
	outA = lp.Mul(reserveA).Div(totalLP)
	outB = lp.Mul(reserveB).Div(totalLP)
	if outA.IsZero() || outB.IsZero() {
		return num.Zero, num.Zero, ErrZeroAmountOut
	}
	return outA, outB, nil
}

// AmountOut returns the output of swapping amountIn against the pool:
//
//	inAfterFee = amountIn * 997 / 1000
//	out        = reserveOut * inAfterFee / (reserveIn + inAfterFee)
func AmountOut(amountIn, reserveIn, reserveOut num.Nat) (num.Nat, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return num.Zero, ErrNoLiquidity
	}
	inAfterFee := amountIn.Mul(FeeNumerator).Div(FeeDenominator)
	out := reserveOut.Mul(inAfterFee).Div(reserveIn.Add(inAfterFee))
	if out.IsZero() {
		return num.Zero, ErrZeroAmountOut
	}
	return out, nil
}

// SpotPrice is the marginal price of one unit of the in-asset, in units of
// the out-asset, before fees. Presentation only; never used for settlement.
func SpotPrice(reserveIn, reserveOut num.Nat) decimal.Decimal {
	if reserveIn.IsZero() {
		return decimal.Zero
	}
	return reserveOut.Decimal().DivRound(reserveIn.Decimal(), PriceScale)
}

// Quote is a read-only preview of a swap.
type Quote struct {
	AmountIn    num.Nat         `json:"amount_in"`
	AmountOut   num.Nat         `json:"amount_out"`
	Fee         num.Nat         `json:"fee"`
	SpotPrice   decimal.Decimal `json:"spot_price"`
	FillPrice   decimal.Decimal `json:"fill_price"`
	PriceImpact decimal.Decimal `json:"price_impact"` // 1 - fill/spot
}

// QuoteSwap prices a swap without executing it.
func QuoteSwap(amountIn, reserveIn, reserveOut num.Nat) (Quote, error) {
	out, err := AmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return Quote{}, err
	}
	fee := amountIn.Sub(amountIn.Mul(FeeNumerator).Div(FeeDenominator))
	spot := SpotPrice(reserveIn, reserveOut)
	fill := out.Decimal().DivRound(amountIn.Decimal(), PriceScale)

	impact := decimal.Zero
	if spot.IsPositive() {
		impact = decimal.NewFromInt(1).Sub(fill.DivRound(spot, PriceScale))
	}
	return Quote{
		AmountIn:    amountIn,
		AmountOut:   out,
		Fee:         fee,
		SpotPrice:   spot,
		FillPrice:   fill,
		PriceImpact: impact,
	}, nil
}

// K returns the pool's constant product.
func K(reserveA, reserveB num.Nat) num.Nat {
	return reserveA.Mul(reserveB)
}
