package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/atmx/vault-engine/internal/cpmm"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
)

// AddLiquidity pulls amountA and amountB from caller into custody and mints
// LP shares against the pool.
//
// Snapshot: free reserves and free LP supply are read once, on entry, and
// the mint is priced from that snapshot. A zero mint is therefore rejected
// before any transfer. Reserves may move while the pulls are suspended; the
// commit adds the deposits to whatever the reserves are at that point.
// If the B pull fails after A has settled, A is refunded.
func (e *Engine) AddLiquidity(ctx context.Context, caller model.Account, amountA, amountB num.Nat) (minted num.Nat, err error) {
	defer e.observe(model.KindAddLiquidity, time.Now(), &err)

	if amountA.IsZero() || amountB.IsZero() {
		return num.Zero, fmt.Errorf("%w: both amounts must be positive", ErrInvalidArgument)
	}

	e.mu.Lock()
	ra := free(e.reserveA, e.pendingA)
	rb := free(e.reserveB, e.pendingB)
	supply := free(e.totalLP, e.lpHeldTotal)
	e.mu.Unlock()

	minted, err = cpmm.Mint(amountA, amountB, ra, rb, supply)
	if err != nil {
		return num.Zero, err
	}

	idxA, err := e.pull(ctx, e.cfg.AssetA, caller, e.cfg.Custody, amountA)
	if err != nil {
		return num.Zero, fmt.Errorf("add liquidity: pull %s: %w", e.cfg.AssetA, err)
	}
	idxB, err := e.pull(ctx, e.cfg.AssetB, caller, e.cfg.Custody, amountB)
	if err != nil {
		e.refund(ctx, model.KindAddLiquidity, caller, e.cfg.AssetA, amountA, err)
		return num.Zero, fmt.Errorf("add liquidity: pull %s: %w", e.cfg.AssetB, err)
	}

	e.mu.Lock()
	e.reserveA = e.reserveA.Add(amountA)
	e.reserveB = e.reserveB.Add(amountB)
	e.totalLP = e.totalLP.Add(minted)
	addTo(e.lp, caller, minted)
	state := e.poolStateLocked()
	e.mu.Unlock()

	e.commit(ctx, &model.Entry{
		Kind:      model.KindAddLiquidity,
		Account:   caller,
		AssetIn:   e.cfg.AssetA,
		AmountIn:  amountA,
		AssetOut:  e.cfg.AssetB,
		AmountOut: amountB,
		Shares:    minted,
		Receipts:  []model.BlockIndex{idxA, idxB},
	}, &state)
	return minted, nil
}

// RemoveLiquidity burns lpAmount of caller's shares and pushes the
// proportional share of both reserves to caller.
//
// Snapshot: the payout is priced from free reserves and free supply before
// the first push. The shares and both payouts are held for the duration of
// the pushes so that interleaved operations neither spend the shares again
// nor price against reserves that are already promised. State changes only
// when both pushes settle. If A settles and B faults, no state changes and
// the settled A payout is recorded as stranded for an operator.
func (e *Engine) RemoveLiquidity(ctx context.Context, caller model.Account, lpAmount num.Nat) (outA, outB num.Nat, err error) {
	defer e.observe(model.KindRemoveLiquidity, time.Now(), &err)

	if lpAmount.IsZero() {
		return num.Zero, num.Zero, fmt.Errorf("%w: LP amount must be positive", ErrInvalidArgument)
	}

	e.mu.Lock()
	owned := free(e.lp[caller], e.lpHeld[caller])
	if owned.LessThan(lpAmount) {
		e.mu.Unlock()
		return num.Zero, num.Zero, fmt.Errorf("%w: available %s, requested %s", ErrInsufficientShares, owned, lpAmount)
	}
	freeSupply := free(e.totalLP, e.lpHeldTotal)
	// An in-flight swap credits its input to the reserves when it settles.
	// Burning the last free shares first would leave that input in a pool
	// with no supply.
	if e.swapsInFlight > 0 && lpAmount.Equal(freeSupply) {
		e.mu.Unlock()
		return num.Zero, num.Zero, ErrPoolBusy
	}
	outA, outB, err = cpmm.Redeem(lpAmount,
		free(e.reserveA, e.pendingA),
		free(e.reserveB, e.pendingB),
		freeSupply)
	if err != nil {
		e.mu.Unlock()
		return num.Zero, num.Zero, err
	}
	addTo(e.lpHeld, caller, lpAmount)
	e.lpHeldTotal = e.lpHeldTotal.Add(lpAmount)
	e.pendingA = e.pendingA.Add(outA)
	e.pendingB = e.pendingB.Add(outB)
	e.mu.Unlock()

	idxA, errA := e.push(ctx, e.cfg.AssetA, caller, outA)
	var idxB model.BlockIndex
	var errB error
	if errA == nil {
		idxB, errB = e.push(ctx, e.cfg.AssetB, caller, outB)
	}

	e.mu.Lock()
	subFrom(e.lpHeld, caller, lpAmount)
	e.lpHeldTotal = e.lpHeldTotal.Sub(lpAmount)
	e.pendingA = e.pendingA.Sub(outA)
	e.pendingB = e.pendingB.Sub(outB)
	settled := errA == nil && errB == nil
	if settled {
		e.reserveA = e.reserveA.Sub(outA)
		e.reserveB = e.reserveB.Sub(outB)
		e.totalLP = e.totalLP.Sub(lpAmount)
		e.lp[caller] = e.lp[caller].Sub(lpAmount)
	}
	state := e.poolStateLocked()
	e.mu.Unlock()

	switch {
	case errA != nil:
		return num.Zero, num.Zero, fmt.Errorf("remove liquidity: push %s: %w", e.cfg.AssetA, errA)
	case errB != nil:
		e.strand(ctx, &model.StrandedFunds{
			Operation: model.KindRemoveLiquidity,
			Reason:    model.StrandedUnsettledPayout,
			Account:   caller,
			Asset:     e.cfg.AssetA,
			Amount:    outA,
			Detail: fmt.Sprintf("paid %s %s (block %d) but push of %s %s failed: %v; %s LP shares not burned",
				outA, e.cfg.AssetA, idxA, outB, e.cfg.AssetB, errB, lpAmount),
			Receipt: idxA,
		})
		return num.Zero, num.Zero, fmt.Errorf("remove liquidity: push %s: %w", e.cfg.AssetB, errB)
	}

	e.commit(ctx, &model.Entry{
		Kind:      model.KindRemoveLiquidity,
		Account:   caller,
		AssetOut:  e.cfg.AssetA,
		AmountOut: outA,
		AssetIn:   e.cfg.AssetB, // second payout leg
		AmountIn:  outB,
		Shares:    lpAmount,
		Receipts:  []model.BlockIndex{idxA, idxB},
	}, &state)
	return outA, outB, nil
}

// Swap pulls amountIn of assetIn from caller and pushes the constant-product
// output of the other asset back, provided it is at least minOut.
//
// Snapshot: reserves are read before the pull only for a pre-check, so a
// swap that cannot succeed fails without moving funds. Re-read: the output
// is priced again from the reserves current after the pull, since other
// swaps may have moved the price meanwhile. If that second pricing fails or
// the outbound push faults, amountIn is refunded. The output is held as a
// pending payout until the push settles.
func (e *Engine) Swap(ctx context.Context, caller model.Account, assetIn model.Asset, amountIn, minOut num.Nat) (out num.Nat, err error) {
	defer e.observe(model.KindSwap, time.Now(), &err)

	assetOut, ok := e.counterpart(assetIn)
	if !ok {
		return num.Zero, fmt.Errorf("%w: %q", ErrInvalidAsset, assetIn)
	}
	if amountIn.IsZero() {
		return num.Zero, fmt.Errorf("%w: swap amount must be positive", ErrInvalidArgument)
	}

	e.mu.Lock()
	_, err = e.priceSwapLocked(assetIn, amountIn, minOut)
	e.mu.Unlock()
	if err != nil {
		return num.Zero, err
	}

	idxIn, err := e.pull(ctx, assetIn, caller, e.cfg.Custody, amountIn)
	if err != nil {
		return num.Zero, fmt.Errorf("swap: pull %s: %w", assetIn, err)
	}

	e.mu.Lock()
	out, err = e.priceSwapLocked(assetIn, amountIn, minOut)
	if err == nil {
		_, _, _, pendingOut := e.sides(assetIn)
		*pendingOut = pendingOut.Add(out)
		e.swapsInFlight++
	}
	e.mu.Unlock()
	if err != nil {
		e.refund(ctx, model.KindSwap, caller, assetIn, amountIn, err)
		return num.Zero, err
	}

	idxOut, err := e.push(ctx, assetOut, caller, out)

	e.mu.Lock()
	reserveIn, _, reserveOut, pendingOut := e.sides(assetIn)
	*pendingOut = pendingOut.Sub(out)
	e.swapsInFlight--
	if err == nil {
		*reserveIn = reserveIn.Add(amountIn)
		*reserveOut = reserveOut.Sub(out)
	}
	state := e.poolStateLocked()
	e.mu.Unlock()

	if err != nil {
		e.refund(ctx, model.KindSwap, caller, assetIn, amountIn, err)
		return num.Zero, fmt.Errorf("swap: push %s: %w", assetOut, err)
	}

	metrics.SwapVolume.WithLabelValues(string(assetIn)).Add(amountIn.Float64())
	e.commit(ctx, &model.Entry{
		Kind:      model.KindSwap,
		Account:   caller,
		AssetIn:   assetIn,
		AmountIn:  amountIn,
		AssetOut:  assetOut,
		AmountOut: out,
		Receipts:  []model.BlockIndex{idxIn, idxOut},
	}, &state)
	return out, nil
}

// priceSwapLocked prices a swap against the current free reserves and
// applies the slippage floor.
func (e *Engine) priceSwapLocked(assetIn model.Asset, amountIn, minOut num.Nat) (num.Nat, error) {
	reserveIn, pendingIn, reserveOut, pendingOut := e.sides(assetIn)
	out, err := cpmm.AmountOut(amountIn, free(*reserveIn, *pendingIn), free(*reserveOut, *pendingOut))
	if err != nil {
		return num.Zero, err
	}
	if out.LessThan(minOut) {
		return num.Zero, fmt.Errorf("%w: output %s below minimum %s", ErrSlippageExceeded, out, minOut)
	}
	return out, nil
}

// --- Queries ---

// Reserves returns the current reserves of asset A and asset B.
func (e *Engine) Reserves() (num.Nat, num.Nat) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reserveA, e.reserveB
}

// LPBalance returns acct's LP shares, 0 if none.
func (e *Engine) LPBalance(acct model.Account) num.Nat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lp[acct]
}

// TotalLP returns the outstanding LP supply.
func (e *Engine) TotalLP() num.Nat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalLP
}

// Pool returns a snapshot of the pool with spot prices.
func (e *Engine) Pool() model.PoolState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.poolStateLocked()
}

// Quote prices a hypothetical swap against the current free reserves
// without moving funds.
func (e *Engine) Quote(assetIn model.Asset, amountIn num.Nat) (cpmm.Quote, error) {
	if _, ok := e.counterpart(assetIn); !ok {
		return cpmm.Quote{}, fmt.Errorf("%w: %q", ErrInvalidAsset, assetIn)
	}
	if amountIn.IsZero() {
		return cpmm.Quote{}, fmt.Errorf("%w: quote amount must be positive", ErrInvalidArgument)
	}
	e.mu.Lock()
	reserveIn, pendingIn, reserveOut, pendingOut := e.sides(assetIn)
	rin, rout := free(*reserveIn, *pendingIn), free(*reserveOut, *pendingOut)
	e.mu.Unlock()
	return cpmm.QuoteSwap(amountIn, rin, rout)
}

// CheckInvariants verifies the ledger's internal consistency: LP shares sum
// to the supply, reserves are both zero or both positive exactly when the
// supply is, and no hold exceeds what it encumbers.
func (e *Engine) CheckInvariants() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sum := num.Zero
	for _, v := range e.lp {
		sum = sum.Add(v)
	}
	if !sum.Equal(e.totalLP) {
		return fmt.Errorf("%w: LP balances sum to %s, supply is %s", ErrInvariant, sum, e.totalLP)
	}
	if e.totalLP.IsZero() != e.reserveA.IsZero() || e.totalLP.IsZero() != e.reserveB.IsZero() {
		return fmt.Errorf("%w: supply %s with reserves %s/%s", ErrInvariant, e.totalLP, e.reserveA, e.reserveB)
	}
	if e.reserveA.LessThan(e.pendingA) || e.reserveB.LessThan(e.pendingB) {
		return fmt.Errorf("%w: pending payouts exceed reserves", ErrInvariant)
	}
	if e.totalLP.LessThan(e.lpHeldTotal) {
		return fmt.Errorf("%w: held LP exceeds supply", ErrInvariant)
	}
	for acct, held := range e.vaultHeld {
		if e.vault[acct].LessThan(held) {
			return fmt.Errorf("%w: withdrawal hold for %s exceeds balance", ErrInvariant, acct)
		}
	}
	for acct, held := range e.lpHeld {
		if e.lp[acct].LessThan(held) {
			return fmt.Errorf("%w: LP hold for %s exceeds shares", ErrInvariant, acct)
		}
	}
	return nil
}
