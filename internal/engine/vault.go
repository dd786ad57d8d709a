package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
)

// Deposit pulls amount of the vault asset from caller into custody, then
// credits caller's vault balance.
//
// Nothing is read before the pull. The credit is an increment applied after
// it, so deposits interleaved with any other operation compose.
func (e *Engine) Deposit(ctx context.Context, caller model.Account, amount num.Nat) (idx model.BlockIndex, err error) {
	defer e.observe(model.KindDeposit, time.Now(), &err)

	if amount.IsZero() {
		return 0, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidArgument)
	}

	idx, err = e.pull(ctx, e.cfg.AssetA, caller, e.cfg.Custody, amount)
	if err != nil {
		return 0, fmt.Errorf("deposit: %w", err)
	}

	e.mu.Lock()
	addTo(e.vault, caller, amount)
	e.mu.Unlock()

	e.commit(ctx, &model.Entry{
		Kind:     model.KindDeposit,
		Account:  caller,
		AssetIn:  e.cfg.AssetA,
		AmountIn: amount,
		Receipts: []model.BlockIndex{idx},
	}, nil)
	return idx, nil
}

// Withdraw pushes amount of the vault asset from custody to `to` and debits
// caller's vault balance once the push has settled.
//
// The balance check runs against the free balance (recorded minus in-flight
// withdrawals) immediately before the push, and the amount is held for the
// duration of the call. Interleaved withdrawals therefore cannot both spend
// the same balance. The debit happens only on push success; on a fault the
// hold is released and the balance is untouched, so the call is retryable.
func (e *Engine) Withdraw(ctx context.Context, caller model.Account, amount num.Nat, to model.Account) (idx model.BlockIndex, err error) {
	defer e.observe(model.KindWithdraw, time.Now(), &err)

	if amount.IsZero() {
		return 0, fmt.Errorf("%w: withdraw amount must be positive", ErrInvalidArgument)
	}

	e.mu.Lock()
	available := free(e.vault[caller], e.vaultHeld[caller])
	if available.LessThan(amount) {
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: available %s, requested %s", ErrInsufficientBalance, available, amount)
	}
	addTo(e.vaultHeld, caller, amount)
	e.mu.Unlock()

	idx, err = e.push(ctx, e.cfg.AssetA, to, amount)

	e.mu.Lock()
	subFrom(e.vaultHeld, caller, amount)
	if err == nil {
		e.vault[caller] = e.vault[caller].Sub(amount)
	}
	e.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("withdraw: %w", err)
	}

	e.commit(ctx, &model.Entry{
		Kind:      model.KindWithdraw,
		Account:   caller,
		AssetOut:  e.cfg.AssetA,
		AmountOut: amount,
		Receipts:  []model.BlockIndex{idx},
	}, nil)
	return idx, nil
}

// Balance returns caller's recorded vault balance, 0 if none. Amounts held
// by in-flight withdrawals are still included until they settle.
func (e *Engine) Balance(acct model.Account) num.Nat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault[acct]
}

// Transfer pulls amount of the vault asset from caller directly to `to`,
// using caller's allowance. The vault ledger is not touched.
func (e *Engine) Transfer(ctx context.Context, caller model.Account, amount num.Nat, to model.Account) (idx model.BlockIndex, err error) {
	defer e.observe(model.KindTransfer, time.Now(), &err)

	if amount.IsZero() {
		return 0, fmt.Errorf("%w: transfer amount must be positive", ErrInvalidArgument)
	}

	idx, err = e.pull(ctx, e.cfg.AssetA, caller, to, amount)
	if err != nil {
		return 0, fmt.Errorf("transfer: %w", err)
	}

	e.commit(ctx, &model.Entry{
		Kind:      model.KindTransfer,
		Account:   caller,
		AssetOut:  e.cfg.AssetA,
		AmountOut: amount,
		Receipts:  []model.BlockIndex{idx},
	}, nil)
	return idx, nil
}
