// Package model defines the core domain types shared across the vault engine.
// All token quantities are num.Nat values.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/num"
)

// Asset identifies a token by the external ledger that holds it.
type Asset string

// BlockIndex is the receipt of a settled transfer: the external ledger's
// monotonically increasing sequence number for it.
type BlockIndex uint64

// Entry kinds recorded in the activity journal.
const (
	KindDeposit         = "deposit"
	KindWithdraw        = "withdraw"
	KindTransfer        = "transfer"
	KindAddLiquidity    = "add_liquidity"
	KindRemoveLiquidity = "remove_liquidity"
	KindSwap            = "swap"
	KindRefund          = "refund"
)

// Entry is an immutable record of a settled operation.
// Once created, these are never modified or deleted.
type Entry struct {
	ID        string       `json:"id" db:"id"`
	Kind      string       `json:"kind" db:"kind"`
	Account   Account      `json:"account" db:"account"`
	AssetIn   Asset        `json:"asset_in,omitempty" db:"asset_in"`
	AmountIn  num.Nat      `json:"amount_in" db:"amount_in"`
	AssetOut  Asset        `json:"asset_out,omitempty" db:"asset_out"`
	AmountOut num.Nat      `json:"amount_out" db:"amount_out"`
	Shares    num.Nat      `json:"shares" db:"shares"` // LP minted (+) or burned, by Kind
	Receipts  []BlockIndex `json:"receipts" db:"receipts"`
	Timestamp time.Time    `json:"timestamp" db:"timestamp"`
}

// PoolState is a point-in-time view of the reserve pool.
type PoolState struct {
	AssetA    Asset           `json:"asset_a"`
	AssetB    Asset           `json:"asset_b"`
	ReserveA  num.Nat         `json:"reserve_a"`
	ReserveB  num.Nat         `json:"reserve_b"`
	TotalLP   num.Nat         `json:"total_lp"`
	PriceAInB decimal.Decimal `json:"price_a_in_b"` // spot, before fees
	PriceBInA decimal.Decimal `json:"price_b_in_a"`
}

// Stranded-fund reasons.
const (
	StrandedRefund          = "refund_failed"    // inbound funds kept in custody, not credited
	StrandedUnsettledPayout = "unsettled_payout" // one leg of a payout left custody, state untouched
)

// StrandedFunds records custody that no ledger entry accounts for, kept for
// operator recovery.
type StrandedFunds struct {
	ID         string     `json:"id"`
	Operation  string     `json:"operation"` // Entry kind that stranded the funds
	Reason     string     `json:"reason"`
	Account    Account    `json:"account"`
	Asset      Asset      `json:"asset"`
	Amount     num.Nat    `json:"amount"`
	Detail     string     `json:"detail"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Receipt    BlockIndex `json:"receipt,omitempty"`
}

// Event is published after every committed state change.
type Event struct {
	Type      string     `json:"type"` // Entry kind
	Account   Account    `json:"account"`
	EntryID   string     `json:"entry_id"`
	Pool      *PoolState `json:"pool,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
