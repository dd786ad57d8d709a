// Package engine is the transaction orchestrator of the vault: it owns the
// custodial vault ledger and the two-asset reserve pool, and sequences every
// mutation around external transfers.
//
// # Interleaving model
//
// Every operation consists of short critical sections under e.mu separated
// by gateway calls. The lock is never held across a gateway call, so any
// other operation may run to completion while one is suspended on a
// transfer. Each operation documents which values it snapshots before a
// call and which it re-reads after. Funds promised to an in-flight outbound
// transfer are placed on hold, so concurrent callers price and validate
// against unencumbered ("free") amounts only.
//
// Amounts are num.Nat throughout; nothing here can overflow.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/vault-engine/internal/cpmm"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
	"github.com/atmx/vault-engine/internal/store"
)

// Transferer is the external transfer gateway as seen by the engine.
type Transferer interface {
	Pull(ctx context.Context, asset model.Asset, from, to model.Account, amount num.Nat) (model.BlockIndex, error)
	Push(ctx context.Context, asset model.Asset, to model.Account, amount num.Nat) (model.BlockIndex, error)
}

// Publisher receives an event after every committed state change.
type Publisher interface {
	Publish(ctx context.Context, evt model.Event)
}

// Config names the pool's assets and the service's custody account.
// The vault holds AssetA.
type Config struct {
	AssetA  model.Asset
	AssetB  model.Asset
	Custody model.Account
}

// Engine holds all ledger state. The zero value is not usable; call New.
type Engine struct {
	cfg     Config
	gw      Transferer
	journal store.Store
	pub     Publisher // optional
	now     func() time.Time

	mu sync.Mutex

	// Vault ledger.
	vault     map[model.Account]num.Nat
	vaultHeld map[model.Account]num.Nat // in-flight withdrawals

	// Reserve pool.
	reserveA, reserveB num.Nat
	pendingA, pendingB num.Nat // payouts promised to in-flight pushes
	totalLP            num.Nat
	lp                 map[model.Account]num.Nat
	lpHeld             map[model.Account]num.Nat // in-flight removals
	lpHeldTotal        num.Nat
	swapsInFlight      int // swaps whose output push has not settled

	// Recovery registry.
	stranded map[string]*model.StrandedFunds
	retrying map[string]bool
}

// New creates an engine with empty state. Pass nil for pub if events are
// not needed.
func New(cfg Config, gw Transferer, journal store.Store, pub Publisher) (*Engine, error) {
	if cfg.AssetA == "" || cfg.AssetB == "" || cfg.AssetA == cfg.AssetB {
		return nil, fmt.Errorf("%w: pool needs two distinct assets, got %q and %q",
			ErrInvalidArgument, cfg.AssetA, cfg.AssetB)
	}
	if cfg.Custody.Owner == "" {
		return nil, fmt.Errorf("%w: custody account is required", ErrInvalidArgument)
	}
	return &Engine{
		cfg:       cfg,
		gw:        gw,
		journal:   journal,
		pub:       pub,
		now:       func() time.Time { return time.Now().UTC() },
		vault:     make(map[model.Account]num.Nat),
		vaultHeld: make(map[model.Account]num.Nat),
		lp:        make(map[model.Account]num.Nat),
		lpHeld:    make(map[model.Account]num.Nat),
		stranded:  make(map[string]*model.StrandedFunds),
		retrying:  make(map[string]bool),
	}, nil
}

// Assets returns the pool's asset pair.
func (e *Engine) Assets() (model.Asset, model.Asset) {
	return e.cfg.AssetA, e.cfg.AssetB
}

// --- Suspension points ---

// pull and push are the only places the engine suspends. Cancellation is
// detached: once issued, a transfer's outcome must be observed, or a
// settled transfer could be mistaken for a failed one.
func (e *Engine) pull(ctx context.Context, asset model.Asset, from, to model.Account, amount num.Nat) (model.BlockIndex, error) {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()
	return e.gw.Pull(context.WithoutCancel(ctx), asset, from, to, amount)
}

func (e *Engine) push(ctx context.Context, asset model.Asset, to model.Account, amount num.Nat) (model.BlockIndex, error) {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()
	return e.gw.Push(context.WithoutCancel(ctx), asset, to, amount)
}

// --- Bookkeeping helpers (callers hold e.mu) ---

// addTo increments m[k] by v.
func addTo(m map[model.Account]num.Nat, k model.Account, v num.Nat) {
	m[k] = m[k].Add(v)
}

// subFrom decrements m[k] by v, dropping the key at zero. Only for hold
// maps; balance maps keep zero entries.
func subFrom(m map[model.Account]num.Nat, k model.Account, v num.Nat) {
	left := m[k].Sub(v)
	if left.IsZero() {
		delete(m, k)
		return
	}
	m[k] = left
}

// free returns total minus held; held never exceeds total.
func free(total, held num.Nat) num.Nat {
	return total.Sub(held)
}

// sides returns pointers to the reserve and pending payout of asset and its
// counterpart.
func (e *Engine) sides(asset model.Asset) (reserveIn, pendingIn, reserveOut, pendingOut *num.Nat) {
	if asset == e.cfg.AssetA {
		return &e.reserveA, &e.pendingA, &e.reserveB, &e.pendingB
	}
	return &e.reserveB, &e.pendingB, &e.reserveA, &e.pendingA
}

func (e *Engine) counterpart(asset model.Asset) (model.Asset, bool) {
	switch asset {
	case e.cfg.AssetA:
		return e.cfg.AssetB, true
	case e.cfg.AssetB:
		return e.cfg.AssetA, true
	default:
		return "", false
	}
}

func (e *Engine) poolStateLocked() model.PoolState {
	return model.PoolState{
		AssetA:    e.cfg.AssetA,
		AssetB:    e.cfg.AssetB,
		ReserveA:  e.reserveA,
		ReserveB:  e.reserveB,
		TotalLP:   e.totalLP,
		PriceAInB: cpmm.SpotPrice(e.reserveA, e.reserveB),
		PriceBInA: cpmm.SpotPrice(e.reserveB, e.reserveA),
	}
}

// --- Journal, events, metrics ---

// commit journals a settled operation and publishes it. Journal failures
// are logged; ledger state is already committed and is never rolled back.
func (e *Engine) commit(ctx context.Context, entry *model.Entry, pool *model.PoolState) {
	ctx = context.WithoutCancel(ctx)
	entry.ID = uuid.New().String()
	entry.Timestamp = e.now()

	if e.journal != nil {
		if err := e.journal.InsertEntry(ctx, entry); err != nil {
			slog.Error("journal write failed", "entry_id", entry.ID, "kind", entry.Kind, "err", err)
		}
	}

	slog.Info("operation settled",
		"entry_id", entry.ID,
		"kind", entry.Kind,
		"account", entry.Account.String(),
		"asset_in", string(entry.AssetIn),
		"amount_in", entry.AmountIn.String(),
		"asset_out", string(entry.AssetOut),
		"amount_out", entry.AmountOut.String(),
		"shares", entry.Shares.String(),
	)

	if e.pub != nil {
		e.pub.Publish(ctx, model.Event{
			Type:      entry.Kind,
			Account:   entry.Account,
			EntryID:   entry.ID,
			Pool:      pool,
			Timestamp: entry.Timestamp,
		})
	}
}

// observe records the outcome of an operation. Use with a named error:
//
//	defer e.observe(model.KindSwap, time.Now(), &err)
func (e *Engine) observe(kind string, start time.Time, err *error) {
	metrics.OperationLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	result := "ok"
	if *err != nil {
		result = "error"
		slog.Info("operation rejected", "kind", kind, "err", (*err).Error())
	}
	metrics.OperationsTotal.WithLabelValues(kind, result).Inc()
}
