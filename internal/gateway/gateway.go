// Package gateway is the External Transfer Gateway: the only path by which
// the engine moves tokens on external ledgers.
//
// Two operations exist per asset. Pull moves a pre-approved amount from an
// account into a destination (an allowance-based transfer-from). Push moves an
// amount out of the service's own custody. Both are all-or-nothing: a call
// returns either a block index or a *Fault, and a fault means nothing moved.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
)

// Operation names, used in faults, logs and metric labels.
const (
	OpPull = "pull"
	OpPush = "push"
)

// FaultCode is the ledger-side reason a transfer was refused.
type FaultCode string

const (
	FaultInsufficientAllowance  FaultCode = "insufficient_allowance"
	FaultInsufficientFunds      FaultCode = "insufficient_funds"
	FaultDuplicate              FaultCode = "duplicate"
	FaultTemporarilyUnavailable FaultCode = "temporarily_unavailable"
	FaultGenericError           FaultCode = "generic_error"
)

// ErrFault matches every *Fault with errors.Is.
var ErrFault = errors.New("gateway: transfer failed")

// Fault is a failed external transfer. No funds moved.
type Fault struct {
	Code   FaultCode
	Asset  model.Asset
	Op     string
	Detail string
}

func (f *Fault) Error() string {
	msg := fmt.Sprintf("gateway: %s on %s failed: %s", f.Op, f.Asset, f.Code)
	if f.Detail != "" {
		msg += " (" + f.Detail + ")"
	}
	return msg
}

func (f *Fault) Is(target error) bool {
	return target == ErrFault
}

// Ledger is one external token ledger.
type Ledger interface {
	// Pull transfers amount from `from` to `to` using an allowance `from`
	// granted to the service beforehand.
	Pull(ctx context.Context, from, to model.Account, amount num.Nat) (model.BlockIndex, error)

	// Push transfers amount out of the service's custody to `to`.
	Push(ctx context.Context, to model.Account, amount num.Nat) (model.BlockIndex, error)
}

// Gateway routes transfers to the ledger registered for each asset and
// instruments every call.
type Gateway struct {
	mu      sync.RWMutex
	ledgers map[model.Asset]Ledger
}

// New creates an empty gateway; register one ledger per asset.
func New() *Gateway {
	return &Gateway{ledgers: make(map[model.Asset]Ledger)}
}

// Register binds asset to ledger, replacing any previous binding.
func (g *Gateway) Register(asset model.Asset, ledger Ledger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ledgers[asset] = ledger
}

func (g *Gateway) ledger(asset model.Asset, op string) (Ledger, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.ledgers[asset]
	if !ok {
		return nil, &Fault{Code: FaultGenericError, Asset: asset, Op: op, Detail: "no ledger registered"}
	}
	return l, nil
}

// Pull moves amount of asset from `from` into `to`.
func (g *Gateway) Pull(ctx context.Context, asset model.Asset, from, to model.Account, amount num.Nat) (model.BlockIndex, error) {
	l, err := g.ledger(asset, OpPull)
	if err != nil {
		return 0, err
	}
	return g.observe(asset, OpPull, amount, func() (model.BlockIndex, error) {
		return l.Pull(ctx, from, to, amount)
	})
}

// Push moves amount of asset out of custody to `to`.
func (g *Gateway) Push(ctx context.Context, asset model.Asset, to model.Account, amount num.Nat) (model.BlockIndex, error) {
	l, err := g.ledger(asset, OpPush)
	if err != nil {
		return 0, err
	}
	return g.observe(asset, OpPush, amount, func() (model.BlockIndex, error) {
		return l.Push(ctx, to, amount)
	})
}

func (g *Gateway) observe(asset model.Asset, op string, amount num.Nat, call func() (model.BlockIndex, error)) (model.BlockIndex, error) {
	start := time.Now()
	idx, err := call()
	metrics.GatewayLatency.WithLabelValues(string(asset), op).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.GatewayCalls.WithLabelValues(string(asset), op, "ok").Inc()
		return idx, nil
	}

	var fault *Fault
	if !errors.As(err, &fault) {
		// Transport-level failure: the ledger gave no definite answer.
		fault = &Fault{Code: FaultTemporarilyUnavailable, Detail: err.Error()}
	}
	fault.Asset = asset
	fault.Op = op

	metrics.GatewayCalls.WithLabelValues(string(asset), op, string(fault.Code)).Inc()
	slog.Warn("gateway transfer failed",
		"asset", string(asset),
		"op", op,
		"amount", amount.String(),
		"code", string(fault.Code),
		"detail", fault.Detail,
	)
	return 0, fault
}
