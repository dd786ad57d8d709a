package gateway

import (
	"context"
	"sync"

	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
)

type allowanceKey struct {
	owner   model.Account
	spender model.Account
}

// MemoryLedger is an in-process token ledger with allowance-based pulls.
// Used for development and testing. Not suitable for production (no
// persistence, no external settlement).
type MemoryLedger struct {
	mu         sync.Mutex
	custody    model.Account // the service's own account; spender of all pulls
	balances   map[model.Account]num.Nat
	allowances map[allowanceKey]num.Nat
	block      uint64
	failNext   map[string][]FaultCode
}

// NewMemoryLedger creates a ledger whose pushes debit custody and whose
// pulls consume allowances granted to custody.
func NewMemoryLedger(custody model.Account) *MemoryLedger {
	return &MemoryLedger{
		custody:    custody,
		balances:   make(map[model.Account]num.Nat),
		allowances: make(map[allowanceKey]num.Nat),
		failNext:   make(map[string][]FaultCode),
	}
}

// Mint credits amount to acct out of thin air.
func (l *MemoryLedger) Mint(acct model.Account, amount num.Nat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[acct] = l.balances[acct].Add(amount)
}

// Approve sets the allowance owner grants to the service.
func (l *MemoryLedger) Approve(owner model.Account, amount num.Nat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{owner: owner, spender: l.custody}] = amount
}

// BalanceOf returns acct's balance on this ledger.
func (l *MemoryLedger) BalanceOf(acct model.Account) num.Nat {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[acct]
}

// Allowance returns what owner has left approved for the service.
func (l *MemoryLedger) Allowance(owner model.Account) num.Nat {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[allowanceKey{owner: owner, spender: l.custody}]
}

// FailNext makes the next call of op (OpPull or OpPush) fail with code.
// Calls queue up in order.
func (l *MemoryLedger) FailNext(op string, code FaultCode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext[op] = append(l.failNext[op], code)
}

func (l *MemoryLedger) injected(op string) *Fault {
	q := l.failNext[op]
	if len(q) == 0 {
		return nil
	}
	l.failNext[op] = q[1:]
	return &Fault{Code: q[0], Op: op, Detail: "injected"}
}

func (l *MemoryLedger) Pull(ctx context.Context, from, to model.Account, amount num.Nat) (model.BlockIndex, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if f := l.injected(OpPull); f != nil {
		return 0, f
	}

	key := allowanceKey{owner: from, spender: l.custody}
	allowance := l.allowances[key]
	if allowance.LessThan(amount) {
		return 0, &Fault{Code: FaultInsufficientAllowance, Op: OpPull,
			Detail: "allowance " + allowance.String()}
	}
	balance := l.balances[from]
	if balance.LessThan(amount) {
		return 0, &Fault{Code: FaultInsufficientFunds, Op: OpPull,
			Detail: "balance " + balance.String()}
	}

	l.allowances[key] = allowance.Sub(amount)
	l.balances[from] = balance.Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return l.nextBlock(), nil
}

func (l *MemoryLedger) Push(ctx context.Context, to model.Account, amount num.Nat) (model.BlockIndex, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if f := l.injected(OpPush); f != nil {
		return 0, f
	}

	balance := l.balances[l.custody]
	if balance.LessThan(amount) {
		return 0, &Fault{Code: FaultInsufficientFunds, Op: OpPush,
			Detail: "custody balance " + balance.String()}
	}

	l.balances[l.custody] = balance.Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return l.nextBlock(), nil
}

func (l *MemoryLedger) nextBlock() model.BlockIndex {
	l.block++
	return model.BlockIndex(l.block)
}
