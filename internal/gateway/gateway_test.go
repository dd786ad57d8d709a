package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
)

const assetA model.Asset = "ledger-a"

var (
	custody = model.NewAccount("vault-canister")
	alice   = model.NewAccount("alice")
	bob     = model.NewAccount("bob")
)

func u(v uint64) num.Nat { return num.NewNat(v) }

func newTestGateway(t *testing.T) (*Gateway, *MemoryLedger) {
	t.Helper()
	ml := NewMemoryLedger(custody)
	gw := New()
	gw.Register(assetA, ml)
	return gw, ml
}

func TestPull_MovesFundsAndConsumesAllowance(t *testing.T) {
	gw, ml := newTestGateway(t)
	ml.Mint(alice, u(1000))
	ml.Approve(alice, u(600))

	idx, err := gw.Pull(context.Background(), assetA, alice, custody, u(400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx == 0 {
		t.Error("expected non-zero block index")
	}
	if !ml.BalanceOf(alice).Equal(u(600)) || !ml.BalanceOf(custody).Equal(u(400)) {
		t.Errorf("balances alice=%s custody=%s", ml.BalanceOf(alice), ml.BalanceOf(custody))
	}
	if !ml.Allowance(alice).Equal(u(200)) {
		t.Errorf("expected allowance 200, got %s", ml.Allowance(alice))
	}
}

func TestPull_InsufficientAllowance(t *testing.T) {
	gw, ml := newTestGateway(t)
	ml.Mint(alice, u(1000))
	ml.Approve(alice, u(10))

	_, err := gw.Pull(context.Background(), assetA, alice, custody, u(11))
	var fault *Fault
	if !errors.As(err, &fault) || fault.Code != FaultInsufficientAllowance {
		t.Fatalf("expected insufficient_allowance fault, got %v", err)
	}
	if fault.Asset != assetA || fault.Op != OpPull {
		t.Errorf("fault should carry asset and op, got %+v", fault)
	}
	if !ml.BalanceOf(alice).Equal(u(1000)) {
		t.Error("failed pull must not move funds")
	}
}

func TestPull_InsufficientFunds(t *testing.T) {
	gw, ml := newTestGateway(t)
	ml.Mint(alice, u(5))
	ml.Approve(alice, u(100))

	_, err := gw.Pull(context.Background(), assetA, alice, custody, u(6))
	var fault *Fault
	if !errors.As(err, &fault) || fault.Code != FaultInsufficientFunds {
		t.Fatalf("expected insufficient_funds fault, got %v", err)
	}
}

func TestPush_FromCustody(t *testing.T) {
	gw, ml := newTestGateway(t)
	ml.Mint(custody, u(50))

	if _, err := gw.Push(context.Background(), assetA, bob, u(30)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ml.BalanceOf(bob).Equal(u(30)) || !ml.BalanceOf(custody).Equal(u(20)) {
		t.Errorf("balances bob=%s custody=%s", ml.BalanceOf(bob), ml.BalanceOf(custody))
	}

	if _, err := gw.Push(context.Background(), assetA, bob, u(21)); !errors.Is(err, ErrFault) {
		t.Errorf("overdrawn push should fault, got %v", err)
	}
}

func TestBlockIndex_MonotonicallyIncreases(t *testing.T) {
	gw, ml := newTestGateway(t)
	ml.Mint(custody, u(10))

	var last model.BlockIndex
	for i := 0; i < 5; i++ {
		idx, err := gw.Push(context.Background(), assetA, bob, u(1))
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if idx <= last {
			t.Fatalf("block index not increasing: %d after %d", idx, last)
		}
		last = idx
	}
}

func TestFailNext_InjectsInOrder(t *testing.T) {
	gw, ml := newTestGateway(t)
	ml.Mint(custody, u(10))
	ml.FailNext(OpPush, FaultTemporarilyUnavailable)
	ml.FailNext(OpPush, FaultDuplicate)

	for _, want := range []FaultCode{FaultTemporarilyUnavailable, FaultDuplicate} {
		_, err := gw.Push(context.Background(), assetA, bob, u(1))
		var fault *Fault
		if !errors.As(err, &fault) || fault.Code != want {
			t.Fatalf("expected %s, got %v", want, err)
		}
	}
	if _, err := gw.Push(context.Background(), assetA, bob, u(1)); err != nil {
		t.Errorf("third push should succeed, got %v", err)
	}
	if !ml.BalanceOf(custody).Equal(u(9)) {
		t.Errorf("injected faults must not move funds, custody=%s", ml.BalanceOf(custody))
	}
}

func TestUnknownAsset(t *testing.T) {
	gw, _ := newTestGateway(t)
	_, err := gw.Push(context.Background(), "ledger-z", bob, u(1))
	if !errors.Is(err, ErrFault) {
		t.Errorf("expected fault for unregistered asset, got %v", err)
	}
}

type brokenLedger struct{}

func (brokenLedger) Pull(context.Context, model.Account, model.Account, num.Nat) (model.BlockIndex, error) {
	return 0, errors.New("connection reset")
}

func (brokenLedger) Push(context.Context, model.Account, num.Nat) (model.BlockIndex, error) {
	return 0, errors.New("connection reset")
}

func TestTransportErrorBecomesTemporarilyUnavailable(t *testing.T) {
	gw := New()
	gw.Register(assetA, brokenLedger{})

	_, err := gw.Pull(context.Background(), assetA, alice, custody, u(1))
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("expected *Fault, got %T %v", err, err)
	}
	if fault.Code != FaultTemporarilyUnavailable || fault.Detail != "connection reset" {
		t.Errorf("unexpected fault %+v", fault)
	}
}

func TestClassifyRevert(t *testing.T) {
	tests := []struct {
		msg  string
		want FaultCode
	}{
		{"execution reverted: ERC20: insufficient allowance", FaultInsufficientAllowance},
		{"execution reverted: ERC20: transfer amount exceeds balance", FaultInsufficientFunds},
		{"nonce too low", FaultDuplicate},
		{"dial tcp: connection refused", FaultTemporarilyUnavailable},
		{"execution reverted", FaultGenericError},
	}
	for _, tt := range tests {
		if got := classifyRevert(errors.New(tt.msg)); got != tt.want {
			t.Errorf("classifyRevert(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestAddress_RejectsNonEVMAccounts(t *testing.T) {
	if _, err := address(alice, OpPush); !errors.Is(err, ErrFault) {
		t.Errorf("expected fault for non-hex owner, got %v", err)
	}

	evm := model.NewAccount("0x00000000000000000000000000000000000000aa")
	if _, err := address(evm, OpPush); err != nil {
		t.Errorf("unexpected error for EVM address: %v", err)
	}

	evm.Subaccount[31] = 1
	if _, err := address(evm, OpPush); !errors.Is(err, ErrFault) {
		t.Errorf("expected fault for non-default subaccount, got %v", err)
	}
}
