package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
)

// erc20ABI covers the two calls the gateway issues.
const erc20ABI = `[
 {"type":"function","name":"transferFrom","stateMutability":"nonpayable",
  "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"transfer","stateMutability":"nonpayable",
  "inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]}
]`

// ERC20Ledger settles transfers on an ERC-20 token contract. The service key
// is both the custody account and the spender of user allowances, so Pull is
// transferFrom and Push is transfer. Block numbers serve as receipts.
type ERC20Ledger struct {
	client   *ethclient.Client
	token    common.Address
	contract *bind.BoundContract
	auth     *bind.TransactOpts

	// nonce assignment happens inside Transact; serialize submissions.
	mu sync.Mutex
}

// NewERC20Ledger binds token at tokenHex, signing with privateKeyHex.
func NewERC20Ledger(client *ethclient.Client, tokenHex, privateKeyHex string, chainID *big.Int) (*ERC20Ledger, error) {
	if !common.IsHexAddress(tokenHex) {
		return nil, fmt.Errorf("erc20: invalid token address %q", tokenHex)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("erc20: parse abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("erc20: parse key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("erc20: transactor: %w", err)
	}

	token := common.HexToAddress(tokenHex)
	return &ERC20Ledger{
		client:   client,
		token:    token,
		contract: bind.NewBoundContract(token, parsed, client, client, client),
		auth:     auth,
	}, nil
}

// Custody is the service account on this chain.
func (l *ERC20Ledger) Custody() model.Account {
	return model.NewAccount(l.auth.From.Hex())
}

func (l *ERC20Ledger) Pull(ctx context.Context, from, to model.Account, amount num.Nat) (model.BlockIndex, error) {
	fromAddr, err := address(from, OpPull)
	if err != nil {
		return 0, err
	}
	toAddr, err := address(to, OpPull)
	if err != nil {
		return 0, err
	}
	return l.send(ctx, OpPull, "transferFrom", fromAddr, toAddr, amount.BigInt())
}

func (l *ERC20Ledger) Push(ctx context.Context, to model.Account, amount num.Nat) (model.BlockIndex, error) {
	toAddr, err := address(to, OpPush)
	if err != nil {
		return 0, err
	}
	return l.send(ctx, OpPush, "transfer", toAddr, amount.BigInt())
}

func (l *ERC20Ledger) send(ctx context.Context, op, method string, args ...interface{}) (model.BlockIndex, error) {
	opts := *l.auth
	opts.Context = ctx

	l.mu.Lock()
	tx, err := l.contract.Transact(&opts, method, args...)
	l.mu.Unlock()
	if err != nil {
		// Gas estimation simulates the call, so reverts surface here.
		return 0, &Fault{Code: classifyRevert(err), Op: op, Detail: err.Error()}
	}

	receipt, err := waitSettled(ctx, l.client, tx, l.auth.From, receiptPollInterval)
	if err != nil {
		return 0, &Fault{Code: FaultTemporarilyUnavailable, Op: op,
			Detail: fmt.Sprintf("tx %s: %v", tx.Hash().Hex(), err)}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return 0, &Fault{Code: FaultGenericError, Op: op,
			Detail: fmt.Sprintf("tx %s reverted", tx.Hash().Hex())}
	}
	return model.BlockIndex(receipt.BlockNumber.Uint64()), nil
}

// receiptPollInterval is how often a submitted transaction is checked.
const receiptPollInterval = time.Second

// droppedAfter is how many consecutive polls may find a transaction neither
// mined nor known to the node before it is treated as dropped.
const droppedAfter = 30

var errTxDropped = errors.New("transaction dropped or replaced")

// chainReader is the part of ethclient.Client used to follow a transaction.
type chainReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// waitSettled polls until tx is mined. It gives up with errTxDropped once
// the sender's confirmed nonce has moved past tx without a receipt for it,
// or once the node has stopped reporting the transaction at all, so a lost
// transaction cannot keep a transfer waiting forever.
func waitSettled(ctx context.Context, c chainReader, tx *types.Transaction, from common.Address, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hash := tx.Hash()
	missing := 0
	for {
		receipt, err := c.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			slog.Warn("receipt lookup failed", "tx", hash.Hex(), "err", err)
		} else if nonce, err := c.NonceAt(ctx, from, nil); err == nil && nonce > tx.Nonce() {
			// The nonce is spent. Check once more in case tx itself was
			// mined between the two calls.
			if receipt, err := c.TransactionReceipt(ctx, hash); err == nil {
				return receipt, nil
			}
			return nil, errTxDropped
		} else if _, _, err := c.TransactionByHash(ctx, hash); errors.Is(err, ethereum.NotFound) {
			missing++
			if missing >= droppedAfter {
				return nil, errTxDropped
			}
		} else {
			missing = 0
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// address maps an Account onto an EVM address. EVM tokens have no
// subaccounts; only the default one is accepted.
func address(a model.Account, op string) (common.Address, error) {
	if !common.IsHexAddress(a.Owner) || !a.Subaccount.IsDefault() {
		return common.Address{}, &Fault{Code: FaultGenericError, Op: op,
			Detail: fmt.Sprintf("account %s is not an EVM address", a)}
	}
	return common.HexToAddress(a.Owner), nil
}

func classifyRevert(err error) FaultCode {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "allowance"):
		return FaultInsufficientAllowance
	case strings.Contains(msg, "exceeds balance"), strings.Contains(msg, "insufficient balance"),
		strings.Contains(msg, "insufficient funds"):
		return FaultInsufficientFunds
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "already known"):
		return FaultDuplicate
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "timeout"),
		strings.Contains(msg, "context deadline exceeded"):
		return FaultTemporarilyUnavailable
	default:
		return FaultGenericError
	}
}
