package engine

import (
	"errors"
	"fmt"

	"github.com/atmx/vault-engine/internal/cpmm"
)

var (
	// ErrInvalidArgument is returned for zero amounts and unknown assets.
	ErrInvalidArgument = errors.New("engine: invalid argument")

	// ErrInvalidAsset is an ErrInvalidArgument naming an asset outside the pool.
	ErrInvalidAsset = fmt.Errorf("%w: asset is not in the pool", ErrInvalidArgument)

	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// caller's unencumbered vault balance.
	ErrInsufficientBalance = errors.New("engine: insufficient balance")

	// ErrInsufficientShares is returned when a removal exceeds the caller's
	// unencumbered LP balance.
	ErrInsufficientShares = errors.New("engine: insufficient LP shares")

	// ErrSlippageExceeded is returned when a swap would pay out less than
	// the caller's floor.
	ErrSlippageExceeded = errors.New("engine: slippage tolerance exceeded")

	// ErrPoolBusy is returned when a removal would burn the last free LP
	// shares while a swap payout is in flight. The caller may retry once
	// the swap settles.
	ErrPoolBusy = errors.New("engine: swap in flight, retry removal")

	ErrNoLiquidity   = cpmm.ErrNoLiquidity
	ErrZeroLPMinted  = cpmm.ErrZeroLPMinted
	ErrZeroAmountOut = cpmm.ErrZeroAmountOut

	ErrStrandedNotFound = errors.New("engine: stranded record not found")
	ErrNotRetryable     = errors.New("engine: stranded record cannot be retried")
	ErrInvariant        = errors.New("engine: invariant violated")
)
