// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Ledger is the engine's view of token and native balances. It is the
// transactional boundary of a swap: the engine snapshots it on entry and
// reverts to the snapshot on any terminal failure, so a failed swap
// leaves the caller's balances untouched.
//
// Backends are never trusted to report what they moved; the engine
// reads balances before and after every external call and uses the
// difference as ground truth.
type Ledger interface {
	// BalanceOf returns account's balance of an ERC-20 style token.
	BalanceOf(token common.Address, account common.Address) *big.Int

	// NativeBalance returns account's native-asset balance.
	NativeBalance(account common.Address) *uint256.Int

	// Transfer moves token balance between accounts.
	Transfer(token common.Address, from, to common.Address, amount *big.Int) error

	// TransferNative moves native balance between accounts.
	TransferNative(from, to common.Address, amount *uint256.Int) error

	// Approve sets spender's allowance over owner's token balance.
	Approve(token common.Address, owner, spender common.Address, amount *big.Int) error

	// Allowance returns spender's remaining allowance over owner's
	// token balance.
	Allowance(token common.Address, owner, spender common.Address) *big.Int

	// Wrap converts amount of account's native balance into the
	// wrapped-native token.
	Wrap(account common.Address, amount *big.Int) error

	// Unwrap converts amount of account's wrapped-native balance back
	// into native balance.
	Unwrap(account common.Address, amount *big.Int) error

	// CodeSize returns the byte size of the code deployed at addr.
	// Zero means the address hosts no executable code.
	CodeSize(addr common.Address) int

	// Snapshot marks the current state and returns a revision id.
	Snapshot() int

	// RevertToSnapshot undoes every change made since the revision was
	// taken.
	RevertToSnapshot(revision int)
}

// PoolBackend is the typed surface of one liquidity protocol. A single
// adapter serves every pool of that protocol; pools are addressed per
// call. Estimation entry points are read-only and may fail freely; the
// quote service converts failures into invalid quotes.
type PoolBackend interface {
	// EstimateSingle returns the expected output of a single-hop swap.
	EstimateSingle(pool common.Address, assetIn, assetOut common.Address, indexIn, indexOut int, fee uint32, amountIn *big.Int) (*big.Int, error)

	// EstimatePath returns the expected output of a multi-hop swap
	// along an encoded path.
	EstimatePath(path []byte, amountIn *big.Int) (*big.Int, error)

	// SwapSingle executes a single-hop swap, spending from's approved
	// input and crediting recipient. The returned amount is advisory;
	// callers must measure the realized output by balance difference.
	SwapSingle(ledger Ledger, pool common.Address, assetIn, assetOut common.Address, indexIn, indexOut int, fee uint32, amountIn, minAmountOut *big.Int, from, recipient common.Address) (*big.Int, error)

	// SwapPath executes a multi-hop swap along an encoded path.
	SwapPath(ledger Ledger, path []byte, amountIn, minAmountOut *big.Int, from, recipient common.Address) (*big.Int, error)

	// PoolPaused reports whether the protocol itself considers the
	// pool unavailable, independent of the engine's own breakers.
	PoolPaused(pool common.Address) bool
}

// Minter is a deposit-and-mint service: it accepts the wrapped native
// asset and returns derivative shares.
type Minter interface {
	// Mint deposits amount from depositor and credits recipient with
	// shares. The returned share count is advisory; callers measure
	// the realized amount by balance difference.
	Mint(ledger Ledger, depositor, recipient common.Address, amount *big.Int) (*big.Int, error)
}

// RawCaller performs an opaque call against a registered backend on
// behalf of the engine. Used only by the security sandbox; the gas
// limit is a hard ceiling.
type RawCaller interface {
	Call(ledger Ledger, caller, target common.Address, data []byte, gasLimit uint64) ([]byte, error)
}

// ReceiptSink receives completed-swap records. Implementations must not
// call back into the engine.
type ReceiptSink interface {
	EmitSwap(SwapReceipt)
}
