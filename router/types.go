// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package router implements a multi-protocol asset-swap routing engine.
// Given an input asset and a desired output asset it selects an execution
// path across independent liquidity backends, obtains a best-effort price
// estimate, computes a protected minimum output, executes the swap as one
// atomic unit, and falls back to configured slippage bounds when the
// quote path fails.
package router

import (
	"errors"
	"math/big"
	"time"

	"github.com/luxfi/geth/common"
)

// NativeAsset is the pseudo-address of the chain's native asset.
// It is always implicitly supported and is wrapped before execution.
var NativeAsset = common.Address{}

// Slippage and quote parameters (basis points unless noted)
const (
	// MaxSlippageBps caps any configured per-pair tolerance.
	MaxSlippageBps uint32 = 2000

	// TightQuoteBufferBps is applied to a fresh quote's expected output.
	TightQuoteBufferBps uint32 = 20

	// LegFallbackBps bounds an intermediate leg of a bridged or
	// composite path when the pair has no configured tolerance.
	LegFallbackBps uint32 = 200

	// BpsDenominator is the basis point scale.
	BpsDenominator uint32 = 10000

	// CompositeQuoteHaircutBps is the conservative end-to-end estimate
	// used for composite routes, which are not quoted leg by leg.
	CompositeQuoteHaircutBps uint32 = 500
)

// Time windows
const (
	// QuoteValidity is how long a quote may be used to derive the
	// tight minimum-output bound.
	QuoteValidity = 30 * time.Second

	// ConfigLockWindow is the reservation window for a keyed
	// configuration mutation. A second mutation of the same key inside
	// the window fails instead of interleaving.
	ConfigLockWindow = 300 * time.Second
)

// CallGasCeiling bounds every raw call made to a dynamically registered
// backend through the security sandbox.
const CallGasCeiling uint64 = 2_000_000

// BackendKind tags the protocol family a route executes through.
type BackendKind uint8

const (
	// KindNone marks an unconfigured route.
	KindNone BackendKind = iota

	// KindDirectPool swaps through a single pool, addressed either by
	// token pair and fee tier or by coin indices.
	KindDirectPool

	// KindMultiHop swaps through an encoded multi-pool path.
	KindMultiHop

	// KindDirectMint deposits the native asset into a minting service
	// and receives derivative shares 1:1.
	KindDirectMint

	// KindComposite executes a fixed ordered sequence of wrap, unwrap,
	// mint and swap steps.
	KindComposite
)

// String returns the protocol family name.
func (k BackendKind) String() string {
	switch k {
	case KindDirectPool:
		return "directpool"
	case KindMultiHop:
		return "multihop"
	case KindDirectMint:
		return "directmint"
	case KindComposite:
		return "composite"
	default:
		return "none"
	}
}

// AssetCategory groups assets for slippage defaults and auto-routing.
// Auto-routing never crosses categories.
type AssetCategory uint8

const (
	CategoryVolatile AssetCategory = iota
	CategoryStable
	CategoryETHLST
	CategoryBTCWrapped
)

// String returns the category name.
func (c AssetCategory) String() string {
	switch c {
	case CategoryStable:
		return "stable"
	case CategoryETHLST:
		return "eth-lst"
	case CategoryBTCWrapped:
		return "btc-wrapped"
	default:
		return "volatile"
	}
}

// AssetInfo describes one supported asset.
type AssetInfo struct {
	Decimals  uint8         `json:"decimals"`
	Category  AssetCategory `json:"category"`
	Supported bool          `json:"supported"`
}

// RouteConfig describes how one directed asset pair executes.
// A route exists iff at least one of Pool, Path, Minter or Steps is
// set.
type RouteConfig struct {
	Kind     BackendKind     `json:"kind"`
	Backend  common.Address  `json:"backend"` // registered backend serving the route
	Pool     common.Address  `json:"pool"`    // single-pool reference
	Fee      uint32          `json:"fee"`     // fee tier for fee-addressed pools
	IndexIn  int             `json:"indexIn"` // coin index of assetIn in the pool
	IndexOut int             `json:"indexOut"`
	Path     []byte          `json:"path"`   // encoded multi-hop path
	Minter   common.Address  `json:"minter"` // deposit-and-mint contract
	Steps    []CompositeStep `json:"steps,omitempty"`
}

// Exists reports whether the route carries enough data to execute.
func (r RouteConfig) Exists() bool {
	return r.Pool != (common.Address{}) || len(r.Path) > 0 ||
		r.Minter != (common.Address{}) || len(r.Steps) > 0
}

// StepAction is one action inside a composite route.
type StepAction uint8

const (
	StepWrap StepAction = iota
	StepUnwrap
	StepDirectMint
	StepSwap
)

// CompositeStep is one leg of a composite route. Steps run strictly in
// order; each step's output asset and amount feed the next step.
type CompositeStep struct {
	Action   StepAction     `json:"action"`
	Backend  common.Address `json:"backend"`
	AssetIn  common.Address `json:"assetIn"`
	AssetOut common.Address `json:"assetOut"`
	Pool     common.Address `json:"pool"`
	Fee      uint32         `json:"fee"`
	IndexIn  int            `json:"indexIn"`
	IndexOut int            `json:"indexOut"`
	Minter   common.Address `json:"minter"`
}

// Quote is a short-lived best-effort estimate of swap output.
// An invalid quote means "fall back to configured slippage", never a
// fatal error.
type Quote struct {
	Expected  *big.Int
	CreatedAt time.Time
	Valid     bool
}

// Fresh reports whether the quote may still tighten the minimum-output
// bound at time now.
func (q Quote) Fresh(now time.Time) bool {
	return q.Valid && q.Expected != nil && q.Expected.Sign() > 0 &&
		now.Sub(q.CreatedAt) <= QuoteValidity
}

// SwapRequest is one swap invocation. It is immutable once execution
// begins.
type SwapRequest struct {
	AssetIn      common.Address
	AssetOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int // caller-supplied floor; the engine may tighten it
	Value        *big.Int // native amount attached; excess is refunded
}

// BackendRegistration is one dynamically registered backend.
type BackendRegistration struct {
	Address    common.Address `json:"address"`
	Name       string         `json:"name"`
	Registered bool           `json:"registered"`
}

// Errors - validation
var (
	ErrZeroAmount        = errors.New("zero swap amount")
	ErrSameAsset         = errors.New("cannot swap an asset for itself")
	ErrAssetNotSupported = errors.New("asset not supported")
	ErrLengthMismatch    = errors.New("array length mismatch")
	ErrCrossCategory     = errors.New("assets are in different categories")
)

// Errors - authorization
var (
	ErrNotOwner        = errors.New("caller is not the owner")
	ErrNotRouteManager = errors.New("caller is not owner or route manager")
	ErrBadSecret       = errors.New("invalid secret")
)

// Errors - configuration
var (
	ErrNoRoute         = errors.New("no route found")
	ErrNoSlippageBound = errors.New("no fallback slippage bound available")
	ErrSlippageTooHigh = errors.New("slippage tolerance above maximum")
	ErrConfigLocked    = errors.New("configuration key is locked")
	ErrRouteIncomplete = errors.New("route carries no executable data")
)

// Errors - execution
var (
	ErrEnginePaused       = errors.New("engine is paused")
	ErrEngineNotPaused    = errors.New("engine is not paused")
	ErrProtocolPaused     = errors.New("backend protocol is paused")
	ErrPoolPaused         = errors.New("pool is paused")
	ErrPoolNotWhitelisted = errors.New("pool is not whitelisted")
	ErrInsufficientOutput = errors.New("insufficient output amount")
	ErrSwapFailed         = errors.New("swap failed")
	ErrReentrant          = errors.New("reentrant call")
	ErrInsufficientValue  = errors.New("attached value below input amount")
)

// Errors - sandbox
var (
	ErrBackendNotRegistered     = errors.New("backend not registered")
	ErrBackendAlreadyRegistered = errors.New("backend already registered")
	ErrBackendNoCode            = errors.New("backend address has no code")
	ErrDangerousSelector        = errors.New("call data carries a dangerous selector")
	ErrCallDataTooShort         = errors.New("call data shorter than a selector")
)
