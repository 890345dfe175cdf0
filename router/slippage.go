// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"math/big"
	"time"

	"github.com/luxfi/geth/common"
)

// applyBps returns amount reduced by bps basis points, truncating.
func applyBps(amount *big.Int, bps uint32) *big.Int {
	keep := new(big.Int).SetUint64(uint64(BpsDenominator - bps))
	out := new(big.Int).Mul(amount, keep)
	return out.Quo(out, new(big.Int).SetUint64(uint64(BpsDenominator)))
}

// categoryDefaultBps returns the conservative ceiling for a pair with
// no configured tolerance. The defaults favor tighter bounds for pairs
// expected to track each other.
func categoryDefaultBps(catIn, catOut AssetCategory) uint32 {
	switch {
	case catIn == CategoryStable && catOut == CategoryStable:
		return 50
	case catIn == CategoryETHLST && catOut == CategoryETHLST:
		return 100
	case catIn == CategoryBTCWrapped || catOut == CategoryBTCWrapped:
		return 150
	default:
		return 300
	}
}

// fallbackBps resolves the pair's tolerance without a quote: configured
// value first, then the category default.
func (e *Engine) fallbackBps(assetIn, assetOut common.Address) uint32 {
	if bps := e.registry.SlippageBps(assetIn, assetOut); bps != 0 {
		return bps
	}
	catIn := e.registry.categoryOf(assetIn, e.wrappedNative)
	catOut := e.registry.categoryOf(assetOut, e.wrappedNative)
	return categoryDefaultBps(catIn, catOut)
}

// quoteMinOut derives the tight minimum output from a fresh quote.
// Returns nil when the quote cannot be used.
func quoteMinOut(q Quote, now time.Time) *big.Int {
	if !q.Fresh(now) {
		return nil
	}
	return applyBps(q.Expected, TightQuoteBufferBps)
}

// fallbackMinOut derives the minimum output from configured or default
// tolerance, scaled off the decimal-normalized input amount. A zero
// resolved tolerance would leave the swap unbounded, which is never
// allowed.
func (e *Engine) fallbackMinOut(assetIn, assetOut common.Address, amountIn *big.Int) (*big.Int, error) {
	bps := e.fallbackBps(assetIn, assetOut)
	if bps == 0 || bps > BpsDenominator {
		return nil, ErrNoSlippageBound
	}
	expected := e.registry.normalizeBetween(amountIn, assetIn, assetOut)
	return applyBps(expected, bps), nil
}

// legMinOut bounds one intermediate leg of a bridged or composite
// route: the leg pair's configured tolerance if set, else the flat
// per-leg fallback. Applied to the leg's own amount, never the
// end-to-end bound.
func (e *Engine) legMinOut(assetIn, assetOut common.Address, amountIn *big.Int) *big.Int {
	bps := e.registry.SlippageBps(assetIn, assetOut)
	if bps == 0 {
		bps = LegFallbackBps
	}
	expected := e.registry.normalizeBetween(amountIn, assetIn, assetOut)
	return applyBps(expected, bps)
}
