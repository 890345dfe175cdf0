// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// invalidQuote is the universal "no usable estimate" answer. Quote
// failure is advisory, never fatal; the engine falls back to configured
// slippage bounds.
func (e *Engine) invalidQuote() Quote {
	return Quote{CreatedAt: e.now(), Valid: false}
}

// quoteRoute produces a best-effort output estimate for amountIn along
// the configured route. Every estimator failure is converted into an
// invalid quote.
func (e *Engine) quoteRoute(assetIn, assetOut common.Address, route RouteConfig, amountIn *big.Int) Quote {
	switch route.Kind {
	case KindDirectPool:
		backend, ok := e.backendFor(route.Backend)
		if !ok {
			return e.invalidQuote()
		}
		expected, err := backend.EstimateSingle(route.Pool, assetIn, assetOut, route.IndexIn, route.IndexOut, route.Fee, amountIn)
		if err != nil || expected == nil || expected.Sign() <= 0 {
			return e.invalidQuote()
		}
		return Quote{Expected: expected, CreatedAt: e.now(), Valid: true}

	case KindMultiHop:
		backend, ok := e.backendFor(route.Backend)
		if !ok {
			return e.invalidQuote()
		}
		expected, err := backend.EstimatePath(route.Path, amountIn)
		if err != nil || expected == nil || expected.Sign() <= 0 {
			return e.invalidQuote()
		}
		return Quote{Expected: expected, CreatedAt: e.now(), Valid: true}

	case KindDirectMint:
		// Deposit-and-mint credits shares 1:1 with the deposit.
		expected := e.registry.normalizeBetween(amountIn, assetIn, assetOut)
		if expected.Sign() <= 0 {
			return e.invalidQuote()
		}
		return Quote{Expected: expected, CreatedAt: e.now(), Valid: true}

	case KindComposite:
		// Composite routes are not quoted leg by leg; a flat haircut of
		// the normalized input stands in as a conservative estimate.
		expected := applyBps(e.registry.normalizeBetween(amountIn, assetIn, assetOut), CompositeQuoteHaircutBps)
		if expected.Sign() <= 0 {
			return e.invalidQuote()
		}
		return Quote{Expected: expected, CreatedAt: e.now(), Valid: true}

	default:
		return e.invalidQuote()
	}
}

// QuoteSwap estimates the output of swapping amountIn of assetIn for
// assetOut along the configured route. Callers treating an invalid
// quote as an error are holding it wrong; invalid means "execute with
// fallback bounds".
func (e *Engine) QuoteSwap(assetIn, assetOut common.Address, amountIn *big.Int) Quote {
	if amountIn == nil || amountIn.Sign() <= 0 || assetIn == assetOut {
		return e.invalidQuote()
	}
	in, out := e.executionPair(assetIn, assetOut)
	route, ok := e.registry.Route(in, out)
	if !ok {
		return e.invalidQuote()
	}
	return e.quoteRoute(in, out, route, amountIn)
}
