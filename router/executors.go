// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
)

// executeRoute dispatches to the executor for the route's protocol
// family. The input sits in engine custody as a token; the realized
// output is measured strictly by balance difference and left in engine
// custody.
func (e *Engine) executeRoute(assetIn, assetOut common.Address, route RouteConfig, amountIn, minOut *big.Int) (*big.Int, error) {
	switch route.Kind {
	case KindDirectPool:
		return e.executeDirectPool(assetIn, assetOut, route, amountIn, minOut)
	case KindMultiHop:
		return e.executeMultiHop(assetIn, assetOut, route, amountIn, minOut)
	case KindDirectMint:
		return e.executeDirectMint(assetIn, assetOut, route, amountIn)
	case KindComposite:
		return e.executeComposite(assetIn, assetOut, route, amountIn)
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrRouteIncomplete, route.Kind)
	}
}

// withApproval grants spender exactly amountIn of assetIn for the
// duration of fn and resets the allowance to zero afterward, so no
// residual spend authority survives the call.
func (e *Engine) withApproval(assetIn, spender common.Address, amountIn *big.Int, fn func() error) error {
	if err := e.ledger.Approve(assetIn, e.self, spender, amountIn); err != nil {
		return fmt.Errorf("approve backend: %w", err)
	}
	callErr := fn()
	if err := e.ledger.Approve(assetIn, e.self, spender, new(big.Int)); err != nil && callErr == nil {
		return fmt.Errorf("reset approval: %w", err)
	}
	return callErr
}

// measuredCall runs fn and returns how much assetOut the engine account
// actually gained. Backend return values are never trusted.
func (e *Engine) measuredCall(assetOut common.Address, fn func() error) (*big.Int, error) {
	before := e.ledger.BalanceOf(assetOut, e.self)
	if err := fn(); err != nil {
		return nil, err
	}
	after := e.ledger.BalanceOf(assetOut, e.self)
	delta := new(big.Int).Sub(after, before)
	if delta.Sign() <= 0 {
		return nil, fmt.Errorf("%w: no output received", ErrSwapFailed)
	}
	return delta, nil
}

func (e *Engine) executeDirectPool(assetIn, assetOut common.Address, route RouteConfig, amountIn, minOut *big.Int) (*big.Int, error) {
	backend, ok := e.backendFor(route.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotRegistered, route.Backend)
	}
	var out *big.Int
	err := e.withApproval(assetIn, route.Backend, amountIn, func() error {
		var callErr error
		out, callErr = e.measuredCall(assetOut, func() error {
			_, swapErr := backend.SwapSingle(e.ledger, route.Pool, assetIn, assetOut,
				route.IndexIn, route.IndexOut, route.Fee, amountIn, minOut, e.self, e.self)
			return swapErr
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) executeMultiHop(assetIn, assetOut common.Address, route RouteConfig, amountIn, minOut *big.Int) (*big.Int, error) {
	backend, ok := e.backendFor(route.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotRegistered, route.Backend)
	}
	var out *big.Int
	err := e.withApproval(assetIn, route.Backend, amountIn, func() error {
		var callErr error
		out, callErr = e.measuredCall(assetOut, func() error {
			_, swapErr := backend.SwapPath(e.ledger, route.Path, amountIn, minOut, e.self, e.self)
			return swapErr
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) executeDirectMint(assetIn, assetOut common.Address, route RouteConfig, amountIn *big.Int) (*big.Int, error) {
	minter, ok := e.minterFor(route.Minter)
	if !ok {
		return nil, fmt.Errorf("%w: minter %s", ErrBackendNotRegistered, route.Minter)
	}
	var out *big.Int
	err := e.withApproval(assetIn, route.Minter, amountIn, func() error {
		var callErr error
		out, callErr = e.measuredCall(assetOut, func() error {
			_, mintErr := minter.Mint(e.ledger, e.self, e.self, amountIn)
			return mintErr
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// executeComposite runs the route's steps strictly in order, feeding
// each step's measured output into the next. Swap steps carry their own
// per-leg minimum; wrap, unwrap and mint steps convert the full running
// amount.
func (e *Engine) executeComposite(assetIn, assetOut common.Address, route RouteConfig, amountIn *big.Int) (*big.Int, error) {
	if len(route.Steps) == 0 {
		return nil, fmt.Errorf("%w: composite route has no steps", ErrRouteIncomplete)
	}

	current := assetIn
	amount := new(big.Int).Set(amountIn)
	for i, step := range route.Steps {
		if step.AssetIn != current {
			return nil, fmt.Errorf("%w: step %d consumes %s, sequence holds %s", ErrRouteIncomplete, i, step.AssetIn, current)
		}
		out, err := e.executeStep(step, amount)
		if err != nil {
			return nil, fmt.Errorf("composite step %d (%s -> %s): %w", i, step.AssetIn, step.AssetOut, err)
		}
		current, amount = step.AssetOut, out
	}
	if current != assetOut {
		return nil, fmt.Errorf("%w: steps end at %s, want %s", ErrRouteIncomplete, current, assetOut)
	}
	return amount, nil
}

func (e *Engine) executeStep(step CompositeStep, amount *big.Int) (*big.Int, error) {
	switch step.Action {
	case StepWrap:
		return amount, e.ledger.Wrap(e.self, amount)

	case StepUnwrap:
		return amount, e.ledger.Unwrap(e.self, amount)

	case StepDirectMint:
		minter, ok := e.minterFor(step.Minter)
		if !ok {
			return nil, fmt.Errorf("%w: minter %s", ErrBackendNotRegistered, step.Minter)
		}
		var out *big.Int
		err := e.withApproval(step.AssetIn, step.Minter, amount, func() error {
			var callErr error
			out, callErr = e.measuredCall(step.AssetOut, func() error {
				_, mintErr := minter.Mint(e.ledger, e.self, e.self, amount)
				return mintErr
			})
			return callErr
		})
		return out, err

	case StepSwap:
		backend, ok := e.backendFor(step.Backend)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBackendNotRegistered, step.Backend)
		}
		legMin := e.legMinOut(step.AssetIn, step.AssetOut, amount)
		var out *big.Int
		err := e.withApproval(step.AssetIn, step.Backend, amount, func() error {
			var callErr error
			out, callErr = e.measuredCall(step.AssetOut, func() error {
				_, swapErr := backend.SwapSingle(e.ledger, step.Pool, step.AssetIn, step.AssetOut,
					step.IndexIn, step.IndexOut, step.Fee, amount, legMin, e.self, e.self)
				return swapErr
			})
			return callErr
		})
		if err != nil {
			return nil, err
		}
		if out.Cmp(legMin) < 0 {
			return nil, ErrInsufficientOutput
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown step action %d", ErrRouteIncomplete, step.Action)
	}
}
