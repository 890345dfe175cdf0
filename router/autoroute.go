// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
)

// Multi-hop paths encode token(20) [fee(3) token(20)]... segments.
const (
	pathAddrLen = 20
	pathFeeLen  = 3
	pathHopLen  = pathAddrLen + pathFeeLen
)

// reversePath re-encodes a multi-hop path back to front so it can be
// walked in the opposite direction. Returns false for malformed
// encodings.
func reversePath(path []byte) ([]byte, bool) {
	if len(path) < pathAddrLen || (len(path)-pathAddrLen)%pathHopLen != 0 {
		return nil, false
	}
	hops := (len(path) - pathAddrLen) / pathHopLen

	out := make([]byte, 0, len(path))
	// last token first
	out = append(out, path[hops*pathHopLen:hops*pathHopLen+pathAddrLen]...)
	for i := hops - 1; i >= 0; i-- {
		fee := path[i*pathHopLen+pathAddrLen : i*pathHopLen+pathHopLen]
		token := path[i*pathHopLen : i*pathHopLen+pathAddrLen]
		out = append(out, fee...)
		out = append(out, token...)
	}
	return out, true
}

// reorientRoute flips a route configured for the opposite direction.
// Pool routes swap their coin indices; path routes reverse the path.
// Mint and composite routes are one-way.
func reorientRoute(route RouteConfig) (RouteConfig, bool) {
	switch route.Kind {
	case KindDirectPool:
		route.IndexIn, route.IndexOut = route.IndexOut, route.IndexIn
		return route, true
	case KindMultiHop:
		reversed, ok := reversePath(route.Path)
		if !ok {
			return RouteConfig{}, false
		}
		route.Path = reversed
		return route, true
	default:
		return RouteConfig{}, false
	}
}

// routeLeg is one resolved hop of an auto-routed swap.
type routeLeg struct {
	assetIn  common.Address
	assetOut common.Address
	route    RouteConfig
}

// resolveOriented finds an executable route for the pair: the directly
// configured route wins, then the reverse pair's route reoriented.
func (e *Engine) resolveOriented(assetIn, assetOut common.Address) (RouteConfig, bool) {
	if route, ok := e.registry.Route(assetIn, assetOut); ok {
		return route, true
	}
	if reverse, ok := e.registry.Route(assetOut, assetIn); ok {
		return reorientRoute(reverse)
	}
	return RouteConfig{}, false
}

// bridgeAsset picks the intermediate asset for a bridged pair within
// one category. BTC-wrapped assets bridge through the wrapped BTC
// token; everything else bridges through wrapped native.
func (e *Engine) bridgeAsset(category AssetCategory) common.Address {
	if category == CategoryBTCWrapped {
		return e.wrappedBTC
	}
	return e.wrappedNative
}

// planRoute resolves the leg sequence for an auto-routed pair.
func (e *Engine) planRoute(assetIn, assetOut common.Address, category AssetCategory) ([]routeLeg, error) {
	if route, ok := e.resolveOriented(assetIn, assetOut); ok {
		return []routeLeg{{assetIn: assetIn, assetOut: assetOut, route: route}}, nil
	}

	bridge := e.bridgeAsset(category)
	if bridge != (common.Address{}) && bridge != assetIn && bridge != assetOut {
		first, okFirst := e.resolveOriented(assetIn, bridge)
		second, okSecond := e.resolveOriented(bridge, assetOut)
		if okFirst && okSecond {
			return []routeLeg{
				{assetIn: assetIn, assetOut: bridge, route: first},
				{assetIn: bridge, assetOut: assetOut, route: second},
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, assetIn, assetOut)
}

// AutoSwap executes a swap without a pre-configured end-to-end route.
// Both assets must belong to the same category; routing never crosses
// categories. Resolution order: direct route, reverse route reoriented,
// then two legs through the category's bridge asset. Each leg carries
// its own minimum; the caller's MinAmountOut binds the final output.
func (e *Engine) AutoSwap(caller common.Address, req SwapRequest) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	started := e.now()

	if err := e.validateRequest(req); err != nil {
		return nil, err
	}

	catIn := e.registry.categoryOf(req.AssetIn, e.wrappedNative)
	catOut := e.registry.categoryOf(req.AssetOut, e.wrappedNative)
	if catIn != catOut {
		return nil, fmt.Errorf("%w: %s vs %s", ErrCrossCategory, catIn, catOut)
	}

	in, out := e.executionPair(req.AssetIn, req.AssetOut)
	legs, err := e.planRoute(in, out, catIn)
	if err != nil {
		return nil, err
	}
	for _, leg := range legs {
		if err := e.checkRouteAvailable(leg.assetIn, leg.assetOut, leg.route); err != nil {
			return nil, err
		}
	}

	outer := e.ledger.Snapshot()
	amountOut, fellBack, err := func() (*big.Int, bool, error) {
		if err := e.pullInput(caller, req); err != nil {
			return nil, false, err
		}

		amount := new(big.Int).Set(req.AmountIn)
		fellBack := false
		for _, leg := range legs {
			legOut, legFellBack, err := e.runAttempts(leg.assetIn, leg.assetOut, leg.route, amount, nil)
			if err != nil {
				return nil, fellBack, err
			}
			fellBack = fellBack || legFellBack
			amount = legOut
		}
		if req.MinAmountOut != nil && amount.Cmp(req.MinAmountOut) < 0 {
			return nil, fellBack, ErrInsufficientOutput
		}

		if err := e.deliverOutput(caller, req.AssetOut, amount); err != nil {
			return nil, fellBack, err
		}
		return amount, fellBack, nil
	}()
	if err != nil {
		e.ledger.RevertToSnapshot(outer)
		e.metrics.swapFailed(legs[0].route.Kind)
		e.logger.Error("auto swap failed",
			"caller", caller, "assetIn", req.AssetIn, "assetOut", req.AssetOut,
			"amountIn", req.AmountIn, "legs", len(legs), "err", err)
		return nil, err
	}

	lastRoute := legs[len(legs)-1].route
	receipt := e.emitReceipt(caller, req, lastRoute, amountOut, fellBack)
	e.metrics.swapDone(lastRoute.Kind, fellBack, e.now().Sub(started))
	e.logger.Info("auto swap completed",
		"id", receipt.ID, "caller", caller,
		"assetIn", req.AssetIn, "assetOut", req.AssetOut,
		"amountIn", req.AmountIn, "amountOut", amountOut,
		"legs", len(legs), "fallback", fellBack)
	return amountOut, nil
}
