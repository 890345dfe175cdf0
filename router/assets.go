// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// categoryOf resolves the asset's category. The native asset is
// categorized through the configured wrapped-native token.
func (r *Registry) categoryOf(asset, wrappedNative common.Address) AssetCategory {
	if asset == NativeAsset {
		asset = wrappedNative
	}
	return r.Asset(asset).Category
}

// isSupported reports whether the asset may participate in a swap. The
// native asset is always implicitly supported.
func (r *Registry) isSupported(asset common.Address) bool {
	if asset == NativeAsset {
		return true
	}
	return r.Asset(asset).Supported
}

// decimalsOf returns the asset's configured decimals, defaulting to 18
// for the native asset and any unconfigured token.
func (r *Registry) decimalsOf(asset common.Address) uint8 {
	if asset == NativeAsset {
		return 18
	}
	info := r.Asset(asset)
	if !info.Supported || info.Decimals == 0 {
		return 18
	}
	return info.Decimals
}

// Normalize rescales amount from fromDecimals to toDecimals. Scaling up
// multiplies exactly; scaling down truncates toward zero. The input is
// never mutated.
func Normalize(amount *big.Int, fromDecimals, toDecimals uint8) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	if fromDecimals == toDecimals {
		return new(big.Int).Set(amount)
	}
	if toDecimals > fromDecimals {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(toDecimals-fromDecimals)), nil)
		return new(big.Int).Mul(amount, scale)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fromDecimals-toDecimals)), nil)
	return new(big.Int).Quo(amount, scale)
}

// normalizeBetween rescales amount from assetIn's decimals to
// assetOut's decimals, used when bounding intermediate legs whose
// assets disagree on precision.
func (r *Registry) normalizeBetween(amount *big.Int, assetIn, assetOut common.Address) *big.Int {
	return Normalize(amount, r.decimalsOf(assetIn), r.decimalsOf(assetOut))
}
