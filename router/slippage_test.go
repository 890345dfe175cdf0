// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"math/big"
	"testing"
)

func TestApplyBps(t *testing.T) {
	amount := big.NewInt(1e18)

	got := applyBps(amount, 20)
	want := big.NewInt(998e15) // 0.998e18
	if got.Cmp(want) != 0 {
		t.Fatalf("20 bps: got %s, want %s", got, want)
	}

	if got := applyBps(amount, 0); got.Cmp(amount) != 0 {
		t.Fatalf("0 bps: got %s, want %s", got, amount)
	}
	if got := applyBps(amount, BpsDenominator); got.Sign() != 0 {
		t.Fatalf("full bps: got %s, want 0", got)
	}
}

func TestCategoryDefaults(t *testing.T) {
	cases := []struct {
		name    string
		in, out AssetCategory
		wantBps uint32
	}{
		{"stable pair", CategoryStable, CategoryStable, 50},
		{"lst pair", CategoryETHLST, CategoryETHLST, 100},
		{"btc in", CategoryBTCWrapped, CategoryVolatile, 150},
		{"btc out", CategoryVolatile, CategoryBTCWrapped, 150},
		{"btc pair", CategoryBTCWrapped, CategoryBTCWrapped, 150},
		{"volatile pair", CategoryVolatile, CategoryVolatile, 300},
		{"mixed stable", CategoryStable, CategoryVolatile, 300},
	}
	for _, tc := range cases {
		if got := categoryDefaultBps(tc.in, tc.out); got != tc.wantBps {
			t.Fatalf("%s: got %d bps, want %d", tc.name, got, tc.wantBps)
		}
	}
}

func TestFallbackPrefersConfiguredOverDefault(t *testing.T) {
	f := newFixture(t)

	// volatile pair default
	if got := f.eng.fallbackBps(f.tokenA, f.tokenB); got != 300 {
		t.Fatalf("default bps = %d, want 300", got)
	}

	if err := f.reg.SetSlippage(f.owner, f.tokenA, f.tokenB, 80); err != nil {
		t.Fatalf("set slippage: %v", err)
	}
	if got := f.eng.fallbackBps(f.tokenA, f.tokenB); got != 80 {
		t.Fatalf("configured bps = %d, want 80", got)
	}
}

func TestFallbackMinOutNormalizesDecimals(t *testing.T) {
	f := newFixture(t)
	sixDec := addr(0x61)
	if err := f.reg.SupportAsset(f.owner, sixDec, AssetInfo{Decimals: 6, Category: CategoryVolatile, Supported: true}); err != nil {
		t.Fatalf("support asset: %v", err)
	}

	// 1e18 of an 18-decimal asset into a 6-decimal asset: expectation
	// rescales to 1e6 before the tolerance applies
	min, err := f.eng.fallbackMinOut(f.tokenA, sixDec, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("fallback min: %v", err)
	}
	want := applyBps(big.NewInt(1e6), 300)
	if min.Cmp(want) != 0 {
		t.Fatalf("min out = %s, want %s", min, want)
	}
}

func TestLegMinOut(t *testing.T) {
	f := newFixture(t)
	amount := big.NewInt(1e18)

	// unconfigured leg pair uses the flat per-leg fallback
	got := f.eng.legMinOut(f.tokenA, f.tokenB, amount)
	want := applyBps(amount, LegFallbackBps)
	if got.Cmp(want) != 0 {
		t.Fatalf("leg min = %s, want %s", got, want)
	}

	// a configured pair tolerance takes precedence
	if err := f.reg.SetSlippage(f.owner, f.tokenA, f.tokenB, 40); err != nil {
		t.Fatalf("set slippage: %v", err)
	}
	got = f.eng.legMinOut(f.tokenA, f.tokenB, amount)
	want = applyBps(amount, 40)
	if got.Cmp(want) != 0 {
		t.Fatalf("configured leg min = %s, want %s", got, want)
	}
}

func TestQuoteMinOut(t *testing.T) {
	clock := newFakeClock()
	q := Quote{Expected: big.NewInt(1e18), CreatedAt: clock.Now(), Valid: true}

	min := quoteMinOut(q, clock.Now())
	if min == nil || min.Cmp(applyBps(big.NewInt(1e18), TightQuoteBufferBps)) != 0 {
		t.Fatalf("tight min = %v", min)
	}

	clock.Advance(QuoteValidity + 1)
	if quoteMinOut(q, clock.Now()) != nil {
		t.Fatal("stale quote must not produce a bound")
	}

	if quoteMinOut(Quote{Valid: false}, clock.Now()) != nil {
		t.Fatal("invalid quote must not produce a bound")
	}
}
