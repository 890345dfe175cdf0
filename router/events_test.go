// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"math/big"
	"testing"
	"time"

	"github.com/luxfi/ids"
)

func TestRouteHashDistinguishesCalls(t *testing.T) {
	clock := newFakeClock()
	route := RouteConfig{Kind: KindDirectPool, Backend: addr(0x30), Pool: addr(0x40)}

	a := routeHash(addr(0x20), addr(0x21), route, clock.Now())
	b := routeHash(addr(0x20), addr(0x21), route, clock.Now())
	if a != b {
		t.Fatal("identical inputs must hash identically")
	}

	clock.Advance(time.Second)
	c := routeHash(addr(0x20), addr(0x21), route, clock.Now())
	if a == c {
		t.Fatal("different execution times must hash differently")
	}

	d := routeHash(addr(0x21), addr(0x20), route, clock.Now())
	if c == d {
		t.Fatal("pair direction must affect the hash")
	}
	if a == (ids.ID{}) {
		t.Fatal("hash must not be the zero id")
	}
}

func TestReceiptRing(t *testing.T) {
	ring := newReceiptRing(4)

	for i := 1; i <= 6; i++ {
		ring.add(SwapReceipt{AmountIn: big.NewInt(int64(i))})
	}

	recent := ring.recent(0)
	if len(recent) != 4 {
		t.Fatalf("expected 4 retained receipts, got %d", len(recent))
	}
	// newest first: 6, 5, 4, 3
	for i, want := range []int64{6, 5, 4, 3} {
		if recent[i].AmountIn.Int64() != want {
			t.Fatalf("recent[%d] = %d, want %d", i, recent[i].AmountIn.Int64(), want)
		}
	}

	limited := ring.recent(2)
	if len(limited) != 2 || limited[0].AmountIn.Int64() != 6 {
		t.Fatalf("limited recent wrong: %+v", limited)
	}
}

func TestEngineRecordsReceipts(t *testing.T) {
	f := newFixture(t)
	f.setRoute(t, f.tokenA, f.tokenB)
	f.ledger.SetBalance(f.tokenA, f.user, oneEther())

	if _, err := f.eng.Swap(f.user, SwapRequest{
		AssetIn:  f.tokenA,
		AssetOut: f.tokenB,
		AmountIn: oneEther(),
	}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	recent := f.eng.RecentReceipts(10)
	if len(recent) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(recent))
	}
	r := recent[0]
	if r.Caller != f.user || r.AssetIn != f.tokenA || r.AssetOut != f.tokenB {
		t.Fatalf("receipt fields wrong: %+v", r)
	}
	if r.ID == (ids.ID{}) {
		t.Fatal("receipt must carry a route hash")
	}
	if r.Kind != KindDirectPool {
		t.Fatalf("receipt kind = %s, want directpool", r.Kind)
	}
}
