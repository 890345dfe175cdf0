// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/zeebo/blake3"
)

const receiptRingSize = 256

// SwapReceipt records one completed swap.
type SwapReceipt struct {
	ID        ids.ID         `json:"id"`
	Caller    common.Address `json:"caller"`
	AssetIn   common.Address `json:"assetIn"`
	AssetOut  common.Address `json:"assetOut"`
	AmountIn  *big.Int       `json:"amountIn"`
	AmountOut *big.Int       `json:"amountOut"`
	Kind      BackendKind    `json:"kind"`
	Fallback  bool           `json:"fallback"`
	Timestamp time.Time      `json:"timestamp"`
}

// routeHash derives the per-call receipt id from the pair, the route
// identity and the execution time.
func routeHash(assetIn, assetOut common.Address, route RouteConfig, at time.Time) ids.ID {
	h := blake3.New()
	h.Write(assetIn.Bytes())
	h.Write(assetOut.Bytes())
	h.Write(route.Backend.Bytes())
	h.Write(route.Pool.Bytes())
	h.Write(route.Minter.Bytes())
	h.Write(route.Path)
	h.Write([]byte{byte(route.Kind)})

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UnixNano()))
	h.Write(ts[:])

	var raw [32]byte
	h.Digest().Read(raw[:])
	id, _ := ids.ToID(raw[:])
	return id
}

// receiptRing keeps the most recent receipts in memory for inspection.
type receiptRing struct {
	mu   sync.Mutex
	buf  []SwapReceipt
	next int
	full bool
}

func newReceiptRing(size int) *receiptRing {
	return &receiptRing{buf: make([]SwapReceipt, size)}
}

func (r *receiptRing) add(receipt SwapReceipt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = receipt
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// recent returns receipts newest first.
func (r *receiptRing) recent(limit int) []SwapReceipt {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]SwapReceipt, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// emitReceipt builds, stores and forwards the receipt for a completed
// swap.
func (e *Engine) emitReceipt(caller common.Address, req SwapRequest, route RouteConfig, amountOut *big.Int, fellBack bool) SwapReceipt {
	at := e.now()
	receipt := SwapReceipt{
		ID:        routeHash(req.AssetIn, req.AssetOut, route, at),
		Caller:    caller,
		AssetIn:   req.AssetIn,
		AssetOut:  req.AssetOut,
		AmountIn:  new(big.Int).Set(req.AmountIn),
		AmountOut: new(big.Int).Set(amountOut),
		Kind:      route.Kind,
		Fallback:  fellBack,
		Timestamp: at,
	}
	e.receipts.add(receipt)
	if e.sink != nil {
		e.sink.EmitSwap(receipt)
	}
	return receipt
}

// RecentReceipts returns up to limit of the most recent swap receipts,
// newest first.
func (e *Engine) RecentReceipts(limit int) []SwapReceipt {
	return e.receipts.recent(limit)
}
