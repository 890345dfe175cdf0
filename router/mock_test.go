// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

func addr(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	return a
}

// fakeClock is an advanceable time source for deterministic tests.
type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

type allowanceKey struct {
	token, owner, spender common.Address
}

type ledgerState struct {
	balances   map[common.Address]map[common.Address]*big.Int
	native     map[common.Address]*uint256.Int
	allowances map[allowanceKey]*big.Int
}

func (s ledgerState) clone() ledgerState {
	out := ledgerState{
		balances:   make(map[common.Address]map[common.Address]*big.Int, len(s.balances)),
		native:     make(map[common.Address]*uint256.Int, len(s.native)),
		allowances: make(map[allowanceKey]*big.Int, len(s.allowances)),
	}
	for token, accounts := range s.balances {
		inner := make(map[common.Address]*big.Int, len(accounts))
		for acct, bal := range accounts {
			inner[acct] = new(big.Int).Set(bal)
		}
		out.balances[token] = inner
	}
	for acct, bal := range s.native {
		out.native[acct] = bal.Clone()
	}
	for key, amt := range s.allowances {
		out.allowances[key] = new(big.Int).Set(amt)
	}
	return out
}

// MockLedger is an in-memory Ledger with real snapshot semantics.
type MockLedger struct {
	wrappedNative common.Address
	state         ledgerState
	code          map[common.Address]int
	snaps         []ledgerState
	approvals     []allowanceKey // every Approve call, in order
}

func NewMockLedger(wrappedNative common.Address) *MockLedger {
	return &MockLedger{
		wrappedNative: wrappedNative,
		state: ledgerState{
			balances:   make(map[common.Address]map[common.Address]*big.Int),
			native:     make(map[common.Address]*uint256.Int),
			allowances: make(map[allowanceKey]*big.Int),
		},
		code: make(map[common.Address]int),
	}
}

func (m *MockLedger) SetBalance(token, account common.Address, amount *big.Int) {
	if m.state.balances[token] == nil {
		m.state.balances[token] = make(map[common.Address]*big.Int)
	}
	m.state.balances[token][account] = new(big.Int).Set(amount)
}

func (m *MockLedger) SetNative(account common.Address, amount *uint256.Int) {
	m.state.native[account] = amount.Clone()
}

func (m *MockLedger) SetCode(account common.Address, size int) {
	m.code[account] = size
}

func (m *MockLedger) BalanceOf(token, account common.Address) *big.Int {
	if bal, ok := m.state.balances[token][account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (m *MockLedger) NativeBalance(account common.Address) *uint256.Int {
	if bal, ok := m.state.native[account]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

func (m *MockLedger) Transfer(token, from, to common.Address, amount *big.Int) error {
	bal := m.BalanceOf(token, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance of %s at %s", token, from)
	}
	m.SetBalance(token, from, new(big.Int).Sub(bal, amount))
	m.SetBalance(token, to, new(big.Int).Add(m.BalanceOf(token, to), amount))
	return nil
}

func (m *MockLedger) TransferNative(from, to common.Address, amount *uint256.Int) error {
	bal := m.NativeBalance(from)
	if bal.Lt(amount) {
		return fmt.Errorf("insufficient native balance at %s", from)
	}
	m.state.native[from] = new(uint256.Int).Sub(bal, amount)
	m.state.native[to] = new(uint256.Int).Add(m.NativeBalance(to), amount)
	return nil
}

func (m *MockLedger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	key := allowanceKey{token, owner, spender}
	m.state.allowances[key] = new(big.Int).Set(amount)
	m.approvals = append(m.approvals, key)
	return nil
}

func (m *MockLedger) Allowance(token, owner, spender common.Address) *big.Int {
	if amt, ok := m.state.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(amt)
	}
	return new(big.Int)
}

func (m *MockLedger) Wrap(account common.Address, amount *big.Int) error {
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return errors.New("wrap amount overflow")
	}
	bal := m.NativeBalance(account)
	if bal.Lt(value) {
		return errors.New("insufficient native balance to wrap")
	}
	m.state.native[account] = new(uint256.Int).Sub(bal, value)
	m.SetBalance(m.wrappedNative, account, new(big.Int).Add(m.BalanceOf(m.wrappedNative, account), amount))
	return nil
}

func (m *MockLedger) Unwrap(account common.Address, amount *big.Int) error {
	bal := m.BalanceOf(m.wrappedNative, account)
	if bal.Cmp(amount) < 0 {
		return errors.New("insufficient wrapped balance to unwrap")
	}
	m.SetBalance(m.wrappedNative, account, new(big.Int).Sub(bal, amount))
	value, _ := uint256.FromBig(amount)
	m.state.native[account] = new(uint256.Int).Add(m.NativeBalance(account), value)
	return nil
}

func (m *MockLedger) CodeSize(account common.Address) int {
	return m.code[account]
}

func (m *MockLedger) Snapshot() int {
	m.snaps = append(m.snaps, m.state.clone())
	return len(m.snaps) - 1
}

func (m *MockLedger) RevertToSnapshot(revision int) {
	if revision < 0 || revision >= len(m.snaps) {
		return
	}
	m.state = m.snaps[revision].clone()
	m.snaps = m.snaps[:revision]
}

// mockBackend is a PoolBackend exchanging at a fixed num/den rate. The
// backend's own account must be funded with output tokens.
type mockBackend struct {
	self        common.Address
	rateNum     int64
	rateDen     int64
	estimateErr error
	swapErr     error
	paused      map[common.Address]bool
}

func newMockBackend(self common.Address) *mockBackend {
	return &mockBackend{self: self, rateNum: 1, rateDen: 1, paused: make(map[common.Address]bool)}
}

func (b *mockBackend) out(amountIn *big.Int) *big.Int {
	v := new(big.Int).Mul(amountIn, big.NewInt(b.rateNum))
	return v.Quo(v, big.NewInt(b.rateDen))
}

func (b *mockBackend) EstimateSingle(pool, assetIn, assetOut common.Address, indexIn, indexOut int, fee uint32, amountIn *big.Int) (*big.Int, error) {
	if b.estimateErr != nil {
		return nil, b.estimateErr
	}
	return b.out(amountIn), nil
}

func (b *mockBackend) EstimatePath(path []byte, amountIn *big.Int) (*big.Int, error) {
	if b.estimateErr != nil {
		return nil, b.estimateErr
	}
	return b.out(amountIn), nil
}

func (b *mockBackend) SwapSingle(ledger Ledger, pool, assetIn, assetOut common.Address, indexIn, indexOut int, fee uint32, amountIn, minAmountOut *big.Int, from, recipient common.Address) (*big.Int, error) {
	if b.swapErr != nil {
		return nil, b.swapErr
	}
	if err := ledger.Transfer(assetIn, from, b.self, amountIn); err != nil {
		return nil, err
	}
	amountOut := b.out(amountIn)
	if err := ledger.Transfer(assetOut, b.self, recipient, amountOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

func (b *mockBackend) SwapPath(ledger Ledger, path []byte, amountIn, minAmountOut *big.Int, from, recipient common.Address) (*big.Int, error) {
	if b.swapErr != nil {
		return nil, b.swapErr
	}
	if len(path) < pathAddrLen+pathHopLen {
		return nil, errors.New("short path")
	}
	assetIn := common.BytesToAddress(path[:pathAddrLen])
	assetOut := common.BytesToAddress(path[len(path)-pathAddrLen:])
	if err := ledger.Transfer(assetIn, from, b.self, amountIn); err != nil {
		return nil, err
	}
	amountOut := b.out(amountIn)
	if err := ledger.Transfer(assetOut, b.self, recipient, amountOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

func (b *mockBackend) PoolPaused(pool common.Address) bool {
	return b.paused[pool]
}

// mockMinter credits shares 1:1 with the deposit.
type mockMinter struct {
	self    common.Address
	share   common.Address
	deposit common.Address
	mintErr error
}

func (m *mockMinter) Mint(ledger Ledger, depositor, recipient common.Address, amount *big.Int) (*big.Int, error) {
	if m.mintErr != nil {
		return nil, m.mintErr
	}
	if err := ledger.Transfer(m.deposit, depositor, m.self, amount); err != nil {
		return nil, err
	}
	if err := ledger.Transfer(m.share, m.self, recipient, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// mockRawCaller performs a scripted token exchange on behalf of the
// sandbox, ignoring the call data payload.
type mockRawCaller struct {
	backend  *mockBackend
	assetIn  common.Address
	assetOut common.Address
	amountIn *big.Int
	callErr  error
	lastGas  uint64
}

func (c *mockRawCaller) Call(ledger Ledger, caller, target common.Address, data []byte, gasLimit uint64) ([]byte, error) {
	c.lastGas = gasLimit
	if c.callErr != nil {
		return nil, c.callErr
	}
	if err := ledger.Transfer(c.assetIn, caller, c.backend.self, c.amountIn); err != nil {
		return nil, err
	}
	out := c.backend.out(c.amountIn)
	if err := ledger.Transfer(c.assetOut, c.backend.self, caller, out); err != nil {
		return nil, err
	}
	return nil, nil
}

// mockSink captures emitted receipts.
type mockSink struct {
	receipts []SwapReceipt
}

func (s *mockSink) EmitSwap(r SwapReceipt) {
	s.receipts = append(s.receipts, r)
}
