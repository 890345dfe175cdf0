// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

// Config parameterizes an Engine.
type Config struct {
	// Owner administers configuration and emergency controls.
	Owner common.Address `json:"owner"`

	// Self is the engine's own account; it custodies funds for the
	// duration of a swap and anchors the backend-registration secret.
	Self common.Address `json:"self"`

	// WrappedNative is the token form of the chain's native asset.
	WrappedNative common.Address `json:"wrappedNative"`

	// WrappedBTC is the bridge asset for BTC-wrapped auto-routing.
	WrappedBTC common.Address `json:"wrappedBTC"`

	// SecretDigest gates dynamic backend registration. It is
	// keccak256(secret || Self), so a secret captured from one
	// deployment cannot be replayed against another.
	SecretDigest common.Hash `json:"secretDigest"`

	// GasCeiling bounds raw sandbox calls. Zero selects CallGasCeiling.
	GasCeiling uint64 `json:"gasCeiling"`
}

// Verify checks the config for completeness.
func (c *Config) Verify() error {
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("owner address not set")
	}
	if c.Self == (common.Address{}) {
		return fmt.Errorf("engine address not set")
	}
	if c.WrappedNative == (common.Address{}) {
		return fmt.Errorf("wrapped native address not set")
	}
	return nil
}

// attemptTag classifies one execution attempt.
type attemptTag uint8

const (
	attemptOK attemptTag = iota
	attemptQuoteFailed
	attemptExecFailed
)

// attemptResult is the outcome of one executor invocation. Executor
// failure is data, not control flow; the engine decides whether a
// fallback attempt follows.
type attemptResult struct {
	tag       attemptTag
	amountOut *big.Int
	err       error
}

// Engine routes swaps across liquidity backends. One Engine instance
// serves all pairs; all entry points are safe for concurrent use.
type Engine struct {
	cfg      Config
	registry *Registry
	ledger   Ledger
	raw      RawCaller
	sink     ReceiptSink
	logger   log.Logger
	metrics  *metrics
	now      func() time.Time

	wrappedNative common.Address
	wrappedBTC    common.Address
	self          common.Address

	backendMu sync.RWMutex
	backends  map[common.Address]PoolBackend
	minters   map[common.Address]Minter

	// dynamic raw-call backends, managed by sandbox.go
	dexMu      sync.RWMutex
	dexList    []BackendRegistration
	dexIndex   map[common.Address]int
	dangerous  map[[4]byte]string
	gasCeiling uint64
	store      *Store // shared with the registry; nil disables persistence

	mu              sync.Mutex
	locked          bool
	paused          bool
	pausedProtocols map[BackendKind]bool

	receipts *receiptRing
}

// Options carries the optional collaborators of an Engine.
type Options struct {
	RawCaller RawCaller
	Sink      ReceiptSink
	Logger    log.Logger
	Metrics   *metrics
	Now       func() time.Time
}

// NewEngine wires an Engine over a verified config, a registry and a
// ledger.
func NewEngine(cfg Config, registry *Registry, ledger Ledger, opts Options) (*Engine, error) {
	if err := cfg.Verify(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if registry == nil || ledger == nil {
		return nil, fmt.Errorf("registry and ledger are required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger("swaprouter")
	}
	gas := cfg.GasCeiling
	if gas == 0 {
		gas = CallGasCeiling
	}
	e := &Engine{
		cfg:             cfg,
		registry:        registry,
		ledger:          ledger,
		raw:             opts.RawCaller,
		sink:            opts.Sink,
		logger:          logger,
		metrics:         opts.Metrics,
		now:             now,
		wrappedNative:   cfg.WrappedNative,
		wrappedBTC:      cfg.WrappedBTC,
		self:            cfg.Self,
		backends:        make(map[common.Address]PoolBackend),
		minters:         make(map[common.Address]Minter),
		dexIndex:        make(map[common.Address]int),
		dangerous:       dangerousSelectorSet(),
		gasCeiling:      gas,
		pausedProtocols: make(map[BackendKind]bool),
		store:           registry.store,
		receipts:        newReceiptRing(receiptRingSize),
	}
	if e.store != nil {
		regs, err := e.store.loadBackends()
		if err != nil {
			return nil, fmt.Errorf("load backend registrations: %w", err)
		}
		for _, reg := range regs {
			e.dexIndex[reg.Address] = len(e.dexList)
			e.dexList = append(e.dexList, reg)
		}
	}
	return e, nil
}

// Registry exposes the engine's configuration tables.
func (e *Engine) Registry() *Registry { return e.registry }

// enter takes the reentrancy guard.
func (e *Engine) enter() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrReentrant
	}
	e.locked = true
	return nil
}

func (e *Engine) exit() {
	e.mu.Lock()
	e.locked = false
	e.mu.Unlock()
}

// =========================================================================
// Typed backend adapters
// =========================================================================

// RegisterPoolBackend installs the typed adapter serving backend
// routes at addr. Owner only.
func (e *Engine) RegisterPoolBackend(caller, addr common.Address, backend PoolBackend) error {
	if caller != e.registry.Owner() {
		return ErrNotOwner
	}
	e.backendMu.Lock()
	e.backends[addr] = backend
	e.backendMu.Unlock()
	return nil
}

// RegisterMinter installs the deposit-and-mint adapter at addr. Owner
// only.
func (e *Engine) RegisterMinter(caller, addr common.Address, minter Minter) error {
	if caller != e.registry.Owner() {
		return ErrNotOwner
	}
	e.backendMu.Lock()
	e.minters[addr] = minter
	e.backendMu.Unlock()
	return nil
}

func (e *Engine) backendFor(addr common.Address) (PoolBackend, bool) {
	e.backendMu.RLock()
	defer e.backendMu.RUnlock()
	b, ok := e.backends[addr]
	return b, ok
}

func (e *Engine) minterFor(addr common.Address) (Minter, bool) {
	e.backendMu.RLock()
	defer e.backendMu.RUnlock()
	m, ok := e.minters[addr]
	return m, ok
}

// =========================================================================
// Route configuration
// =========================================================================

// ConfigureRoute installs a route after validating the deployment
// secret. The registry's own authorization still applies on top.
func (e *Engine) ConfigureRoute(caller, assetIn, assetOut common.Address, route RouteConfig, secret []byte) error {
	if err := e.verifySecret(secret); err != nil {
		return err
	}
	return e.registry.SetRoute(caller, assetIn, assetOut, route)
}

// ConfigureDirectMintRoute installs a deposit-and-mint route after
// validating the deployment secret.
func (e *Engine) ConfigureDirectMintRoute(caller, assetIn, assetOut, minter common.Address, secret []byte) error {
	if err := e.verifySecret(secret); err != nil {
		return err
	}
	return e.registry.SetDirectMintRoute(caller, assetIn, assetOut, minter)
}

// =========================================================================
// Pause controls
// =========================================================================

// Pause halts every swap entry point. Owner only.
func (e *Engine) Pause(caller common.Address) error {
	if caller != e.registry.Owner() {
		return ErrNotOwner
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.logger.Warn("engine paused", "by", caller)
	return nil
}

// Unpause resumes swapping. Owner only.
func (e *Engine) Unpause(caller common.Address) error {
	if caller != e.registry.Owner() {
		return ErrNotOwner
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.logger.Info("engine unpaused", "by", caller)
	return nil
}

// Paused reports the engine-level pause flag.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// PauseProtocol trips the breaker for one backend protocol family.
// Owner only.
func (e *Engine) PauseProtocol(caller common.Address, kind BackendKind) error {
	if caller != e.registry.Owner() {
		return ErrNotOwner
	}
	e.mu.Lock()
	e.pausedProtocols[kind] = true
	e.mu.Unlock()
	e.logger.Warn("protocol paused", "kind", kind.String(), "by", caller)
	return nil
}

// UnpauseProtocol clears the protocol breaker. Owner only.
func (e *Engine) UnpauseProtocol(caller common.Address, kind BackendKind) error {
	if caller != e.registry.Owner() {
		return ErrNotOwner
	}
	e.mu.Lock()
	delete(e.pausedProtocols, kind)
	e.mu.Unlock()
	return nil
}

// ProtocolPaused reports whether the breaker for one backend protocol
// family is tripped.
func (e *Engine) ProtocolPaused(kind BackendKind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pausedProtocols[kind]
}

// EmergencyWithdraw moves stranded funds out of the engine account.
// Owner only, and only while the engine is globally paused; the pause
// requirement keeps rescue withdrawals from racing in-flight swaps.
// A zero token address withdraws native balance.
func (e *Engine) EmergencyWithdraw(caller, token, to common.Address, amount *big.Int) error {
	if caller != e.registry.Owner() {
		return ErrNotOwner
	}
	if !e.Paused() {
		return ErrEngineNotPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if token == NativeAsset {
		value, overflow := uint256.FromBig(amount)
		if overflow {
			return fmt.Errorf("native amount overflows u256")
		}
		if err := e.ledger.TransferNative(e.self, to, value); err != nil {
			return fmt.Errorf("emergency native withdraw: %w", err)
		}
	} else {
		if err := e.ledger.Transfer(token, e.self, to, amount); err != nil {
			return fmt.Errorf("emergency token withdraw: %w", err)
		}
	}
	e.logger.Warn("emergency withdrawal", "token", token, "to", to, "amount", amount)
	return nil
}

// =========================================================================
// Swap
// =========================================================================

// executionPair maps the request pair onto the route table: the native
// pseudo-asset executes as its wrapped token.
func (e *Engine) executionPair(assetIn, assetOut common.Address) (common.Address, common.Address) {
	in, out := assetIn, assetOut
	if in == NativeAsset {
		in = e.wrappedNative
	}
	if out == NativeAsset {
		out = e.wrappedNative
	}
	return in, out
}

func (e *Engine) validateRequest(req SwapRequest) error {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return ErrZeroAmount
	}
	if req.AssetIn == req.AssetOut {
		return ErrSameAsset
	}
	if !e.registry.isSupported(req.AssetIn) {
		return fmt.Errorf("%w: %s", ErrAssetNotSupported, req.AssetIn)
	}
	if !e.registry.isSupported(req.AssetOut) {
		return fmt.Errorf("%w: %s", ErrAssetNotSupported, req.AssetOut)
	}
	return nil
}

// checkRouteAvailable enforces the pause hierarchy for a route: engine,
// protocol family, then pool. The per-pair override bypasses the pool
// listing check and the engine's own per-pool breaker, but never the
// breakers above it or the protocol's own paused signal.
func (e *Engine) checkRouteAvailable(assetIn, assetOut common.Address, route RouteConfig) error {
	if e.Paused() {
		return ErrEnginePaused
	}
	if e.ProtocolPaused(route.Kind) {
		return fmt.Errorf("%w: %s", ErrProtocolPaused, route.Kind)
	}
	if route.Pool == (common.Address{}) {
		return nil
	}
	if backend, ok := e.backendFor(route.Backend); ok && backend.PoolPaused(route.Pool) {
		return fmt.Errorf("%w: %s", ErrPoolPaused, route.Pool)
	}
	if e.registry.PairOverride(assetIn, assetOut) {
		return nil
	}
	if e.registry.IsPoolPaused(route.Pool) {
		return fmt.Errorf("%w: %s", ErrPoolPaused, route.Pool)
	}
	if !e.registry.IsWhitelisted(route.Pool) {
		return fmt.Errorf("%w: %s", ErrPoolNotWhitelisted, route.Pool)
	}
	return nil
}

// pullInput takes custody of the swap input. Native input must arrive
// as attached value; the surplus over AmountIn is returned to the
// caller immediately and the rest is wrapped so every executor sees a
// token.
func (e *Engine) pullInput(caller common.Address, req SwapRequest) error {
	if req.AssetIn != NativeAsset {
		if err := e.ledger.Transfer(req.AssetIn, caller, e.self, req.AmountIn); err != nil {
			return fmt.Errorf("pull input: %w", err)
		}
		return nil
	}

	value := req.Value
	if value == nil || value.Cmp(req.AmountIn) < 0 {
		return ErrInsufficientValue
	}
	attached, overflow := uint256.FromBig(value)
	if overflow {
		return fmt.Errorf("attached value overflows u256")
	}
	if err := e.ledger.TransferNative(caller, e.self, attached); err != nil {
		return fmt.Errorf("pull native input: %w", err)
	}
	if excess := new(big.Int).Sub(value, req.AmountIn); excess.Sign() > 0 {
		refund, _ := uint256.FromBig(excess)
		if err := e.ledger.TransferNative(e.self, caller, refund); err != nil {
			return fmt.Errorf("refund excess value: %w", err)
		}
	}
	if err := e.ledger.Wrap(e.self, req.AmountIn); err != nil {
		return fmt.Errorf("wrap native input: %w", err)
	}
	return nil
}

// deliverOutput hands the realized output to the caller, unwrapping
// first when the request asked for native.
func (e *Engine) deliverOutput(caller common.Address, assetOut common.Address, amountOut *big.Int) error {
	if assetOut != NativeAsset {
		if err := e.ledger.Transfer(assetOut, e.self, caller, amountOut); err != nil {
			return fmt.Errorf("deliver output: %w", err)
		}
		return nil
	}
	if err := e.ledger.Unwrap(e.self, amountOut); err != nil {
		return fmt.Errorf("unwrap output: %w", err)
	}
	value, overflow := uint256.FromBig(amountOut)
	if overflow {
		return fmt.Errorf("output overflows u256")
	}
	if err := e.ledger.TransferNative(e.self, caller, value); err != nil {
		return fmt.Errorf("deliver native output: %w", err)
	}
	return nil
}

func maxBig(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil || a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Swap executes one configured-route swap for caller. The whole call is
// atomic: on any terminal failure every balance movement, including the
// pulled input, is reverted.
func (e *Engine) Swap(caller common.Address, req SwapRequest) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	return e.swapLocked(caller, req)
}

// swapLocked runs the swap state machine. The reentrancy guard must be
// held.
func (e *Engine) swapLocked(caller common.Address, req SwapRequest) (*big.Int, error) {
	started := e.now()

	if err := e.validateRequest(req); err != nil {
		return nil, err
	}

	in, out := e.executionPair(req.AssetIn, req.AssetOut)
	route, ok := e.registry.Route(in, out)
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, req.AssetIn, req.AssetOut)
	}
	if err := e.checkRouteAvailable(in, out, route); err != nil {
		return nil, err
	}

	outer := e.ledger.Snapshot()
	amountOut, fellBack, err := func() (*big.Int, bool, error) {
		if err := e.pullInput(caller, req); err != nil {
			return nil, false, err
		}

		amountOut, fellBack, err := e.runAttempts(in, out, route, req.AmountIn, req.MinAmountOut)
		if err != nil {
			return nil, fellBack, err
		}

		if err := e.deliverOutput(caller, req.AssetOut, amountOut); err != nil {
			return nil, fellBack, err
		}
		return amountOut, fellBack, nil
	}()
	if err != nil {
		e.ledger.RevertToSnapshot(outer)
		e.metrics.swapFailed(route.Kind)
		e.logger.Error("swap failed",
			"caller", caller, "assetIn", req.AssetIn, "assetOut", req.AssetOut,
			"amountIn", req.AmountIn, "err", err)
		return nil, err
	}

	receipt := e.emitReceipt(caller, req, route, amountOut, fellBack)
	e.metrics.swapDone(route.Kind, fellBack, e.now().Sub(started))
	e.logger.Info("swap completed",
		"id", receipt.ID, "caller", caller,
		"assetIn", req.AssetIn, "assetOut", req.AssetOut,
		"amountIn", req.AmountIn, "amountOut", amountOut,
		"kind", route.Kind.String(), "fallback", fellBack)
	return amountOut, nil
}

// runAttempts performs the primary quote-bounded attempt and, when it
// cannot complete, exactly one fallback attempt with configured bounds.
// The input must already be in engine custody as a token.
func (e *Engine) runAttempts(assetIn, assetOut common.Address, route RouteConfig, amountIn, callerMin *big.Int) (*big.Int, bool, error) {
	primary := e.attemptQuoted(assetIn, assetOut, route, amountIn, callerMin)
	if primary.tag == attemptOK {
		return primary.amountOut, false, nil
	}

	fallback := e.attemptFallback(assetIn, assetOut, route, amountIn, callerMin)
	if fallback.tag == attemptOK {
		return fallback.amountOut, true, nil
	}
	if fallback.err != nil {
		return nil, true, fallback.err
	}
	return nil, true, ErrSwapFailed
}

// attemptQuoted is the primary attempt: tight bound off a fresh quote.
// A stale or invalid quote fails the attempt without executing.
func (e *Engine) attemptQuoted(assetIn, assetOut common.Address, route RouteConfig, amountIn, callerMin *big.Int) attemptResult {
	quote := e.quoteRoute(assetIn, assetOut, route, amountIn)
	minOut := quoteMinOut(quote, e.now())
	if minOut == nil {
		e.metrics.quoteInvalid(route.Kind)
		return attemptResult{tag: attemptQuoteFailed}
	}
	bound := maxBig(minOut, callerMin)

	snap := e.ledger.Snapshot()
	out, err := e.executeRoute(assetIn, assetOut, route, amountIn, bound)
	if err != nil {
		e.ledger.RevertToSnapshot(snap)
		return attemptResult{tag: attemptExecFailed, err: err}
	}
	if out.Cmp(bound) < 0 {
		e.ledger.RevertToSnapshot(snap)
		return attemptResult{tag: attemptExecFailed, err: ErrInsufficientOutput}
	}
	return attemptResult{tag: attemptOK, amountOut: out}
}

// attemptFallback bounds the swap with configured or category-default
// tolerance. Its failure is terminal.
func (e *Engine) attemptFallback(assetIn, assetOut common.Address, route RouteConfig, amountIn, callerMin *big.Int) attemptResult {
	minOut, err := e.fallbackMinOut(assetIn, assetOut, amountIn)
	if err != nil {
		return attemptResult{tag: attemptExecFailed, err: err}
	}
	bound := maxBig(minOut, callerMin)

	snap := e.ledger.Snapshot()
	out, err := e.executeRoute(assetIn, assetOut, route, amountIn, bound)
	if err != nil {
		e.ledger.RevertToSnapshot(snap)
		return attemptResult{tag: attemptExecFailed, err: fmt.Errorf("%w: %v", ErrSwapFailed, err)}
	}
	if out.Cmp(bound) < 0 {
		e.ledger.RevertToSnapshot(snap)
		return attemptResult{tag: attemptExecFailed, err: ErrInsufficientOutput}
	}
	return attemptResult{tag: attemptOK, amountOut: out}
}
