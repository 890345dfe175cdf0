// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// pairKey derives the storage key for a directed asset pair.
func pairKey(assetIn, assetOut common.Address) [32]byte {
	h := blake3.New()
	h.Write(assetIn.Bytes())
	h.Write(assetOut.Bytes())
	var key [32]byte
	h.Digest().Read(key[:])
	return key
}

// poolLockKey derives the lock key for pool-scoped configuration.
func poolLockKey(pool common.Address) [32]byte {
	h := blake3.New()
	h.Write([]byte("pool"))
	h.Write(pool.Bytes())
	var key [32]byte
	h.Digest().Read(key[:])
	return key
}

// configLocks is a time-boxed reservation per configuration key. Two
// overlapping mutations of the same key cannot interleave: the second
// fails with ErrConfigLocked until the first releases or the window
// expires.
type configLocks struct {
	mu     sync.Mutex
	window time.Duration
	expiry map[[32]byte]time.Time
	now    func() time.Time
}

func newConfigLocks(window time.Duration, now func() time.Time) *configLocks {
	return &configLocks{
		window: window,
		expiry: make(map[[32]byte]time.Time),
		now:    now,
	}
}

func (l *configLocks) acquire(key [32]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if deadline, held := l.expiry[key]; held && now.Before(deadline) {
		return ErrConfigLocked
	}
	l.expiry[key] = now.Add(l.window)
	return nil
}

// release clears the reservation. Called unconditionally at the end of
// every mutating operation, including on failure.
func (l *configLocks) release(key [32]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expiry, key)
}

// Registry holds the engine's process-wide configuration: routes,
// slippage tolerances, asset metadata and pool whitelists. It is
// mutated only by the owner or the route manager and read by every
// swap execution.
type Registry struct {
	mu sync.RWMutex

	owner        common.Address
	routeManager common.Address

	assets       map[common.Address]AssetInfo
	routes       map[[32]byte]RouteConfig
	slippage     map[[32]byte]uint32
	whitelisted  map[common.Address]bool
	pausedPools  map[common.Address]bool
	pairOverride map[[32]byte]bool // skip pool listing checks for this pair

	locks *configLocks
	store *Store // optional write-through persistence
}

// NewRegistry creates an empty registry owned by owner. store may be
// nil for a purely in-memory registry; now may be nil to use wall time.
func NewRegistry(owner common.Address, store *Store, now func() time.Time) (*Registry, error) {
	if now == nil {
		now = time.Now
	}
	r := &Registry{
		owner:        owner,
		assets:       make(map[common.Address]AssetInfo),
		routes:       make(map[[32]byte]RouteConfig),
		slippage:     make(map[[32]byte]uint32),
		whitelisted:  make(map[common.Address]bool),
		pausedPools:  make(map[common.Address]bool),
		pairOverride: make(map[[32]byte]bool),
		locks:        newConfigLocks(ConfigLockWindow, now),
		store:        store,
	}
	if store != nil {
		if err := store.loadInto(r); err != nil {
			return nil, fmt.Errorf("load registry state: %w", err)
		}
	}
	return r, nil
}

// Owner returns the registry owner.
func (r *Registry) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// RouteManager returns the configured route manager address.
func (r *Registry) RouteManager() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routeManager
}

func (r *Registry) isOwner(caller common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return caller == r.owner
}

func (r *Registry) canManageRoutes(caller common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return caller == r.owner || (r.routeManager != (common.Address{}) && caller == r.routeManager)
}

// SetRouteManager grants route management rights to addr. Owner only.
func (r *Registry) SetRouteManager(caller, addr common.Address) error {
	if !r.isOwner(caller) {
		return ErrNotOwner
	}
	r.mu.Lock()
	r.routeManager = addr
	r.mu.Unlock()
	return nil
}

// =========================================================================
// Assets
// =========================================================================

// SupportAsset registers or updates asset metadata. Owner only.
func (r *Registry) SupportAsset(caller, asset common.Address, info AssetInfo) error {
	if !r.isOwner(caller) {
		return ErrNotOwner
	}

	key := poolLockKey(asset)
	if err := r.locks.acquire(key); err != nil {
		return err
	}
	defer r.locks.release(key)

	r.mu.Lock()
	r.assets[asset] = info
	r.mu.Unlock()

	if r.store != nil {
		return r.store.putAsset(asset, info)
	}
	return nil
}

// SupportAssets is the batch form of SupportAsset.
func (r *Registry) SupportAssets(caller common.Address, assets []common.Address, infos []AssetInfo) error {
	if len(assets) != len(infos) {
		return ErrLengthMismatch
	}
	for i, asset := range assets {
		if err := r.SupportAsset(caller, asset, infos[i]); err != nil {
			return fmt.Errorf("asset %s: %w", asset, err)
		}
	}
	return nil
}

// Asset returns the stored metadata for asset. The zero AssetInfo is
// returned for unknown assets.
func (r *Registry) Asset(asset common.Address) AssetInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assets[asset]
}

// =========================================================================
// Routes
// =========================================================================

// SetRoute installs the route for assetIn -> assetOut. Owner or route
// manager. The route must carry executable data.
func (r *Registry) SetRoute(caller, assetIn, assetOut common.Address, route RouteConfig) error {
	if !r.canManageRoutes(caller) {
		return ErrNotRouteManager
	}
	if !route.Exists() {
		return ErrRouteIncomplete
	}

	key := pairKey(assetIn, assetOut)
	if err := r.locks.acquire(key); err != nil {
		return err
	}
	defer r.locks.release(key)

	r.mu.Lock()
	r.routes[key] = route
	r.mu.Unlock()

	if r.store != nil {
		return r.store.putRoute(assetIn, assetOut, route)
	}
	return nil
}

// SetRoutes is the batch form of SetRoute.
func (r *Registry) SetRoutes(caller common.Address, assetsIn, assetsOut []common.Address, routes []RouteConfig) error {
	if len(assetsIn) != len(assetsOut) || len(assetsIn) != len(routes) {
		return ErrLengthMismatch
	}
	for i := range assetsIn {
		if err := r.SetRoute(caller, assetsIn[i], assetsOut[i], routes[i]); err != nil {
			return fmt.Errorf("pair %s->%s: %w", assetsIn[i], assetsOut[i], err)
		}
	}
	return nil
}

// SetDirectMintRoute installs a deposit-and-mint route for
// assetIn -> assetOut through minter.
func (r *Registry) SetDirectMintRoute(caller, assetIn, assetOut, minter common.Address) error {
	return r.SetRoute(caller, assetIn, assetOut, RouteConfig{Kind: KindDirectMint, Minter: minter})
}

// RemoveRoute deletes the route for assetIn -> assetOut.
func (r *Registry) RemoveRoute(caller, assetIn, assetOut common.Address) error {
	if !r.canManageRoutes(caller) {
		return ErrNotRouteManager
	}

	key := pairKey(assetIn, assetOut)
	if err := r.locks.acquire(key); err != nil {
		return err
	}
	defer r.locks.release(key)

	r.mu.Lock()
	delete(r.routes, key)
	r.mu.Unlock()

	if r.store != nil {
		return r.store.deleteRoute(assetIn, assetOut)
	}
	return nil
}

// Route returns the configured route for the pair and whether one
// exists.
func (r *Registry) Route(assetIn, assetOut common.Address) (RouteConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[pairKey(assetIn, assetOut)]
	return route, ok && route.Exists()
}

// HasRoute reports whether an executable route exists for the pair.
func (r *Registry) HasRoute(assetIn, assetOut common.Address) bool {
	_, ok := r.Route(assetIn, assetOut)
	return ok
}

// =========================================================================
// Slippage
// =========================================================================

// SetSlippage configures the pair's tolerance in basis points, capped
// at MaxSlippageBps. Zero clears the configuration. Owner only.
func (r *Registry) SetSlippage(caller, assetIn, assetOut common.Address, bps uint32) error {
	if !r.isOwner(caller) {
		return ErrNotOwner
	}
	if bps > MaxSlippageBps {
		return ErrSlippageTooHigh
	}

	key := pairKey(assetIn, assetOut)
	if err := r.locks.acquire(key); err != nil {
		return err
	}
	defer r.locks.release(key)

	r.mu.Lock()
	if bps == 0 {
		delete(r.slippage, key)
	} else {
		r.slippage[key] = bps
	}
	r.mu.Unlock()

	if r.store != nil {
		return r.store.putSlippage(assetIn, assetOut, bps)
	}
	return nil
}

// SetSlippages is the batch form of SetSlippage.
func (r *Registry) SetSlippages(caller common.Address, assetsIn, assetsOut []common.Address, bps []uint32) error {
	if len(assetsIn) != len(assetsOut) || len(assetsIn) != len(bps) {
		return ErrLengthMismatch
	}
	for i := range assetsIn {
		if err := r.SetSlippage(caller, assetsIn[i], assetsOut[i], bps[i]); err != nil {
			return fmt.Errorf("pair %s->%s: %w", assetsIn[i], assetsOut[i], err)
		}
	}
	return nil
}

// SlippageBps returns the configured tolerance for the pair; zero means
// unset.
func (r *Registry) SlippageBps(assetIn, assetOut common.Address) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slippage[pairKey(assetIn, assetOut)]
}

// =========================================================================
// Pools
// =========================================================================

// WhitelistPool lists or unlists a pool for direct-pool execution.
// Owner only.
func (r *Registry) WhitelistPool(caller, pool common.Address, listed bool) error {
	if !r.isOwner(caller) {
		return ErrNotOwner
	}

	key := poolLockKey(pool)
	if err := r.locks.acquire(key); err != nil {
		return err
	}
	defer r.locks.release(key)

	r.mu.Lock()
	if listed {
		r.whitelisted[pool] = true
	} else {
		delete(r.whitelisted, pool)
	}
	r.mu.Unlock()

	if r.store != nil {
		return r.store.putWhitelist(pool, listed)
	}
	return nil
}

// PausePool trips the per-pool breaker. Owner only; no lock window, a
// breaker must always be reachable immediately.
func (r *Registry) PausePool(caller, pool common.Address) error {
	if !r.isOwner(caller) {
		return ErrNotOwner
	}
	r.mu.Lock()
	r.pausedPools[pool] = true
	r.mu.Unlock()
	return nil
}

// UnpausePool clears the per-pool breaker. Owner only.
func (r *Registry) UnpausePool(caller, pool common.Address) error {
	if !r.isOwner(caller) {
		return ErrNotOwner
	}
	r.mu.Lock()
	delete(r.pausedPools, pool)
	r.mu.Unlock()
	return nil
}

// SetPairOverride lets the pair bypass the pool listing and pause
// checks. Owner only.
func (r *Registry) SetPairOverride(caller, assetIn, assetOut common.Address, enabled bool) error {
	if !r.isOwner(caller) {
		return ErrNotOwner
	}
	r.mu.Lock()
	if enabled {
		r.pairOverride[pairKey(assetIn, assetOut)] = true
	} else {
		delete(r.pairOverride, pairKey(assetIn, assetOut))
	}
	r.mu.Unlock()
	return nil
}

// IsWhitelisted reports whether pool is listed.
func (r *Registry) IsWhitelisted(pool common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.whitelisted[pool]
}

// IsPoolPaused reports whether the per-pool breaker is tripped.
func (r *Registry) IsPoolPaused(pool common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pausedPools[pool]
}

// PairOverride reports whether the pair bypasses pool checks.
func (r *Registry) PairOverride(assetIn, assetOut common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pairOverride[pairKey(assetIn, assetOut)]
}
