// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/geth/common"
)

var (
	routePrefix     = []byte("routes")
	slippagePrefix  = []byte("slippage")
	assetPrefix     = []byte("assets")
	whitelistPrefix = []byte("pools")
	backendPrefix   = []byte("backends")
)

// Store persists the registry's configuration tables so they survive a
// restart. The in-memory maps stay the read path; the store is
// write-through on mutation and replayed on construction.
type Store struct {
	routes    database.Database
	slippage  database.Database
	assets    database.Database
	whitelist database.Database
	backends  database.Database
}

// NewStore namespaces the configuration tables inside db.
func NewStore(db database.Database) *Store {
	return &Store{
		routes:    prefixdb.New(routePrefix, db),
		slippage:  prefixdb.New(slippagePrefix, db),
		assets:    prefixdb.New(assetPrefix, db),
		whitelist: prefixdb.New(whitelistPrefix, db),
		backends:  prefixdb.New(backendPrefix, db),
	}
}

func pairStoreKey(assetIn, assetOut common.Address) []byte {
	key := make([]byte, 0, 2*common.AddressLength)
	key = append(key, assetIn.Bytes()...)
	key = append(key, assetOut.Bytes()...)
	return key
}

func splitPairStoreKey(key []byte) (common.Address, common.Address, error) {
	if len(key) != 2*common.AddressLength {
		return common.Address{}, common.Address{}, fmt.Errorf("malformed pair key of %d bytes", len(key))
	}
	return common.BytesToAddress(key[:common.AddressLength]),
		common.BytesToAddress(key[common.AddressLength:]), nil
}

func (s *Store) putRoute(assetIn, assetOut common.Address, route RouteConfig) error {
	raw, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("encode route: %w", err)
	}
	return s.routes.Put(pairStoreKey(assetIn, assetOut), raw)
}

func (s *Store) deleteRoute(assetIn, assetOut common.Address) error {
	return s.routes.Delete(pairStoreKey(assetIn, assetOut))
}

func (s *Store) putSlippage(assetIn, assetOut common.Address, bps uint32) error {
	key := pairStoreKey(assetIn, assetOut)
	if bps == 0 {
		return s.slippage.Delete(key)
	}
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, bps)
	return s.slippage.Put(key, raw)
}

func (s *Store) putAsset(asset common.Address, info AssetInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode asset: %w", err)
	}
	return s.assets.Put(asset.Bytes(), raw)
}

func (s *Store) putWhitelist(pool common.Address, listed bool) error {
	if !listed {
		return s.whitelist.Delete(pool.Bytes())
	}
	return s.whitelist.Put(pool.Bytes(), []byte{1})
}

func (s *Store) putBackend(reg BackendRegistration) error {
	raw, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode backend: %w", err)
	}
	return s.backends.Put(reg.Address.Bytes(), raw)
}

func (s *Store) deleteBackend(addr common.Address) error {
	return s.backends.Delete(addr.Bytes())
}

// loadBackends replays the persisted backend registrations.
func (s *Store) loadBackends() ([]BackendRegistration, error) {
	it := s.backends.NewIterator()
	defer it.Release()

	var out []BackendRegistration
	for it.Next() {
		var reg BackendRegistration
		if err := json.Unmarshal(it.Value(), &reg); err != nil {
			return nil, fmt.Errorf("decode backend %s: %w", common.BytesToAddress(it.Key()), err)
		}
		out = append(out, reg)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate backends: %w", err)
	}
	return out, nil
}

// loadInto replays every persisted table into the registry's maps.
// Called once from NewRegistry, before the registry is shared.
func (s *Store) loadInto(r *Registry) error {
	it := s.routes.NewIterator()
	defer it.Release()
	for it.Next() {
		in, out, err := splitPairStoreKey(it.Key())
		if err != nil {
			return fmt.Errorf("route table: %w", err)
		}
		var route RouteConfig
		if err := json.Unmarshal(it.Value(), &route); err != nil {
			return fmt.Errorf("decode route %s->%s: %w", in, out, err)
		}
		r.routes[pairKey(in, out)] = route
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("iterate routes: %w", err)
	}

	sit := s.slippage.NewIterator()
	defer sit.Release()
	for sit.Next() {
		in, out, err := splitPairStoreKey(sit.Key())
		if err != nil {
			return fmt.Errorf("slippage table: %w", err)
		}
		if len(sit.Value()) != 4 {
			return fmt.Errorf("malformed slippage value for %s->%s", in, out)
		}
		r.slippage[pairKey(in, out)] = binary.BigEndian.Uint32(sit.Value())
	}
	if err := sit.Error(); err != nil {
		return fmt.Errorf("iterate slippage: %w", err)
	}

	ait := s.assets.NewIterator()
	defer ait.Release()
	for ait.Next() {
		asset := common.BytesToAddress(ait.Key())
		var info AssetInfo
		if err := json.Unmarshal(ait.Value(), &info); err != nil {
			return fmt.Errorf("decode asset %s: %w", asset, err)
		}
		r.assets[asset] = info
	}
	if err := ait.Error(); err != nil {
		return fmt.Errorf("iterate assets: %w", err)
	}

	wit := s.whitelist.NewIterator()
	defer wit.Release()
	for wit.Next() {
		r.whitelisted[common.BytesToAddress(wit.Key())] = true
	}
	if err := wit.Error(); err != nil {
		return fmt.Errorf("iterate whitelist: %w", err)
	}
	return nil
}
