// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// dangerousSignatures are call signatures a backend swap must never
// carry: self-destruction, delegated execution, code deployment and
// ownership capture.
var dangerousSignatures = []string{
	"selfdestruct(address)",
	"delegatecall(address,bytes)",
	"callcode(address,bytes)",
	"create(uint256,bytes)",
	"create2(uint256,bytes32,bytes)",
	"transferOwnership(address)",
	"renounceOwnership()",
	"upgradeTo(address)",
	"upgradeToAndCall(address,bytes)",
	"setOwner(address)",
}

// dangerousSelectorSet derives the 4-byte selector blacklist from the
// signature strings.
func dangerousSelectorSet() map[[4]byte]string {
	set := make(map[[4]byte]string, len(dangerousSignatures))
	for _, sig := range dangerousSignatures {
		var sel [4]byte
		copy(sel[:], crypto.Keccak256([]byte(sig))[:4])
		set[sel] = sig
	}
	return set
}

// verifySecret checks the supplied secret against the deployment-bound
// digest keccak256(secret || engine address). Binding the engine
// address means a secret observed on one deployment is useless on any
// other.
func (e *Engine) verifySecret(secret []byte) error {
	if e.cfg.SecretDigest == (common.Hash{}) {
		return ErrBadSecret
	}
	digest := crypto.Keccak256(append(append([]byte{}, secret...), e.self.Bytes()...))
	if !bytes.Equal(digest, e.cfg.SecretDigest.Bytes()) {
		return ErrBadSecret
	}
	return nil
}

// RegisterDEX admits a raw-call backend. The secret must match the
// deployment digest and the address must host code.
func (e *Engine) RegisterDEX(addr common.Address, name string, secret []byte) error {
	if err := e.verifySecret(secret); err != nil {
		return err
	}
	if e.ledger.CodeSize(addr) == 0 {
		return fmt.Errorf("%w: %s", ErrBackendNoCode, addr)
	}

	e.dexMu.Lock()
	defer e.dexMu.Unlock()
	if _, exists := e.dexIndex[addr]; exists {
		return fmt.Errorf("%w: %s", ErrBackendAlreadyRegistered, addr)
	}
	reg := BackendRegistration{Address: addr, Name: name, Registered: true}
	e.dexIndex[addr] = len(e.dexList)
	e.dexList = append(e.dexList, reg)

	e.logger.Info("backend registered", "addr", addr, "name", name)
	if e.store != nil {
		return e.store.putBackend(reg)
	}
	return nil
}

// RemoveDEX evicts a raw-call backend in O(1) by moving the last entry
// into the vacated slot.
func (e *Engine) RemoveDEX(addr common.Address, secret []byte) error {
	if err := e.verifySecret(secret); err != nil {
		return err
	}

	e.dexMu.Lock()
	defer e.dexMu.Unlock()
	idx, exists := e.dexIndex[addr]
	if !exists {
		return fmt.Errorf("%w: %s", ErrBackendNotRegistered, addr)
	}
	last := len(e.dexList) - 1
	if idx != last {
		moved := e.dexList[last]
		e.dexList[idx] = moved
		e.dexIndex[moved.Address] = idx
	}
	e.dexList = e.dexList[:last]
	delete(e.dexIndex, addr)

	e.logger.Info("backend removed", "addr", addr)
	if e.store != nil {
		return e.store.deleteBackend(addr)
	}
	return nil
}

// IsRegisteredDEX reports whether addr is an admitted raw-call backend.
func (e *Engine) IsRegisteredDEX(addr common.Address) bool {
	e.dexMu.RLock()
	defer e.dexMu.RUnlock()
	_, ok := e.dexIndex[addr]
	return ok
}

// RegisteredBackends returns a copy of the admitted backend list.
func (e *Engine) RegisteredBackends() []BackendRegistration {
	e.dexMu.RLock()
	defer e.dexMu.RUnlock()
	out := make([]BackendRegistration, len(e.dexList))
	copy(out, e.dexList)
	return out
}

// IsDangerousSelector reports whether sel is blacklisted.
func (e *Engine) IsDangerousSelector(sel [4]byte) bool {
	_, ok := e.dangerous[sel]
	return ok
}

// DangerousSelectors returns the blacklisted signatures, sorted for
// stable output.
func (e *Engine) DangerousSelectors() []string {
	out := make([]string, 0, len(e.dangerous))
	for _, sig := range e.dangerous {
		out = append(out, sig)
	}
	sort.Strings(out)
	return out
}

// screenCallData rejects call data whose leading selector is
// blacklisted.
func (e *Engine) screenCallData(data []byte) error {
	if len(data) < 4 {
		return ErrCallDataTooShort
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	if sig, bad := e.dangerous[sel]; bad {
		return fmt.Errorf("%w: %s", ErrDangerousSelector, sig)
	}
	return nil
}

// ExecuteBackendSwap runs an opaque swap through a dynamically
// registered backend. The call data is screened against the selector
// blacklist, the call runs under the gas ceiling, and the output is
// whatever assetOut balance the engine actually gained. Failure is
// terminal; raw backend calls get no fallback attempt.
func (e *Engine) ExecuteBackendSwap(caller, backend, assetIn, assetOut common.Address, amountIn *big.Int, callData, secret []byte) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	if err := e.verifySecret(secret); err != nil {
		return nil, err
	}
	if !e.IsRegisteredDEX(backend) {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotRegistered, backend)
	}
	if err := e.screenCallData(callData); err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if e.Paused() {
		return nil, ErrEnginePaused
	}
	if e.raw == nil {
		return nil, fmt.Errorf("%w: no raw caller configured", ErrSwapFailed)
	}

	snap := e.ledger.Snapshot()
	amountOut, err := func() (*big.Int, error) {
		if err := e.ledger.Transfer(assetIn, caller, e.self, amountIn); err != nil {
			return nil, fmt.Errorf("pull input: %w", err)
		}

		var out *big.Int
		err := e.withApproval(assetIn, backend, amountIn, func() error {
			var callErr error
			out, callErr = e.measuredCall(assetOut, func() error {
				_, rawErr := e.raw.Call(e.ledger, e.self, backend, callData, e.gasCeiling)
				return rawErr
			})
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSwapFailed, err)
		}

		if err := e.ledger.Transfer(assetOut, e.self, caller, out); err != nil {
			return nil, fmt.Errorf("deliver output: %w", err)
		}
		return out, nil
	}()
	if err != nil {
		e.ledger.RevertToSnapshot(snap)
		e.logger.Error("backend swap failed",
			"caller", caller, "backend", backend,
			"assetIn", assetIn, "assetOut", assetOut, "err", err)
		return nil, err
	}

	e.logger.Info("backend swap completed",
		"caller", caller, "backend", backend,
		"assetIn", assetIn, "assetOut", assetOut,
		"amountIn", amountIn, "amountOut", amountOut)
	return amountOut, nil
}
