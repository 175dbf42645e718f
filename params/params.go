// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package params implements the bounded, governance-mutable parameter store.
// A parameter's value always lies within its registered bounds; the bounds
// themselves only move through the meta-governance path and are clamped by
// compiled-in absolute limits (agora.AbsoluteBound) that no vote can lift.
package params

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/kv"
	"github.com/agora-dao/agora/log"
)

var logger = log.WithContext("pkg", "params")

// Entry is the persisted record of one parameter.
type Entry struct {
	Value     *big.Int
	Lower     *big.Int
	Upper     *big.Int
	ChangedBy agora.Address
	ChangedAt uint64
	Emergency bool // eligible for the emergency change path
}

// Store is the parameter store. All mutation happens under a single lock so
// bound checks and writes never race.
type Store struct {
	mu    sync.RWMutex
	store kv.GetPutter
}

// New creates a parameter store over the given kv store.
func New(store kv.GetPutter) *Store {
	return &Store{store: store}
}

func (s *Store) get(name string) (*Entry, error) {
	data, err := s.store.Get([]byte(name))
	if err != nil {
		if s.store.IsNotFound(err) {
			return nil, errors.WithMessagef(gov.ErrUnknownParameter, "parameter %q", name)
		}
		return nil, err
	}
	var e Entry
	if err := rlp.DecodeBytes(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) put(name string, e *Entry) error {
	data, err := rlp.EncodeToBytes(e)
	if err != nil {
		return err
	}
	return s.store.Put([]byte(name), data)
}

// Register installs a parameter at bootstrap. The initial value and bounds
// must respect the absolute limit when one is defined for the name.
func (s *Store) Register(init agora.ParamInit, actor agora.Address, now uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if abs, ok := agora.AbsoluteBound(init.Name); ok {
		if !abs.CoversRange(init.Lower, init.Upper) {
			return errors.WithMessagef(gov.ErrOutOfBounds,
				"bounds [%v, %v] of %q exceed absolute limit [%v, %v]",
				init.Lower, init.Upper, init.Name, abs.Lower, abs.Upper)
		}
	}
	bound := agora.Bound{Lower: init.Lower, Upper: init.Upper}
	if !bound.Covers(init.Value) {
		return errors.WithMessagef(gov.ErrOutOfBounds,
			"initial value %v of %q outside [%v, %v]", init.Value, init.Name, init.Lower, init.Upper)
	}
	return s.put(init.Name, &Entry{
		Value:     init.Value,
		Lower:     init.Lower,
		Upper:     init.Upper,
		ChangedBy: actor,
		ChangedAt: now,
		Emergency: init.Emergency,
	})
}

// Get returns the current value of the named parameter.
func (s *Store) Get(name string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.get(name)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

// GetUint64 is Get for parameters known to fit uint64 (durations, counts).
func (s *Store) GetUint64(name string) (uint64, error) {
	v, err := s.Get(name)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// Entry returns the full persisted record of the named parameter.
func (s *Store) Entry(name string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(name)
}

// Each calls fn for every registered parameter, in name order.
func (s *Store) Each(fn func(name string, e *Entry) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iter := s.store.NewIterator(kv.Range{})
	defer iter.Release()
	for iter.Next() {
		var e Entry
		if err := rlp.DecodeBytes(iter.Value(), &e); err != nil {
			return err
		}
		if !fn(string(iter.Key()), &e) {
			break
		}
	}
	return iter.Error()
}

// EmergencyEligible reports whether the named parameter is whitelisted for
// the emergency change path.
func (s *Store) EmergencyEligible(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.get(name)
	if err != nil {
		return false, err
	}
	return e.Emergency, nil
}

// Set changes the parameter value. Fails with OutOfBounds if value lies
// outside the registered bounds, UnknownParameter if name is unregistered.
// The bound check and the write form one critical section.
func (s *Store) Set(name string, value *big.Int, actor agora.Address, now uint64) (*gov.ParameterChangedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.get(name)
	if err != nil {
		return nil, err
	}
	bound := agora.Bound{Lower: e.Lower, Upper: e.Upper}
	if !bound.Covers(value) {
		return nil, errors.WithMessagef(gov.ErrOutOfBounds,
			"value %v of %q outside [%v, %v]", value, name, e.Lower, e.Upper)
	}

	old := e.Value
	e.Value = value
	e.ChangedBy = actor
	e.ChangedAt = now
	if err := s.put(name, e); err != nil {
		return nil, err
	}
	logger.Info("parameter changed", "name", name, "old", old, "new", value, "actor", actor)
	return &gov.ParameterChangedEvent{
		Name:     name,
		OldValue: old,
		NewValue: value,
		Actor:    actor,
		At:       now,
	}, nil
}

// SetBounds changes the parameter's bounds. Reserved to the meta-governance
// path; the new bounds must lie within the absolute limit and must still
// cover the current value.
func (s *Store) SetBounds(name string, lower, upper *big.Int, actor agora.Address, now uint64) (*gov.ParameterChangedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.get(name)
	if err != nil {
		return nil, err
	}
	if abs, ok := agora.AbsoluteBound(name); ok {
		if !abs.CoversRange(lower, upper) {
			return nil, errors.WithMessagef(gov.ErrOutOfBounds,
				"bounds [%v, %v] of %q exceed absolute limit [%v, %v]", lower, upper, name, abs.Lower, abs.Upper)
		}
	} else if lower.Cmp(upper) > 0 {
		return nil, errors.WithMessagef(gov.ErrOutOfBounds, "inverted bounds [%v, %v] of %q", lower, upper, name)
	}
	next := agora.Bound{Lower: lower, Upper: upper}
	if !next.Covers(e.Value) {
		return nil, errors.WithMessagef(gov.ErrOutOfBounds,
			"current value %v of %q outside new bounds [%v, %v]", e.Value, name, lower, upper)
	}

	oldLower, oldUpper := e.Lower, e.Upper
	e.Lower = lower
	e.Upper = upper
	e.ChangedBy = actor
	e.ChangedAt = now
	if err := s.put(name, e); err != nil {
		return nil, err
	}
	logger.Info("parameter bounds changed", "name", name, "lower", lower, "upper", upper, "actor", actor)
	return &gov.ParameterChangedEvent{
		Name:     name,
		OldValue: e.Value,
		NewValue: e.Value,
		Actor:    actor,
		At:       now,
		Bounds:   true,
		OldLower: oldLower,
		OldUpper: oldUpper,
		Lower:    lower,
		Upper:    upper,
	}, nil
}

// Revert restores a previously read entry verbatim, bypassing validation.
// Used by the action journal to roll back a failed batch; prev always holds
// a state that satisfied validation when it was written.
func (s *Store) Revert(name string, prev *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(name, prev)
}
