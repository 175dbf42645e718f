// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ledger tracks token balances, delegation edges and historical
// voting-power snapshots. Delegation is single hop: an account's balance
// counts toward its direct delegate only, resolution never chains, so the
// delegation graph cannot form cycles.
package ledger

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/kv"
	"github.com/agora-dao/agora/log"
)

var logger = log.WithContext("pkg", "ledger")

var supplyKey = []byte("supply")

const snapshotCacheSize = 32

// Ledger is the voting power ledger.
type Ledger struct {
	mu        sync.RWMutex
	accounts  kv.GetPutter
	snapshots kv.GetPutter
	store     kv.GetPutter
	cache     *lru.Cache
}

type accountRec struct {
	Balance  *big.Int
	Delegate agora.Address
	Power    *big.Int // effective voting power delegated in
}

// New creates a ledger over the given store.
func New(store kv.GetPutter) *Ledger {
	cache, _ := lru.New(snapshotCacheSize)
	return &Ledger{
		accounts:  kv.Bucket("a/").NewStore(store),
		snapshots: kv.Bucket("s/").NewStore(store),
		store:     store,
		cache:     cache,
	}
}

func (l *Ledger) getAccount(addr agora.Address) (*accountRec, error) {
	data, err := l.accounts.Get(addr.Bytes())
	if err != nil {
		if l.accounts.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var rec accountRec
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (l *Ledger) putAccount(putter kv.Putter, addr agora.Address, rec *accountRec) error {
	data, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return err
	}
	return putter.Put(addr.Bytes(), data)
}

func (l *Ledger) totalSupply() (*big.Int, error) {
	data, err := l.store.Get(supplyKey)
	if err != nil {
		if l.store.IsNotFound(err) {
			return new(big.Int), nil
		}
		return nil, err
	}
	total := new(big.Int)
	if err := rlp.DecodeBytes(data, total); err != nil {
		return nil, err
	}
	return total, nil
}

func (l *Ledger) putTotalSupply(total *big.Int) error {
	data, err := rlp.EncodeToBytes(total)
	if err != nil {
		return err
	}
	return l.store.Put(supplyKey, data)
}

// BalanceChange applies delta to the account's raw balance and propagates it
// to the current delegate's effective power. A negative result fails with
// Underflow and leaves state untouched. The first positive change creates
// the account, self-delegated.
func (l *Ledger) BalanceChange(addr agora.Address, delta *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceChange(addr, delta)
}

func (l *Ledger) balanceChange(addr agora.Address, delta *big.Int) error {
	rec, err := l.getAccount(addr)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &accountRec{new(big.Int), addr, new(big.Int)}
	}

	balance := new(big.Int).Add(rec.Balance, delta)
	if balance.Sign() < 0 {
		return errors.WithMessagef(gov.ErrUnderflow, "balance of %v would drop below zero", addr)
	}
	rec.Balance = balance

	if rec.Delegate == addr {
		rec.Power = new(big.Int).Add(rec.Power, delta)
		if err := l.putAccount(l.accounts, addr, rec); err != nil {
			return err
		}
	} else {
		if err := l.putAccount(l.accounts, addr, rec); err != nil {
			return err
		}
		del, err := l.getAccount(rec.Delegate)
		if err != nil {
			return err
		}
		del.Power = new(big.Int).Add(del.Power, delta)
		if err := l.putAccount(l.accounts, rec.Delegate, del); err != nil {
			return err
		}
	}

	total, err := l.totalSupply()
	if err != nil {
		return err
	}
	return l.putTotalSupply(total.Add(total, delta))
}

// Transfer moves amount between two accounts, preserving total supply.
func (l *Ledger) Transfer(from, to agora.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.WithMessage(gov.ErrUnderflow, "negative transfer amount")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.balanceChange(from, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	return l.balanceChange(to, amount)
}

// Delegate reassigns the account's delegation target, effective for future
// snapshots only. Fails with InvalidDelegate if the target account does not
// exist (delegating back to self is always allowed).
func (l *Ledger) Delegate(addr, target agora.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.getAccount(addr)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &accountRec{new(big.Int), addr, new(big.Int)}
	}
	if rec.Delegate == target {
		return nil
	}

	if target != addr {
		targetRec, err := l.getAccount(target)
		if err != nil {
			return err
		}
		if targetRec == nil {
			return errors.WithMessagef(gov.ErrInvalidDelegate, "delegate target %v does not exist", target)
		}
	}

	old := rec.Delegate
	rec.Delegate = target

	// move the account's balance between the old and new delegate's power
	if old == addr {
		rec.Power = new(big.Int).Sub(rec.Power, rec.Balance)
	} else {
		oldRec, err := l.getAccount(old)
		if err != nil {
			return err
		}
		oldRec.Power = new(big.Int).Sub(oldRec.Power, rec.Balance)
		if err := l.putAccount(l.accounts, old, oldRec); err != nil {
			return err
		}
	}
	if target == addr {
		rec.Power = new(big.Int).Add(rec.Power, rec.Balance)
		if err := l.putAccount(l.accounts, addr, rec); err != nil {
			return err
		}
	} else {
		if err := l.putAccount(l.accounts, addr, rec); err != nil {
			return err
		}
		targetRec, err := l.getAccount(target)
		if err != nil {
			return err
		}
		targetRec.Power = new(big.Int).Add(targetRec.Power, rec.Balance)
		if err := l.putAccount(l.accounts, target, targetRec); err != nil {
			return err
		}
	}
	logger.Debug("delegation changed", "account", addr, "from", old, "to", target)
	return nil
}

// BalanceOf returns the raw token balance of addr.
func (l *Ledger) BalanceOf(addr agora.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, err := l.getAccount(addr)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return new(big.Int), nil
	}
	return rec.Balance, nil
}

// PowerOf returns the current effective (delegated-in) voting power of addr.
func (l *Ledger) PowerOf(addr agora.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, err := l.getAccount(addr)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return new(big.Int), nil
	}
	return rec.Power, nil
}

// DelegateOf returns the delegation target of addr (self if never set).
func (l *Ledger) DelegateOf(addr agora.Address) (agora.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, err := l.getAccount(addr)
	if err != nil {
		return agora.Address{}, err
	}
	if rec == nil {
		return addr, nil
	}
	return rec.Delegate, nil
}

// TotalSupply returns the current total token supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSupply()
}

func indexKey(index uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], index)
	return b[:]
}

// Snapshot returns the voting-power snapshot at the given index, capturing
// it from live state on first call. Repeated calls with the same index load
// the persisted capture, bit-identical.
func (l *Ledger) Snapshot(index uint64) (*Snapshot, error) {
	if cached, ok := l.cache.Get(index); ok {
		return cached.(*Snapshot), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.snapshots.Get(indexKey(index))
	if err == nil {
		snap, err := decodeSnapshot(index, data)
		if err != nil {
			return nil, err
		}
		l.cache.Add(index, snap)
		return snap, nil
	}
	if !l.snapshots.IsNotFound(err) {
		return nil, err
	}

	snap, err := l.capture(index)
	if err != nil {
		return nil, err
	}
	l.cache.Add(index, snap)
	logger.Debug("snapshot captured", "index", index, "holders", len(snap.powers))
	return snap, nil
}

// capture walks all accounts and persists their effective powers.
func (l *Ledger) capture(index uint64) (*Snapshot, error) {
	body := snapshotBody{Total: new(big.Int)}
	iter := l.accounts.NewIterator(kv.Range{})
	defer iter.Release()
	for iter.Next() {
		var rec accountRec
		if err := rlp.DecodeBytes(iter.Value(), &rec); err != nil {
			return nil, err
		}
		if rec.Power.Sign() > 0 {
			body.Entries = append(body.Entries, snapshotEntry{
				Addr:  agora.BytesToAddress(iter.Key()),
				Power: rec.Power,
			})
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	total, err := l.totalSupply()
	if err != nil {
		return nil, err
	}
	body.Total = total

	data, err := rlp.EncodeToBytes(&body)
	if err != nil {
		return nil, err
	}
	if err := l.snapshots.Put(indexKey(index), data); err != nil {
		return nil, err
	}
	return body.toSnapshot(index), nil
}

// PruneSnapshots removes persisted snapshots with index < before, returning
// the number removed. Callers must ensure no live proposal references them.
func (l *Ledger) PruneSnapshots(before uint64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pruned int
	iter := l.snapshots.NewIterator(kv.Range{Limit: indexKey(before)})
	defer iter.Release()
	for iter.Next() {
		index := binary.BigEndian.Uint64(iter.Key())
		if err := l.snapshots.Delete(iter.Key()); err != nil {
			return pruned, err
		}
		l.cache.Remove(index)
		pruned++
	}
	if err := iter.Error(); err != nil {
		return pruned, err
	}
	return pruned, nil
}
