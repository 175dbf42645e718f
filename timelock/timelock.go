// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package timelock queues passed proposals and executes them once the
// mandatory delay elapsed, as long as the grace period has not lapsed.
// Execution of the action batch is all or nothing.
package timelock

import (
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/kv"
	"github.com/agora-dao/agora/log"
	"github.com/agora-dao/agora/params"
	"github.com/agora-dao/agora/registry"
)

var logger = log.WithContext("pkg", "timelock")

// ActionExecutor applies a proposal's action batch atomically. On error the
// batch must have been rolled back completely.
type ActionExecutor interface {
	ExecuteActions(p *gov.Proposal, now uint64) error
}

// Executor owns timelock entries and the queued → executed/canceled/expired
// transitions.
type Executor struct {
	mu         sync.Mutex
	entries    kv.GetPutter
	registry   *registry.Registry
	params     *params.Store
	cancellers map[agora.Address]bool
	exec       ActionExecutor
}

// New creates a timelock executor. cancellers are the addresses allowed to
// cancel any proposal; the proposer may always cancel its own.
func New(store kv.GetPutter, reg *registry.Registry, par *params.Store, cancellers []agora.Address, exec ActionExecutor) *Executor {
	set := make(map[agora.Address]bool, len(cancellers))
	for _, c := range cancellers {
		set[c] = true
	}
	return &Executor{
		entries:    store,
		registry:   reg,
		params:     par,
		cancellers: set,
		exec:       exec,
	}
}

func entryKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

func (e *Executor) getEntry(id uint64) (*gov.TimelockEntry, error) {
	data, err := e.entries.Get(entryKey(id))
	if err != nil {
		if e.entries.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var entry gov.TimelockEntry
	if err := rlp.DecodeBytes(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (e *Executor) putEntry(entry *gov.TimelockEntry) error {
	data, err := rlp.EncodeToBytes(entry)
	if err != nil {
		return err
	}
	return e.entries.Put(entryKey(entry.ProposalID), data)
}

// Entry returns the timelock entry for the given proposal, nil if not queued.
func (e *Executor) Entry(id uint64) (*gov.TimelockEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getEntry(id)
}

// Queue moves a succeeded proposal into the timelock, computing
// eta = now + timelockDelay.
func (e *Executor) Queue(id, now uint64) (*gov.TimelockEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if existing, err := e.getEntry(id); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errors.WithMessagef(gov.ErrAlreadyQueued, "proposal %d", id)
	}
	if p.Status != gov.StateSucceeded {
		return nil, errors.WithMessagef(gov.ErrNotSucceeded,
			"proposal %d is %v", id, p.Status)
	}

	delay, err := e.params.GetUint64(agora.KeyTimelockDelay)
	if err != nil {
		return nil, err
	}
	entry := &gov.TimelockEntry{
		OperationHash: p.OperationHash(),
		ProposalID:    id,
		QueuedAt:      now,
		Eta:           now + delay,
	}
	if err := e.putEntry(entry); err != nil {
		return nil, err
	}
	p.Eta = entry.Eta
	if _, err := e.registry.Transition(p, gov.StateQueued); err != nil {
		return nil, err
	}
	logger.Info("proposal queued", "id", id, "eta", entry.Eta)
	return entry, nil
}

// Execute runs the proposal's action batch. Fails with TooEarly before eta
// and with Expired past eta + gracePeriod (forcing the expired transition).
// A failed batch rolls back and the proposal stays queued, retryable until
// the grace period lapses.
func (e *Executor) Execute(id, now uint64) (*gov.TimelockEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	entry, err := e.getEntry(id)
	if err != nil {
		return nil, err
	}
	if entry == nil || p.Status != gov.StateQueued {
		return nil, errors.WithMessagef(gov.ErrNotQueued, "proposal %d is %v", id, p.Status)
	}
	if entry.Executed {
		return nil, errors.WithMessagef(gov.ErrNotQueued, "proposal %d already executed", id)
	}
	if now < entry.Eta {
		return nil, errors.WithMessagef(gov.ErrTooEarly,
			"proposal %d executable at %d", id, entry.Eta)
	}
	grace, err := e.params.GetUint64(agora.KeyGracePeriod)
	if err != nil {
		return nil, err
	}
	if now > entry.Eta+grace {
		if _, err := e.registry.Transition(p, gov.StateExpired); err != nil {
			return nil, err
		}
		return nil, errors.WithMessagef(gov.ErrExpired,
			"grace period of proposal %d lapsed at %d", id, entry.Eta+grace)
	}

	if err := e.exec.ExecuteActions(p, now); err != nil {
		logger.Warn("proposal execution failed", "id", id, "err", err)
		return nil, err
	}

	entry.Executed = true
	if err := e.putEntry(entry); err != nil {
		return nil, err
	}
	if _, err := e.registry.Transition(p, gov.StateExecuted); err != nil {
		return nil, err
	}
	logger.Info("proposal executed", "id", id)
	return entry, nil
}

// MarkExpired forces the expired transition of a queued proposal whose grace
// period lapsed. Used by the housekeeping sweep; returns false when the
// proposal is not in that condition.
func (e *Executor) MarkExpired(id, now uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.registry.Get(id)
	if err != nil {
		return false, err
	}
	if p.Status != gov.StateQueued {
		return false, nil
	}
	grace, err := e.params.GetUint64(agora.KeyGracePeriod)
	if err != nil {
		return false, err
	}
	if now <= p.Eta+grace {
		return false, nil
	}
	if _, err := e.registry.Transition(p, gov.StateExpired); err != nil {
		return false, err
	}
	logger.Info("proposal expired", "id", id)
	return true, nil
}

// Cancel terminates a proposal before execution. Permitted to the proposer
// and to designated cancellers. Canceling an already canceled proposal is a
// no-op, not an error. Returns true when this call performed the transition.
func (e *Executor) Cancel(id uint64, caller agora.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.registry.Get(id)
	if err != nil {
		return false, err
	}
	if caller != p.Proposer && !e.cancellers[caller] {
		return false, errors.WithMessagef(gov.ErrNotAuthorized,
			"%v may not cancel proposal %d", caller, id)
	}
	if p.Status == gov.StateCanceled {
		return false, nil
	}
	if p.Status.Terminal() {
		return false, errors.WithMessagef(gov.ErrNotCancelable,
			"proposal %d is %v", id, p.Status)
	}
	if _, err := e.registry.Transition(p, gov.StateCanceled); err != nil {
		return false, err
	}
	logger.Info("proposal canceled", "id", id, "by", caller)
	return true, nil
}
