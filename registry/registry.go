// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package registry creates and stores proposals. Ids are assigned
// monotonically and never reused, even across canceled proposals, so
// external references stay stable.
package registry

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/kv"
	"github.com/agora-dao/agora/ledger"
	"github.com/agora-dao/agora/log"
	"github.com/agora-dao/agora/params"
)

var logger = log.WithContext("pkg", "registry")

var counterKey = []byte("id")

// Registry stores proposal records.
type Registry struct {
	mu        sync.Mutex
	proposals kv.GetPutter
	open      kv.GetPutter
	store     kv.GetPutter
	ledger    *ledger.Ledger
	params    *params.Store
}

// New creates a registry over the given store.
func New(store kv.GetPutter, ledger *ledger.Ledger, params *params.Store) *Registry {
	return &Registry{
		proposals: kv.Bucket("p/").NewStore(store),
		open:      kv.Bucket("o/").NewStore(store),
		store:     store,
		ledger:    ledger,
		params:    params,
	}
}

func idKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

func (r *Registry) nextID() (uint64, error) {
	var id uint64
	data, err := r.store.Get(counterKey)
	if err != nil {
		if !r.store.IsNotFound(err) {
			return 0, err
		}
	} else {
		id = binary.BigEndian.Uint64(data)
	}
	id++
	if err := r.store.Put(counterKey, idKey(id)); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Registry) put(p *gov.Proposal) error {
	data, err := rlp.EncodeToBytes(p)
	if err != nil {
		return err
	}
	return r.proposals.Put(idKey(p.ID), data)
}

// Create validates eligibility, captures a voting-power snapshot and stores
// a new pending proposal.
func (r *Registry) Create(proposer agora.Address, actions []gov.Action, description string, now uint64) (*gov.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(actions) == 0 {
		return nil, errors.WithMessage(gov.ErrEmptyProposal, "proposal carries no actions")
	}
	maxActions, err := r.params.GetUint64(agora.KeyMaxActions)
	if err != nil {
		return nil, err
	}
	if uint64(len(actions)) > maxActions {
		return nil, errors.WithMessagef(gov.ErrTooManyActions, "%d actions exceed limit %d", len(actions), maxActions)
	}

	threshold, err := r.params.Get(agora.KeyProposalThreshold)
	if err != nil {
		return nil, err
	}
	power, err := r.ledger.PowerOf(proposer)
	if err != nil {
		return nil, err
	}
	if power.Cmp(threshold) < 0 {
		return nil, errors.WithMessagef(gov.ErrBelowThreshold,
			"proposer %v holds %v, threshold %v", proposer, power, threshold)
	}

	for i := range actions {
		if actions[i].Value == nil {
			actions[i].Value = new(big.Int)
		}
		if actions[i].Value.Sign() < 0 {
			return nil, errors.WithMessagef(gov.ErrOutOfBounds, "action %d carries negative value", i)
		}
	}

	votingDelay, err := r.params.GetUint64(agora.KeyVotingDelay)
	if err != nil {
		return nil, err
	}
	votingPeriod, err := r.params.GetUint64(agora.KeyVotingPeriod)
	if err != nil {
		return nil, err
	}

	// the snapshot is captured at creation time so that voting power
	// acquired after the proposal content is public cannot swing the tally
	if _, err := r.ledger.Snapshot(now); err != nil {
		return nil, err
	}

	id, err := r.nextID()
	if err != nil {
		return nil, err
	}
	p := &gov.Proposal{
		ID:            id,
		Proposer:      proposer,
		Actions:       actions,
		Description:   description,
		CreatedAt:     now,
		SnapshotIndex: now,
		VotingStart:   now + votingDelay,
		VotingEnd:     now + votingDelay + votingPeriod,
		Status:        gov.StatePending,
	}
	if err := r.put(p); err != nil {
		return nil, err
	}
	if err := r.open.Put(idKey(id), nil); err != nil {
		return nil, err
	}
	logger.Info("proposal created", "id", id, "proposer", proposer, "start", p.VotingStart, "end", p.VotingEnd)
	return p, nil
}

// Get returns the proposal with the given id.
func (r *Registry) Get(id uint64) (*gov.Proposal, error) {
	data, err := r.proposals.Get(idKey(id))
	if err != nil {
		if r.proposals.IsNotFound(err) {
			return nil, errors.WithMessagef(gov.ErrUnknownProposal, "proposal %d", id)
		}
		return nil, err
	}
	var p gov.Proposal
	if err := rlp.DecodeBytes(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Transition persists the proposal with its status moved to the given state,
// rejecting edges outside the state machine. It returns the old state.
// Only the voting engine and the timelock executor call this.
func (r *Registry) Transition(p *gov.Proposal, to gov.State) (gov.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := p.Status
	if !old.CanTransition(to) {
		return old, errors.WithMessagef(gov.ErrIllegalTransition,
			"illegal transition %v -> %v of proposal %d", old, to, p.ID)
	}
	p.Status = to
	if err := r.put(p); err != nil {
		p.Status = old
		return old, err
	}
	if to.Terminal() {
		if err := r.open.Delete(idKey(p.ID)); err != nil {
			return old, err
		}
	}
	logger.Info("proposal state changed", "id", p.ID, "old", old, "new", to)
	return old, nil
}

// List returns up to limit proposals starting at offset, in id order.
func (r *Registry) List(offset, limit uint64) ([]*gov.Proposal, error) {
	if limit == 0 {
		limit = 20
	}
	var out []*gov.Proposal
	iter := r.proposals.NewIterator(kv.Range{})
	defer iter.Release()
	var skipped uint64
	for iter.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		var p gov.Proposal
		if err := rlp.DecodeBytes(iter.Value(), &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
		if uint64(len(out)) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// Open returns the ids of all proposals not yet in a terminal state.
func (r *Registry) Open() ([]uint64, error) {
	var ids []uint64
	iter := r.open.NewIterator(kv.Range{})
	defer iter.Release()
	for iter.Next() {
		ids = append(ids, binary.BigEndian.Uint64(iter.Key()))
	}
	return ids, iter.Error()
}
