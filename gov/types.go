// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package gov holds the domain types shared by the governance engine:
// proposals, actions, votes and the proposal state machine.
package gov

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/agora-dao/agora/agora"
)

// State of a proposal.
type State uint8

const (
	StatePending State = iota
	StateActive
	StateSucceeded
	StateDefeated
	StateQueued
	StateExecuted
	StateCanceled
	StateExpired
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateSucceeded:
		return "succeeded"
	case StateDefeated:
		return "defeated"
	case StateQueued:
		return "queued"
	case StateExecuted:
		return "executed"
	case StateCanceled:
		return "canceled"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal returns true if no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateDefeated, StateExecuted, StateCanceled, StateExpired:
		return true
	default:
		return false
	}
}

// transitions is the set of legal state machine edges. Cancellation is
// permitted from every non-terminal state, everything else follows
// pending → active → succeeded/defeated → queued → executed/expired.
var transitions = map[State][]State{
	StatePending:   {StateActive, StateSucceeded, StateDefeated, StateCanceled},
	StateActive:    {StateSucceeded, StateDefeated, StateCanceled},
	StateSucceeded: {StateQueued, StateCanceled},
	StateQueued:    {StateExecuted, StateCanceled, StateExpired},
}

// CanTransition reports whether the edge s → to is legal.
// Note pending → succeeded/defeated is allowed since the stored state stays
// pending while the voting window runs; the active phase is derived from time.
func (s State) CanTransition(to State) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Support of a vote.
type Support uint8

const (
	SupportAgainst Support = iota
	SupportFor
	SupportAbstain
)

func (s Support) String() string {
	switch s {
	case SupportAgainst:
		return "against"
	case SupportFor:
		return "for"
	case SupportAbstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a known support value.
func (s Support) Valid() bool {
	return s <= SupportAbstain
}

// ActionKind tags the closed set of action variants a proposal can carry.
type ActionKind uint8

const (
	// ActionParameterChange sets a governance parameter value.
	ActionParameterChange ActionKind = iota
	// ActionBoundsChange changes a parameter's bounds. Meta-governance.
	ActionBoundsChange
	// ActionContractCall invokes a registered call handler.
	ActionContractCall
	// ActionFundTransfer moves tokens out of the treasury.
	ActionFundTransfer
	// ActionEmergencyRatify ratifies a prior emergency action (by Ref).
	ActionEmergencyRatify
)

func (k ActionKind) String() string {
	switch k {
	case ActionParameterChange:
		return "parameterChange"
	case ActionBoundsChange:
		return "boundsChange"
	case ActionContractCall:
		return "contractCall"
	case ActionFundTransfer:
		return "fundTransfer"
	case ActionEmergencyRatify:
		return "emergencyRatify"
	default:
		return "unknown"
	}
}

// Action is one step of a proposal's payload. Which fields are meaningful
// depends on Kind; execution failures are exhaustively typed per kind.
type Action struct {
	Kind   ActionKind    `json:"kind"`
	Target agora.Address `json:"target"`
	Value  *big.Int      `json:"value"`
	Name   string        `json:"name,omitempty"`
	Lower  *big.Int      `json:"lower,omitempty"`
	Upper  *big.Int      `json:"upper,omitempty"`
	Data   []byte        `json:"data,omitempty"`
	Ref    uint64        `json:"ref,omitempty"`
}

// Meta reports whether the action is a meta-governance one, i.e. it touches
// parameter bounds or calls the governance engine itself.
func (a *Action) Meta() bool {
	return a.Kind == ActionBoundsChange ||
		(a.Kind == ActionContractCall && a.Target == agora.GovernanceAddress)
}

// Proposal is the persisted proposal record. Status holds the decided part
// of the state machine; the time-gated phases (active, expired) are derived
// from (Status, now) and never stored ahead of time.
type Proposal struct {
	ID            uint64        `json:"id"`
	Proposer      agora.Address `json:"proposer"`
	Actions       []Action      `json:"actions"`
	Description   string        `json:"description"`
	CreatedAt     uint64        `json:"createdAt"`
	SnapshotIndex uint64        `json:"snapshotIndex"`
	VotingStart   uint64        `json:"votingStart"`
	VotingEnd     uint64        `json:"votingEnd"`
	Status        State         `json:"status"`
	Eta           uint64        `json:"eta,omitempty"`
}

// Meta reports whether any action subjects the proposal to the
// meta-governance threshold.
func (p *Proposal) Meta() bool {
	for i := range p.Actions {
		if p.Actions[i].Meta() {
			return true
		}
	}
	return false
}

// OperationHash identifies the proposal's action batch in the timelock.
func (p *Proposal) OperationHash() agora.Bytes32 {
	body, err := rlp.EncodeToBytes(struct {
		ID      uint64
		Actions []Action
	}{p.ID, p.Actions})
	if err != nil {
		panic(err)
	}
	return agora.Blake2b([]byte("agora.operation"), body)
}

// Vote is one cast ballot. Weight is fixed from the proposal's snapshot at
// cast time and never recomputed.
type Vote struct {
	ProposalID uint64        `json:"proposalID"`
	Voter      agora.Address `json:"voter"`
	Support    Support       `json:"support"`
	Weight     *big.Int      `json:"weight"`
	Reason     string        `json:"reason,omitempty"`
	CastAt     uint64        `json:"castAt"`
}

// Tally accumulates vote weights per support value.
type Tally struct {
	ForVotes     *big.Int `json:"forVotes"`
	AgainstVotes *big.Int `json:"againstVotes"`
	AbstainVotes *big.Int `json:"abstainVotes"`
}

// NewTally returns a zeroed tally.
func NewTally() *Tally {
	return &Tally{new(big.Int), new(big.Int), new(big.Int)}
}

// Add accumulates weight under the given support.
func (t *Tally) Add(support Support, weight *big.Int) {
	switch support {
	case SupportFor:
		t.ForVotes.Add(t.ForVotes, weight)
	case SupportAgainst:
		t.AgainstVotes.Add(t.AgainstVotes, weight)
	case SupportAbstain:
		t.AbstainVotes.Add(t.AbstainVotes, weight)
	}
}

// Cast returns total participation: for + against + abstain.
func (t *Tally) Cast() *big.Int {
	sum := new(big.Int).Add(t.ForVotes, t.AgainstVotes)
	return sum.Add(sum, t.AbstainVotes)
}

// TimelockEntry is the persisted record of a queued proposal.
type TimelockEntry struct {
	OperationHash agora.Bytes32 `json:"operationHash"`
	ProposalID    uint64        `json:"proposalID"`
	QueuedAt      uint64        `json:"queuedAt"`
	Eta           uint64        `json:"eta"`
	Executed      bool          `json:"executed"`
}
