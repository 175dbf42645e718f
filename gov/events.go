// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gov

import (
	"math/big"

	"github.com/agora-dao/agora/agora"
)

// Event type names, stable across the audit log and the event stream.
const (
	EventProposalCreated      = "ProposalCreated"
	EventVoteCast             = "VoteCast"
	EventProposalStateChanged = "ProposalStateChanged"
	EventParameterChanged     = "ParameterChanged"
	EventTimelockQueued       = "TimelockQueued"
	EventTimelockExecuted     = "TimelockExecuted"
	EventTimelockCanceled     = "TimelockCanceled"
	EventEmergencyActionTaken = "EmergencyActionTaken"
	EventRatificationOverdue  = "RatificationOverdue"
)

// Event is the outbound integration surface for indexers and portals.
type Event interface {
	EventType() string
}

// ProposalCreatedEvent signals a new proposal.
type ProposalCreatedEvent struct {
	Proposal *Proposal `json:"proposal"`
}

func (*ProposalCreatedEvent) EventType() string { return EventProposalCreated }

// VoteCastEvent signals a cast vote.
type VoteCastEvent struct {
	Vote *Vote `json:"vote"`
}

func (*VoteCastEvent) EventType() string { return EventVoteCast }

// ProposalStateChangedEvent signals a persisted state transition.
type ProposalStateChangedEvent struct {
	ProposalID uint64 `json:"proposalID"`
	Old        State  `json:"old"`
	New        State  `json:"new"`
}

func (*ProposalStateChangedEvent) EventType() string { return EventProposalStateChanged }

// ParameterChangedEvent is the audit record of a parameter mutation.
type ParameterChangedEvent struct {
	Name     string        `json:"name"`
	OldValue *big.Int      `json:"oldValue"`
	NewValue *big.Int      `json:"newValue"`
	Actor    agora.Address `json:"actor"`
	At       uint64        `json:"at"`
	Bounds   bool          `json:"bounds,omitempty"` // true when the bounds changed, not the value

	// Bound transitions, set only when Bounds is true.
	OldLower *big.Int `json:"oldLower,omitempty"`
	OldUpper *big.Int `json:"oldUpper,omitempty"`
	Lower    *big.Int `json:"lower,omitempty"`
	Upper    *big.Int `json:"upper,omitempty"`
}

func (*ParameterChangedEvent) EventType() string { return EventParameterChanged }

// TimelockQueuedEvent signals a queued proposal.
type TimelockQueuedEvent struct {
	ProposalID uint64 `json:"proposalID"`
	Eta        uint64 `json:"eta"`
}

func (*TimelockQueuedEvent) EventType() string { return EventTimelockQueued }

// TimelockExecutedEvent signals a successfully executed proposal.
type TimelockExecutedEvent struct {
	ProposalID uint64 `json:"proposalID"`
}

func (*TimelockExecutedEvent) EventType() string { return EventTimelockExecuted }

// TimelockCanceledEvent signals a canceled proposal.
type TimelockCanceledEvent struct {
	ProposalID uint64        `json:"proposalID"`
	Canceler   agora.Address `json:"canceler"`
}

func (*TimelockCanceledEvent) EventType() string { return EventTimelockCanceled }

// EmergencyActionTakenEvent signals a multisig-approved emergency action.
type EmergencyActionTakenEvent struct {
	ActionID uint64   `json:"actionID"`
	Action   string   `json:"action"` // pause | resume | parameterChange
	Name     string   `json:"name,omitempty"`
	Value    *big.Int `json:"value,omitempty"`
	Deadline uint64   `json:"deadline"`
}

func (*EmergencyActionTakenEvent) EventType() string { return EventEmergencyActionTaken }

// RatificationOverdueEvent flags an emergency action whose ratification
// window lapsed without a ratifying proposal. The action is not reverted;
// governance is expected to reverse it explicitly if it disapproves.
type RatificationOverdueEvent struct {
	ActionID uint64 `json:"actionID"`
	Deadline uint64 `json:"deadline"`
}

func (*RatificationOverdueEvent) EventType() string { return EventRatificationOverdue }
