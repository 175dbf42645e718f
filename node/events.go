// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"encoding/json"
	"fmt"

	"github.com/agora-dao/agora/auditdb"
	"github.com/agora-dao/agora/gov"
)

// auditRecord flattens an event into the audit log schema. The full event is
// kept as the JSON payload; the typed columns exist so the log can be
// filtered without parsing payloads.
func auditRecord(ev gov.Event, now uint64) *auditdb.Record {
	rec := &auditdb.Record{
		Type:      ev.EventType(),
		Timestamp: now,
	}
	switch e := ev.(type) {
	case *gov.ProposalCreatedEvent:
		rec.ProposalID = e.Proposal.ID
		rec.Actor = e.Proposal.Proposer.String()
	case *gov.VoteCastEvent:
		rec.ProposalID = e.Vote.ProposalID
		rec.Actor = e.Vote.Voter.String()
	case *gov.ProposalStateChangedEvent:
		rec.ProposalID = e.ProposalID
		rec.OldValue = e.Old.String()
		rec.NewValue = e.New.String()
	case *gov.ParameterChangedEvent:
		rec.Actor = e.Actor.String()
		rec.Name = e.Name
		if e.Bounds {
			rec.OldValue = fmt.Sprintf("[%v, %v]", e.OldLower, e.OldUpper)
			rec.NewValue = fmt.Sprintf("[%v, %v]", e.Lower, e.Upper)
		} else {
			if e.OldValue != nil {
				rec.OldValue = e.OldValue.String()
			}
			if e.NewValue != nil {
				rec.NewValue = e.NewValue.String()
			}
		}
	case *gov.TimelockQueuedEvent:
		rec.ProposalID = e.ProposalID
	case *gov.TimelockExecutedEvent:
		rec.ProposalID = e.ProposalID
	case *gov.TimelockCanceledEvent:
		rec.ProposalID = e.ProposalID
		rec.Actor = e.Canceler.String()
	case *gov.EmergencyActionTakenEvent:
		rec.Name = e.Name
		if e.Value != nil {
			rec.NewValue = e.Value.String()
		}
	case *gov.RatificationOverdueEvent:
		// no extra columns
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("event payload marshal failed", "type", ev.EventType(), "err", err)
		return rec
	}
	rec.Payload = string(payload)
	return rec
}
