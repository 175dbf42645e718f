// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/emergency"
	"github.com/agora-dao/agora/gov"
)

// CallHandler executes a contract call action against a registered target.
// The returned undo reverses the call's effects if a later action in the
// same batch fails.
type CallHandler interface {
	Call(action *gov.Action, now uint64) (undo func() error, err error)
}

// RegisterCallHandler binds a handler to a call target address. Calls to
// addresses without a handler fail the whole batch.
func (n *Node) RegisterCallHandler(target agora.Address, h CallHandler) {
	n.handlers[target] = h
}

// ExecuteActions applies a proposal's action batch atomically. Applied
// actions are journaled and unwound in reverse order when a later action
// fails, so a batch either fully applies or leaves no trace.
func (n *Node) ExecuteActions(p *gov.Proposal, now uint64) error {
	paused, err := n.emergency.Paused()
	if err != nil {
		return err
	}
	if paused && !recoveryBatch(p.Actions) {
		return errors.WithMessagef(gov.ErrPaused, "proposal %d", p.ID)
	}

	var (
		journal []func() error
		events  []gov.Event
	)
	rollback := func() {
		for i := len(journal) - 1; i >= 0; i-- {
			if uerr := journal[i](); uerr != nil {
				logger.Error("rollback step failed", "proposal", p.ID, "step", i, "err", uerr)
			}
		}
	}

	for i := range p.Actions {
		undo, ev, err := n.applyAction(p, &p.Actions[i], now)
		if err != nil {
			rollback()
			return errors.WithMessagef(gov.ErrActionFailed, "action %d: %s", i, err)
		}
		if undo != nil {
			journal = append(journal, undo)
		}
		if ev != nil {
			events = append(events, ev)
		}
	}

	for _, ev := range events {
		n.post(ev)
	}
	return nil
}

// recoveryBatch reports whether every action in the batch is allowed while
// the system is paused: ratifying an emergency action or lifting the pause.
func recoveryBatch(actions []gov.Action) bool {
	for i := range actions {
		a := &actions[i]
		if a.Kind == gov.ActionEmergencyRatify {
			continue
		}
		if a.Kind == gov.ActionContractCall &&
			a.Target == agora.GovernanceAddress && string(a.Data) == "resume" {
			continue
		}
		return false
	}
	return len(actions) > 0
}

func (n *Node) applyAction(p *gov.Proposal, a *gov.Action, now uint64) (func() error, gov.Event, error) {
	switch a.Kind {
	case gov.ActionParameterChange:
		prev, err := n.params.Entry(a.Name)
		if err != nil {
			return nil, nil, err
		}
		ev, err := n.params.Set(a.Name, a.Value, agora.GovernanceAddress, now)
		if err != nil {
			return nil, nil, err
		}
		return func() error { return n.params.Revert(a.Name, prev) }, ev, nil

	case gov.ActionBoundsChange:
		prev, err := n.params.Entry(a.Name)
		if err != nil {
			return nil, nil, err
		}
		ev, err := n.params.SetBounds(a.Name, a.Lower, a.Upper, agora.GovernanceAddress, now)
		if err != nil {
			return nil, nil, err
		}
		return func() error { return n.params.Revert(a.Name, prev) }, ev, nil

	case gov.ActionFundTransfer:
		if err := n.ledger.Transfer(agora.TreasuryAddress, a.Target, a.Value); err != nil {
			return nil, nil, err
		}
		amount := new(big.Int).Set(a.Value)
		undo := func() error { return n.ledger.Transfer(a.Target, agora.TreasuryAddress, amount) }
		return undo, nil, nil

	case gov.ActionContractCall:
		h, ok := n.handlers[a.Target]
		if !ok {
			return nil, nil, errors.Errorf("no call handler for %v", a.Target)
		}
		undo, err := h.Call(a, now)
		if err != nil {
			return nil, nil, err
		}
		return undo, nil, nil

	case gov.ActionEmergencyRatify:
		if err := n.emergency.Ratify(a.Ref, p.ID, now); err != nil {
			return nil, nil, err
		}
		return func() error { return n.emergency.Unratify(a.Ref) }, nil, nil

	default:
		return nil, nil, errors.Errorf("unknown action kind %d", a.Kind)
	}
}

// governanceCall lets executed proposals control the pause flag, which is the
// governance-side counterpart of the emergency multisig path.
type governanceCall struct {
	emc *emergency.Controller
}

func (g *governanceCall) Call(a *gov.Action, _ uint64) (func() error, error) {
	switch string(a.Data) {
	case "resume":
		if err := g.emc.SetPaused(false); err != nil {
			return nil, err
		}
		return func() error { return g.emc.SetPaused(true) }, nil
	case "pause":
		if err := g.emc.SetPaused(true); err != nil {
			return nil, err
		}
		return func() error { return g.emc.SetPaused(false) }, nil
	default:
		return nil, errors.Errorf("unsupported governance call %q", a.Data)
	}
}
