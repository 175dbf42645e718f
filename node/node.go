// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package node wires the governance components into one engine and exposes
// the serialized operation surface. Every mutating operation is one logical
// transaction: conflicting operations on the same proposal are serialized by
// the engine lock, so a vote can never interleave with its tally and a queue
// can never interleave with an execute.
package node

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/auditdb"
	"github.com/agora-dao/agora/emergency"
	"github.com/agora-dao/agora/genesis"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/kv"
	"github.com/agora-dao/agora/ledger"
	"github.com/agora-dao/agora/log"
	"github.com/agora-dao/agora/metrics"
	"github.com/agora-dao/agora/params"
	"github.com/agora-dao/agora/registry"
	"github.com/agora-dao/agora/timelock"
	"github.com/agora-dao/agora/voting"
)

var logger = log.WithContext("pkg", "node")

var bootstrappedKey = []byte("bootstrapped")

var (
	metricProposalsCreated = metrics.LazyLoadCounter("proposals_created_total")
	metricVotesCast        = metrics.LazyLoadCounter("votes_cast_total")
	metricExecutions       = metrics.LazyLoadCounterVec("executions_total", []string{"result"})
	metricEmergencyActions = metrics.LazyLoadCounter("emergency_actions_total")
	metricOpenProposals    = metrics.LazyLoadGauge("open_proposals")
	metricOutstanding      = metrics.LazyLoadGauge("outstanding_ratifications")
)

// Options tune the engine.
type Options struct {
	// Now supplies the logical time in unix seconds. Defaults to wall clock.
	Now func() uint64
	// HousekeepInterval between sweeps of the Run loop. Defaults to 10s.
	HousekeepInterval time.Duration
	// SnapshotRetention in seconds past a proposal's lifetime. Defaults to 90 days.
	SnapshotRetention uint64
}

const defaultSnapshotRetention = 90 * 24 * 3600

// Node is the governance engine.
type Node struct {
	mu    sync.Mutex
	store kv.GetPutter
	audit *auditdb.AuditDB

	ledger    *ledger.Ledger
	params    *params.Store
	registry  *registry.Registry
	voting    *voting.Engine
	timelock  *timelock.Executor
	emergency *emergency.Controller

	handlers map[agora.Address]CallHandler

	feed  event.FeedOf[gov.Event]
	scope event.SubscriptionScope

	now  func() uint64
	opts Options
}

// New creates the engine over the given store, bootstrapping from genesis on
// first run. The audit db receives every outbound event synchronously.
func New(store kv.GetPutter, audit *auditdb.AuditDB, gene *genesis.Genesis, opts Options) (*Node, error) {
	if opts.Now == nil {
		opts.Now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	if opts.HousekeepInterval == 0 {
		opts.HousekeepInterval = 10 * time.Second
	}
	if opts.SnapshotRetention == 0 {
		opts.SnapshotRetention = defaultSnapshotRetention
	}

	led := ledger.New(kv.Bucket("lg/").NewStore(store))
	par := params.New(kv.Bucket("pm/").NewStore(store))
	reg := registry.New(kv.Bucket("rg/").NewStore(store), led, par)
	vot := voting.New(kv.Bucket("vt/").NewStore(store), reg, led, par)
	emc := emergency.New(kv.Bucket("em/").NewStore(store), par, gene.SignerAddresses(), gene.Emergency.Threshold)

	n := &Node{
		store:     store,
		audit:     audit,
		ledger:    led,
		params:    par,
		registry:  reg,
		voting:    vot,
		emergency: emc,
		handlers:  make(map[agora.Address]CallHandler),
		now:       opts.Now,
		opts:      opts,
	}
	n.timelock = timelock.New(kv.Bucket("tl/").NewStore(store), reg, par, gene.CancellerAddresses(), n)
	n.RegisterCallHandler(agora.GovernanceAddress, &governanceCall{emc})

	if err := n.bootstrap(gene); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) bootstrap(gene *genesis.Genesis) error {
	if has, err := n.store.Has(bootstrappedKey); err != nil {
		return err
	} else if has {
		return nil
	}

	now := gene.LaunchTime
	for _, init := range gene.ParamInits() {
		if err := n.params.Register(init, agora.GovernanceAddress, now); err != nil {
			return errors.WithMessagef(err, "register parameter %q", init.Name)
		}
	}
	for _, alloc := range gene.Allocations {
		if err := n.ledger.BalanceChange(alloc.Address.Address, alloc.Balance.Big()); err != nil {
			return errors.WithMessagef(err, "allocate to %v", alloc.Address.Address)
		}
	}
	if err := n.store.Put(bootstrappedKey, []byte{1}); err != nil {
		return err
	}
	logger.Info("genesis state bootstrapped",
		"allocations", len(gene.Allocations), "signers", len(gene.Emergency.Signers))
	return nil
}

// post persists the event to the audit log and publishes it to subscribers.
func (n *Node) post(ev gov.Event) {
	if rec := auditRecord(ev, n.now()); rec != nil {
		if err := n.audit.Write(rec); err != nil {
			logger.Error("audit write failed", "type", ev.EventType(), "err", err)
		}
	}
	n.feed.Send(ev)
}

// SubscribeEvents subscribes ch to the outbound event stream.
func (n *Node) SubscribeEvents(ch chan gov.Event) event.Subscription {
	return n.scope.Track(n.feed.Subscribe(ch))
}

// Close releases subscriptions. The store and audit db are owned by the caller.
func (n *Node) Close() {
	n.scope.Close()
}

// Ledger exposes read access to the voting power ledger.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Params exposes read access to the parameter store.
func (n *Node) Params() *params.Store { return n.params }

// Propose submits a new proposal. Proposal creation stays available while
// the system is paused, so governance can always ratify or reverse an
// emergency action.
func (n *Node) Propose(proposer agora.Address, actions []gov.Action, description string) (*gov.Proposal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, err := n.registry.Create(proposer, actions, description, n.now())
	if err != nil {
		return nil, err
	}
	metricProposalsCreated().Add(1)
	n.post(&gov.ProposalCreatedEvent{Proposal: p})
	return p, nil
}

// CastVote records a ballot.
func (n *Node) CastVote(id uint64, voter agora.Address, support gov.Support, reason string) (*gov.Vote, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	v, err := n.voting.CastVote(id, voter, support, reason, n.now())
	if err != nil {
		return nil, err
	}
	metricVotesCast().Add(1)
	n.post(&gov.VoteCastEvent{Vote: v})
	return v, nil
}

// Delegate reassigns an account's delegation target.
func (n *Node) Delegate(account, target agora.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Delegate(account, target)
}

// Finalize tallies an ended voting window on demand.
func (n *Node) Finalize(id uint64) (gov.State, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finalize(id)
}

func (n *Node) finalize(id uint64) (gov.State, error) {
	state, out, err := n.voting.Finalize(id, n.now())
	if err != nil {
		return state, err
	}
	if out != nil {
		n.post(&gov.ProposalStateChangedEvent{ProposalID: id, Old: gov.StateActive, New: state})
	}
	return state, nil
}

// Queue moves a passed proposal into the timelock, finalizing the vote first
// if the window just ended.
func (n *Node) Queue(id uint64) (*gov.TimelockEntry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, err := n.finalize(id); err != nil && !gov.Is(err, gov.ErrTooEarly) {
		return nil, err
	}
	entry, err := n.timelock.Queue(id, n.now())
	if err != nil {
		return nil, err
	}
	n.post(&gov.ProposalStateChangedEvent{ProposalID: id, Old: gov.StateSucceeded, New: gov.StateQueued})
	n.post(&gov.TimelockQueuedEvent{ProposalID: id, Eta: entry.Eta})
	return entry, nil
}

// Execute runs a queued proposal's action batch.
func (n *Node) Execute(id uint64) (*gov.TimelockEntry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	entry, err := n.timelock.Execute(id, n.now())
	if err != nil {
		if gov.Is(err, gov.ErrExpired) {
			// the failed attempt forced the expired transition
			n.post(&gov.ProposalStateChangedEvent{ProposalID: id, Old: gov.StateQueued, New: gov.StateExpired})
		}
		metricExecutions().AddWithLabel(1, map[string]string{"result": "failed"})
		return nil, err
	}
	metricExecutions().AddWithLabel(1, map[string]string{"result": "ok"})
	n.post(&gov.ProposalStateChangedEvent{ProposalID: id, Old: gov.StateQueued, New: gov.StateExecuted})
	n.post(&gov.TimelockExecutedEvent{ProposalID: id})
	return entry, nil
}

// Cancel terminates a proposal before execution.
func (n *Node) Cancel(id uint64, caller agora.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, err := n.registry.Get(id)
	if err != nil {
		return err
	}
	old := p.Status
	done, err := n.timelock.Cancel(id, caller)
	if err != nil {
		return err
	}
	if done {
		n.post(&gov.ProposalStateChangedEvent{ProposalID: id, Old: old, New: gov.StateCanceled})
		n.post(&gov.TimelockCanceledEvent{ProposalID: id, Canceler: caller})
	}
	return nil
}

// EmergencyPause pauses the system immediately once the multisig threshold
// is met.
func (n *Node) EmergencyPause(sigs [][]byte) (*emergency.ActionRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, err := n.emergency.Pause(sigs, n.now())
	if err != nil {
		return nil, err
	}
	metricEmergencyActions().Add(1)
	n.post(&gov.EmergencyActionTakenEvent{
		ActionID: rec.ID, Action: rec.Op.String(), Deadline: rec.Deadline,
	})
	return rec, nil
}

// EmergencyResume lifts the pause once the multisig threshold is met.
func (n *Node) EmergencyResume(sigs [][]byte) (*emergency.ActionRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, err := n.emergency.Resume(sigs, n.now())
	if err != nil {
		return nil, err
	}
	metricEmergencyActions().Add(1)
	n.post(&gov.EmergencyActionTakenEvent{
		ActionID: rec.ID, Action: rec.Op.String(), Deadline: rec.Deadline,
	})
	return rec, nil
}

// EmergencyParameterChange changes a whitelisted parameter immediately once
// the multisig threshold is met.
func (n *Node) EmergencyParameterChange(name string, value *big.Int, sigs [][]byte) (*emergency.ActionRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ev, err := n.emergency.ParameterChange(name, value, sigs, n.now())
	if err != nil {
		return nil, err
	}
	metricEmergencyActions().Add(1)
	n.post(ev)
	n.post(&gov.EmergencyActionTakenEvent{
		ActionID: rec.ID, Action: rec.Op.String(), Name: name, Value: value, Deadline: rec.Deadline,
	})
	return rec, nil
}

// Emergency exposes read access to the emergency controller.
func (n *Node) Emergency() *emergency.Controller { return n.emergency }

// OutstandingRatifications lists emergency actions past their ratification
// deadline without a ratifying proposal.
func (n *Node) OutstandingRatifications() ([]*emergency.ActionRecord, error) {
	return n.emergency.Outstanding(n.now())
}

// Paused reports whether the emergency pause is in effect.
func (n *Node) Paused() (bool, error) {
	return n.emergency.Paused()
}

// ProposalDetail is a proposal with its derived state and running tally.
type ProposalDetail struct {
	Proposal *gov.Proposal      `json:"proposal"`
	State    gov.State          `json:"state"`
	Tally    *gov.Tally         `json:"tally"`
	Entry    *gov.TimelockEntry `json:"timelockEntry,omitempty"`
}

// Proposal returns the proposal with derived state and tally.
func (n *Node) Proposal(id uint64) (*ProposalDetail, error) {
	p, err := n.registry.Get(id)
	if err != nil {
		return nil, err
	}
	state, err := n.voting.StateOf(p, n.now())
	if err != nil {
		return nil, err
	}
	tally, err := n.voting.TallyOf(id)
	if err != nil {
		return nil, err
	}
	entry, err := n.timelock.Entry(id)
	if err != nil {
		return nil, err
	}
	return &ProposalDetail{Proposal: p, State: state, Tally: tally, Entry: entry}, nil
}

// Proposals lists stored proposals.
func (n *Node) Proposals(offset, limit uint64) ([]*gov.Proposal, error) {
	return n.registry.List(offset, limit)
}

// Votes lists the recorded votes of a proposal.
func (n *Node) Votes(id uint64) ([]*gov.Vote, error) {
	if _, err := n.registry.Get(id); err != nil {
		return nil, err
	}
	return n.voting.Votes(id)
}
