// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/auditdb"
	"github.com/agora-dao/agora/emergency"
	"github.com/agora-dao/agora/genesis"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/kv"
	"github.com/agora-dao/agora/lvldb"
)

const (
	day    = uint64(24 * 3600)
	launch = uint64(1735689600)

	million = 1_000_000
)

type clock struct{ now uint64 }

func (c *clock) time() uint64 { return c.now }

type fixture struct {
	node     *Node
	store    kv.GetPutter
	audit    *auditdb.AuditDB
	genesis  *genesis.Genesis
	clock    *clock
	accounts []genesis.DevAccount
}

func amt(v int64) *genesis.Amount {
	a := genesis.Amount(*big.NewInt(v))
	return &a
}

// testGenesis is the devnet layout plus a funded treasury: total supply
// 1100M, making the 4% quorum 44M.
func testGenesis() *genesis.Genesis {
	g := genesis.Devnet()
	g.Allocations = append(g.Allocations, genesis.Allocation{
		Address: genesis.Address{Address: agora.TreasuryAddress},
		Balance: amt(100 * million),
	})
	return g
}

func newFixture(t *testing.T) *fixture {
	db, err := lvldb.NewMem()
	assert.Nil(t, err)
	audit, err := auditdb.NewMem()
	assert.Nil(t, err)
	t.Cleanup(func() { audit.Close() })

	accounts := genesis.DevAccounts()
	gene := testGenesis()
	clk := &clock{now: launch}

	n, err := New(db, audit, gene, Options{Now: clk.time})
	assert.Nil(t, err)
	t.Cleanup(n.Close)

	return &fixture{n, db, audit, gene, clk, accounts}
}

// reopen builds a fresh node over the same store and audit db.
func (f *fixture) reopen(t *testing.T) *Node {
	n, err := New(f.store, f.audit, f.genesis, Options{Now: f.clock.time})
	assert.Nil(t, err)
	t.Cleanup(n.Close)
	return n
}

// the whale (account 0, 900M) proposes and single-handedly carries the vote.
func (f *fixture) proposeAndPass(t *testing.T, actions []gov.Action) *gov.Proposal {
	p, err := f.node.Propose(f.accounts[0].Address, actions, "test proposal")
	assert.Nil(t, err)

	f.clock.now = p.VotingStart
	_, err = f.node.CastVote(p.ID, f.accounts[0].Address, gov.SupportFor, "")
	assert.Nil(t, err)

	f.clock.now = p.VotingEnd
	return p
}

// sign collects n multisig signatures over the controller's next digest.
func (f *fixture) sign(t *testing.T, op emergency.Op, name string, value *big.Int, n int) [][]byte {
	nonce, err := f.node.Emergency().NextNonce()
	assert.Nil(t, err)
	digest := emergency.Digest(op, name, value, nonce)

	var sigs [][]byte
	for _, acc := range f.accounts[1 : 1+n] {
		sig, err := crypto.Sign(digest.Bytes(), acc.PrivateKey)
		assert.Nil(t, err)
		sigs = append(sigs, sig)
	}
	return sigs
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t)

	balance, err := f.node.Ledger().BalanceOf(f.accounts[0].Address)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(900*million), balance)

	total, err := f.node.Ledger().TotalSupply()
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(1100*million), total)

	quorum, err := f.node.Params().Get(agora.KeyQuorumPercentage)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(4), quorum)

	// bootstrapping is once-only: reopening must not re-allocate
	reopened := f.reopen(t)
	balance, err = reopened.Ledger().BalanceOf(f.accounts[0].Address)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(900*million), balance)
}

func TestLifecycleParameterChange(t *testing.T) {
	f := newFixture(t)

	p := f.proposeAndPass(t, []gov.Action{{
		Kind:  gov.ActionParameterChange,
		Name:  agora.KeyVotingPeriod,
		Value: big.NewInt(int64(4 * day)),
	}})

	entry, err := f.node.Queue(p.ID)
	assert.Nil(t, err)
	assert.Equal(t, f.clock.now+2*day, entry.Eta)

	_, err = f.node.Execute(p.ID)
	assert.True(t, gov.Is(err, gov.ErrTooEarly))

	f.clock.now = entry.Eta
	_, err = f.node.Execute(p.ID)
	assert.Nil(t, err)

	v, err := f.node.Params().GetUint64(agora.KeyVotingPeriod)
	assert.Nil(t, err)
	assert.Equal(t, 4*day, v)

	detail, err := f.node.Proposal(p.ID)
	assert.Nil(t, err)
	assert.Equal(t, gov.StateExecuted, detail.State)

	// the whole trail is in the audit log
	for _, eventType := range []string{
		gov.EventProposalCreated,
		gov.EventVoteCast,
		gov.EventTimelockQueued,
		gov.EventParameterChanged,
		gov.EventTimelockExecuted,
	} {
		records, err := f.audit.Query(&auditdb.Filter{Type: eventType})
		assert.Nil(t, err)
		assert.True(t, len(records) > 0, eventType)
	}
}

func TestEventFeed(t *testing.T) {
	f := newFixture(t)

	ch := make(chan gov.Event, 64)
	sub := f.node.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	p := f.proposeAndPass(t, []gov.Action{{
		Kind:   gov.ActionFundTransfer,
		Target: f.accounts[9].Address,
		Value:  big.NewInt(million),
	}})
	_, err := f.node.Queue(p.ID)
	assert.Nil(t, err)

	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).EventType())
	}
	assert.Contains(t, types, gov.EventProposalCreated)
	assert.Contains(t, types, gov.EventVoteCast)
	assert.Contains(t, types, gov.EventProposalStateChanged)
	assert.Contains(t, types, gov.EventTimelockQueued)
}

func TestFundTransfer(t *testing.T) {
	f := newFixture(t)

	grantee := f.accounts[9].Address
	p := f.proposeAndPass(t, []gov.Action{{
		Kind:   gov.ActionFundTransfer,
		Target: grantee,
		Value:  big.NewInt(30 * million),
	}})
	entry, err := f.node.Queue(p.ID)
	assert.Nil(t, err)
	f.clock.now = entry.Eta
	_, err = f.node.Execute(p.ID)
	assert.Nil(t, err)

	balance, err := f.node.Ledger().BalanceOf(grantee)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(30*million), balance)

	treasury, err := f.node.Ledger().BalanceOf(agora.TreasuryAddress)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(70*million), treasury)
}

func TestExecutionRollsBackAtomically(t *testing.T) {
	f := newFixture(t)

	// the second action overdraws the treasury, so the first must unwind
	p := f.proposeAndPass(t, []gov.Action{
		{
			Kind:  gov.ActionParameterChange,
			Name:  agora.KeyQuorumPercentage,
			Value: big.NewInt(8),
		},
		{
			Kind:   gov.ActionFundTransfer,
			Target: f.accounts[9].Address,
			Value:  big.NewInt(200 * million),
		},
	})
	entry, err := f.node.Queue(p.ID)
	assert.Nil(t, err)
	f.clock.now = entry.Eta

	_, err = f.node.Execute(p.ID)
	assert.True(t, gov.Is(err, gov.ErrActionFailed))

	quorum, err := f.node.Params().Get(agora.KeyQuorumPercentage)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(4), quorum)

	// no partial events leaked into the audit log
	records, err := f.audit.Query(&auditdb.Filter{Type: gov.EventParameterChanged})
	assert.Nil(t, err)
	assert.Len(t, records, 0)

	// the proposal stays queued and is retryable
	detail, err := f.node.Proposal(p.ID)
	assert.Nil(t, err)
	assert.Equal(t, gov.StateQueued, detail.State)
}

func TestExpiredTimelock(t *testing.T) {
	f := newFixture(t)

	p := f.proposeAndPass(t, []gov.Action{{
		Kind:   gov.ActionFundTransfer,
		Target: f.accounts[9].Address,
		Value:  big.NewInt(million),
	}})
	entry, err := f.node.Queue(p.ID)
	assert.Nil(t, err)

	// 14 days of grace past eta, one second beyond is too late
	f.clock.now = entry.Eta + 14*day + 1
	_, err = f.node.Execute(p.ID)
	assert.True(t, gov.Is(err, gov.ErrExpired))

	detail, err := f.node.Proposal(p.ID)
	assert.Nil(t, err)
	assert.Equal(t, gov.StateExpired, detail.State)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)

	proposer := f.accounts[0].Address
	p, err := f.node.Propose(proposer, []gov.Action{{
		Kind:   gov.ActionFundTransfer,
		Target: f.accounts[9].Address,
		Value:  big.NewInt(1),
	}}, "to be canceled")
	assert.Nil(t, err)

	err = f.node.Cancel(p.ID, f.accounts[5].Address)
	assert.True(t, gov.Is(err, gov.ErrNotAuthorized))

	assert.Nil(t, f.node.Cancel(p.ID, proposer))

	detail, err := f.node.Proposal(p.ID)
	assert.Nil(t, err)
	assert.Equal(t, gov.StateCanceled, detail.State)

	// idempotent
	assert.Nil(t, f.node.Cancel(p.ID, proposer))
}

func TestEmergencyPauseAndRatify(t *testing.T) {
	f := newFixture(t)

	rec, err := f.node.EmergencyPause(f.sign(t, emergency.OpPause, "", nil, 5))
	assert.Nil(t, err)
	paused, _ := f.node.Paused()
	assert.True(t, paused)

	// execution-side mutation is blocked while paused
	p := f.proposeAndPass(t, []gov.Action{{
		Kind:  gov.ActionParameterChange,
		Name:  agora.KeyQuorumPercentage,
		Value: big.NewInt(8),
	}})
	entry, err := f.node.Queue(p.ID)
	assert.Nil(t, err)
	f.clock.now = entry.Eta
	_, err = f.node.Execute(p.ID)
	assert.True(t, gov.Is(err, gov.ErrPaused))

	// but a ratify-and-resume proposal may pass and execute
	ratify, err := f.node.Propose(f.accounts[0].Address, []gov.Action{
		{Kind: gov.ActionEmergencyRatify, Ref: rec.ID},
		{Kind: gov.ActionContractCall, Target: agora.GovernanceAddress, Data: []byte("resume")},
	}, "ratify the pause and resume")
	assert.Nil(t, err)

	f.clock.now = ratify.VotingStart
	_, err = f.node.CastVote(ratify.ID, f.accounts[0].Address, gov.SupportFor, "")
	assert.Nil(t, err)
	f.clock.now = ratify.VotingEnd
	ratifyEntry, err := f.node.Queue(ratify.ID)
	assert.Nil(t, err)
	f.clock.now = ratifyEntry.Eta
	_, err = f.node.Execute(ratify.ID)
	assert.Nil(t, err)

	paused, _ = f.node.Paused()
	assert.False(t, paused)

	action, err := f.node.Emergency().Action(rec.ID)
	assert.Nil(t, err)
	assert.True(t, action.Ratified)
	assert.Equal(t, ratify.ID, action.RatifiedBy)

	// with the pause lifted the first proposal is executable again
	_, err = f.node.Execute(p.ID)
	assert.Nil(t, err)
}

func TestEmergencyParameterChange(t *testing.T) {
	f := newFixture(t)

	value := big.NewInt(10)
	rec, err := f.node.EmergencyParameterChange(agora.KeyQuorumPercentage, value,
		f.sign(t, emergency.OpParameterChange, agora.KeyQuorumPercentage, value, 5))
	assert.Nil(t, err)
	assert.Equal(t, launch+7*day, rec.Deadline)

	v, err := f.node.Params().Get(agora.KeyQuorumPercentage)
	assert.Nil(t, err)
	assert.Equal(t, value, v)

	records, err := f.audit.Query(&auditdb.Filter{Type: gov.EventEmergencyActionTaken})
	assert.Nil(t, err)
	assert.Len(t, records, 1)

	// threshold enforcement surfaces through the node api too
	_, err = f.node.EmergencyPause(f.sign(t, emergency.OpPause, "", nil, 4))
	assert.True(t, gov.Is(err, gov.ErrInsufficientSignatures))
}

func TestHousekeepFinalizesAndExpires(t *testing.T) {
	f := newFixture(t)

	// no votes at all: housekeeping must finalize it defeated
	ignored, err := f.node.Propose(f.accounts[0].Address, []gov.Action{{
		Kind:   gov.ActionFundTransfer,
		Target: f.accounts[9].Address,
		Value:  big.NewInt(1),
	}}, "nobody cares")
	assert.Nil(t, err)

	// a passed-but-never-executed proposal must expire
	stale := f.proposeAndPass(t, []gov.Action{{
		Kind:  gov.ActionParameterChange,
		Name:  agora.KeyQuorumPercentage,
		Value: big.NewInt(8),
	}})
	entry, err := f.node.Queue(stale.ID)
	assert.Nil(t, err)

	f.clock.now = entry.Eta + 14*day + 1
	f.node.Housekeep(f.clock.now)

	detail, err := f.node.Proposal(ignored.ID)
	assert.Nil(t, err)
	assert.Equal(t, gov.StateDefeated, detail.State)

	detail, err = f.node.Proposal(stale.ID)
	assert.Nil(t, err)
	assert.Equal(t, gov.StateExpired, detail.State)

	open, err := f.node.registry.Open()
	assert.Nil(t, err)
	assert.Len(t, open, 0)
}

func TestHousekeepFlagsOverdueRatification(t *testing.T) {
	f := newFixture(t)

	rec, err := f.node.EmergencyPause(f.sign(t, emergency.OpPause, "", nil, 5))
	assert.Nil(t, err)

	f.clock.now = rec.Deadline + 1
	f.node.Housekeep(f.clock.now)

	records, err := f.audit.Query(&auditdb.Filter{Type: gov.EventRatificationOverdue})
	assert.Nil(t, err)
	assert.Len(t, records, 1)

	// flagged exactly once per action
	f.node.Housekeep(f.clock.now + 1)
	records, err = f.audit.Query(&auditdb.Filter{Type: gov.EventRatificationOverdue})
	assert.Nil(t, err)
	assert.Len(t, records, 1)
}

func TestDurability(t *testing.T) {
	f := newFixture(t)

	p := f.proposeAndPass(t, []gov.Action{{
		Kind:  gov.ActionParameterChange,
		Name:  agora.KeyVotingDelay,
		Value: big.NewInt(int64(2 * day)),
	}})
	entry, err := f.node.Queue(p.ID)
	assert.Nil(t, err)

	// a restart in the middle of the timelock loses nothing
	reopened := f.reopen(t)
	detail, err := reopened.Proposal(p.ID)
	assert.Nil(t, err)
	assert.Equal(t, gov.StateQueued, detail.State)
	assert.Equal(t, entry.Eta, detail.Entry.Eta)

	votes, err := reopened.Votes(p.ID)
	assert.Nil(t, err)
	assert.Len(t, votes, 1)

	f.clock.now = entry.Eta
	_, err = reopened.Execute(p.ID)
	assert.Nil(t, err)

	v, err := reopened.Params().GetUint64(agora.KeyVotingDelay)
	assert.Nil(t, err)
	assert.Equal(t, 2*day, v)
}

func TestDelegatedProposerEligibility(t *testing.T) {
	f := newFixture(t)

	// account 5 holds 8M, below the 10M threshold
	_, err := f.node.Propose(f.accounts[5].Address, []gov.Action{{
		Kind:   gov.ActionFundTransfer,
		Target: f.accounts[9].Address,
		Value:  big.NewInt(1),
	}}, "")
	assert.True(t, gov.Is(err, gov.ErrBelowThreshold))

	// the delegate must hold an account record first
	err = f.node.Delegate(f.accounts[0].Address, f.accounts[9].Address)
	assert.True(t, gov.Is(err, gov.ErrInvalidDelegate))

	// whale delegation lifts account 5 over the threshold
	assert.Nil(t, f.node.Delegate(f.accounts[0].Address, f.accounts[5].Address))
	_, err = f.node.Propose(f.accounts[5].Address, []gov.Action{{
		Kind:   gov.ActionFundTransfer,
		Target: f.accounts[9].Address,
		Value:  big.NewInt(1),
	}}, "")
	assert.Nil(t, err)
}
