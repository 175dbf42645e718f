// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package voting runs the voting-delay → voting-period → tally state machine
// per proposal. Phases are pure functions of (stored record, now); nothing
// here is timer driven, so the machine is deterministic and replayable.
package voting

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
	"github.com/agora-dao/agora/registry"
)

var logger = log.WithContext("pkg", "voting")

// Engine owns vote records and the transitions up to succeeded/defeated.
type Engine struct {
	mu       sync.Mutex
	votes    kv.GetPutter
	tallies  kv.GetPutter
	registry *registry.Registry
	ledger   *ledger.Ledger
	params   *params.Store
}

// Outcome is the result of tallying an ended voting window.
type Outcome struct {
	State     gov.State  `json:"state"`
	QuorumMet bool       `json:"quorumMet"`
	Quorum    *big.Int   `json:"quorum"`
	Tally     *gov.Tally `json:"tally"`
}

// New creates a voting engine over the given store.
func New(store kv.GetPutter, reg *registry.Registry, led *ledger.Ledger, par *params.Store) *Engine {
	return &Engine{
		votes:    kv.Bucket("v/").NewStore(store),
		tallies:  kv.Bucket("t/").NewStore(store),
		registry: reg,
		ledger:   led,
		params:   par,
	}
}

func voteKey(id uint64, voter agora.Address) []byte {
	b := make([]byte, 8, 8+agora.AddressLength)
	binary.BigEndian.PutUint64(b, id)
	return append(b, voter.Bytes()...)
}

func tallyKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

// CastVote records a ballot for the given proposal. The weight is read from
// the proposal's snapshot, zero if the voter held no power at snapshot time;
// a zero-weight vote is stored for audit but cannot move the tally.
func (e *Engine) CastVote(id uint64, voter agora.Address, support gov.Support, reason string, now uint64) (*gov.Vote, error) {
	if !support.Valid() {
		return nil, errors.WithMessagef(gov.ErrInvalidSupport, "support value %d", support)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Status != gov.StatePending || now < p.VotingStart || now >= p.VotingEnd {
		return nil, errors.WithMessagef(gov.ErrNotActive,
			"proposal %d not accepting votes at %d", id, now)
	}

	if has, err := e.votes.Has(voteKey(id, voter)); err != nil {
		return nil, err
	} else if has {
		return nil, errors.WithMessagef(gov.ErrAlreadyVoted, "voter %v on proposal %d", voter, id)
	}

	snap, err := e.ledger.Snapshot(p.SnapshotIndex)
	if err != nil {
		return nil, err
	}
	vote := &gov.Vote{
		ProposalID: id,
		Voter:      voter,
		Support:    support,
		Weight:     snap.PowerOf(voter),
		Reason:     reason,
		CastAt:     now,
	}
	data, err := rlp.EncodeToBytes(vote)
	if err != nil {
		return nil, err
	}
	if err := e.votes.Put(voteKey(id, voter), data); err != nil {
		return nil, err
	}

	tally, err := e.tallyOf(id)
	if err != nil {
		return nil, err
	}
	tally.Add(support, vote.Weight)
	if err := e.putTally(id, tally); err != nil {
		return nil, err
	}
	logger.Debug("vote cast", "proposal", id, "voter", voter, "support", support, "weight", vote.Weight)
	return vote, nil
}

// VoteOf returns the recorded vote of voter on the given proposal, nil if none.
func (e *Engine) VoteOf(id uint64, voter agora.Address) (*gov.Vote, error) {
	data, err := e.votes.Get(voteKey(id, voter))
	if err != nil {
		if e.votes.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var v gov.Vote
	if err := rlp.DecodeBytes(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Votes returns the recorded votes of a proposal, in voter address order.
func (e *Engine) Votes(id uint64) ([]*gov.Vote, error) {
	prefix := tallyKey(id)
	var out []*gov.Vote
	iter := e.votes.NewIterator(kv.Range{
		Start: prefix,
		Limit: tallyKey(id + 1),
	})
	defer iter.Release()
	for iter.Next() {
		var v gov.Vote
		if err := rlp.DecodeBytes(iter.Value(), &v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, iter.Error()
}

func (e *Engine) tallyOf(id uint64) (*gov.Tally, error) {
	data, err := e.tallies.Get(tallyKey(id))
	if err != nil {
		if e.tallies.IsNotFound(err) {
			return gov.NewTally(), nil
		}
		return nil, err
	}
	var t gov.Tally
	if err := rlp.DecodeBytes(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (e *Engine) putTally(id uint64, t *gov.Tally) error {
	data, err := rlp.EncodeToBytes(t)
	if err != nil {
		return err
	}
	return e.tallies.Put(tallyKey(id), data)
}

// TallyOf returns the running tally of the proposal.
func (e *Engine) TallyOf(id uint64) (*gov.Tally, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tallyOf(id)
}

// evaluate computes the outcome of an ended voting window.
func (e *Engine) evaluate(p *gov.Proposal, tally *gov.Tally) (*Outcome, error) {
	snap, err := e.ledger.Snapshot(p.SnapshotIndex)
	if err != nil {
		return nil, err
	}
	quorumPct, err := e.params.Get(agora.KeyQuorumPercentage)
	if err != nil {
		return nil, err
	}
	quorum := new(big.Int).Mul(snap.TotalSupply(), quorumPct)
	quorum.Div(quorum, big.NewInt(100))

	out := &Outcome{Quorum: quorum, Tally: tally}

	// participation exactly at the quorum passes: >=, not >
	if tally.Cast().Cmp(quorum) < 0 {
		out.State = gov.StateDefeated
		return out, nil
	}
	out.QuorumMet = true

	passed := tally.ForVotes.Cmp(tally.AgainstVotes) > 0
	if passed && p.Meta() {
		// meta-governance needs a super-majority of for+against
		threshold, err := e.params.Get(agora.KeyMetaGovernanceThreshold)
		if err != nil {
			return nil, err
		}
		decisive := new(big.Int).Add(tally.ForVotes, tally.AgainstVotes)
		lhs := new(big.Int).Mul(tally.ForVotes, big.NewInt(100))
		rhs := decisive.Mul(decisive, threshold)
		passed = lhs.Cmp(rhs) >= 0
	}
	if passed {
		out.State = gov.StateSucceeded
	} else {
		out.State = gov.StateDefeated
	}
	return out, nil
}

// StateOf derives the effective state of a proposal at the given time.
// It never mutates the stored record.
func (e *Engine) StateOf(p *gov.Proposal, now uint64) (gov.State, error) {
	switch p.Status {
	case gov.StatePending:
		if now < p.VotingStart {
			return gov.StatePending, nil
		}
		if now < p.VotingEnd {
			return gov.StateActive, nil
		}
		tally, err := e.TallyOf(p.ID)
		if err != nil {
			return 0, err
		}
		out, err := e.evaluate(p, tally)
		if err != nil {
			return 0, err
		}
		return out.State, nil
	case gov.StateQueued:
		grace, err := e.params.GetUint64(agora.KeyGracePeriod)
		if err != nil {
			return 0, err
		}
		if now > p.Eta+grace {
			return gov.StateExpired, nil
		}
		return gov.StateQueued, nil
	default:
		return p.Status, nil
	}
}

// Finalize persists the outcome of an ended voting window, moving the
// proposal to succeeded or defeated. Calling it on an already decided
// proposal returns the stored state with a nil outcome.
func (e *Engine) Finalize(id uint64, now uint64) (gov.State, *Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.registry.Get(id)
	if err != nil {
		return 0, nil, err
	}
	if p.Status != gov.StatePending {
		return p.Status, nil, nil
	}
	if now < p.VotingEnd {
		return p.Status, nil, errors.WithMessagef(gov.ErrTooEarly,
			"voting on proposal %d ends at %d", id, p.VotingEnd)
	}

	tally, err := e.tallyOf(id)
	if err != nil {
		return 0, nil, err
	}
	out, err := e.evaluate(p, tally)
	if err != nil {
		return 0, nil, err
	}
	if _, err := e.registry.Transition(p, out.State); err != nil {
		return 0, nil, err
	}
	logger.Info("proposal finalized", "id", id, "state", out.State, "quorumMet", out.QuorumMet,
		"for", tally.ForVotes, "against", tally.AgainstVotes, "abstain", tally.AbstainVotes)
	return out.State, out, nil
}
