// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package registry

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/ledger"
	"github.com/agora-dao/agora/lvldb"
	"github.com/agora-dao/agora/params"
)

const (
	day       = uint64(24 * 3600)
	launch    = uint64(1735689600)
	threshold = int64(10_000_000)
)

var (
	whale    = agora.BytesToAddress([]byte("whale"))
	minnow   = agora.BytesToAddress([]byte("minnow"))
	receiver = agora.BytesToAddress([]byte("receiver"))
)

func newRegistry(t *testing.T) (*Registry, *ledger.Ledger) {
	db, err := lvldb.NewMem()
	assert.Nil(t, err)

	led := ledger.New(db)
	par := params.New(db)
	for _, init := range agora.DefaultParams() {
		assert.Nil(t, par.Register(init, agora.GovernanceAddress, launch))
	}
	assert.Nil(t, led.BalanceChange(whale, big.NewInt(threshold+2_000_000)))
	assert.Nil(t, led.BalanceChange(minnow, big.NewInt(threshold-1)))

	return New(db, led, par), led
}

func transferAction(amount int64) gov.Action {
	return gov.Action{
		Kind:   gov.ActionFundTransfer,
		Target: receiver,
		Value:  big.NewInt(amount),
	}
}

func TestCreate(t *testing.T) {
	r, _ := newRegistry(t)

	p, err := r.Create(whale, []gov.Action{transferAction(100)}, "fund the receiver", launch)
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), p.ID)
	assert.Equal(t, gov.StatePending, p.Status)
	assert.Equal(t, launch, p.SnapshotIndex)
	assert.Equal(t, launch+day, p.VotingStart)
	assert.Equal(t, launch+4*day, p.VotingEnd)

	got, err := r.Get(p.ID)
	assert.Nil(t, err)
	assert.Equal(t, p.Proposer, got.Proposer)
	assert.Equal(t, p.VotingEnd, got.VotingEnd)

	// ids are monotonic
	p2, err := r.Create(whale, []gov.Action{transferAction(1)}, "another", launch+1)
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), p2.ID)
}

func TestCreateEligibility(t *testing.T) {
	r, led := newRegistry(t)

	_, err := r.Create(minnow, []gov.Action{transferAction(1)}, "", launch)
	assert.True(t, gov.Is(err, gov.ErrBelowThreshold))
	assert.Equal(t, gov.KindEligibility, gov.KindOf(err))

	_, err = r.Create(whale, nil, "", launch)
	assert.True(t, gov.Is(err, gov.ErrEmptyProposal))

	var many []gov.Action
	for i := 0; i < 11; i++ {
		many = append(many, transferAction(1))
	}
	_, err = r.Create(whale, many, "", launch)
	assert.True(t, gov.Is(err, gov.ErrTooManyActions))

	// delegated-in power counts toward the threshold
	assert.Nil(t, led.Delegate(whale, minnow))
	_, err = r.Create(minnow, []gov.Action{transferAction(1)}, "", launch)
	assert.Nil(t, err)
	_, err = r.Create(whale, []gov.Action{transferAction(1)}, "", launch)
	assert.True(t, gov.Is(err, gov.ErrBelowThreshold))
}

func TestGetUnknown(t *testing.T) {
	r, _ := newRegistry(t)

	_, err := r.Get(9)
	assert.True(t, gov.Is(err, gov.ErrUnknownProposal))
}

func TestTransition(t *testing.T) {
	r, _ := newRegistry(t)

	p, err := r.Create(whale, []gov.Action{transferAction(1)}, "", launch)
	assert.Nil(t, err)

	old, err := r.Transition(p, gov.StateSucceeded)
	assert.Nil(t, err)
	assert.Equal(t, gov.StatePending, old)
	assert.Equal(t, gov.StateSucceeded, p.Status)

	// skipping queued is not a legal edge
	_, err = r.Transition(p, gov.StateExecuted)
	assert.True(t, gov.Is(err, gov.ErrIllegalTransition))
	assert.Equal(t, gov.StateSucceeded, p.Status)

	_, err = r.Transition(p, gov.StateQueued)
	assert.Nil(t, err)
	_, err = r.Transition(p, gov.StateExecuted)
	assert.Nil(t, err)

	got, err := r.Get(p.ID)
	assert.Nil(t, err)
	assert.Equal(t, gov.StateExecuted, got.Status)
}

func TestOpenIndex(t *testing.T) {
	r, _ := newRegistry(t)

	p1, _ := r.Create(whale, []gov.Action{transferAction(1)}, "", launch)
	p2, _ := r.Create(whale, []gov.Action{transferAction(2)}, "", launch)

	open, err := r.Open()
	assert.Nil(t, err)
	assert.Equal(t, []uint64{p1.ID, p2.ID}, open)

	_, err = r.Transition(p1, gov.StateCanceled)
	assert.Nil(t, err)

	open, err = r.Open()
	assert.Nil(t, err)
	assert.Equal(t, []uint64{p2.ID}, open)
}

func TestList(t *testing.T) {
	r, _ := newRegistry(t)

	for i := 0; i < 5; i++ {
		_, err := r.Create(whale, []gov.Action{transferAction(1)}, "", launch)
		assert.Nil(t, err)
	}
	list, err := r.List(0, 3)
	assert.Nil(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, uint64(1), list[0].ID)

	list, err = r.List(3, 10)
	assert.Nil(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, uint64(4), list[0].ID)
}
