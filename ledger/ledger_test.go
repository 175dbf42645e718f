// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/lvldb"
)

var (
	alice = agora.BytesToAddress([]byte("alice"))
	bob   = agora.BytesToAddress([]byte("bob"))
	carol = agora.BytesToAddress([]byte("carol"))
)

func newLedger(t *testing.T) *Ledger {
	db, err := lvldb.NewMem()
	assert.Nil(t, err)
	return New(db)
}

func TestBalanceChange(t *testing.T) {
	l := newLedger(t)

	assert.Nil(t, l.BalanceChange(alice, big.NewInt(100)))

	balance, err := l.BalanceOf(alice)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(100), balance)

	// accounts start self-delegated
	power, err := l.PowerOf(alice)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(100), power)

	delegate, err := l.DelegateOf(alice)
	assert.Nil(t, err)
	assert.Equal(t, alice, delegate)

	total, err := l.TotalSupply()
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(100), total)

	assert.Nil(t, l.BalanceChange(alice, big.NewInt(-40)))
	balance, _ = l.BalanceOf(alice)
	assert.Equal(t, big.NewInt(60), balance)
	total, _ = l.TotalSupply()
	assert.Equal(t, big.NewInt(60), total)
}

func TestBalanceUnderflow(t *testing.T) {
	l := newLedger(t)

	assert.Nil(t, l.BalanceChange(alice, big.NewInt(10)))
	err := l.BalanceChange(alice, big.NewInt(-11))
	assert.True(t, gov.Is(err, gov.ErrUnderflow))
	assert.Equal(t, gov.KindBounds, gov.KindOf(err))

	// the failed change must leave the balance intact
	balance, _ := l.BalanceOf(alice)
	assert.Equal(t, big.NewInt(10), balance)
}

func TestTransfer(t *testing.T) {
	l := newLedger(t)

	assert.Nil(t, l.BalanceChange(alice, big.NewInt(100)))
	assert.Nil(t, l.Transfer(alice, bob, big.NewInt(30)))

	aliceBalance, _ := l.BalanceOf(alice)
	bobBalance, _ := l.BalanceOf(bob)
	assert.Equal(t, big.NewInt(70), aliceBalance)
	assert.Equal(t, big.NewInt(30), bobBalance)

	// transfers preserve total supply
	total, _ := l.TotalSupply()
	assert.Equal(t, big.NewInt(100), total)

	err := l.Transfer(bob, alice, big.NewInt(31))
	assert.True(t, gov.Is(err, gov.ErrUnderflow))
}

func TestDelegate(t *testing.T) {
	l := newLedger(t)

	assert.Nil(t, l.BalanceChange(alice, big.NewInt(100)))
	assert.Nil(t, l.BalanceChange(bob, big.NewInt(50)))

	assert.Nil(t, l.Delegate(alice, bob))

	alicePower, _ := l.PowerOf(alice)
	bobPower, _ := l.PowerOf(bob)
	assert.Equal(t, big.NewInt(0), alicePower)
	assert.Equal(t, big.NewInt(150), bobPower)

	// balance changes follow the delegation
	assert.Nil(t, l.BalanceChange(alice, big.NewInt(20)))
	bobPower, _ = l.PowerOf(bob)
	assert.Equal(t, big.NewInt(170), bobPower)

	// re-delegating moves the full balance back
	assert.Nil(t, l.Delegate(alice, alice))
	alicePower, _ = l.PowerOf(alice)
	bobPower, _ = l.PowerOf(bob)
	assert.Equal(t, big.NewInt(120), alicePower)
	assert.Equal(t, big.NewInt(50), bobPower)
}

func TestDelegateToUnknown(t *testing.T) {
	l := newLedger(t)

	assert.Nil(t, l.BalanceChange(alice, big.NewInt(100)))
	err := l.Delegate(alice, carol)
	assert.True(t, gov.Is(err, gov.ErrInvalidDelegate))
}

func TestSnapshotFixesPower(t *testing.T) {
	l := newLedger(t)

	assert.Nil(t, l.BalanceChange(alice, big.NewInt(100)))
	assert.Nil(t, l.BalanceChange(bob, big.NewInt(50)))

	snap, err := l.Snapshot(1000)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(100), snap.PowerOf(alice))
	assert.Equal(t, big.NewInt(150), snap.TotalSupply())

	// later balance and delegation changes must not leak into the snapshot
	assert.Nil(t, l.BalanceChange(alice, big.NewInt(900)))
	assert.Nil(t, l.Delegate(bob, alice))

	snap, err = l.Snapshot(1000)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(100), snap.PowerOf(alice))
	assert.Equal(t, big.NewInt(50), snap.PowerOf(bob))
	assert.Equal(t, big.NewInt(150), snap.TotalSupply())

	// unknown holders have zero power
	assert.Equal(t, big.NewInt(0), snap.PowerOf(carol))
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	db, err := lvldb.NewMem()
	assert.Nil(t, err)

	l := New(db)
	assert.Nil(t, l.BalanceChange(alice, big.NewInt(100)))
	snap, err := l.Snapshot(42)
	assert.Nil(t, err)

	// a fresh ledger over the same store must reload, not recapture
	assert.Nil(t, l.BalanceChange(alice, big.NewInt(100)))
	reopened := New(db)
	snap2, err := reopened.Snapshot(42)
	assert.Nil(t, err)
	assert.Equal(t, snap.PowerOf(alice), snap2.PowerOf(alice))
	assert.Equal(t, snap.TotalSupply(), snap2.TotalSupply())
}

func TestPruneSnapshots(t *testing.T) {
	l := newLedger(t)

	assert.Nil(t, l.BalanceChange(alice, big.NewInt(100)))
	_, err := l.Snapshot(10)
	assert.Nil(t, err)
	_, err = l.Snapshot(20)
	assert.Nil(t, err)
	_, err = l.Snapshot(30)
	assert.Nil(t, err)

	pruned, err := l.PruneSnapshots(25)
	assert.Nil(t, err)
	assert.Equal(t, 2, pruned)

	// the surviving snapshot still loads after reopening
	reopened := New(l.store)
	snap, err := reopened.Snapshot(30)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(100), snap.PowerOf(alice))
}
