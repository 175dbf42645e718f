// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/agora-dao/agora/agora"
)

// Snapshot is an immutable capture of effective voting power at a logical
// index. Reads are lock-free and safe for concurrent use.
type Snapshot struct {
	index  uint64
	total  *big.Int
	powers map[agora.Address]*big.Int
}

type snapshotEntry struct {
	Addr  agora.Address
	Power *big.Int
}

type snapshotBody struct {
	Total   *big.Int
	Entries []snapshotEntry
}

func (b *snapshotBody) toSnapshot(index uint64) *Snapshot {
	powers := make(map[agora.Address]*big.Int, len(b.Entries))
	for _, e := range b.Entries {
		powers[e.Addr] = e.Power
	}
	return &Snapshot{index, b.Total, powers}
}

func decodeSnapshot(index uint64, data []byte) (*Snapshot, error) {
	var body snapshotBody
	if err := rlp.DecodeBytes(data, &body); err != nil {
		return nil, err
	}
	return body.toSnapshot(index), nil
}

// Index returns the logical index the snapshot was captured at.
func (s *Snapshot) Index() uint64 {
	return s.index
}

// TotalSupply returns the total token supply at capture time.
func (s *Snapshot) TotalSupply() *big.Int {
	return new(big.Int).Set(s.total)
}

// PowerOf returns the effective voting power of addr at capture time,
// zero if the account held no power.
func (s *Snapshot) PowerOf(addr agora.Address) *big.Int {
	if p, ok := s.powers[addr]; ok {
		return new(big.Int).Set(p)
	}
	return new(big.Int)
}

// Holders returns the number of accounts holding power in the snapshot.
func (s *Snapshot) Holders() int {
	return len(s.powers)
}
