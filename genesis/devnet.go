// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/agora-dao/agora/agora"
)

// DevAccount is a well-known account for test & dev. Never fund these keys
// anywhere that matters; they are public.
type DevAccount struct {
	Address    agora.Address
	PrivateKey *ecdsa.PrivateKey
}

var devKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
	"7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6",
	"47e179ec197488593b187f80a00eb0da91f1b9d0b13f8733639f19c30a34926a",
	"8b3a350cf5c34c9194ca85829a2df0ec3153be0318b5e2d3348e872092edffba",
	"92db14e403b83dfe3df233f83dfa3a0d7096f21ca9b0d6d6b8d88b2b4ec1564e",
	"4bbbf85ce3377467afe5d46f804f221813b2bb87f24d81f60f1fcdbf7cbf4356",
	"dbda1821b80551c9d65939329250298aa3472ba22feea921c0cf5d620ea67b97",
	"2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6",
}

// DevAccounts returns the ten well-known dev accounts.
func DevAccounts() []DevAccount {
	accounts := make([]DevAccount, 0, len(devKeys))
	for _, hexKey := range devKeys {
		pk, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			panic(err)
		}
		accounts = append(accounts, DevAccount{
			Address:    agora.Address(crypto.PubkeyToAddress(pk.PublicKey)),
			PrivateKey: pk,
		})
	}
	return accounts
}

func amount(v int64) *Amount {
	a := Amount(*big.NewInt(v))
	return &a
}

// Devnet returns a ready-to-run genesis for test & dev: dev account 0 holds
// the bulk of the supply and may cancel, accounts 1-9 form a 5-of-9
// emergency multisig.
func Devnet() *Genesis {
	accounts := DevAccounts()

	g := &Genesis{
		LaunchTime: 1735689600, // 2025-01-01T00:00:00Z
		Allocations: []Allocation{
			{Address{accounts[0].Address}, amount(900_000_000)},
			{Address{accounts[1].Address}, amount(50_000_000)},
			{Address{accounts[2].Address}, amount(12_000_000)},
			{Address{accounts[3].Address}, amount(12_000_000)},
			{Address{accounts[4].Address}, amount(10_000_000)},
			{Address{accounts[5].Address}, amount(8_000_000)},
			{Address{accounts[6].Address}, amount(8_000_000)},
		},
		Emergency: Emergency{
			Threshold: 5,
		},
		Cancellers: []Address{{accounts[0].Address}},
	}
	for _, acc := range accounts[1:] {
		g.Emergency.Signers = append(g.Emergency.Signers, Address{acc.Address})
	}
	return g
}
