// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package agora

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	assert.Nil(t, err)
	assert.Equal(t, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", addr.String())

	// prefix is optional, case is not significant
	same, err := ParseAddress("F39FD6E51AAD88F6F4CE6AB8827279CFFFB92266")
	assert.Nil(t, err)
	assert.Equal(t, addr, same)

	for _, s := range []string{
		"",
		"0x",
		"0xf39fd6e51aad88f6f4ce6ab8827279cfffb9226", // short
		"zzf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
		"0xg39fd6e51aad88f6f4ce6ab8827279cfffb92266",
	} {
		_, err := ParseAddress(s)
		assert.Error(t, err, s)
	}
}

func TestAddressJSON(t *testing.T) {
	addr := MustParseAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	data, err := json.Marshal(addr)
	assert.Nil(t, err)
	assert.Equal(t, `"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"`, string(data))

	var parsed Address
	assert.Nil(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, addr, parsed)
}

func TestBytesToAddress(t *testing.T) {
	assert.False(t, GovernanceAddress.IsZero())
	assert.False(t, TreasuryAddress.IsZero())
	assert.NotEqual(t, GovernanceAddress, TreasuryAddress)
	assert.True(t, Address{}.IsZero())
}

func TestBytes32(t *testing.T) {
	h := Blake2b([]byte("agora"))
	assert.False(t, h.IsZero())
	assert.Equal(t, h, Blake2b([]byte("agora")))
	assert.NotEqual(t, h, Blake2b([]byte("arena")))

	parsed, err := ParseBytes32(h.String())
	assert.Nil(t, err)
	assert.Equal(t, h, parsed)
}

func TestBoundCovers(t *testing.T) {
	b := Bound{big.NewInt(1), big.NewInt(20)}
	assert.True(t, b.Covers(big.NewInt(1)))
	assert.True(t, b.Covers(big.NewInt(20)))
	assert.False(t, b.Covers(big.NewInt(0)))
	assert.False(t, b.Covers(big.NewInt(21)))

	assert.True(t, b.CoversRange(big.NewInt(2), big.NewInt(10)))
	assert.False(t, b.CoversRange(big.NewInt(10), big.NewInt(2))) // inverted
	assert.False(t, b.CoversRange(big.NewInt(0), big.NewInt(10)))
}

func TestDefaultParamsWithinAbsoluteBounds(t *testing.T) {
	for _, init := range DefaultParams() {
		abs, ok := AbsoluteBound(init.Name)
		assert.True(t, ok, init.Name)
		assert.True(t, abs.Covers(init.Value), init.Name)
		assert.True(t, abs.CoversRange(init.Lower, init.Upper), init.Name)
	}
}
