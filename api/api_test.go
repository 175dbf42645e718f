// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/api/emergency"
	"github.com/agora-dao/agora/api/proposals"
	"github.com/agora-dao/agora/auditdb"
	"github.com/agora-dao/agora/genesis"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/lvldb"
	"github.com/agora-dao/agora/node"
)

const day = uint64(24 * 3600)

type testServer struct {
	url      string
	node     *node.Node
	clock    *uint64
	accounts []genesis.DevAccount
}

func newServer(t *testing.T) *testServer {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	audit, err := auditdb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	gene := genesis.Devnet()
	gene.Allocations = append(gene.Allocations, genesis.Allocation{
		Address: genesis.Address{Address: agora.TreasuryAddress},
		Balance: (*genesis.Amount)(big.NewInt(100_000_000)),
	})

	clock := gene.LaunchTime
	n, err := node.New(db, audit, gene, node.Options{Now: func() uint64 { return clock }})
	require.NoError(t, err)
	t.Cleanup(n.Close)

	srv := httptest.NewServer(New(n, audit, Options{AllowedOrigins: "*"}))
	t.Cleanup(srv.Close)

	return &testServer{srv.URL, n, &clock, genesis.DevAccounts()}
}

func (s *testServer) get(t *testing.T, path string) ([]byte, int) {
	res, err := http.Get(s.url + path)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return body, res.StatusCode
}

func (s *testServer) post(t *testing.T, path string, payload any) ([]byte, int) {
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	res, err := http.Post(s.url+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return body, res.StatusCode
}

func TestAccounts(t *testing.T) {
	s := newServer(t)
	whale := s.accounts[0].Address

	body, status := s.get(t, "/accounts/"+whale.String())
	assert.Equal(t, http.StatusOK, status)
	var acc struct {
		Balance  *math.HexOrDecimal256 `json:"balance"`
		Power    *math.HexOrDecimal256 `json:"power"`
		Delegate agora.Address         `json:"delegate"`
	}
	require.NoError(t, json.Unmarshal(body, &acc))
	assert.Equal(t, big.NewInt(900_000_000), (*big.Int)(acc.Balance))
	assert.Equal(t, big.NewInt(900_000_000), (*big.Int)(acc.Power))
	assert.Equal(t, whale, acc.Delegate)

	_, status = s.get(t, "/accounts/not-an-address")
	assert.Equal(t, http.StatusBadRequest, status)

	// redelegate, then the power shows up on the target
	_, status = s.post(t, "/accounts/"+whale.String()+"/delegate",
		map[string]string{"target": s.accounts[1].Address.String()})
	assert.Equal(t, http.StatusOK, status)

	body, _ = s.get(t, "/accounts/"+s.accounts[1].Address.String())
	require.NoError(t, json.Unmarshal(body, &acc))
	assert.Equal(t, big.NewInt(950_000_000), (*big.Int)(acc.Power))
}

func TestProposalLifecycle(t *testing.T) {
	s := newServer(t)
	whale := s.accounts[0].Address

	create := proposals.CreateRequest{
		Proposer:    whale,
		Description: "raise the quorum",
		Actions: []proposals.ActionBody{{
			Kind:  gov.ActionParameterChange,
			Name:  agora.KeyQuorumPercentage,
			Value: (*math.HexOrDecimal256)(big.NewInt(8)),
		}},
	}
	body, status := s.post(t, "/proposals", create)
	require.Equal(t, http.StatusOK, status, string(body))
	var p gov.Proposal
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, uint64(1), p.ID)
	assert.Equal(t, "raise the quorum", p.Description)

	body, status = s.get(t, "/proposals")
	assert.Equal(t, http.StatusOK, status)
	var list []gov.Proposal
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)

	_, status = s.get(t, "/proposals/99")
	assert.Equal(t, http.StatusNotFound, status)
	_, status = s.get(t, "/proposals/bogus")
	assert.Equal(t, http.StatusBadRequest, status)

	// voting outside the window is a client error
	vote := proposals.VoteRequest{Voter: whale, Support: gov.SupportFor}
	_, status = s.post(t, fmt.Sprintf("/proposals/%d/votes", p.ID), vote)
	assert.Equal(t, http.StatusBadRequest, status)

	*s.clock = p.VotingStart
	body, status = s.post(t, fmt.Sprintf("/proposals/%d/votes", p.ID), vote)
	require.Equal(t, http.StatusOK, status, string(body))
	var cast gov.Vote
	require.NoError(t, json.Unmarshal(body, &cast))
	assert.Equal(t, big.NewInt(900_000_000), cast.Weight)

	body, status = s.get(t, fmt.Sprintf("/proposals/%d/votes", p.ID))
	assert.Equal(t, http.StatusOK, status)
	var votes []gov.Vote
	require.NoError(t, json.Unmarshal(body, &votes))
	assert.Len(t, votes, 1)

	_, status = s.post(t, fmt.Sprintf("/proposals/%d/finalize", p.ID), nil)
	assert.Equal(t, http.StatusBadRequest, status)

	*s.clock = p.VotingEnd
	body, status = s.post(t, fmt.Sprintf("/proposals/%d/queue", p.ID), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var entry gov.TimelockEntry
	require.NoError(t, json.Unmarshal(body, &entry))
	assert.Equal(t, p.VotingEnd+2*day, entry.Eta)

	_, status = s.post(t, fmt.Sprintf("/proposals/%d/execute", p.ID), nil)
	assert.Equal(t, http.StatusBadRequest, status)

	*s.clock = entry.Eta
	_, status = s.post(t, fmt.Sprintf("/proposals/%d/execute", p.ID), nil)
	assert.Equal(t, http.StatusOK, status)

	body, status = s.get(t, "/params/"+agora.KeyQuorumPercentage)
	assert.Equal(t, http.StatusOK, status)
	var param struct {
		Value *math.HexOrDecimal256 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(body, &param))
	assert.Equal(t, big.NewInt(8), (*big.Int)(param.Value))

	// the audit trail is queryable over http
	body, status = s.get(t, "/events?type=ParameterChanged")
	assert.Equal(t, http.StatusOK, status)
	var records []auditdb.Record
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 1)
	assert.Equal(t, agora.KeyQuorumPercentage, records[0].Name)

	body, status = s.get(t, fmt.Sprintf("/events?type=TimelockExecuted&proposalID=%d", p.ID))
	assert.Equal(t, http.StatusOK, status)
	records = nil
	require.NoError(t, json.Unmarshal(body, &records))
	assert.Len(t, records, 1)
}

func TestCancelAuthorization(t *testing.T) {
	s := newServer(t)

	create := proposals.CreateRequest{
		Proposer: s.accounts[0].Address,
		Actions: []proposals.ActionBody{{
			Kind:   gov.ActionFundTransfer,
			Target: s.accounts[9].Address,
			Value:  (*math.HexOrDecimal256)(big.NewInt(1)),
		}},
	}
	body, status := s.post(t, "/proposals", create)
	require.Equal(t, http.StatusOK, status, string(body))
	var p gov.Proposal
	require.NoError(t, json.Unmarshal(body, &p))

	cancel := proposals.CancelRequest{Caller: s.accounts[5].Address}
	_, status = s.post(t, fmt.Sprintf("/proposals/%d/cancel", p.ID), cancel)
	assert.Equal(t, http.StatusForbidden, status)

	cancel.Caller = s.accounts[0].Address
	_, status = s.post(t, fmt.Sprintf("/proposals/%d/cancel", p.ID), cancel)
	assert.Equal(t, http.StatusOK, status)
}

func TestParams(t *testing.T) {
	s := newServer(t)

	body, status := s.get(t, "/params")
	assert.Equal(t, http.StatusOK, status)
	var list []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.True(t, len(list) >= 8)

	_, status = s.get(t, "/params/noSuchParameter")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEmergency(t *testing.T) {
	s := newServer(t)

	body, status := s.get(t, "/emergency/digest?op=pause")
	require.Equal(t, http.StatusOK, status, string(body))
	var dr emergency.DigestResponse
	require.NoError(t, json.Unmarshal(body, &dr))
	assert.Equal(t, uint64(1), dr.Nonce)

	sign := func(n int) []hexutil.Bytes {
		var sigs []hexutil.Bytes
		for _, acc := range s.accounts[1 : 1+n] {
			sig, err := crypto.Sign(dr.Digest.Bytes(), acc.PrivateKey)
			require.NoError(t, err)
			sigs = append(sigs, sig)
		}
		return sigs
	}

	_, status = s.post(t, "/emergency/pause", emergency.SignedRequest{Signatures: sign(4)})
	assert.Equal(t, http.StatusForbidden, status)

	body, status = s.post(t, "/emergency/pause", emergency.SignedRequest{Signatures: sign(5)})
	require.Equal(t, http.StatusOK, status, string(body))

	body, status = s.get(t, "/emergency/status")
	assert.Equal(t, http.StatusOK, status)
	var st struct {
		Paused bool `json:"paused"`
	}
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.Paused)

	// The ratification window has not lapsed yet, so nothing is outstanding.
	body, status = s.get(t, "/emergency/actions?outstanding=true")
	assert.Equal(t, http.StatusOK, status)
	var actions []json.RawMessage
	require.NoError(t, json.Unmarshal(body, &actions))
	assert.Len(t, actions, 0)

	*s.clock += 7*day + 1
	body, status = s.get(t, "/emergency/actions?outstanding=true")
	assert.Equal(t, http.StatusOK, status)
	actions = nil
	require.NoError(t, json.Unmarshal(body, &actions))
	assert.Len(t, actions, 1)

	_, status = s.get(t, "/emergency/actions/1")
	assert.Equal(t, http.StatusOK, status)
	_, status = s.get(t, "/emergency/actions/42")
	assert.Equal(t, http.StatusBadRequest, status)

	_, status = s.get(t, "/emergency/digest?op=detonate")
	assert.Equal(t, http.StatusBadRequest, status)
}
