// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package proposals

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/api/utils"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/node"
)

type Proposals struct {
	node *node.Node
}

func New(node *node.Node) *Proposals {
	return &Proposals{node}
}

// ActionBody is the wire form of one proposal action.
type ActionBody struct {
	Kind   gov.ActionKind        `json:"kind"`
	Target agora.Address         `json:"target,omitempty"`
	Value  *math.HexOrDecimal256 `json:"value,omitempty"`
	Name   string                `json:"name,omitempty"`
	Lower  *math.HexOrDecimal256 `json:"lower,omitempty"`
	Upper  *math.HexOrDecimal256 `json:"upper,omitempty"`
	Data   hexutil.Bytes         `json:"data,omitempty"`
	Ref    uint64                `json:"ref,omitempty"`
}

func (b *ActionBody) toAction() gov.Action {
	return gov.Action{
		Kind:   b.Kind,
		Target: b.Target,
		Value:  (*big.Int)(b.Value),
		Name:   b.Name,
		Lower:  (*big.Int)(b.Lower),
		Upper:  (*big.Int)(b.Upper),
		Data:   b.Data,
		Ref:    b.Ref,
	}
}

// CreateRequest submits a new proposal.
type CreateRequest struct {
	Proposer    agora.Address `json:"proposer"`
	Description string        `json:"description"`
	Actions     []ActionBody  `json:"actions"`
}

// VoteRequest casts a ballot.
type VoteRequest struct {
	Voter   agora.Address `json:"voter"`
	Support gov.Support   `json:"support"`
	Reason  string        `json:"reason,omitempty"`
}

// CancelRequest terminates a proposal.
type CancelRequest struct {
	Caller agora.Address `json:"caller"`
}

func proposalID(req *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return 0, utils.BadRequest(errors.WithMessage(err, "id"))
	}
	return id, nil
}

func (p *Proposals) handleCreate(w http.ResponseWriter, req *http.Request) error {
	var cr CreateRequest
	if err := utils.ParseJSON(req.Body, &cr); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	actions := make([]gov.Action, 0, len(cr.Actions))
	for i := range cr.Actions {
		actions = append(actions, cr.Actions[i].toAction())
	}
	proposal, err := p.node.Propose(cr.Proposer, actions, cr.Description)
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, proposal)
}

func (p *Proposals) handleList(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	parse := func(name string, def uint64) (uint64, error) {
		s := query.Get(name)
		if s == "" {
			return def, nil
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, utils.BadRequest(errors.WithMessage(err, name))
		}
		return v, nil
	}
	offset, err := parse("offset", 0)
	if err != nil {
		return err
	}
	limit, err := parse("limit", 20)
	if err != nil {
		return err
	}
	list, err := p.node.Proposals(offset, limit)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, list)
}

func (p *Proposals) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := proposalID(req)
	if err != nil {
		return err
	}
	detail, err := p.node.Proposal(id)
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, detail)
}

func (p *Proposals) handleGetVotes(w http.ResponseWriter, req *http.Request) error {
	id, err := proposalID(req)
	if err != nil {
		return err
	}
	votes, err := p.node.Votes(id)
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, votes)
}

func (p *Proposals) handleCastVote(w http.ResponseWriter, req *http.Request) error {
	id, err := proposalID(req)
	if err != nil {
		return err
	}
	var vr VoteRequest
	if err := utils.ParseJSON(req.Body, &vr); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	vote, err := p.node.CastVote(id, vr.Voter, vr.Support, vr.Reason)
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, vote)
}

func (p *Proposals) handleFinalize(w http.ResponseWriter, req *http.Request) error {
	id, err := proposalID(req)
	if err != nil {
		return err
	}
	state, err := p.node.Finalize(id)
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, map[string]string{"state": state.String()})
}

func (p *Proposals) handleQueue(w http.ResponseWriter, req *http.Request) error {
	id, err := proposalID(req)
	if err != nil {
		return err
	}
	entry, err := p.node.Queue(id)
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, entry)
}

func (p *Proposals) handleExecute(w http.ResponseWriter, req *http.Request) error {
	id, err := proposalID(req)
	if err != nil {
		return err
	}
	entry, err := p.node.Execute(id)
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, entry)
}

func (p *Proposals) handleCancel(w http.ResponseWriter, req *http.Request) error {
	id, err := proposalID(req)
	if err != nil {
		return err
	}
	var cr CancelRequest
	if err := utils.ParseJSON(req.Body, &cr); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := p.node.Cancel(id, cr.Caller); err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, map[string]bool{"ok": true})
}

func (p *Proposals) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodPost).
		Name("POST /proposals").
		HandlerFunc(utils.WrapHandlerFunc(p.handleCreate))
	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /proposals").
		HandlerFunc(utils.WrapHandlerFunc(p.handleList))
	sub.Path("/{id}").
		Methods(http.MethodGet).
		Name("GET /proposals/{id}").
		HandlerFunc(utils.WrapHandlerFunc(p.handleGet))
	sub.Path("/{id}/votes").
		Methods(http.MethodGet).
		Name("GET /proposals/{id}/votes").
		HandlerFunc(utils.WrapHandlerFunc(p.handleGetVotes))
	sub.Path("/{id}/votes").
		Methods(http.MethodPost).
		Name("POST /proposals/{id}/votes").
		HandlerFunc(utils.WrapHandlerFunc(p.handleCastVote))
	sub.Path("/{id}/finalize").
		Methods(http.MethodPost).
		Name("POST /proposals/{id}/finalize").
		HandlerFunc(utils.WrapHandlerFunc(p.handleFinalize))
	sub.Path("/{id}/queue").
		Methods(http.MethodPost).
		Name("POST /proposals/{id}/queue").
		HandlerFunc(utils.WrapHandlerFunc(p.handleQueue))
	sub.Path("/{id}/execute").
		Methods(http.MethodPost).
		Name("POST /proposals/{id}/execute").
		HandlerFunc(utils.WrapHandlerFunc(p.handleExecute))
	sub.Path("/{id}/cancel").
		Methods(http.MethodPost).
		Name("POST /proposals/{id}/cancel").
		HandlerFunc(utils.WrapHandlerFunc(p.handleCancel))
}
