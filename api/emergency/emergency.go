// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package emergency

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
	govemergency "github.com/agora-dao/agora/emergency"
	"github.com/agora-dao/agora/node"
)

type Emergency struct {
	node *node.Node
}

func New(node *node.Node) *Emergency {
	return &Emergency{node}
}

// SignedRequest carries a multisig signature bundle over the action digest.
type SignedRequest struct {
	Signatures []hexutil.Bytes `json:"signatures"`
}

// ParamChangeRequest is a signed emergency parameter change.
type ParamChangeRequest struct {
	Name       string                `json:"name"`
	Value      *math.HexOrDecimal256 `json:"value"`
	Signatures []hexutil.Bytes       `json:"signatures"`
}

// DigestResponse tells signers what to sign for the next action.
type DigestResponse struct {
	Nonce  uint64        `json:"nonce"`
	Digest agora.Bytes32 `json:"digest"`
}

func rawSigs(sigs []hexutil.Bytes) [][]byte {
	out := make([][]byte, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s)
	}
	return out
}

func (e *Emergency) handlePause(w http.ResponseWriter, req *http.Request) error {
	var sr SignedRequest
	if err := utils.ParseJSON(req.Body, &sr); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	rec, err := e.node.EmergencyPause(rawSigs(sr.Signatures))
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, rec)
}

func (e *Emergency) handleResume(w http.ResponseWriter, req *http.Request) error {
	var sr SignedRequest
	if err := utils.ParseJSON(req.Body, &sr); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	rec, err := e.node.EmergencyResume(rawSigs(sr.Signatures))
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, rec)
}

func (e *Emergency) handleParamChange(w http.ResponseWriter, req *http.Request) error {
	var pr ParamChangeRequest
	if err := utils.ParseJSON(req.Body, &pr); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	rec, err := e.node.EmergencyParameterChange(pr.Name, (*big.Int)(pr.Value), rawSigs(pr.Signatures))
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, rec)
}

func (e *Emergency) handleDigest(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	opName := query.Get("op")
	var op govemergency.Op
	switch opName {
	case "pause":
		op = govemergency.OpPause
	case "resume":
		op = govemergency.OpResume
	case "parameterChange":
		op = govemergency.OpParameterChange
	default:
		return utils.BadRequest(errors.Errorf("unknown op %q", opName))
	}
	var value *big.Int
	if s := query.Get("value"); s != "" {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return utils.BadRequest(errors.New("value: expected decimal integer"))
		}
		value = v
	}
	nonce, err := e.node.Emergency().NextNonce()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &DigestResponse{
		Nonce:  nonce,
		Digest: govemergency.Digest(op, query.Get("name"), value, nonce),
	})
}

func (e *Emergency) handleStatus(w http.ResponseWriter, _ *http.Request) error {
	paused, err := e.node.Paused()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, map[string]bool{"paused": paused})
}

func (e *Emergency) handleListActions(w http.ResponseWriter, req *http.Request) error {
	if req.URL.Query().Get("outstanding") == "true" {
		list, err := e.node.OutstandingRatifications()
		if err != nil {
			return err
		}
		return utils.WriteJSON(w, list)
	}
	list, err := e.node.Emergency().Actions()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, list)
}

func (e *Emergency) handleGetAction(w http.ResponseWriter, req *http.Request) error {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}
	rec, err := e.node.Emergency().Action(id)
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, rec)
}

func (e *Emergency) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/pause").
		Methods(http.MethodPost).
		Name("POST /emergency/pause").
		HandlerFunc(utils.WrapHandlerFunc(e.handlePause))
	sub.Path("/resume").
		Methods(http.MethodPost).
		Name("POST /emergency/resume").
		HandlerFunc(utils.WrapHandlerFunc(e.handleResume))
	sub.Path("/params").
		Methods(http.MethodPost).
		Name("POST /emergency/params").
		HandlerFunc(utils.WrapHandlerFunc(e.handleParamChange))
	sub.Path("/digest").
		Methods(http.MethodGet).
		Name("GET /emergency/digest").
		HandlerFunc(utils.WrapHandlerFunc(e.handleDigest))
	sub.Path("/status").
		Methods(http.MethodGet).
		Name("GET /emergency/status").
		HandlerFunc(utils.WrapHandlerFunc(e.handleStatus))
	sub.Path("/actions").
		Methods(http.MethodGet).
		Name("GET /emergency/actions").
		HandlerFunc(utils.WrapHandlerFunc(e.handleListActions))
	sub.Path("/actions/{id}").
		Methods(http.MethodGet).
		Name("GET /emergency/actions/{id}").
		HandlerFunc(utils.WrapHandlerFunc(e.handleGetAction))
}
