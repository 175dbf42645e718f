// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package params exposes the parameter store read-only. Writes only happen
// through executed proposals or the emergency multisig path.
package params

import (
	"net/http"
	"sort"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/api/utils"
	"github.com/agora-dao/agora/node"
	govparams "github.com/agora-dao/agora/params"
)

type Params struct {
	node *node.Node
}

func New(node *node.Node) *Params {
	return &Params{node}
}

// Param is the externally visible view of one governance parameter.
type Param struct {
	Name      string                `json:"name"`
	Value     *math.HexOrDecimal256 `json:"value"`
	Lower     *math.HexOrDecimal256 `json:"lower"`
	Upper     *math.HexOrDecimal256 `json:"upper"`
	Emergency bool                  `json:"emergency"`
	ChangedBy agora.Address         `json:"changedBy"`
	ChangedAt uint64                `json:"changedAt"`
}

func convertParam(name string, e *govparams.Entry) *Param {
	return &Param{
		Name:      name,
		Value:     (*math.HexOrDecimal256)(e.Value),
		Lower:     (*math.HexOrDecimal256)(e.Lower),
		Upper:     (*math.HexOrDecimal256)(e.Upper),
		Emergency: e.Emergency,
		ChangedBy: e.ChangedBy,
		ChangedAt: e.ChangedAt,
	}
}

func (p *Params) handleList(w http.ResponseWriter, _ *http.Request) error {
	var list []*Param
	err := p.node.Params().Each(func(name string, e *govparams.Entry) bool {
		list = append(list, convertParam(name, e))
		return true
	})
	if err != nil {
		return err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return utils.WriteJSON(w, list)
}

func (p *Params) handleGet(w http.ResponseWriter, req *http.Request) error {
	name := mux.Vars(req)["name"]
	entry, err := p.node.Params().Entry(name)
	if err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, convertParam(name, entry))
}

func (p *Params) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /params").
		HandlerFunc(utils.WrapHandlerFunc(p.handleList))
	sub.Path("/{name}").
		Methods(http.MethodGet).
		Name("GET /params/{name}").
		HandlerFunc(utils.WrapHandlerFunc(p.handleGet))
}
