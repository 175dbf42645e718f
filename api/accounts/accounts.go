// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package accounts

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/agora-dao/agora/agora"
	"github.com/agora-dao/agora/api/utils"
	"github.com/agora-dao/agora/node"
)

type Accounts struct {
	node *node.Node
}

func New(node *node.Node) *Accounts {
	return &Accounts{node}
}

// Account is the externally visible view of one ledger account.
type Account struct {
	Balance  *math.HexOrDecimal256 `json:"balance"`
	Power    *math.HexOrDecimal256 `json:"power"`
	Delegate agora.Address         `json:"delegate"`
}

// DelegateRequest reassigns the account's voting power.
type DelegateRequest struct {
	Target agora.Address `json:"target"`
}

func (a *Accounts) handleGetAccount(w http.ResponseWriter, req *http.Request) error {
	addr, err := agora.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	led := a.node.Ledger()
	balance, err := led.BalanceOf(addr)
	if err != nil {
		return err
	}
	power, err := led.PowerOf(addr)
	if err != nil {
		return err
	}
	delegate, err := led.DelegateOf(addr)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Account{
		Balance:  (*math.HexOrDecimal256)(balance),
		Power:    (*math.HexOrDecimal256)(power),
		Delegate: delegate,
	})
}

func (a *Accounts) handleDelegate(w http.ResponseWriter, req *http.Request) error {
	addr, err := agora.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	var dr DelegateRequest
	if err := utils.ParseJSON(req.Body, &dr); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := a.node.Delegate(addr, dr.Target); err != nil {
		return utils.ConvertGovError(err)
	}
	return utils.WriteJSON(w, map[string]bool{"ok": true})
}

func (a *Accounts) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/{address}").
		Methods(http.MethodGet).
		Name("GET /accounts/{address}").
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetAccount))
	sub.Path("/{address}/delegate").
		Methods(http.MethodPost).
		Name("POST /accounts/{address}/delegate").
		HandlerFunc(utils.WrapHandlerFunc(a.handleDelegate))
}
