// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package events serves the audit log and a websocket stream of live
// governance events.
package events

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/agora-dao/agora/api/utils"
	"github.com/agora-dao/agora/auditdb"
	"github.com/agora-dao/agora/gov"
	"github.com/agora-dao/agora/log"
	"github.com/agora-dao/agora/node"
)

var logger = log.WithContext("pkg", "events")

const (
	streamBuffer = 64
	pingPeriod   = 10 * time.Second
	writeWait    = 5 * time.Second
)

type Events struct {
	node  *node.Node
	audit *auditdb.AuditDB

	upgrader websocket.Upgrader
}

func New(node *node.Node, audit *auditdb.AuditDB) *Events {
	return &Events{
		node:  node,
		audit: audit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origin policy is enforced by the CORS layer
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (e *Events) handleQuery(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	filter := auditdb.Filter{
		Type:  query.Get("type"),
		Limit: 50,
	}
	if s := query.Get("proposalID"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return utils.BadRequest(errors.WithMessage(err, "proposalID"))
		}
		filter.ProposalID = id
	}
	if s := query.Get("offset"); s != "" {
		offset, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return utils.BadRequest(errors.WithMessage(err, "offset"))
		}
		filter.Offset = offset
	}
	if s := query.Get("limit"); s != "" {
		limit, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return utils.BadRequest(errors.WithMessage(err, "limit"))
		}
		filter.Limit = limit
	}
	switch query.Get("order") {
	case "", "asc":
		filter.Order = auditdb.ASC
	case "desc":
		filter.Order = auditdb.DESC
	default:
		return utils.BadRequest(errors.New("order: expected asc or desc"))
	}

	records, err := e.audit.Query(&filter)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, records)
}

// streamFrame is one websocket message.
type streamFrame struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

func (e *Events) handleSubscribe(w http.ResponseWriter, req *http.Request) error {
	conn, err := e.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// the upgrader has already replied
		return nil
	}
	defer conn.Close()

	ch := make(chan gov.Event, streamBuffer)
	sub := e.node.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case ev := <-ch:
			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Error("stream event marshal failed", "type", ev.EventType(), "err", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(&streamFrame{Type: ev.EventType(), Event: payload}); err != nil {
				return nil
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-sub.Err():
			return nil
		case <-closed:
			return nil
		}
	}
}

func (e *Events) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /events").
		HandlerFunc(utils.WrapHandlerFunc(e.handleQuery))
	sub.Path("/ws").
		Methods(http.MethodGet).
		Name("GET /events/ws").
		HandlerFunc(utils.WrapHandlerFunc(e.handleSubscribe))
}
