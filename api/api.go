// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/agora-dao/agora/api/accounts"
	"github.com/agora-dao/agora/api/emergency"
	"github.com/agora-dao/agora/api/events"
	"github.com/agora-dao/agora/api/params"
	"github.com/agora-dao/agora/api/proposals"
	"github.com/agora-dao/agora/auditdb"
	"github.com/agora-dao/agora/metrics"
	"github.com/agora-dao/agora/node"
)

// Options for the http api.
type Options struct {
	AllowedOrigins string
	EnableMetrics  bool
}

// New returns the governance http handler.
func New(node *node.Node, audit *auditdb.AuditDB, opts Options) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()
	accounts.New(node).Mount(router, "/accounts")
	proposals.New(node).Mount(router, "/proposals")
	params.New(node).Mount(router, "/params")
	emergency.New(node).Mount(router, "/emergency")
	events.New(node, audit).Mount(router, "/events")
	if opts.EnableMetrics {
		router.PathPrefix("/metrics").Handler(metrics.HTTPHandler())
	}

	handler := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
		handlers.AllowedMethods([]string{"GET", "POST"}),
	)(router)
	return handler.ServeHTTP
}
