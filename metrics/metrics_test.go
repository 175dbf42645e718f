// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopMeters(t *testing.T) {
	m := newNoopMetrics()
	m.GetOrCreateCountMeter("noop_counter").Add(1)
	m.GetOrCreateGaugeMeter("noop_gauge").Set(42)
	m.GetOrCreateCountVecMeter("noop_vec", []string{"result"}).
		AddWithLabel(1, map[string]string{"result": "ok"})
	assert.NotNil(t, m.GetOrCreateHandler())
}

func TestLazyLoad(t *testing.T) {
	calls := 0
	lazy := LazyLoad(func() int {
		calls++
		return 7
	})
	assert.Equal(t, 0, calls)
	assert.Equal(t, 7, lazy())
	assert.Equal(t, 7, lazy())
	assert.Equal(t, 1, calls)
}

func TestPrometheusMeters(t *testing.T) {
	InitializePrometheusMetrics()

	Counter("api_request_count").Add(1)
	Gauge("queue_depth").Set(3)
	CounterVec("op_count", []string{"result"}).AddWithLabel(2, map[string]string{"result": "ok"})

	// lazily defined meters resolve to prometheus after initialization
	lazy := LazyLoadCounter("lazy_counter")
	lazy().Add(5)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	HTTPHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, metric := range []string{
		"agora_api_request_count 1",
		"agora_queue_depth 3",
		`agora_op_count{result="ok"} 2`,
		"agora_lazy_counter 5",
	} {
		assert.True(t, strings.Contains(body, metric), metric)
	}
}
