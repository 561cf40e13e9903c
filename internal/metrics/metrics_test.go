package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrapeReflectsSnapshot(t *testing.T) {
	m := New(func() Snapshot {
		return Snapshot{
			Role:                "server",
			ControllerConnected: true,
			PageAgents:          2,
			PeerBridges:         1,
			Drivers:             3,
			Sessions:            3,
			PendingDepth:        4,
			RequestsIssued:      10,
			RequestsResolved:    7,
			RequestsRejected:    2,
			RequestsEvicted:     1,
			RequestsStale:       1,
			StartedAt:           time.Now().Add(-time.Minute),
		}
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, `bridge_controller_connected{role="server"} 1`)
	assert.Contains(t, body, "bridge_page_agents 2")
	assert.Contains(t, body, "bridge_drivers 3")
	assert.Contains(t, body, "bridge_pending_requests 4")
	assert.Contains(t, body, "bridge_requests_issued_total 10")
	assert.Contains(t, body, "bridge_requests_evicted_total 1")
	assert.True(t, strings.Contains(body, "bridge_uptime_seconds"))
}

func TestToolCallAndFrameCounters(t *testing.T) {
	m := New(nil)

	m.ObserveToolCall("navigate_to", true)
	m.ObserveToolCall("navigate_to", true)
	m.ObserveToolCall("navigate_to", false)
	m.ObserveFrame("in", "response")
	m.ObserveFrame("out", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("navigate_to", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("navigate_to", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("in", "response")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("out", "unknown")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveToolCall("navigate_to", true)
	m.ObserveFrame("in", "ping")
}
