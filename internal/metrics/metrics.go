// Package metrics exposes the bridge's prometheus surface. Live state (peers,
// drivers, sessions, pendings) is collected on scrape from a snapshot
// function instead of being pushed, so the fabric stays free of metric
// plumbing; only per-event counters (frames, tool calls) are incremented
// inline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bridge"

// Snapshot is the point-in-time state collected on every scrape.
type Snapshot struct {
	Role                string
	ControllerConnected bool
	PageAgents          int
	PeerBridges         int
	Drivers             int
	Sessions            int
	PendingDepth        int

	RequestsIssued   uint64
	RequestsResolved uint64
	RequestsRejected uint64
	RequestsEvicted  uint64
	RequestsStale    uint64

	StartedAt time.Time
}

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls *prometheus.CounterVec
	frames    *prometheus.CounterVec
}

func New(snapshot func() Snapshot) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome (ok or error).",
		}, []string{"tool", "outcome"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_total",
			Help:      "WebSocket frames through the fabric by direction and frame type.",
		}, []string{"direction", "type"}),
	}
	m.registry.MustRegister(m.toolCalls, m.frames, newStateCollector(snapshot))
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveToolCall counts one tool invocation. Nil-safe so callers need no
// metrics guard.
func (m *Metrics) ObserveToolCall(tool string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// ObserveFrame counts one fabric frame. Nil-safe.
func (m *Metrics) ObserveFrame(direction, frameType string) {
	if m == nil {
		return
	}
	if frameType == "" {
		frameType = "unknown"
	}
	m.frames.WithLabelValues(direction, frameType).Inc()
}

// stateCollector turns one Snapshot into const metrics per scrape.
type stateCollector struct {
	snapshot func() Snapshot

	controllerConnected *prometheus.Desc
	pageAgents          *prometheus.Desc
	peerBridges         *prometheus.Desc
	drivers             *prometheus.Desc
	sessions            *prometheus.Desc
	pendingDepth        *prometheus.Desc
	requestsIssued      *prometheus.Desc
	requestsResolved    *prometheus.Desc
	requestsRejected    *prometheus.Desc
	requestsEvicted     *prometheus.Desc
	requestsStale       *prometheus.Desc
	uptime              *prometheus.Desc
}

func newStateCollector(snapshot func() Snapshot) *stateCollector {
	if snapshot == nil {
		snapshot = func() Snapshot { return Snapshot{} }
	}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &stateCollector{
		snapshot:            snapshot,
		controllerConnected: desc("controller_connected", "Whether a browser controller is attached (by role).", "role"),
		pageAgents:          desc("page_agents", "Connected page agent sockets."),
		peerBridges:         desc("peer_bridges", "Connected peer bridge instances."),
		drivers:             desc("drivers", "Live MCP driver transports."),
		sessions:            desc("sessions", "Tracked automation sessions."),
		pendingDepth:        desc("pending_requests", "In-flight correlated requests."),
		requestsIssued:      desc("requests_issued_total", "Requests registered in the pending table."),
		requestsResolved:    desc("requests_resolved_total", "Requests completed by a response frame."),
		requestsRejected:    desc("requests_rejected_total", "Requests completed by an error."),
		requestsEvicted:     desc("requests_evicted_total", "Requests evicted by the pending cap."),
		requestsStale:       desc("requests_stale_total", "Requests expired by the staleness sweep."),
		uptime:              desc("uptime_seconds", "Seconds since the bridge started."),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.controllerConnected
	ch <- c.pageAgents
	ch <- c.peerBridges
	ch <- c.drivers
	ch <- c.sessions
	ch <- c.pendingDepth
	ch <- c.requestsIssued
	ch <- c.requestsResolved
	ch <- c.requestsRejected
	ch <- c.requestsEvicted
	ch <- c.requestsStale
	ch <- c.uptime
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	connected := 0.0
	if s.ControllerConnected {
		connected = 1
	}
	role := s.Role
	if role == "" {
		role = "unknown"
	}
	ch <- prometheus.MustNewConstMetric(c.controllerConnected, prometheus.GaugeValue, connected, role)
	ch <- prometheus.MustNewConstMetric(c.pageAgents, prometheus.GaugeValue, float64(s.PageAgents))
	ch <- prometheus.MustNewConstMetric(c.peerBridges, prometheus.GaugeValue, float64(s.PeerBridges))
	ch <- prometheus.MustNewConstMetric(c.drivers, prometheus.GaugeValue, float64(s.Drivers))
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(s.Sessions))
	ch <- prometheus.MustNewConstMetric(c.pendingDepth, prometheus.GaugeValue, float64(s.PendingDepth))
	ch <- prometheus.MustNewConstMetric(c.requestsIssued, prometheus.CounterValue, float64(s.RequestsIssued))
	ch <- prometheus.MustNewConstMetric(c.requestsResolved, prometheus.CounterValue, float64(s.RequestsResolved))
	ch <- prometheus.MustNewConstMetric(c.requestsRejected, prometheus.CounterValue, float64(s.RequestsRejected))
	ch <- prometheus.MustNewConstMetric(c.requestsEvicted, prometheus.CounterValue, float64(s.RequestsEvicted))
	ch <- prometheus.MustNewConstMetric(c.requestsStale, prometheus.CounterValue, float64(s.RequestsStale))
	uptime := 0.0
	if !s.StartedAt.IsZero() {
		uptime = time.Since(s.StartedAt).Seconds()
	}
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, uptime)
}
