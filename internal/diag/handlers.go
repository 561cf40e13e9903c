// Package diag is the HTTP diagnostics surface: a health probe, a
// self-contained status page, and a token-guarded full state dump.
package diag

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/adityalohuni/browser-bridge/internal/httpx"
	"github.com/adityalohuni/browser-bridge/internal/session"
	"github.com/adityalohuni/browser-bridge/internal/wsbridge"
)

// Fabric is the slice of the bridge the diagnostics read from.
type Fabric interface {
	Role() wsbridge.BridgeRole
	InstanceID() string
	ControllerConnected() bool
	ControllerLastSeen() time.Time
	PeerCounts() wsbridge.Counts
	Peers() []wsbridge.PeerInfo
	PendingDepth() int
	PendingStats() wsbridge.Stats
	StartedAt() time.Time
}

type Handlers struct {
	Bridge   Fabric
	Registry *session.Registry
	Store    *session.Store
}

// Register mounts the diagnostic routes. The state dump is guarded by the
// debug token when one is configured.
func (h *Handlers) Register(mux *http.ServeMux, token string) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/", h.StatusPage)
	mux.Handle("/debug/state", httpx.RequireToken(token)(http.HandlerFunc(h.State)))
}

type ControllerHealth struct {
	Connected bool       `json:"connected"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

type PeerCounts struct {
	Controller  bool `json:"controller"`
	PageAgents  int  `json:"page_agents"`
	PeerBridges int  `json:"peer_bridges"`
}

type Health struct {
	Status     string           `json:"status"`
	Role       string           `json:"role"`
	Uptime     string           `json:"uptime"`
	InstanceID string           `json:"instance_id"`
	Controller ControllerHealth `json:"controller"`
	Peers      PeerCounts       `json:"peers"`
	Drivers    int              `json:"drivers"`
	Sessions   int              `json:"sessions"`
	Pending    int              `json:"pending"`
}

// SessionState is one mirrored session with its recent lifecycle events.
type SessionState struct {
	session.Session
	Events []session.Event `json:"events,omitempty"`
}

type State struct {
	Role       string               `json:"role"`
	InstanceID string               `json:"instance_id"`
	Uptime     string               `json:"uptime"`
	Controller ControllerHealth     `json:"controller"`
	Pending    int                  `json:"pending"`
	Requests   wsbridge.Stats       `json:"requests"`
	Peers      []wsbridge.PeerInfo  `json:"peers"`
	Drivers    []session.DriverInfo `json:"drivers"`
	Sessions   []SessionState       `json:"sessions"`
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.health())
}

func (h *Handlers) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.state())
}

func (h *Handlers) health() Health {
	counts := h.Bridge.PeerCounts()
	status := "degraded"
	if counts.Controller {
		status = "ok"
	}
	return Health{
		Status:     status,
		Role:       string(h.Bridge.Role()),
		Uptime:     uptime(h.Bridge.StartedAt()),
		InstanceID: h.Bridge.InstanceID(),
		Controller: h.controllerHealth(counts.Controller),
		Peers: PeerCounts{
			Controller:  counts.Controller,
			PageAgents:  counts.PageAgents,
			PeerBridges: counts.PeerBridges,
		},
		Drivers:  h.Registry.DriverCount(),
		Sessions: h.Store.Count(),
		Pending:  h.Bridge.PendingDepth(),
	}
}

func (h *Handlers) state() State {
	sessions := h.Store.List()
	states := make([]SessionState, 0, len(sessions))
	for _, s := range sessions {
		states = append(states, SessionState{
			Session: s,
			Events:  h.Store.Events(s.ID),
		})
	}
	counts := h.Bridge.PeerCounts()
	return State{
		Role:       string(h.Bridge.Role()),
		InstanceID: h.Bridge.InstanceID(),
		Uptime:     uptime(h.Bridge.StartedAt()),
		Controller: h.controllerHealth(counts.Controller),
		Pending:    h.Bridge.PendingDepth(),
		Requests:   h.Bridge.PendingStats(),
		Peers:      h.Bridge.Peers(),
		Drivers:    h.Registry.ListBindings(),
		Sessions:   states,
	}
}

func (h *Handlers) controllerHealth(connected bool) ControllerHealth {
	ch := ControllerHealth{Connected: connected}
	if last := h.Bridge.ControllerLastSeen(); !last.IsZero() {
		ch.LastSeen = &last
	}
	return ch
}

func uptime(startedAt time.Time) string {
	if startedAt.IsZero() {
		return "0s"
	}
	return time.Since(startedAt).Truncate(time.Second).String()
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(value)
}
