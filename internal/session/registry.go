package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoTransport is returned when a caller has no transport session id.
	ErrNoTransport = errors.New("transport session id is required")
	// ErrNoSession is the stable failure for tool calls that arrive before
	// create_automation_session.
	ErrNoSession = errors.New("no automation session for this connection. Call create_automation_session first")
)

// DriverInfo describes one connected automation driver.
type DriverInfo struct {
	TransportID      string    `json:"transport_id"`
	BrowserSessionID string    `json:"browser_session_id,omitempty"`
	RemoteAddr       string    `json:"remote_addr,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	ConnectedAt      time.Time `json:"connected_at"`
	LastSeen         time.Time `json:"last_seen"`
}

// Registry maps driver transport sessions to automation session ids. The
// mapping is bijective on the live set: one transport owns at most one
// browser session and every browser session has exactly one owner.
type Registry struct {
	mu        sync.RWMutex
	drivers   map[string]*DriverInfo
	byBrowser map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		drivers:   make(map[string]*DriverInfo),
		byBrowser: make(map[string]string),
	}
}

// Register records a driver when its SSE stream opens. Re-registering an id
// refreshes metadata but keeps any existing binding.
func (r *Registry) Register(transportID string, info DriverInfo) error {
	if strings.TrimSpace(transportID) == "" {
		return ErrNoTransport
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if existing, ok := r.drivers[transportID]; ok {
		if info.RemoteAddr != "" {
			existing.RemoteAddr = info.RemoteAddr
		}
		if info.UserAgent != "" {
			existing.UserAgent = info.UserAgent
		}
		existing.LastSeen = now
		return nil
	}
	info.TransportID = transportID
	info.BrowserSessionID = ""
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = now
	}
	info.LastSeen = now
	r.drivers[transportID] = &info
	return nil
}

// Touch refreshes a driver's LastSeen. Unknown ids are ignored.
func (r *Registry) Touch(transportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.drivers[transportID]; ok {
		d.LastSeen = time.Now()
	}
}

// Known reports whether a transport id belongs to a live driver.
func (r *Registry) Known(transportID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.drivers[transportID]
	return ok
}

// Bind allocates a fresh browser session id for the transport, or returns
// the existing one: two consecutive creates from the same driver yield the
// same id.
func (r *Registry) Bind(transportID string) (string, bool, error) {
	if strings.TrimSpace(transportID) == "" {
		return "", false, ErrNoTransport
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[transportID]
	if !ok {
		d = &DriverInfo{TransportID: transportID, ConnectedAt: time.Now()}
		r.drivers[transportID] = d
	}
	if d.BrowserSessionID != "" {
		return d.BrowserSessionID, false, nil
	}
	sid := r.mintLocked()
	d.BrowserSessionID = sid
	d.LastSeen = time.Now()
	r.byBrowser[sid] = transportID
	return sid, true, nil
}

// Lookup returns the browser session bound to a transport.
func (r *Registry) Lookup(transportID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[transportID]
	if !ok || d.BrowserSessionID == "" {
		return "", false
	}
	return d.BrowserSessionID, true
}

// OwnerOf returns the transport that owns a browser session.
func (r *Registry) OwnerOf(browserSessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byBrowser[browserSessionID]
	return t, ok
}

// SessionOrError resolves the caller's browser session for the tool surface.
func (r *Registry) SessionOrError(transportID string) (string, error) {
	if strings.TrimSpace(transportID) == "" {
		return "", ErrNoTransport
	}
	sid, ok := r.Lookup(transportID)
	if !ok {
		return "", ErrNoSession
	}
	return sid, nil
}

// Unbind detaches a browser session from its owner without removing the
// driver, used when the controller reports the window gone.
func (r *Registry) Unbind(browserSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byBrowser[browserSessionID]
	if !ok {
		return
	}
	delete(r.byBrowser, browserSessionID)
	if d, ok := r.drivers[t]; ok {
		d.BrowserSessionID = ""
	}
}

// Drop removes a driver and its binding, returning the released browser
// session id when one was bound. Idempotent.
func (r *Registry) Drop(transportID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[transportID]
	if !ok {
		return "", false
	}
	delete(r.drivers, transportID)
	if d.BrowserSessionID == "" {
		return "", false
	}
	delete(r.byBrowser, d.BrowserSessionID)
	return d.BrowserSessionID, true
}

// ActiveCount reports the number of live bindings.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byBrowser)
}

// DriverCount reports the number of connected drivers.
func (r *Registry) DriverCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.drivers)
}

// ListBindings snapshots all drivers, bound or not.
func (r *Registry) ListBindings() []DriverInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DriverInfo, 0, len(r.drivers))
	for _, d := range r.drivers {
		out = append(out, *d)
	}
	return out
}

// mintLocked produces a session_<8-hex> id unused in the live set.
func (r *Registry) mintLocked() string {
	for {
		sid := "session_" + uuid.NewString()[:8]
		if _, taken := r.byBrowser[sid]; !taken {
			return sid
		}
	}
}
