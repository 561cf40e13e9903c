package mcpserver

import (
	"context"
	"fmt"
	"time"
)

// closeSessionTimeout bounds the controller call issued by the orphan sweep.
const closeSessionTimeout = 15 * time.Second

// onDriverGone runs when a driver's SSE stream closes. The binding is
// released immediately and its in-flight requests cancelled; the browser
// window itself gets a grace period so a reconnecting driver can reclaim it.
func (s *Server) onDriverGone(transportID string) {
	sid, had := s.registry.Drop(transportID)
	if !had {
		s.log.Info("driver disconnected", "transport_id", transportID)
		return
	}
	n := s.fabric.CancelSessionPendings(sid, fmt.Errorf("driver %s disconnected", transportID))
	s.log.Info("driver disconnected, session orphaned",
		"transport_id", transportID, "session_id", sid, "cancelled_pending", n, "grace", s.grace.String())
	if s.grace < 0 {
		return
	}
	s.scheduleGraceClose(sid)
}

func (s *Server) scheduleGraceClose(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.graceTimers[sid]; ok {
		t.Stop()
	}
	s.graceTimers[sid] = time.AfterFunc(s.grace, func() { s.graceClose(sid) })
}

// cancelGrace aborts a pending orphan close, called when a driver binds the
// session again before the grace period elapses.
func (s *Server) cancelGrace(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.graceTimers[sid]; ok {
		t.Stop()
		delete(s.graceTimers, sid)
	}
}

func (s *Server) graceClose(sid string) {
	s.mu.Lock()
	delete(s.graceTimers, sid)
	s.mu.Unlock()

	if owner, rebound := s.registry.OwnerOf(sid); rebound {
		s.log.Info("orphaned session reclaimed before grace expiry", "session_id", sid, "transport_id", owner)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeSessionTimeout)
	defer cancel()
	if err := s.controller.CloseSession(ctx, sid); err != nil {
		s.log.Warn("orphaned session close failed", "session_id", sid, "err", err)
	}
	s.store.Drop(sid)
	s.registry.Unbind(sid)
	s.log.Info("orphaned session closed", "session_id", sid)
}
