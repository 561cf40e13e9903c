package session

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/adityalohuni/browser-bridge/internal/capture"
	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

// eventHistory entries kept per session. Same bound as the capture rings.
const eventHistoryCap = 1000

// Tab mirrors one browser tab inside an automation window.
type Tab struct {
	Handle    string    `json:"handle"`
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session mirrors the browser-side state of one automation window. The
// controller remains authoritative; this copy is updated from its lifecycle
// events and command results.
type Session struct {
	ID              string    `json:"id"`
	WindowHandle    string    `json:"window_handle,omitempty"`
	ActiveTabHandle string    `json:"active_tab_handle,omitempty"`
	Tabs            []Tab     `json:"tabs"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Event is one recorded lifecycle notification.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
	At        time.Time       `json:"at"`
}

type sessionState struct {
	sess   Session
	events *capture.Ring[Event]
}

// Store holds the mirrored automation sessions. Sessions survive a
// controller disconnect so the browser can reattach.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*sessionState)}
}

// Put inserts or replaces a session from a create result.
func (s *Store) Put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	st, ok := s.sessions[sess.ID]
	if !ok {
		st = &sessionState{events: capture.NewRing[Event](eventHistoryCap)}
		s.sessions[sess.ID] = st
	}
	st.sess = sess
}

// Get returns a copy of the mirrored session.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return cloneSession(st.sess), true
}

// List returns all sessions ordered by creation time.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, st := range s.sessions {
		out = append(out, cloneSession(st.sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Drop forgets a session. Idempotent.
func (s *Store) Drop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Count reports the number of mirrored sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SetTabs replaces the mirrored tab list, typically after get_tab_handles.
func (s *Store) SetTabs(id string, tabs []Tab, activeHandle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return
	}
	st.sess.Tabs = append([]Tab(nil), tabs...)
	if activeHandle != "" {
		st.sess.ActiveTabHandle = activeHandle
	}
	st.sess.UpdatedAt = time.Now()
}

// ApplyEvent folds one controller lifecycle event into the mirror and
// records it in the session's history. Unknown sessions are created on the
// fly so windows opened elsewhere still accumulate state. window_closed is
// not handled here; callers drop the session instead.
func (s *Store) ApplyEvent(f protocol.Frame) {
	if f.SessionID == "" || f.SessionID == protocol.BackgroundSessionID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensureLocked(f.SessionID)
	now := time.Now()

	var ev protocol.TabEventData
	if len(f.Data) > 0 {
		_ = json.Unmarshal(f.Data, &ev)
	}
	switch f.Type {
	case protocol.TypeTabAdded:
		if ev.TabHandle != "" && !hasTab(st.sess.Tabs, ev.TabHandle) {
			st.sess.Tabs = append(st.sess.Tabs, Tab{
				Handle:    ev.TabHandle,
				URL:       ev.URL,
				Title:     ev.Title,
				CreatedAt: now,
			})
		}
	case protocol.TypeActiveTabChanged:
		if ev.TabHandle != "" {
			st.sess.ActiveTabHandle = ev.TabHandle
		}
	case protocol.TypeNavigationCompleted:
		handle := ev.TabHandle
		if handle == "" {
			handle = st.sess.ActiveTabHandle
		}
		for i := range st.sess.Tabs {
			if st.sess.Tabs[i].Handle == handle {
				if ev.URL != "" {
					st.sess.Tabs[i].URL = ev.URL
				}
				if ev.Title != "" {
					st.sess.Tabs[i].Title = ev.Title
				}
				break
			}
		}
	}
	st.sess.UpdatedAt = now

	data, truncated := capture.TruncateRaw(f.Data)
	st.events.Add(Event{Type: f.Type, Data: data, Truncated: truncated, At: now})
}

// Events returns the recorded history for a session, oldest first.
func (s *Store) Events(id string) []Event {
	s.mu.RLock()
	st, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return st.events.Snapshot()
}

// RemoveTab drops one tab from the mirror after close_tab.
func (s *Store) RemoveTab(id, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return
	}
	tabs := st.sess.Tabs[:0]
	for _, t := range st.sess.Tabs {
		if t.Handle != handle {
			tabs = append(tabs, t)
		}
	}
	st.sess.Tabs = tabs
	if st.sess.ActiveTabHandle == handle {
		st.sess.ActiveTabHandle = ""
		if len(tabs) > 0 {
			st.sess.ActiveTabHandle = tabs[len(tabs)-1].Handle
		}
	}
	st.sess.UpdatedAt = time.Now()
}

func (s *Store) ensureLocked(id string) *sessionState {
	st, ok := s.sessions[id]
	if !ok {
		st = &sessionState{
			sess:   Session{ID: id, CreatedAt: time.Now()},
			events: capture.NewRing[Event](eventHistoryCap),
		}
		s.sessions[id] = st
	}
	return st
}

func cloneSession(in Session) Session {
	out := in
	out.Tabs = append([]Tab(nil), in.Tabs...)
	return out
}

func hasTab(tabs []Tab, handle string) bool {
	for _, t := range tabs {
		if t.Handle == handle {
			return true
		}
	}
	return false
}
