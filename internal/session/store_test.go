package session

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/browser-bridge/internal/capture"
	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

func tabEvent(sid, evType, handle, url, title string) protocol.Frame {
	return protocol.Frame{
		Type:      evType,
		SessionID: sid,
		Data: protocol.MarshalData(protocol.TabEventData{
			TabHandle: handle,
			URL:       url,
			Title:     title,
		}),
	}
}

func TestPutGetDrop(t *testing.T) {
	s := NewStore()
	s.Put(Session{ID: "session_a", WindowHandle: "w1", Tabs: []Tab{{Handle: "t1"}}})

	got, ok := s.Get("session_a")
	require.True(t, ok)
	assert.Equal(t, "w1", got.WindowHandle)
	assert.False(t, got.CreatedAt.IsZero())

	// The returned copy does not alias the stored tabs.
	got.Tabs[0].Handle = "mutated"
	again, _ := s.Get("session_a")
	assert.Equal(t, "t1", again.Tabs[0].Handle)

	assert.True(t, s.Drop("session_a"))
	assert.False(t, s.Drop("session_a"))
	assert.Equal(t, 0, s.Count())
}

func TestApplyEventFoldsTabLifecycle(t *testing.T) {
	s := NewStore()

	// Unknown sessions are created on the fly.
	s.ApplyEvent(tabEvent("session_a", protocol.TypeTabAdded, "t1", "https://example.com", "Example"))
	s.ApplyEvent(tabEvent("session_a", protocol.TypeTabAdded, "t2", "about:blank", ""))
	s.ApplyEvent(tabEvent("session_a", protocol.TypeActiveTabChanged, "t2", "", ""))

	got, ok := s.Get("session_a")
	require.True(t, ok)
	require.Len(t, got.Tabs, 2)
	assert.Equal(t, "t2", got.ActiveTabHandle)

	// Duplicate tab_added is ignored.
	s.ApplyEvent(tabEvent("session_a", protocol.TypeTabAdded, "t1", "", ""))
	got, _ = s.Get("session_a")
	assert.Len(t, got.Tabs, 2)

	// Navigation without a handle lands on the active tab.
	s.ApplyEvent(tabEvent("session_a", protocol.TypeNavigationCompleted, "", "https://example.com/next", "Next"))
	got, _ = s.Get("session_a")
	assert.Equal(t, "https://example.com/next", got.Tabs[1].URL)
	assert.Equal(t, "Next", got.Tabs[1].Title)

	events := s.Events("session_a")
	require.Len(t, events, 5)
	assert.Equal(t, protocol.TypeTabAdded, events[0].Type)
}

func TestApplyEventOversizedPayloadStaysMarshalable(t *testing.T) {
	s := NewStore()
	big, err := json.Marshal(protocol.TabEventData{
		TabHandle: "t1",
		URL:       "https://example.com/" + strings.Repeat("p", capture.MaxPayloadBytes+500),
	})
	require.NoError(t, err)
	s.ApplyEvent(protocol.Frame{
		Type:      protocol.TypeNavigationCompleted,
		SessionID: "session_a",
		Data:      big,
	})

	events := s.Events("session_a")
	require.Len(t, events, 1)
	assert.True(t, events[0].Truncated)

	// The recorded history must survive re-marshaling, it backs the state
	// dump and the TUI.
	_, err = json.Marshal(events)
	require.NoError(t, err)
}

func TestApplyEventIgnoresBackground(t *testing.T) {
	s := NewStore()
	s.ApplyEvent(tabEvent(protocol.BackgroundSessionID, protocol.TypeTabAdded, "t1", "", ""))
	s.ApplyEvent(tabEvent("", protocol.TypeTabAdded, "t1", "", ""))
	assert.Equal(t, 0, s.Count())
}

func TestSetTabsReplacesMirror(t *testing.T) {
	s := NewStore()
	s.Put(Session{ID: "session_a", Tabs: []Tab{{Handle: "t1"}}})

	s.SetTabs("session_a", []Tab{{Handle: "t2"}, {Handle: "t3"}}, "t3")
	got, _ := s.Get("session_a")
	require.Len(t, got.Tabs, 2)
	assert.Equal(t, "t3", got.ActiveTabHandle)

	// Unknown sessions are not created by SetTabs.
	s.SetTabs("session_missing", []Tab{{Handle: "t9"}}, "t9")
	assert.Equal(t, 1, s.Count())
}

func TestRemoveTabPromotesActive(t *testing.T) {
	s := NewStore()
	s.Put(Session{
		ID:              "session_a",
		ActiveTabHandle: "t2",
		Tabs:            []Tab{{Handle: "t1"}, {Handle: "t2"}},
	})

	s.RemoveTab("session_a", "t2")
	got, _ := s.Get("session_a")
	require.Len(t, got.Tabs, 1)
	assert.Equal(t, "t1", got.ActiveTabHandle)

	s.RemoveTab("session_a", "t1")
	got, _ = s.Get("session_a")
	assert.Empty(t, got.Tabs)
	assert.Empty(t, got.ActiveTabHandle)
}

func TestListOrderedByCreation(t *testing.T) {
	s := NewStore()
	s.Put(Session{ID: "session_a"})
	s.Put(Session{ID: "session_b"})

	list := s.List()
	require.Len(t, list, 2)
	assert.False(t, list[0].CreatedAt.After(list[1].CreatedAt))
}
