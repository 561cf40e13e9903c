package diag

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/adityalohuni/browser-bridge/internal/session"
	"github.com/adityalohuni/browser-bridge/internal/wsbridge"
)

type fakeFabric struct {
	role      wsbridge.BridgeRole
	counts    wsbridge.Counts
	peers     []wsbridge.PeerInfo
	pending   int
	stats     wsbridge.Stats
	lastSeen  time.Time
	startedAt time.Time
}

func (f *fakeFabric) Role() wsbridge.BridgeRole     { return f.role }
func (f *fakeFabric) InstanceID() string            { return "inst-1" }
func (f *fakeFabric) ControllerConnected() bool     { return f.counts.Controller }
func (f *fakeFabric) ControllerLastSeen() time.Time { return f.lastSeen }
func (f *fakeFabric) PeerCounts() wsbridge.Counts   { return f.counts }
func (f *fakeFabric) Peers() []wsbridge.PeerInfo    { return f.peers }
func (f *fakeFabric) PendingDepth() int             { return f.pending }
func (f *fakeFabric) PendingStats() wsbridge.Stats  { return f.stats }
func (f *fakeFabric) StartedAt() time.Time          { return f.startedAt }

func newTestHandlers(fab *fakeFabric) (*Handlers, *session.Registry, *session.Store) {
	reg := session.NewRegistry()
	store := session.NewStore()
	return &Handlers{Bridge: fab, Registry: reg, Store: store}, reg, store
}

func TestHealthShape(t *testing.T) {
	fab := &fakeFabric{
		role:      wsbridge.BridgeServer,
		counts:    wsbridge.Counts{Controller: true, PageAgents: 2, PeerBridges: 1},
		pending:   3,
		lastSeen:  time.Now(),
		startedAt: time.Now().Add(-time.Minute),
	}
	h, reg, store := newTestHandlers(fab)
	require.NoError(t, reg.Register("transport-1", session.DriverInfo{TransportID: "transport-1"}))
	store.Put(session.Session{ID: "session_abc", WindowHandle: "w1"})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "server", got.Role)
	assert.Equal(t, "inst-1", got.InstanceID)
	assert.True(t, got.Controller.Connected)
	require.NotNil(t, got.Controller.LastSeen)
	assert.Equal(t, 2, got.Peers.PageAgents)
	assert.Equal(t, 1, got.Peers.PeerBridges)
	assert.Equal(t, 1, got.Drivers)
	assert.Equal(t, 1, got.Sessions)
	assert.Equal(t, 3, got.Pending)
}

func TestHealthDegradedWithoutController(t *testing.T) {
	h, _, _ := newTestHandlers(&fakeFabric{role: wsbridge.BridgeServer})
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))

	var got Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "degraded", got.Status)
	assert.False(t, got.Controller.Connected)
	assert.Nil(t, got.Controller.LastSeen)
}

func TestStateDumpGuardedByToken(t *testing.T) {
	fab := &fakeFabric{role: wsbridge.BridgeServer, counts: wsbridge.Counts{Controller: true}}
	h, reg, store := newTestHandlers(fab)
	require.NoError(t, reg.Register("transport-1", session.DriverInfo{TransportID: "transport-1"}))
	sid, _, err := reg.Bind("transport-1")
	require.NoError(t, err)
	store.Put(session.Session{ID: sid, WindowHandle: "w1", Tabs: []session.Tab{{Handle: "t1"}}})

	mux := http.NewServeMux()
	h.Register(mux, "s3cret")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/debug/state", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/debug/state", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Drivers, 1)
	assert.Equal(t, sid, got.Drivers[0].BrowserSessionID)
	require.Len(t, got.Sessions, 1)
	assert.Equal(t, "w1", got.Sessions[0].WindowHandle)
}

func TestStatusPageRenders(t *testing.T) {
	fab := &fakeFabric{
		role:   wsbridge.BridgeServer,
		counts: wsbridge.Counts{Controller: true, PageAgents: 1},
		peers: []wsbridge.PeerInfo{{
			ID:         "peer-1",
			Role:       wsbridge.RolePageAgent,
			SessionID:  "session_abc",
			RemoteAddr: "127.0.0.1:51000",
			LastSeen:   time.Now(),
		}},
		startedAt: time.Now().Add(-time.Minute),
	}
	h, _, store := newTestHandlers(fab)
	store.Put(session.Session{ID: "session_abc", WindowHandle: "w1", ActiveTabHandle: "t1"})

	rec := httptest.NewRecorder()
	h.StatusPage(rec, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	doc, err := html.Parse(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(textOfID(doc, "status")))
	assert.Contains(t, textOfID(doc, "sessions"), "session_abc")
	assert.Contains(t, textOfID(doc, "peers"), "page_agent")
}

func TestStatusPageOnlyAtRoot(t *testing.T) {
	h, _, _ := newTestHandlers(&fakeFabric{})
	rec := httptest.NewRecorder()
	h.StatusPage(rec, httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// textOfID collects the text content under the node carrying the given id.
func textOfID(n *html.Node, id string) string {
	if n.Type == html.ElementNode {
		for _, attr := range n.Attr {
			if attr.Key == "id" && attr.Val == id {
				var sb strings.Builder
				collectText(n, &sb)
				return sb.String()
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if got := textOfID(c, id); got != "" {
			return got
		}
	}
	return ""
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
