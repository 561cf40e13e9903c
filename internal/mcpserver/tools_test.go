package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/browser-bridge/internal/controller"
	"github.com/adityalohuni/browser-bridge/internal/protocol"
	"github.com/adityalohuni/browser-bridge/internal/session"
	"github.com/adityalohuni/browser-bridge/internal/wsbridge"
)

// scriptedCommander answers controller commands from a script and records
// what was sent.
type scriptedCommander struct {
	mu      sync.Mutex
	calls   []string
	respond func(cmdType string, data json.RawMessage) (protocol.Frame, error)
}

func (c *scriptedCommander) SendCommand(_ context.Context, cmdType string, data any) (protocol.Frame, error) {
	c.mu.Lock()
	c.calls = append(c.calls, cmdType)
	c.mu.Unlock()
	if c.respond != nil {
		return c.respond(cmdType, protocol.MarshalData(data))
	}
	return protocol.Frame{Type: protocol.TypeResponse, Success: protocol.Bool(true)}, nil
}

func (c *scriptedCommander) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeFabric struct {
	mu          sync.Mutex
	lastOp      string
	lastSID     string
	lastPayload json.RawMessage
	resp        protocol.Frame
	err         error
	cancelled   []string
}

func (f *fakeFabric) SendToAgent(_ context.Context, sessionID, opType string, data json.RawMessage) (protocol.Frame, error) {
	f.mu.Lock()
	f.lastOp = opType
	f.lastSID = sessionID
	f.lastPayload = data
	f.mu.Unlock()
	return f.resp, f.err
}

func (f *fakeFabric) CancelSessionPendings(sessionID string, _ error) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, sessionID)
	return 1
}

func (f *fakeFabric) Role() wsbridge.BridgeRole { return wsbridge.BridgeServer }
func (f *fakeFabric) ControllerConnected() bool { return true }

func echoCreate(cmdType string, data json.RawMessage) (protocol.Frame, error) {
	if cmdType != protocol.TypeCreateSession {
		return protocol.Frame{Type: protocol.TypeResponse, Success: protocol.Bool(true)}, nil
	}
	var req protocol.CreateSessionData
	_ = json.Unmarshal(data, &req)
	return protocol.Frame{
		Type:    protocol.TypeResponse,
		Success: protocol.Bool(true),
		Data: protocol.MarshalData(protocol.SessionCreatedData{
			SessionID:       req.SessionID,
			WindowHandle:    "w1",
			ActiveTabHandle: "t1",
		}),
	}, nil
}

func newTestServer(t *testing.T, cmd *scriptedCommander, fab *fakeFabric) *Server {
	t.Helper()
	if cmd == nil {
		cmd = &scriptedCommander{respond: echoCreate}
	}
	if fab == nil {
		fab = &fakeFabric{resp: protocol.Frame{Type: protocol.TypeResponse, Success: protocol.Bool(true)}}
	}
	s := New(Options{
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Fabric:      fab,
		Controller:  controller.NewClient(cmd, controller.Options{}),
		Registry:    session.NewRegistry(),
		Store:       session.NewStore(),
		GracePeriod: 30 * time.Millisecond,
	})
	t.Cleanup(s.Close)
	return s
}

func TestCreateSessionIdempotentPerTransport(t *testing.T) {
	s := newTestServer(t, nil, nil)
	ctx := context.Background()

	first, err := s.toolCreateSession(ctx, "transport-1", map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	second, err := s.toolCreateSession(ctx, "transport-1", map[string]any{})
	require.NoError(t, err)

	var a, b map[string]any
	require.NoError(t, json.Unmarshal([]byte(first), &a))
	require.NoError(t, json.Unmarshal([]byte(second), &b))
	assert.Equal(t, a["session_id"], b["session_id"])

	sid := a["session_id"].(string)
	sess, ok := s.store.Get(sid)
	require.True(t, ok)
	assert.Equal(t, "w1", sess.WindowHandle)
}

func TestToolsRequireSession(t *testing.T) {
	s := newTestServer(t, nil, nil)
	ctx := context.Background()

	_, err := s.toolNavigate(ctx, "transport-1", map[string]any{"url": "https://example.com"})
	assert.ErrorIs(t, err, session.ErrNoSession)

	_, err = s.agentTool("get_current_url", nil)(ctx, "transport-1", map[string]any{})
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestCloseSessionReleasesEverything(t *testing.T) {
	cmd := &scriptedCommander{respond: echoCreate}
	fab := &fakeFabric{resp: protocol.Frame{Type: protocol.TypeResponse, Success: protocol.Bool(true)}}
	s := newTestServer(t, cmd, fab)
	ctx := context.Background()

	created, err := s.toolCreateSession(ctx, "transport-1", map[string]any{})
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(created), &info))
	sid := info["session_id"].(string)

	_, err = s.toolCloseSession(ctx, "transport-1", nil)
	require.NoError(t, err)
	assert.Contains(t, cmd.sent(), protocol.TypeCloseSession)
	assert.Contains(t, fab.cancelled, sid)
	assert.Equal(t, 0, s.store.Count())

	_, err = s.toolNavigate(ctx, "transport-1", map[string]any{"url": "https://example.com"})
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestStatusReportsBinding(t *testing.T) {
	s := newTestServer(t, nil, nil)
	ctx := context.Background()

	text, err := s.toolStatus(ctx, "transport-1", nil)
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &status))
	assert.Equal(t, false, status["session_bound"])
	assert.Equal(t, "server", status["bridge_role"])

	_, err = s.toolCreateSession(ctx, "transport-1", map[string]any{})
	require.NoError(t, err)
	text, err = s.toolStatus(ctx, "transport-1", nil)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text), &status))
	assert.Equal(t, true, status["session_bound"])
	assert.Equal(t, "w1", status["window_handle"])
}

func TestAgentToolValidation(t *testing.T) {
	fab := &fakeFabric{resp: protocol.Frame{Type: protocol.TypeResponse, Success: protocol.Bool(true), Data: json.RawMessage(`{"clicked":true}`)}}
	s := newTestServer(t, nil, fab)
	ctx := context.Background()
	_, err := s.toolCreateSession(ctx, "transport-1", map[string]any{})
	require.NoError(t, err)

	click := s.agentTool("click_element", []string{"selector"})
	_, err = click(ctx, "transport-1", map[string]any{})
	assert.ErrorIs(t, err, ErrPayloadInvalid)
	_, err = click(ctx, "transport-1", map[string]any{"selector": ""})
	assert.ErrorIs(t, err, ErrPayloadInvalid)

	out, err := click(ctx, "transport-1", map[string]any{"selector": "#go"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"clicked":true}`, out)
	assert.Equal(t, "click_element", fab.lastOp)

	// fill_field accepts an empty value: that clears the field.
	fill := s.agentTool("fill_field", []string{"selector", "value"})
	_, err = fill(ctx, "transport-1", map[string]any{"selector": "#name", "value": ""})
	require.NoError(t, err)
}

func TestAgentFailureSurfacesAsError(t *testing.T) {
	fab := &fakeFabric{resp: protocol.Frame{
		Type:    protocol.TypeResponse,
		Success: protocol.Bool(false),
		Error:   "element not found: #missing",
	}}
	s := newTestServer(t, nil, fab)
	ctx := context.Background()
	_, err := s.toolCreateSession(ctx, "transport-1", map[string]any{})
	require.NoError(t, err)

	_, err = s.agentTool("click_element", []string{"selector"})(ctx, "transport-1", map[string]any{"selector": "#missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element not found")
}

func TestWaitForElementClampsTimeout(t *testing.T) {
	fab := &fakeFabric{resp: protocol.Frame{Type: protocol.TypeResponse, Success: protocol.Bool(true)}}
	s := newTestServer(t, nil, fab)
	ctx := context.Background()
	_, err := s.toolCreateSession(ctx, "transport-1", map[string]any{})
	require.NoError(t, err)

	_, err = s.toolWaitForElement(ctx, "transport-1", map[string]any{
		"selector":   "#late",
		"timeout_ms": float64(120000),
	})
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(fab.lastPayload, &sent))
	assert.Equal(t, float64(waitMaxMs), sent["timeout_ms"])
}

func TestDriverDisconnectClosesOrphanAfterGrace(t *testing.T) {
	cmd := &scriptedCommander{respond: echoCreate}
	fab := &fakeFabric{resp: protocol.Frame{Type: protocol.TypeResponse, Success: protocol.Bool(true)}}
	s := newTestServer(t, cmd, fab)
	ctx := context.Background()

	created, err := s.toolCreateSession(ctx, "transport-1", map[string]any{})
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(created), &info))
	sid := info["session_id"].(string)

	s.onDriverGone("transport-1")
	assert.Contains(t, fab.cancelled, sid)

	require.Eventually(t, func() bool {
		for _, c := range cmd.sent() {
			if c == protocol.TypeCloseSession {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond, "orphaned session was not closed after the grace period")
	assert.Equal(t, 0, s.store.Count())
}

func TestScreenshotToolReturnsDataURL(t *testing.T) {
	cmd := &scriptedCommander{respond: func(cmdType string, data json.RawMessage) (protocol.Frame, error) {
		if cmdType == protocol.TypeTakeScreenshot {
			return protocol.Frame{
				Type:    protocol.TypeResponse,
				Success: protocol.Bool(true),
				Data:    protocol.MarshalData(protocol.ScreenshotData{Format: "jpeg", DataURL: "data:image/jpeg;base64,abc"}),
			}, nil
		}
		return echoCreate(cmdType, data)
	}}
	s := newTestServer(t, cmd, nil)
	ctx := context.Background()
	_, err := s.toolCreateSession(ctx, "transport-1", map[string]any{})
	require.NoError(t, err)

	out, err := s.toolTakeScreenshot(ctx, "transport-1", map[string]any{"quality": float64(90)})
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,abc", out)
}
