package wsbridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

// newClientBridge runs a second bridge in peer-client role against the
// given server, the way a port-race loser would.
func newClientBridge(t *testing.T, wsURL string) *Bridge {
	t.Helper()
	b := New(Options{
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		InstanceID: "inst-client",
	})
	b.role = BridgePeerClient
	b.client = newPeerClient(b, wsURL)
	ctx, cancel := context.WithCancel(context.Background())
	go b.client.run(ctx)
	t.Cleanup(func() {
		cancel()
		b.client.close()
		b.correlator.Close()
	})
	return b
}

func waitForPeerBridge(t *testing.T, srv *Bridge) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.PeerCounts().PeerBridges == 1 },
		2*time.Second, 10*time.Millisecond, "peer client never registered")
}

func TestPeerClientCommandRoundTrip(t *testing.T) {
	srv, wsURL := newTestBridge(t, nil, nil)

	ctrl := dialPeer(t, wsURL)
	writeFrame(t, ctrl, protocol.Frame{Type: protocol.TypeBackgroundReady, SessionID: protocol.BackgroundSessionID})
	require.Eventually(t, srv.ControllerConnected, 2*time.Second, 10*time.Millisecond)

	// The controller answers the one command it receives; the response keeps
	// the originating instance id, so the server hands it back to the peer
	// client instead of resolving locally.
	go func() {
		for {
			_, raw, err := ctrl.ReadMessage()
			if err != nil {
				return
			}
			var f protocol.Frame
			if json.Unmarshal(raw, &f) != nil || !f.IsCommand() {
				continue
			}
			resp := protocol.NewResponse(f, json.RawMessage(`{"sessions":[]}`))
			_ = ctrl.WriteMessage(websocket.TextMessage, protocol.Marshal(resp))
			return
		}
	}()

	cb := newClientBridge(t, wsURL)
	require.Eventually(t, cb.ControllerConnected, 2*time.Second, 10*time.Millisecond,
		"registration ack did not advertise the controller")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	f, err := cb.SendCommand(ctx, protocol.TypeGetSessions, nil)
	require.NoError(t, err)
	assert.True(t, f.OK())
	assert.Equal(t, 0, cb.PendingDepth())
}

func TestPeerClientRoutedOperationRoundTrip(t *testing.T) {
	srv, wsURL := newTestBridge(t, nil, nil)

	agent := dialPeer(t, wsURL)
	writeFrame(t, agent, protocol.Frame{Type: protocol.TypeBrowserReady, SessionID: "session_0a1b2c3d"})
	require.Eventually(t, func() bool { return srv.AgentFor("session_0a1b2c3d") }, 2*time.Second, 10*time.Millisecond)

	// The route_to_session envelope is unwrapped in front of the agent, so
	// it answers the operation under its original type.
	go func() {
		for {
			_, raw, err := agent.ReadMessage()
			if err != nil {
				return
			}
			var f protocol.Frame
			if json.Unmarshal(raw, &f) != nil || f.Type != "extract_page_text" {
				continue
			}
			resp := protocol.NewResponse(f, json.RawMessage(`{"text":"hello"}`))
			_ = agent.WriteMessage(websocket.TextMessage, protocol.Marshal(resp))
			return
		}
	}()

	cb := newClientBridge(t, wsURL)
	waitForPeerBridge(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	f, err := cb.SendToAgent(ctx, "session_0a1b2c3d", "extract_page_text", nil)
	require.NoError(t, err)
	require.True(t, f.OK())

	var data struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "hello", data.Text)
}

func TestPeerClientCommandWithoutController(t *testing.T) {
	srv, wsURL := newTestBridge(t, nil, nil)

	cb := newClientBridge(t, wsURL)
	waitForPeerBridge(t, srv)

	_, err := cb.SendCommand(context.Background(), protocol.TypeCreateSession, nil)
	assert.ErrorIs(t, err, ErrNoController)
}

func TestPeerClientReconnectsAfterDrop(t *testing.T) {
	srv, wsURL := newTestBridge(t, nil, nil)

	// An agent that never answers keeps a routed request pending on the
	// client side.
	agent := dialPeer(t, wsURL)
	writeFrame(t, agent, protocol.Frame{Type: protocol.TypeBrowserReady, SessionID: "session_0a1b2c3d"})
	require.Eventually(t, func() bool { return srv.AgentFor("session_0a1b2c3d") }, 2*time.Second, 10*time.Millisecond)

	cb := newClientBridge(t, wsURL)
	waitForPeerBridge(t, srv)
	bridges := srv.table.Bridges()
	require.Len(t, bridges, 1)
	firstID := bridges[0].ID

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := cb.SendToAgent(ctx, "session_0a1b2c3d", "wait_for_element", nil)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return cb.PendingDepth() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Killing the server-side socket must fail the in-flight request
	// immediately, not leave it to time out.
	bridges[0].Close()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrPeerGone)
	case <-time.After(3 * time.Second):
		t.Fatal("pending was not rejected on connection loss")
	}

	// The client redials and registers a fresh peer.
	require.Eventually(t, func() bool {
		bs := srv.table.Bridges()
		return len(bs) == 1 && bs[0].ID != firstID
	}, 10*time.Second, 50*time.Millisecond, "peer client did not re-register")
}
