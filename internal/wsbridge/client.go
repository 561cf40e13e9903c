package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

const (
	reconnectInitial  = time.Second
	reconnectCap      = 30 * time.Second
	reconnectMaxTries = 10
)

// peerClient is the bridge's peer-client role: every controller command and
// routed page operation rides a single WebSocket to the server instance, and
// responses resolve in the local correlator by request id.
type peerClient struct {
	bridge *Bridge
	log    *slog.Logger
	url    string

	mu   sync.RWMutex
	peer *Peer

	backgroundUp atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

func newPeerClient(b *Bridge, url string) *peerClient {
	return &peerClient{
		bridge: b,
		log:    b.log.With("component", "peer_client"),
		url:    url,
		done:   make(chan struct{}),
	}
}

// run dials the server and pumps frames until closed. Each connection loss
// rejects the in-flight requests that rode the dead socket, then reconnects
// with a fresh backoff schedule.
func (c *peerClient) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.log.Error("giving up connecting to bridge server", "url", c.url, "err", err)
			return
		}

		p := newPeer(conn, c.url, "", c.log)
		p.Role = RolePeerBridge
		p.InstanceID = c.bridge.instanceID
		c.mu.Lock()
		c.peer = p
		c.mu.Unlock()

		hello := protocol.Marshal(protocol.Frame{
			Type:          protocol.TypeMCPClientReady,
			MCPInstanceID: c.bridge.instanceID,
			Data:          protocol.MarshalData(protocol.MCPClientReadyData{InstanceID: c.bridge.instanceID}),
		})
		if err := p.TrySend(hello); err != nil {
			c.log.Warn("registration send failed", "err", err)
			p.Close()
			continue
		}

		go p.writeLoop()
		p.readLoop(func(raw []byte) { c.handleFrame(p, raw) })
		p.Close()

		c.mu.Lock()
		c.peer = nil
		c.mu.Unlock()
		c.backgroundUp.Store(false)

		n := c.bridge.correlator.rejectWhere(func(_ string, target targetKind) bool {
			return target == targetServer
		}, fmt.Errorf("%w: bridge server", ErrPeerGone))
		c.log.Warn("bridge server connection lost", "rejected_pending", n)
	}
}

func (c *peerClient) dial(ctx context.Context) (*websocket.Conn, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = reconnectInitial
	exp.MaxInterval = reconnectCap
	return backoff.Retry(ctx, func() (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		return conn, err
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(reconnectMaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Info("bridge server dial failed, retrying", "err", err, "next_try_in", next.String())
		}),
	)
}

func (c *peerClient) handleFrame(p *Peer, raw []byte) {
	var f protocol.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.log.Warn("malformed frame from bridge server", "err", err)
		return
	}
	debugFrame(c.log, "in", f.Type, raw)
	c.bridge.observeFrame("in", f.Type)

	switch f.Type {
	case protocol.TypeResponse:
		if !c.bridge.correlator.resolve(f) {
			c.log.Debug("late response dropped", "request_id", f.RequestID)
		}
	case protocol.TypeMCPClientRegistered:
		var ack protocol.MCPClientRegisteredData
		if len(f.Data) > 0 {
			_ = json.Unmarshal(f.Data, &ack)
		}
		c.backgroundUp.Store(ack.BackgroundConnected)
		c.log.Info("registered with bridge server", "background_connected", ack.BackgroundConnected)
	case protocol.TypeBackgroundStatus:
		var st protocol.BackgroundStatusData
		if len(f.Data) > 0 {
			_ = json.Unmarshal(f.Data, &st)
		}
		c.backgroundUp.Store(st.Connected)
	case protocol.TypeDialogOpened:
		c.bridge.notifyDriver(f.SessionID, protocol.TypeDialogOpened, f.Data)
	case protocol.TypeWindowClosed:
		if c.bridge.mirror != nil {
			c.bridge.mirror.Drop(f.SessionID)
		}
		if c.bridge.owners != nil {
			c.bridge.owners.Unbind(f.SessionID)
		}
	case protocol.TypePing:
		_ = p.TrySend(pongFrame)
	case protocol.TypePong:
	default:
		if protocol.IsEventType(f.Type) {
			if c.bridge.mirror != nil {
				c.bridge.mirror.ApplyEvent(f)
			}
			return
		}
		c.log.Debug("frame from bridge server discarded", "type", f.Type)
	}
}

// sendCommand issues a controller command through the server. The server
// forwards it to the controller and routes the response back here by
// mcpInstanceId.
func (c *peerClient) sendCommand(ctx context.Context, cmdType string, payload json.RawMessage) (protocol.Frame, error) {
	if !c.backgroundUp.Load() {
		return protocol.Frame{}, ErrNoController
	}
	return c.send(ctx, protocol.Frame{
		Type:          cmdType,
		SessionID:     protocol.BackgroundSessionID,
		MCPInstanceID: c.bridge.instanceID,
		Data:          payload,
	}, protocol.BackgroundSessionID, cmdType)
}

// sendRouted wraps a page operation in a route_to_session envelope; the
// server unwraps it in front of the target agent.
func (c *peerClient) sendRouted(ctx context.Context, sessionID, opType string, payload json.RawMessage) (protocol.Frame, error) {
	return c.send(ctx, protocol.Frame{
		Type:          protocol.TypeRouteToSession,
		OriginalType:  opType,
		SessionID:     sessionID,
		MCPInstanceID: c.bridge.instanceID,
		Data:          payload,
	}, sessionID, opType)
}

func (c *peerClient) send(ctx context.Context, f protocol.Frame, sessionID, label string) (protocol.Frame, error) {
	c.mu.RLock()
	p := c.peer
	c.mu.RUnlock()
	if p == nil {
		return protocol.Frame{}, fmt.Errorf("%w: bridge server not connected", ErrPeerGone)
	}

	id, ch := c.bridge.correlator.register(sessionID, targetServer)
	f.RequestID = id
	raw := protocol.Marshal(f)
	debugFrame(c.log, "out", f.Type, raw)
	c.bridge.observeFrame("out", f.Type)
	if err := p.TrySend(raw); err != nil {
		c.bridge.correlator.reject(id, err)
		return protocol.Frame{}, err
	}
	return c.bridge.correlator.await(ctx, id, ch, label)
}

func (c *peerClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.RLock()
		p := c.peer
		c.mu.RUnlock()
		if p != nil {
			p.Close()
		}
	})
}
