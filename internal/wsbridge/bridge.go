package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

// BridgeRole is the process-wide role chosen once at startup: the instance
// that wins the WebSocket port is the server, a loser becomes a peer client
// forwarding everything through the winner.
type BridgeRole string

const (
	BridgeServer     BridgeRole = "server"
	BridgePeerClient BridgeRole = "peer_client"
)

// SessionOwners is the slice of the driver registry the dispatcher needs:
// resolving which driver owns a browser session, and releasing the binding
// when the controller reports the window gone.
type SessionOwners interface {
	OwnerOf(browserSessionID string) (string, bool)
	Unbind(browserSessionID string)
}

// SessionMirror receives controller lifecycle events so the bridge-side
// session state tracks the browser.
type SessionMirror interface {
	ApplyEvent(f protocol.Frame)
	Drop(id string) bool
}

// DriverNotifier pushes an asynchronous event to one driver's SSE stream.
// Wired to the MCP front-end after construction; nil until then.
type DriverNotifier interface {
	NotifyDriver(transportID, method string, params map[string]any)
}

// FrameObserver counts frames through the fabric, direction "in" or "out".
type FrameObserver interface {
	ObserveFrame(direction, frameType string)
}

// Options configures a Bridge.
type Options struct {
	Log        *slog.Logger
	InstanceID string
	Owners     SessionOwners
	Mirror     SessionMirror
	Frames     FrameObserver

	ReadBufferSize  int
	WriteBufferSize int
}

// Bridge is the dispatch fabric between the browser controller, the page
// agents, any peer bridge instances, and the local tool surface. One Bridge
// exists per process; its role is fixed by Start.
type Bridge struct {
	log        *slog.Logger
	instanceID string
	owners     SessionOwners
	mirror     SessionMirror
	frames     FrameObserver

	table      *Table
	correlator *Correlator
	upgrader   websocket.Upgrader

	mu        sync.RWMutex
	role      BridgeRole
	notifier  DriverNotifier
	httpSrv   *http.Server
	client    *peerClient
	startedAt time.Time
}

func New(opts Options) *Bridge {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	id := opts.InstanceID
	if id == "" {
		id = uuid.NewString()
	}
	readBuf := opts.ReadBufferSize
	if readBuf == 0 {
		readBuf = 4096
	}
	writeBuf := opts.WriteBufferSize
	if writeBuf == 0 {
		writeBuf = 4096
	}
	return &Bridge{
		log:        log.With("component", "wsbridge"),
		instanceID: id,
		owners:     opts.Owners,
		mirror:     opts.Mirror,
		frames:     opts.Frames,
		table:      NewTable(),
		correlator: NewCorrelator(log.With("component", "correlator")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// Browser extensions connect with an extension origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetNotifier installs the driver event sink. The front-end is built after
// the bridge, so this is wired late.
func (b *Bridge) SetNotifier(n DriverNotifier) {
	b.mu.Lock()
	b.notifier = n
	b.mu.Unlock()
}

// Start binds the WebSocket listener and fixes the process role. Winning the
// bind makes this instance the server; losing the port race to a live bridge
// demotes it to peer client of the winner. The role never changes afterwards.
func (b *Bridge) Start(ctx context.Context, wsAddr string) (BridgeRole, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startedAt = time.Now()

	ln, err := net.Listen("tcp", wsAddr)
	if err != nil {
		if !isAddrInUse(err) {
			return "", fmt.Errorf("bind websocket listener %s: %w", wsAddr, err)
		}
		b.role = BridgePeerClient
		b.client = newPeerClient(b, peerWSURL(wsAddr))
		go b.client.run(ctx)
		b.log.Info("websocket port taken, running as peer client",
			"addr", wsAddr, "instance_id", b.instanceID)
		return b.role, nil
	}

	b.role = BridgeServer
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	b.httpSrv = &http.Server{Handler: mux}
	go func() {
		if serveErr := b.httpSrv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			b.log.Error("websocket server stopped", "err", serveErr)
		}
	}()
	b.log.Info("websocket server listening", "addr", wsAddr, "instance_id", b.instanceID)
	return b.role, nil
}

// Shutdown stops accepting peers, rejects all pendings, and closes every
// live socket.
func (b *Bridge) Shutdown(ctx context.Context) {
	b.mu.Lock()
	srv := b.httpSrv
	client := b.client
	b.mu.Unlock()

	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	if client != nil {
		client.close()
	}
	b.correlator.Close()
	for _, p := range b.table.All() {
		p.Close()
	}
}

func (b *Bridge) Role() BridgeRole {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.role
}

func (b *Bridge) InstanceID() string { return b.instanceID }

// ControllerConnected reports whether a browser controller is reachable: a
// direct peer in server role, the server's advertised status in peer-client
// role.
func (b *Bridge) ControllerConnected() bool {
	if b.Role() == BridgePeerClient {
		return b.client.backgroundUp.Load()
	}
	_, ok := b.table.Controller()
	return ok
}

// ControllerLastSeen is zero when no controller peer is attached.
func (b *Bridge) ControllerLastSeen() time.Time {
	ctrl, ok := b.table.Controller()
	if !ok {
		return time.Time{}
	}
	return ctrl.LastSeen()
}

func (b *Bridge) PeerCounts() Counts      { return b.table.Counts() }
func (b *Bridge) Peers() []PeerInfo       { return b.table.Snapshot() }
func (b *Bridge) PendingDepth() int       { return b.correlator.Depth() }
func (b *Bridge) PendingStats() Stats     { return b.correlator.Snapshot() }
func (b *Bridge) StartedAt() time.Time    { return b.startedAt }
func (b *Bridge) AgentFor(sid string) bool { _, ok := b.table.Agent(sid); return ok }

// SendCommand issues a controller command and waits for its response frame.
// The caller bounds the wait through ctx; the correlator enforces the global
// cap regardless.
func (b *Bridge) SendCommand(ctx context.Context, cmdType string, data any) (protocol.Frame, error) {
	payload := protocol.MarshalData(data)
	if b.Role() == BridgePeerClient {
		return b.client.sendCommand(ctx, cmdType, payload)
	}

	ctrl, ok := b.table.Controller()
	if !ok {
		return protocol.Frame{}, ErrNoController
	}
	id, ch := b.correlator.register(protocol.BackgroundSessionID, targetController)
	raw := protocol.Marshal(protocol.Frame{
		Type:          cmdType,
		RequestID:     id,
		SessionID:     protocol.BackgroundSessionID,
		MCPInstanceID: b.instanceID,
		Data:          payload,
	})
	debugFrame(b.log, "out", cmdType, raw)
	b.observeFrame("out", cmdType)
	if err := ctrl.TrySend(raw); err != nil {
		b.correlator.reject(id, err)
		return protocol.Frame{}, err
	}
	return b.correlator.await(ctx, id, ch, cmdType)
}

// SendToAgent routes an opaque page operation to the agent serving the
// session and waits for its response. In peer-client role the envelope rides
// the server socket as a route_to_session frame.
func (b *Bridge) SendToAgent(ctx context.Context, sessionID, opType string, data json.RawMessage) (protocol.Frame, error) {
	if b.Role() == BridgePeerClient {
		return b.client.sendRouted(ctx, sessionID, opType, data)
	}

	agent, ok := b.table.Agent(sessionID)
	if !ok {
		return protocol.Frame{}, fmt.Errorf("%w (session %s)", ErrSessionNotConnected, sessionID)
	}
	id, ch := b.correlator.register(sessionID, targetAgent)
	raw := protocol.Marshal(protocol.Frame{
		Type:          opType,
		RequestID:     id,
		SessionID:     sessionID,
		MCPInstanceID: b.instanceID,
		Data:          data,
	})
	debugFrame(b.log, "out", opType, raw)
	b.observeFrame("out", opType)
	if err := agent.TrySend(raw); err != nil {
		b.correlator.reject(id, err)
		return protocol.Frame{}, err
	}
	return b.correlator.await(ctx, id, ch, opType)
}

// CancelSessionPendings rejects every pending routed to a session, used when
// the owning driver's stream closes.
func (b *Bridge) CancelSessionPendings(sessionID string, cause error) int {
	if cause == nil {
		cause = fmt.Errorf("%w: driver stream closed", ErrPeerGone)
	}
	return b.correlator.rejectWhere(func(sid string, _ targetKind) bool {
		return sid == sessionID
	}, cause)
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	p := newPeer(conn, r.RemoteAddr, r.UserAgent(), b.log)
	b.log.Debug("ws peer connected", "peer", p.ID, "remote", r.RemoteAddr)

	go p.writeLoop()
	p.readLoop(func(raw []byte) { b.dispatch(p, raw) })
	b.handleDisconnect(p)
}

// handleDisconnect runs the disconnect cascade once the reader exits. When
// the peer was already displaced by a replacement, the cascade ran at
// replacement time and the table removal reports false.
func (b *Bridge) handleDisconnect(p *Peer) {
	p.Close()
	if p.Role == "" {
		b.log.Debug("unregistered ws peer left", "peer", p.ID)
		return
	}
	if !b.table.Remove(p) {
		return
	}
	switch p.Role {
	case RoleController:
		n := b.correlator.rejectWhere(func(_ string, target targetKind) bool {
			return target == targetController
		}, fmt.Errorf("%w: controller disconnected", ErrPeerGone))
		// Automation sessions are retained so a reconnecting controller
		// inherits them.
		b.broadcastBackgroundStatus(false)
		b.log.Warn("controller disconnected", "peer", p.ID, "rejected_pending", n)
	case RolePageAgent:
		n := b.correlator.rejectWhere(func(sid string, _ targetKind) bool {
			return sid == p.SessionID
		}, fmt.Errorf("%w: page agent for %s disconnected", ErrPeerGone, p.SessionID))
		b.log.Info("page agent disconnected", "peer", p.ID, "session_id", p.SessionID, "rejected_pending", n)
	case RolePeerBridge:
		b.log.Info("peer bridge disconnected", "peer", p.ID, "instance_id", p.InstanceID)
	}
}

// broadcastBackgroundStatus tells every peer bridge whether a controller is
// attached, so their NoController answers stay truthful.
func (b *Bridge) broadcastBackgroundStatus(connected bool) {
	raw := protocol.Marshal(protocol.Frame{
		Type: protocol.TypeBackgroundStatus,
		Data: protocol.MarshalData(protocol.BackgroundStatusData{Connected: connected}),
	})
	for _, bp := range b.table.Bridges() {
		if err := bp.TrySend(raw); err != nil {
			b.log.Debug("background status broadcast dropped", "instance_id", bp.InstanceID, "err", err)
		}
	}
}

// notifyDriver forwards an event to the driver owning a browser session.
func (b *Bridge) notifyDriver(sessionID, method string, data json.RawMessage) {
	b.mu.RLock()
	notifier := b.notifier
	b.mu.RUnlock()
	if notifier == nil || b.owners == nil {
		return
	}
	transportID, ok := b.owners.OwnerOf(sessionID)
	if !ok {
		b.log.Debug("event for unowned session dropped", "session_id", sessionID, "method", method)
		return
	}
	params := map[string]any{"sessionId": sessionID}
	if len(data) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err == nil {
			for k, v := range decoded {
				params[k] = v
			}
		}
	}
	notifier.NotifyDriver(transportID, method, params)
}

func (b *Bridge) observeFrame(direction, frameType string) {
	if b.frames != nil {
		b.frames.ObserveFrame(direction, frameType)
	}
}

func peerWSURL(wsAddr string) string {
	host, port, err := net.SplitHostPort(wsAddr)
	if err != nil {
		return "ws://127.0.0.1:3002/ws"
	}
	if host == "" || host == "0.0.0.0" || host == "::" || host == "[::]" {
		host = "127.0.0.1"
	}
	return "ws://" + net.JoinHostPort(host, port) + "/ws"
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
