package wsbridge

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// Role labels a registered peer.
type Role string

const (
	RoleController Role = "controller"
	RolePageAgent  Role = "page_agent"
	RolePeerBridge Role = "peer_bridge"
)

const (
	// writeWait bounds every socket write, pings included.
	writeWait = 5 * time.Second
	// pingPeriod is how often the writer emits a liveness ping. Browser
	// peers never see control frames, so the ping goes out as a JSON
	// frame and any inbound traffic counts as the answer.
	pingPeriod = 10 * time.Second
	// pongWait is pingPeriod plus the allowed answer latency. A peer
	// silent for longer is torn down as dead.
	pongWait = pingPeriod + 5*time.Second
	// sendQueueSize bounds the per-peer outbound queue. A full queue
	// rejects instead of blocking the dispatcher.
	sendQueueSize = 32
)

var pingFrame = []byte(`{"type":"ping"}`)
var pongFrame = []byte(`{"type":"pong"}`)

// Peer is one live WebSocket with exactly one reader and one writer. The
// writer drains send; everything else queues through TrySend.
type Peer struct {
	ID         string
	Role       Role
	SessionID  string // page agents
	InstanceID string // peer bridges

	conn *websocket.Conn
	send chan []byte
	log  *slog.Logger

	// Liveness periods, defaulted from the package constants. Kept on the
	// peer so tests can shrink them.
	pingEvery    time.Duration
	readIdle     time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}

	mu          sync.Mutex
	remoteAddr  string
	userAgent   string
	connectedAt time.Time
	lastSeen    time.Time
	currentURL  string
	pageTitle   string
}

func newPeer(conn *websocket.Conn, remoteAddr, userAgent string, log *slog.Logger) *Peer {
	now := time.Now()
	return &Peer{
		ID:           ulid.Make().String(),
		conn:         conn,
		send:         make(chan []byte, sendQueueSize),
		log:          log,
		pingEvery:    pingPeriod,
		readIdle:     pongWait,
		writeTimeout: writeWait,
		done:         make(chan struct{}),
		remoteAddr:   remoteAddr,
		userAgent:    userAgent,
		connectedAt:  now,
		lastSeen:     now,
	}
}

// writeLoop owns all writes to the socket. It exits when the peer closes or
// a write fails.
func (p *Peer) writeLoop() {
	ticker := time.NewTicker(p.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case msg := <-p.send:
			if err := p.write(msg); err != nil {
				p.log.Debug("ws write failed", "peer", p.ID, "err", err)
				p.Close()
				return
			}
		case <-ticker.C:
			if err := p.write(pingFrame); err != nil {
				p.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *Peer) write(msg []byte) error {
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	return p.conn.WriteMessage(websocket.TextMessage, msg)
}

// readLoop feeds inbound frames to handle until the socket dies. The read
// deadline doubles as liveness: any traffic, control pong included,
// refreshes it.
func (p *Peer) readLoop(handle func(raw []byte)) {
	_ = p.conn.SetReadDeadline(time.Now().Add(p.readIdle))
	p.conn.SetPongHandler(func(string) error {
		p.Touch("", "")
		return p.conn.SetReadDeadline(time.Now().Add(p.readIdle))
	})
	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(p.readIdle))
		p.Touch("", "")
		handle(raw)
	}
}

// TrySend queues a frame without blocking. A full queue means the socket
// writer has stalled; the caller turns that into a back-pressure failure.
func (p *Peer) TrySend(msg []byte) error {
	select {
	case <-p.done:
		return fmt.Errorf("%w: %s", ErrPeerGone, p.Role)
	default:
	}
	select {
	case p.send <- msg:
		return nil
	default:
		return fmt.Errorf("%w: outbound queue full for %s", ErrBackPressure, p.Role)
	}
}

// Close tears the socket down. Safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// CloseGracefully sends a close frame before tearing down, used when a
// replacement peer takes over this peer's slot.
func (p *Peer) CloseGracefully(reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(p.writeTimeout))
	p.Close()
}

// Touch refreshes lastSeen and, when provided, the page metadata reported
// by health checks.
func (p *Peer) Touch(url, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen = time.Now()
	if url != "" {
		p.currentURL = url
	}
	if title != "" {
		p.pageTitle = title
	}
}

// LastSeen returns the time of the last inbound traffic.
func (p *Peer) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// PeerInfo is the diagnostics snapshot of one peer.
type PeerInfo struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	SessionID   string    `json:"session_id,omitempty"`
	InstanceID  string    `json:"instance_id,omitempty"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	CurrentURL  string    `json:"current_url,omitempty"`
	PageTitle   string    `json:"page_title,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

func (p *Peer) Info() PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerInfo{
		ID:          p.ID,
		Role:        p.Role,
		SessionID:   p.SessionID,
		InstanceID:  p.InstanceID,
		RemoteAddr:  p.remoteAddr,
		UserAgent:   p.userAgent,
		CurrentURL:  p.currentURL,
		PageTitle:   p.pageTitle,
		ConnectedAt: p.connectedAt,
		LastSeen:    p.lastSeen,
	}
}
