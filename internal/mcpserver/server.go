// Package mcpserver is the driver-facing front end: an MCP server over SSE
// whose tools drive the browser through the dispatch fabric. Each SSE stream
// is one driver; its mcp-go session id is the transport id bound to at most
// one automation session.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/adityalohuni/browser-bridge/internal/controller"
	"github.com/adityalohuni/browser-bridge/internal/metrics"
	"github.com/adityalohuni/browser-bridge/internal/protocol"
	"github.com/adityalohuni/browser-bridge/internal/session"
	"github.com/adityalohuni/browser-bridge/internal/wsbridge"
)

const (
	serverName    = "browser-bridge"
	serverVersion = "1.1.0"

	// DefaultGracePeriod is how long an orphaned automation session survives
	// its driver before the bridge closes the window.
	DefaultGracePeriod = 60 * time.Second
)

// Fabric is the slice of the dispatch fabric the tool surface uses.
// *wsbridge.Bridge implements it.
type Fabric interface {
	SendToAgent(ctx context.Context, sessionID, opType string, data json.RawMessage) (protocol.Frame, error)
	CancelSessionPendings(sessionID string, cause error) int
	Role() wsbridge.BridgeRole
	ControllerConnected() bool
}

type Options struct {
	Log        *slog.Logger
	Fabric     Fabric
	Controller *controller.Client
	Registry   *session.Registry
	Store      *session.Store
	Metrics    *metrics.Metrics

	// GracePeriod overrides DefaultGracePeriod.
	GracePeriod time.Duration
	// BaseURL is the externally visible address advertised in the SSE
	// endpoint event, e.g. "http://localhost:8080".
	BaseURL string
}

// Server owns the MCP core, the SSE transport, and the driver lifecycle
// (register, unregister, orphaned-session cleanup).
type Server struct {
	log        *slog.Logger
	fabric     Fabric
	controller *controller.Client
	registry   *session.Registry
	store      *session.Store
	metrics    *metrics.Metrics
	grace      time.Duration

	mcp *server.MCPServer
	sse *server.SSEServer

	mu          sync.Mutex
	graceTimers map[string]*time.Timer
}

func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	grace := opts.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	s := &Server{
		log:         log.With("component", "mcpserver"),
		fabric:      opts.Fabric,
		controller:  opts.Controller,
		registry:    opts.Registry,
		store:       opts.Store,
		metrics:     opts.Metrics,
		grace:       grace,
		graceTimers: make(map[string]*time.Timer),
	}

	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(_ context.Context, cs server.ClientSession) {
		if err := s.registry.Register(cs.SessionID(), session.DriverInfo{}); err != nil {
			s.log.Warn("driver registration failed", "transport_id", cs.SessionID(), "err", err)
			return
		}
		s.log.Info("driver connected", "transport_id", cs.SessionID())
	})
	hooks.AddOnUnregisterSession(func(_ context.Context, cs server.ClientSession) {
		s.onDriverGone(cs.SessionID())
	})

	s.mcp = server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
		server.WithRecovery(),
	)
	s.registerTools()

	sseOpts := []server.SSEOption{
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/messages"),
	}
	if opts.BaseURL != "" {
		sseOpts = append(sseOpts, server.WithBaseURL(opts.BaseURL))
	}
	s.sse = server.NewSSEServer(s.mcp, sseOpts...)
	return s
}

// SSEHandler serves GET /sse, one stream per driver.
func (s *Server) SSEHandler() http.Handler { return s.sse.SSEHandler() }

// MessageHandler serves POST /messages?sessionId=. The transport rejects a
// missing id with 400 and an unknown one with 404 before the JSON-RPC call
// runs.
func (s *Server) MessageHandler() http.Handler { return s.sse.MessageHandler() }

// NotifyDriver pushes an asynchronous event (dialogs, lifecycle) onto one
// driver's SSE stream. Implements the fabric's DriverNotifier.
func (s *Server) NotifyDriver(transportID, method string, params map[string]any) {
	if err := s.mcp.SendNotificationToSpecificClient(transportID, method, params); err != nil {
		s.log.Debug("driver notification dropped", "transport_id", transportID, "method", method, "err", err)
	}
}

// Close stops the orphan-cleanup timers. Live SSE streams are owned by the
// HTTP server and die with it.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, t := range s.graceTimers {
		t.Stop()
		delete(s.graceTimers, sid)
	}
}
