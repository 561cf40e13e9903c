// bridged is the bridge daemon: it runs the WebSocket dispatch fabric, the
// MCP front end over SSE, and the HTTP diagnostics surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adityalohuni/browser-bridge/internal/config"
	"github.com/adityalohuni/browser-bridge/internal/controller"
	"github.com/adityalohuni/browser-bridge/internal/diag"
	"github.com/adityalohuni/browser-bridge/internal/httpx"
	"github.com/adityalohuni/browser-bridge/internal/mcpserver"
	"github.com/adityalohuni/browser-bridge/internal/metrics"
	"github.com/adityalohuni/browser-bridge/internal/session"
	"github.com/adityalohuni/browser-bridge/internal/wsbridge"
)

func main() {
	var (
		configPath string
		httpAddr   string
		wsAddr     string
	)

	root := &cobra.Command{
		Use:          "bridged",
		Short:        "Browser automation bridge daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.LoadOrCreate(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("http-addr") {
				settings.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("ws-addr") {
				settings.WSAddr = wsAddr
			}
			return run(settings)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "config file path (default ~/.config/browser-bridge/config.toml)")
	root.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address for the MCP and diagnostics surface")
	root.Flags().StringVar(&wsAddr, "ws-addr", "", "WebSocket listen address for the dispatch fabric")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(settings config.Settings) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)
	log.Info("config loaded", "path", settings.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := session.NewRegistry()
	store := session.NewStore()

	// The snapshot closure reads the bridge, which is built right after.
	var bridge *wsbridge.Bridge
	m := metrics.New(func() metrics.Snapshot {
		if bridge == nil {
			return metrics.Snapshot{}
		}
		counts := bridge.PeerCounts()
		stats := bridge.PendingStats()
		return metrics.Snapshot{
			Role:                string(bridge.Role()),
			ControllerConnected: counts.Controller,
			PageAgents:          counts.PageAgents,
			PeerBridges:         counts.PeerBridges,
			Drivers:             registry.DriverCount(),
			Sessions:            store.Count(),
			PendingDepth:        bridge.PendingDepth(),
			RequestsIssued:      stats.Issued,
			RequestsResolved:    stats.Resolved,
			RequestsRejected:    stats.Rejected,
			RequestsEvicted:     stats.Evicted,
			RequestsStale:       stats.Stale,
			StartedAt:           bridge.StartedAt(),
		}
	})

	bridge = wsbridge.New(wsbridge.Options{
		Log:    log,
		Owners: registry,
		Mirror: store,
		Frames: m,
	})

	role, err := bridge.Start(ctx, settings.WSAddr)
	if err != nil {
		return fmt.Errorf("start dispatch fabric: %w", err)
	}
	log.Info("dispatch fabric up", "role", role, "ws_addr", settings.WSAddr, "instance_id", bridge.InstanceID())

	server := mcpserver.New(mcpserver.Options{
		Log:         log,
		Fabric:      bridge,
		Controller:  controller.NewClient(bridge, controller.Options{}),
		Registry:    registry,
		Store:       store,
		Metrics:     m,
		GracePeriod: settings.SessionGrace,
		BaseURL:     settings.TUIBaseURL,
	})
	defer server.Close()
	bridge.SetNotifier(server)

	diagHandlers := &diag.Handlers{Bridge: bridge, Registry: registry, Store: store}

	mux := http.NewServeMux()
	mux.Handle("/sse", server.SSEHandler())
	mux.Handle("/messages", server.MessageHandler())
	mux.Handle("/metrics", m.Handler())
	diagHandlers.Register(mux, settings.DebugToken)

	httpServer := &http.Server{
		Addr:    settings.HTTPAddr,
		Handler: httpx.CORS(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		// Unlike the WebSocket port, a taken HTTP port has no fallback role.
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	bridge.Shutdown(shutdownCtx)
	log.Info("shut down")
	return nil
}
