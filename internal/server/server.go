// Package server serves the chat panel's view channel over WebSocket, one
// session per connection.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/codechat/internal/metrics"
	"github.com/raphaelgruber/codechat/internal/render"
	"github.com/raphaelgruber/codechat/internal/session"
	"github.com/raphaelgruber/codechat/internal/tokenizer"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

//go:embed panel.html
var panelHTML []byte

// Dependencies holds the services shared by every connection.
type Dependencies struct {
	Streamer session.Streamer
	Counter  tokenizer.Counter
	Settings session.SettingsSource
	Usage    session.UsageRecorder // optional
	Metrics  *metrics.Collector
	Logger   *slog.Logger
	Style    render.Style
}

// Server is the view-channel HTTP server.
type Server struct {
	deps     Dependencies
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a server with the given dependencies.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	return &Server{
		deps:   deps,
		logger: deps.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the panel is served from an editor webview origin
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the HTTP handler with all routes and logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", s.handleWS)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.deps.Metrics.Snapshot()); err != nil {
			s.logger.Warn("failed to encode stats", "error", err)
		}
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(panelHTML)
	})

	return LoggingMiddleware(s.logger)(mux)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("panel available", "url", fmt.Sprintf("http://%s/", ln.Addr()))
		s.logger.Info("view channel available", "url", fmt.Sprintf("ws://%s/ws", ln.Addr()))
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
