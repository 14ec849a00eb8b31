// Package server exposes the agent's telemetry console over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/server/handler"
	"github.com/vaultpilot/vaultpilot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Logs   *handler.LogsHandler
	State  *handler.StateHandler
}

// Server is the read-only telemetry API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (auth, logging, CORS) applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check bypasses nothing; it sits behind the same chain so probes
	// exercise the full stack.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/logs", handlers.Logs.ListLogs)
	mux.HandleFunc("GET /api/state", handlers.State.GetState)
	mux.HandleFunc("GET /api/actions", handlers.State.ListActions)

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start blocks serving HTTP until an error or shutdown.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
