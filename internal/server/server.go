// Package server is the operator-facing HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"blocktrader/internal/server/handler"
	"blocktrader/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port   int
	APIKey string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Ladders  *handler.LadderHandler
	CloseOut *handler.CloseOutHandler
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required by callers that probe liveness, but the
	// auth middleware already passes it through when no key is set).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Ladder lifecycle.
	mux.HandleFunc("POST /api/ladders", handlers.Ladders.CreateLadder)
	mux.HandleFunc("GET /api/ladders/{user}/{symbol}", handlers.Ladders.GetLadder)
	mux.HandleFunc("PUT /api/ladders/{user}/{symbol}", handlers.Ladders.UpdateLadder)
	mux.HandleFunc("DELETE /api/ladders/{user}/{symbol}", handlers.Ladders.DeleteLadder)
	mux.HandleFunc("GET /api/ladders/{user}/{symbol}/blocks", handlers.Ladders.ListBlocks)
	mux.HandleFunc("GET /api/ladders/{user}/{symbol}/stats", handlers.Ladders.GetStats)

	// Close-out trigger.
	mux.HandleFunc("POST /api/ladders/{user}/{symbol}/close", handlers.CloseOut.CloseOut)

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // close-out requests block on cancel confirmation
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start begins listening for HTTP requests. Blocks until the server fails or
// is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	return s.httpServer.Shutdown(ctx)
}
