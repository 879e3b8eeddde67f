package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
)

// Poller is the slice of the scheduler the API drives.
type Poller interface {
	TriggerNow(ctx context.Context) (domain.CycleSummary, error)
	Running() bool
	LastSummary() (domain.CycleSummary, bool)
}

// SessionStatus reports the current source session.
type SessionStatus interface {
	Status(ctx context.Context) (domain.Session, error)
}

// LedgerView exposes read-only ledger statistics.
type LedgerView interface {
	Counts(ctx context.Context) (map[domain.LedgerStatus]int64, error)
	ListFailed(ctx context.Context, limit int) ([]domain.LedgerEntry, error)
}

// Deps groups the collaborators behind the management API.
type Deps struct {
	Handles  ports.HandleRegistry
	Poller   Poller
	Sessions SessionStatus
	Ledger   LedgerView
	Logger   *slog.Logger
}

// Server manages the management HTTP listener and routes.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router *http.ServeMux
	server *http.Server
}

// New creates the server bound to addr.
func New(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{deps: deps, logger: logger}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // manual polls block until the cycle ends
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/tracks", s.handleListTracks)
	mux.HandleFunc("POST /api/v1/tracks", s.handleAddTrack)
	mux.HandleFunc("DELETE /api/v1/tracks/{handle}", s.handleRemoveTrack)

	mux.HandleFunc("POST /api/v1/manual-poll", s.handleManualPoll)

	mux.HandleFunc("GET /api/v1/ledger/failed", s.handleLedgerFailed)

	return mux
}
