package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mvarner/replog/internal/serverdb"
	"github.com/mvarner/replog/internal/webhook"
)

// Server is the HTTP API server for replog-server.
type Server struct {
	config   Config
	http     *http.Server
	store    *serverdb.ServerDB
	metrics  *Metrics
	rebuilds *rebuildWorker
	hooks    *webhook.Notifier
	cancel   context.CancelFunc
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	s := &Server{
		config:  cfg,
		store:   store,
		metrics: NewMetrics(),
	}
	s.rebuilds = newRebuildWorker(store, s.metrics, cfg.RebuildDebounce)
	s.hooks = webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret, slog.Default())

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	// Service background projection rebuilds requested by ingests.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.rebuilds.run(ctx)

	return nil
}

// Shutdown gracefully stops the server, its background rebuild worker and
// any in-flight webhook dispatches.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.http.Shutdown(ctx)
	s.hooks.Close()
	return err
}

// Handler exposes the configured HTTP handler so callers can serve the
// API without binding a listener through Start.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Identity. Anonymous provisioning is public: a fresh client has no
	// credentials yet.
	mux.HandleFunc("POST /api/v1/users/anonymous", s.handleCreateAnonymousUser)
	mux.HandleFunc("GET /api/v1/users/me", s.requireAuth(s.handleMe))
	mux.HandleFunc("POST /api/v1/users/merge", s.requireAuth(s.handleMergeUsers))

	// Sync
	mux.HandleFunc("POST /api/v1/sync", s.requireAuth(s.handleSync))
	mux.HandleFunc("GET /api/v1/sync/status", s.requireAuth(s.handleSyncStatus))

	// Projections
	mux.HandleFunc("POST /api/v1/projections/rebuild", s.requireAuth(s.handleRebuildProjections))

	// Reads
	mux.HandleFunc("GET /api/v1/workouts", s.requireAuth(s.handleListWorkouts))
	mux.HandleFunc("GET /api/v1/workouts/{id}/sets", s.requireAuth(s.handleListWorkoutSets))
	mux.HandleFunc("GET /api/v1/metrics/weekly", s.requireAuth(s.handleWeeklyMetrics))
	mux.HandleFunc("GET /api/v1/exercises", s.handleListExercises)

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, maxBytesMiddleware(10<<20))
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
