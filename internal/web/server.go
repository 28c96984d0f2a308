// Package web provides the read-only status server: health, queue
// inspection and Prometheus metrics. Submissions do not arrive here.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/rteval-parser/internal/config"
	"github.com/JonMunkholm/rteval-parser/internal/queue"
	"github.com/JonMunkholm/rteval-parser/internal/web/middleware"
)

// Inspector is the read side of the submission queue.
type Inspector interface {
	Get(ctx context.Context, submID int64) (*queue.Entry, error)
	Counts(ctx context.Context) (map[queue.Status]int64, error)
	Stuck(ctx context.Context, olderThan time.Duration) ([]queue.Entry, error)
}

// Pinger checks that the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP status server.
type Server struct {
	queue      Inspector
	db         Pinger
	stuckAfter time.Duration
	cfg        config.ServerConfig
	router     *chi.Mux
	server     *http.Server
}

// NewServer creates a Server. stuckAfter is the default threshold for
// /api/queue/stuck.
func NewServer(q Inspector, db Pinger, stuckAfter time.Duration, cfg config.ServerConfig) *Server {
	s := &Server{
		queue:      q,
		db:         db,
		stuckAfter: stuckAfter,
		cfg:        cfg,
		router:     chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(30 * time.Second))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/queue", func(r chi.Router) {
		r.Get("/", s.handleQueueCounts)
		r.Get("/stuck", s.handleStuckJobs)
		r.Get("/{submid}", s.handleJob)
	})
}

// Start begins listening for HTTP requests and blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("status server starting", "addr", s.cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
