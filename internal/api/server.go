package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/elabx-org/hashivault/internal/audit"
	"github.com/elabx-org/hashivault/internal/config"
	"github.com/elabx-org/hashivault/internal/metrics"
	"github.com/elabx-org/hashivault/internal/task"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const healthCacheTTL = 60 * time.Second

// maxBodyBytes bounds a write-file request: a 24 MiB payload plus base64
// overhead and the JSON envelope.
const maxBodyBytes = 34 << 20

type Server struct {
	cfg     *config.Config
	router  *chi.Mux
	runner  *task.Runner
	auditor *audit.Logger
	metrics *metrics.Metrics
	index   *Index

	healthMu        sync.RWMutex
	healthCached    *VaultStatus
	healthCheckedAt time.Time
}

// NewServer builds the gateway. A nil runner gets one that reads only the
// non-credential part of the process environment.
func NewServer(cfg *config.Config, runner *task.Runner) *Server {
	if runner == nil {
		runner = task.NewRunner()
		runner.Env = config.WithoutCredentials(config.OSEnv())
	}
	s := &Server{
		cfg:    cfg,
		runner: runner,
		index:  NewIndex(),
	}
	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.mountRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

// Index returns the inventory index, for wiring persistence at startup.
func (s *Server) Index() *Index {
	return s.index
}

// SetAuditor records every write-file call in a and serves it on /v1/audit.
func (s *Server) SetAuditor(a *audit.Logger) {
	s.auditor = a
	s.runner.Audit = a
}

// SetMetrics records write-file calls in m and serves it on /metrics.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
	s.runner.Metrics = m
}

func (s *Server) mountRoutes() {
	// Public (no auth)
	s.router.Get("/v1/health", s.handleHealth)
	s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	// Protected routes (bearer token required when APIToken is set)
	s.router.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Post("/v1/write-file", s.handleWriteFile)
		r.Get("/v1/audit", s.handleAudit)
		r.Get("/v1/inventory", s.handleInventory)
		r.Delete("/v1/inventory", s.handleInventoryDelete)
	})
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("hashivaultd listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
