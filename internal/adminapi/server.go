// Package adminapi exposes the operational HTTP surface of a vaultaire
// node: health/readiness probes, a Prometheus scrape endpoint, cluster
// status, and leader-gated maintenance operations. It never speaks the S3
// wire protocol.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/metrics"
	"github.com/FairForge/vaultaire/internal/pipeline"
)

// ClusterStatus reports the local node's view of Raft consensus. It is
// satisfied by *raftstate.Node without adminapi importing raftstate
// directly, so handlers can be tested against a fake.
type ClusterStatus interface {
	IsLeader() bool
	LeaderAddr() string
	AppliedIndex() uint64
}

// Pinger is satisfied by the catalog, used for the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GCRunner is satisfied by *pipeline.Pipeline, invoked by the leader-gated
// /admin/gc route.
type GCRunner interface {
	GC(ctx context.Context, dryRun bool) (pipeline.GCResult, error)
}

// Server is the admin/ops HTTP surface, separate from any S3-compatible
// request handling.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	logger     *zap.Logger
	metrics    *metrics.Registry
	cluster    ClusterStatus
	pinger     Pinger
	gc         GCRunner
	startTime  time.Time
}

// SetGCRunner wires the /admin/gc route to a real pipeline after
// construction, mirroring internal/pipeline's own SetAudit/SetMetrics
// pattern so callers don't have to pass every dependency into NewServer.
func (s *Server) SetGCRunner(r GCRunner) { s.gc = r }

// NewServer builds the admin router and binds it to addr.
func NewServer(addr string, reg *metrics.Registry, cluster ClusterStatus, pinger Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger,
		metrics:   reg,
		cluster:   cluster,
		pinger:    pinger,
		startTime: time.Now(),
	}

	s.router.Use(s.loggingMiddleware)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/health/ready", s.handleReady)
	s.router.Get("/status", s.handleStatus)
	if s.metrics != nil {
		s.router.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(s.requireLeader)
		r.Post("/gc", s.handleTriggerGC)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}
	if s.cluster != nil {
		resp["is_leader"] = s.cluster.IsLeader()
		resp["leader_addr"] = s.cluster.LeaderAddr()
		resp["applied_index"] = s.cluster.AppliedIndex()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleTriggerGC(w http.ResponseWriter, r *http.Request) {
	if s.gc == nil {
		http.Error(w, "gc not configured", http.StatusServiceUnavailable)
		return
	}
	dryRun := r.URL.Query().Get("dry_run") == "true"

	res, err := s.gc.GC(r.Context(), dryRun)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// requireLeader rejects maintenance requests on a non-leader node, pointing
// the caller at the current leader when known.
func (s *Server) requireLeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cluster == nil || s.cluster.IsLeader() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-Raft-Leader", s.cluster.LeaderAddr())
		http.Error(w, fmt.Sprintf("not leader, current leader: %s", s.cluster.LeaderAddr()), http.StatusTemporaryRedirect)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("admin request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// Router exposes the underlying chi.Router so callers can mount additional
// routes before Start.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start serves the admin API until the process exits or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting admin api", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin API.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
