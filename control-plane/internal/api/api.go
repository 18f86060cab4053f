// Package api provides the coordination service's read-only HTTP API.
//
// # Endpoints
//
// Open:
//   - GET /api/v1/health - Process and dependency health
//   - GET /metrics - Prometheus metrics
//
// Token protected when a token hash is configured:
//   - GET /api/v1/topology - Current topology view, including pending migrations
//   - GET /api/v1/window - Controllers reported and awaited in the current window
//   - GET /api/v1/migrations?limit=N - Migration history (requires the history store)
//   - GET /api/v1/controllers/{id}/snapshots?limit=N - Snapshot history (requires the history store)
//
// Nothing in the API changes coordination state.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pilot-net/sdn-balance/control-plane/internal/config"
	"github.com/pilot-net/sdn-balance/control-plane/internal/metrics"
	"github.com/pilot-net/sdn-balance/control-plane/internal/service"
	"github.com/pilot-net/sdn-balance/pkg/types"
)

// Coordinator is the live state the API exports.
type Coordinator interface {
	Topology() types.TopologyView
	Window() service.WindowStatus
}

// History is the optional history store.
type History interface {
	ListMigrations(ctx context.Context, limit int) ([]types.MigrationRecord, error)
	ListSnapshots(ctx context.Context, controller types.ControllerID, limit int) ([]types.MetricSnapshot, error)
}

// TopologyCache is the optional shared topology cache.
type TopologyCache interface {
	LoadTopology(ctx context.Context) (types.TopologyView, bool, error)
}

// HealthSource reports process health.
type HealthSource interface {
	Health(ctx context.Context) metrics.Health
}

// Options holds the server's optional collaborators.
type Options struct {
	History   History
	Cache     TopologyCache
	Health    HealthSource
	Metrics   http.Handler
	TokenHash string
	Version   string
}

// Server is the HTTP API server.
type Server struct {
	coord  Coordinator
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates a new API server.
func NewServer(coord Coordinator, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		coord:  coord,
		opts:   opts,
		logger: logger.With("component", "api"),
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start))
}

func (s *Server) registerRoutes() {
	auth := TokenAuthMiddleware(TokenAuthConfig{
		TokenHash: s.opts.TokenHash,
		Logger:    s.logger,
	})

	// Open
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}

	// Coordination state
	s.mux.HandleFunc("GET /api/v1/topology", wrapHandler(s.handleTopology, auth))
	s.mux.HandleFunc("GET /api/v1/window", wrapHandler(s.handleWindow, auth))

	// History
	s.mux.HandleFunc("GET /api/v1/migrations", wrapHandler(s.handleListMigrations, auth))
	s.mux.HandleFunc("GET /api/v1/controllers/{id}/snapshots", wrapHandler(s.handleListSnapshots, auth))
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": s.opts.Version,
	}
	if s.opts.Health != nil {
		h := s.opts.Health.Health(r.Context())
		resp["status"] = h.Status
		resp["process"] = h.Process
		resp["dependencies"] = h.Dependencies
		if len(h.Stats) > 0 {
			resp["stats"] = h.Stats
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if s.opts.Cache != nil {
		view, ok, err := s.opts.Cache.LoadTopology(r.Context())
		if err != nil {
			s.logger.Warn("topology cache read failed, serving live view", "error", err)
		}
		if ok {
			w.Header().Set("X-Cache", "HIT")
			s.writeJSON(w, http.StatusOK, view)
			return
		}
	}

	w.Header().Set("X-Cache", "MISS")
	s.writeJSON(w, http.StatusOK, s.coord.Topology())
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coord.Window())
}

func (s *Server) handleListMigrations(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	history, err := s.opts.History.ListMigrations(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list migrations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list migrations")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"migrations": history,
		"count":      len(history),
	})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	id := types.ControllerID(r.PathValue("id"))
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	snaps, err := s.opts.History.ListSnapshots(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to list snapshots", "controller", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"controller_id": id,
		"snapshots":     snaps,
		"count":         len(snaps),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// parseLimit reads ?limit=, defaulting and capping it. It writes a 400 and
// reports false for a malformed value.
func (s *Server) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := config.DefaultPaginationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, false
		}
		limit = n
	}
	if limit > config.MaxPaginationLimit {
		limit = config.MaxPaginationLimit
	}
	return limit, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
