// Package api is the orchestrator's inbound HTTP surface: project CRUD and
// lifecycle operations (C6), the assistant proxy surface (C7), image
// resolution validation (C3), the admin log-tail websocket, and Prometheus
// metrics. Every response is JSON; errors are mapped through the internal
// error taxonomy to their HTTP status via statusFor.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/assistantproxy"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/imageresolver"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/logging"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/metrics"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator"
)

// Server bundles the HTTP surface's collaborators.
type Server struct {
	orch    *orchestrator.Orchestrator
	proxy   *assistantproxy.Proxy
	catalog imageresolver.Catalog
	log     *logging.Manager
	metrics *metrics.Metrics

	securityMu sync.RWMutex
	enableAuth bool
	jwtSecret  string
}

// Config carries the constructor arguments that aren't collaborators.
type Config struct {
	EnableAuth bool
	JWTSecret  string
}

// NewServer assembles the HTTP surface over its collaborators.
func NewServer(orch *orchestrator.Orchestrator, proxy *assistantproxy.Proxy, catalog imageresolver.Catalog, log *logging.Manager, m *metrics.Metrics, cfg Config) *Server {
	return &Server{
		orch: orch, proxy: proxy, catalog: catalog, log: log, metrics: m,
		enableAuth: cfg.EnableAuth, jwtSecret: cfg.JWTSecret,
	}
}

// UpdateSecurity swaps the auth settings live. Called from the config
// hot-reload watcher so a JWT secret rotation or an auth toggle doesn't
// require a process restart.
func (s *Server) UpdateSecurity(enableAuth bool, jwtSecret string) {
	s.securityMu.Lock()
	defer s.securityMu.Unlock()
	s.enableAuth = enableAuth
	s.jwtSecret = jwtSecret
}

func (s *Server) securitySnapshot() (bool, string) {
	s.securityMu.RLock()
	defer s.securityMu.RUnlock()
	return s.enableAuth, s.jwtSecret
}

// Handler builds the full route table wrapped in the tracing, metrics, and
// auth middleware, in that order (outermost first).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/validate/image-config", s.handleValidateImageConfig)

	mux.HandleFunc("/api/v1/projects", s.handleProjects)
	mux.HandleFunc("/api/v1/projects/", s.handleProject)
	mux.HandleFunc("/api/v1/credentials/sync", s.handleSyncCredentials)

	mux.HandleFunc("/api/v1/admin/logs/stream", s.handleLogStream)

	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.metricsMiddleware(handler)
	handler = otelhttp.NewHandler(handler, "orchestrator.http")
	return handler
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.metrics != nil {
			route := r.URL.Path
			s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, fmt.Sprintf("%d", rec.status)).Inc()
			s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleValidateImageConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		FlavorID string   `json:"flavor_id"`
		AddonIDs []string `json:"addon_ids"`
		TierID   string   `json:"tier_id"`
	}
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result := s.catalog.ValidateConfig(req.FlavorID, req.AddonIDs, req.TierID)
	s.respondJSON(w, http.StatusOK, result)
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
	w.Write([]byte("\n"))
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// parseJSON decodes a JSON request body.
func (s *Server) parseJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// extractID pulls the first path segment after prefix, e.g.
// extractID("/api/v1/projects/abc/start", "/api/v1/projects/") == "abc".
func (s *Server) extractID(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	id = strings.TrimPrefix(id, "/")
	id = strings.TrimSuffix(id, "/")
	parts := strings.SplitN(id, "/", 2)
	return parts[0]
}

// extractSubpath returns everything after the ID segment, e.g.
// extractSubpath("/api/v1/projects/abc/sessions/s1", "/api/v1/projects/") == "sessions/s1".
func (s *Server) extractSubpath(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	id = strings.TrimPrefix(id, "/")
	parts := strings.SplitN(id, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
