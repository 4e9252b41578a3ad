// Package server exposes the gateway over HTTP: the pipeline endpoints
// (/gateway and /mcp/gateway), the health probe and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aryannovice/metamorphosis/common/trace"
	"github.com/Aryannovice/metamorphosis/internal/gateway/memory"
	"github.com/Aryannovice/metamorphosis/internal/gateway/metrics"
	"github.com/Aryannovice/metamorphosis/internal/gateway/observability"
	"github.com/Aryannovice/metamorphosis/internal/gateway/pipeline"
	"github.com/Aryannovice/metamorphosis/internal/gateway/provider"
	"github.com/Aryannovice/metamorphosis/internal/gateway/ratelimit"
)

const maxBodyBytes = 1 << 20 // request bodies above 1 MiB are rejected

// HealthSource is the slice of the DataHaven client the health probe needs.
type HealthSource interface {
	IsAvailable(ctx context.Context) bool
}

// Deps bundles the server's collaborators.
type Deps struct {
	Logger    *slog.Logger
	Pipeline  *pipeline.Pipeline
	Limiter   *ratelimit.Limiter
	Memory    memory.Store
	DataHaven HealthSource
	Registry  *provider.Registry
	Metrics   *metrics.Metrics

	// Gatherer backs GET /metrics. Defaults to the prometheus default
	// gatherer when nil.
	Gatherer prometheus.Gatherer
}

// Server is the gateway's HTTP surface.
type Server struct {
	deps Deps
}

// New returns a Server. Logger defaults to slog.Default.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{deps: deps}
}

// Router builds the HTTP route table with CORS and rate-limit middleware
// applied.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(s.rateLimitMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/gateway", s.handleGateway).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/mcp/gateway", s.handleMCPGateway).Methods(http.MethodPost, http.MethodOptions)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status             string   `json:"status"`
	MemoryEntries      int      `json:"memory_entries"`
	DataHavenAvailable bool     `json:"datahaven_available"`
	ProvidersAvailable []string `json:"providers_available"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := s.deps.Memory.Count(ctx)
	if err != nil {
		s.deps.Logger.Warn("health: memory count failed", "err", err)
		entries = 0
	}
	providers := s.deps.Registry.ListAvailable(ctx)
	if providers == nil {
		providers = []string{}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:             "ok",
		MemoryEntries:      entries,
		DataHavenAvailable: s.deps.DataHaven.IsAvailable(ctx),
		ProvidersAvailable: providers,
	})
}

func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	o, ok := s.runPipeline(w, r, "/gateway")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.GatewayResponse())
}

func (s *Server) handleMCPGateway(w http.ResponseWriter, r *http.Request) {
	o, ok := s.runPipeline(w, r, "/mcp/gateway")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.MCPResponse())
}

// runPipeline decodes and validates the request body, then runs the
// pipeline. A false return means the error response has been written.
func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request, endpoint string) (*pipeline.Outcome, bool) {
	var req pipeline.Request
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if err := req.Validate(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}

	requestID := trace.NewRequestID()
	ctx := trace.WithRequestID(r.Context(), requestID)
	userID := r.Header.Get("X-User-ID")

	o := s.deps.Pipeline.Run(ctx, req, requestID, userID)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RequestsTotal.WithLabelValues(endpoint, o.Route).Inc()
	}
	observability.WithRequest(ctx).Info("request handled",
		"endpoint", endpoint, "route", o.Route, "provider", o.Provider)
	return o, true
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("response write failed", "err", err)
	}
}

// writeDetail writes the {"detail": ...} error envelope clients expect.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
