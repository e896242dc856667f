// Package api provides the HTTP handlers for the explanation engine.
package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	tutormux "github.com/blueberrycongee/tutormux"
	"github.com/blueberrycongee/tutormux/pkg/errors"
)

// DefaultMaxBodySize bounds request bodies. Queries are capped at 500
// characters, so anything near this limit is garbage.
const DefaultMaxBodySize = 64 * 1024

// WhitelistReloader re-reads the simulation whitelist from its source.
type WhitelistReloader interface {
	Reload() error
}

// Handler serves the engine over HTTP.
type Handler struct {
	engine      *tutormux.Engine
	whitelist   WhitelistReloader
	logger      *slog.Logger
	maxBodySize int64
}

// HandlerConfig contains configuration for Handler.
type HandlerConfig struct {
	MaxBodySize int64             // Maximum request body size in bytes
	Whitelist   WhitelistReloader // Enables POST /admin/whitelist/reload (optional)
}

// NewHandler creates a handler over an engine.
func NewHandler(engine *tutormux.Engine, logger *slog.Logger, cfg *HandlerConfig) *Handler {
	maxBodySize := int64(DefaultMaxBodySize)
	var whitelist WhitelistReloader
	if cfg != nil {
		if cfg.MaxBodySize > 0 {
			maxBodySize = cfg.MaxBodySize
		}
		whitelist = cfg.Whitelist
	}

	return &Handler{
		engine:      engine,
		whitelist:   whitelist,
		logger:      logger,
		maxBodySize: maxBodySize,
	}
}

// ExplainRequest is the caller's query envelope.
type ExplainRequest struct {
	Query string `json:"query"`
}

// ExplainResponse is the flattened success payload.
type ExplainResponse struct {
	Explanation          string    `json:"explanation"`
	ConceptTags          []string  `json:"concept_tags"`
	SimulationIdentifier string    `json:"simulation_identifier"`
	SimulationURL        *string   `json:"simulation_url"`
	GuidedSteps          []string  `json:"guided_steps"`
	ConfidenceLevel      string    `json:"confidence_level"`
	SimulationSource     string    `json:"simulation_source"`
	Cached               bool      `json:"cached"`
	Timestamp            time.Time `json:"timestamp"`
}

// Explain handles POST /v1/explain requests.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
	if err != nil {
		writeError(w, errors.NewInvalidInputError("failed to read request body"))
		return
	}
	defer func() { _ = r.Body.Close() }()

	if int64(len(body)) > h.maxBodySize {
		writeError(w, errors.NewInvalidInputError("request body too large"))
		return
	}

	var req ExplainRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.NewInvalidInputError("invalid JSON: "+err.Error()))
		return
	}

	answer, err := h.engine.Explain(r.Context(), req.Query)
	if err != nil {
		h.logger.Error("explain request failed", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, responseFrom(answer))
}

// CacheStats handles GET /v1/cache/stats requests.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.logger.Error("cache stats failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Healthz handles GET /healthz requests. Healthy means the durable tier is
// reachable; the engine keeps serving through an outage either way.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil || !stats.DurableHealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReloadWhitelist handles POST /admin/whitelist/reload requests.
func (h *Handler) ReloadWhitelist(w http.ResponseWriter, r *http.Request) {
	if h.whitelist == nil {
		writeError(w, errors.NewInternalError("whitelist reload is not configured"))
		return
	}

	if err := h.whitelist.Reload(); err != nil {
		h.logger.Error("whitelist reload failed", "error", err)
		writeError(w, errors.NewInternalError("whitelist reload failed: "+err.Error()))
		return
	}

	h.logger.Info("whitelist reloaded via admin endpoint")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/explain", h.Explain)
	mux.HandleFunc("GET /v1/cache/stats", h.CacheStats)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("POST /admin/whitelist/reload", h.ReloadWhitelist)
}

func responseFrom(answer *tutormux.Answer) ExplainResponse {
	var url *string
	if answer.Simulation.URL != "" {
		u := answer.Simulation.URL
		url = &u
	}

	return ExplainResponse{
		Explanation:          answer.Response.Explanation,
		ConceptTags:          answer.Response.ConceptTags,
		SimulationIdentifier: answer.Simulation.Identifier,
		SimulationURL:        url,
		GuidedSteps:          answer.Response.GuidedSteps,
		ConfidenceLevel:      string(answer.Response.ConfidenceLevel),
		SimulationSource:     string(answer.Simulation.Source),
		Cached:               answer.Cached,
		Timestamp:            answer.Timestamp,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
