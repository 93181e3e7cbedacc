// Package api provides the HTTP handlers for the enrichment service:
// content generation, validation, simulation, and observability reads.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	enrich "github.com/vitalyst/enrich"
	"github.com/vitalyst/enrich/pkg/types"
)

// Handler serves the enrichment HTTP API.
type Handler struct {
	svc    *enrich.Service
	logger *slog.Logger
}

// NewHandler creates an API handler around the service.
func NewHandler(svc *enrich.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// generateOptions is the wire form of types.GenerateOptions.
type generateOptions struct {
	Priority   string `json:"priority,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
	Language   string `json:"language,omitempty"`
	Variant    string `json:"variant,omitempty"`
	Version    string `json:"version,omitempty"`
}

func (o *generateOptions) toOptions() *types.GenerateOptions {
	if o == nil {
		return nil
	}
	return &types.GenerateOptions{
		Priority:   types.Priority(o.Priority),
		MaxRetries: o.MaxRetries,
		Timeout:    time.Duration(o.TimeoutMs) * time.Millisecond,
		Language:   o.Language,
		Variant:    types.Variant(o.Variant),
		Version:    o.Version,
	}
}

type generateRequest struct {
	EntityType types.EntityType `json:"entity_type"`
	Context    json.RawMessage  `json:"context"`
	Options    *generateOptions `json:"options,omitempty"`
}

// decodeContext picks the concrete context type for the entity.
func decodeContext(entity types.EntityType, raw json.RawMessage) (types.EntityContext, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("context is required")
	}
	var (
		ectx types.EntityContext
		err  error
	)
	switch entity {
	case types.EntityNutrient:
		var c types.NutrientContext
		err = json.Unmarshal(raw, &c)
		ectx = c
	case types.EntityFood:
		var c types.FoodContext
		err = json.Unmarshal(raw, &c)
		ectx = c
	case types.EntityContent:
		var c types.ContentContext
		err = json.Unmarshal(raw, &c)
		ectx = c
	default:
		return nil, fmt.Errorf("unknown entity type %q", entity)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid context: %w", err)
	}
	if err := ectx.Validate(); err != nil {
		return nil, err
	}
	return ectx, nil
}

// Generate handles POST /v1/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	defer r.Body.Close()

	ectx, err := decodeContext(req.EntityType, req.Context)
	if err != nil {
		h.writeBadRequest(w, err.Error())
		return
	}

	result, err := h.svc.Generate(r.Context(), ectx, req.Options.toOptions())
	if err != nil {
		h.logger.Error("generation failed",
			"entity_type", string(req.EntityType),
			"error", err,
		)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type validateRequest struct {
	EntityType types.EntityType `json:"entity_type"`
	Content    map[string]any   `json:"content"`
	Version    string           `json:"version,omitempty"`
}

// Validate handles POST /v1/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	defer r.Body.Close()

	if req.Content == nil {
		h.writeBadRequest(w, "content is required")
		return
	}

	result, err := h.svc.Validate(req.EntityType, req.Content, req.Version)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type simulateRequest struct {
	EntityType types.EntityType `json:"entity_type"`
	Options    *generateOptions `json:"options,omitempty"`
}

// Simulate handles POST /v1/simulate.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	defer r.Body.Close()

	result, err := h.svc.Simulate(req.EntityType, req.Options.toOptions())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Metrics handles GET /v1/metrics with the service-level snapshot.
// Prometheus exposition lives on its own endpoint.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Metrics())
}

const defaultAuditLimit = 50

// Audit handles GET /v1/audit, newest events first.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeBadRequest(w, "invalid limit: "+raw)
			return
		}
		limit = n
	}

	events, err := h.svc.Audit().Recent(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
