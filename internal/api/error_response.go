package api

import (
	"context"
	stderrors "errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/vitalyst/enrich/pkg/errors"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes the error payload.
type ErrorDetail struct {
	Message   string   `json:"message"`
	Type      string   `json:"type"`
	Provider  string   `json:"provider,omitempty"`
	Attempted []string `json:"attempted,omitempty"`
}

// writeBadRequest rejects a malformed request before it reaches the
// service layer.
func (h *Handler) writeBadRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	resp := ErrorResponse{Error: ErrorDetail{Message: message, Type: "invalid_request"}}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	detail := ErrorDetail{
		Message: err.Error(),
		Type:    "internal_error",
	}
	status := http.StatusInternalServerError

	var enrichErr *errors.EnrichError
	switch {
	case stderrors.As(err, &enrichErr):
		detail = ErrorDetail{
			Message:   enrichErr.Message,
			Type:      enrichErr.Type,
			Provider:  enrichErr.Provider,
			Attempted: enrichErr.Attempted,
		}
		status = enrichErr.HTTPStatusCode()
	case stderrors.Is(err, context.Canceled):
		// Client went away; 499 in nginx convention.
		status = 499
		detail.Type = "client_closed_request"
	case stderrors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		detail.Type = "timeout"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{Error: detail}); encErr != nil {
		h.logger.Error("failed to encode error response", "error", encErr)
	}
}
