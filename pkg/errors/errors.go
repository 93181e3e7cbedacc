// Package errors defines unified error types for enrichment operations.
// All provider-specific failures are mapped to these standard error types
// before they reach the orchestrator's retry and failover logic.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// EnrichError represents a standardized error from the enrichment core.
// It carries everything needed for error handling, logging, and failover
// classification.
type EnrichError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Retryable  bool   `json:"-"`

	// Attempted lists the providers tried before the error became
	// terminal. Populated by the orchestrator on surfaced errors only.
	Attempted []string `json:"attempted,omitempty"`
}

// Error implements the error interface.
func (e *EnrichError) Error() string {
	if len(e.Attempted) > 0 {
		return fmt.Sprintf("[%s] %s (provider=%s, model=%s, attempted=%v)",
			e.Type, e.Message, e.Provider, e.Model, e.Attempted)
	}
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s, code=%d)",
		e.Type, e.Message, e.Provider, e.Model, e.StatusCode)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *EnrichError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Error type constants, one per failure category.
const (
	TypeConfig              = "config_error"
	TypeRateLimitExceeded   = "rate_limit_exceeded"
	TypeProviderTimeout     = "provider_timeout"
	TypeProviderServerError = "provider_server_error"
	TypeInvalidResponse     = "invalid_response"
	TypeValidationFailed    = "validation_failed"
	TypeAuthentication      = "authentication_error"
	TypeNoAvailableProvider = "no_available_provider"
)

// NewConfigError creates a configuration error. Fatal at startup.
func NewConfigError(message string) *EnrichError {
	return &EnrichError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeConfig,
		Retryable:  false,
	}
}

// NewRateLimitError creates a rate limit error (429). Retryable; the
// orchestrator should switch providers rather than wait.
func NewRateLimitError(provider, model, message string) *EnrichError {
	return &EnrichError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimitExceeded,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewTimeoutError creates a provider timeout error (408). Retryable.
func NewTimeoutError(provider, model, message string) *EnrichError {
	return &EnrichError{
		StatusCode: http.StatusRequestTimeout,
		Message:    message,
		Type:       TypeProviderTimeout,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewServerError creates an upstream server error (5xx). Retryable.
func NewServerError(provider, model string, statusCode int, message string) *EnrichError {
	if statusCode < 500 {
		statusCode = http.StatusBadGateway
	}
	return &EnrichError{
		StatusCode: statusCode,
		Message:    message,
		Type:       TypeProviderServerError,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewInvalidResponseError creates an error for malformed provider output
// that fails to parse before schema validation even runs. Retryable.
func NewInvalidResponseError(provider, model, message string) *EnrichError {
	return &EnrichError{
		StatusCode: http.StatusBadGateway,
		Message:    message,
		Type:       TypeInvalidResponse,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewValidationFailedError creates an error for content that parsed but
// failed schema validation. Not retryable against the same provider; the
// content must be regenerated or revised.
func NewValidationFailedError(provider, model, message string) *EnrichError {
	return &EnrichError{
		StatusCode: http.StatusUnprocessableEntity,
		Message:    message,
		Type:       TypeValidationFailed,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewAuthenticationError creates an authentication error (401).
// Fatal immediately; no retry or failover.
func NewAuthenticationError(provider, model, message string) *EnrichError {
	return &EnrichError{
		StatusCode: http.StatusUnauthorized,
		Message:    message,
		Type:       TypeAuthentication,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewNoAvailableProviderError creates the terminal error surfaced after
// provider selection is exhausted.
func NewNoAvailableProviderError(message string, attempted []string) *EnrichError {
	return &EnrichError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeNoAvailableProvider,
		Attempted:  attempted,
		Retryable:  false,
	}
}

// IsRetryable reports whether the error qualifies for retry or failover.
// Unknown error types are treated as non-retryable.
func IsRetryable(err error) bool {
	var ee *EnrichError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// IsFatal reports whether the error must be surfaced without failover.
// Authentication failures abort the whole operation regardless of how
// many alternative providers remain.
func IsFatal(err error) bool {
	var ee *EnrichError
	if errors.As(err, &ee) {
		return ee.Type == TypeAuthentication
	}
	return false
}

// TriggersFailover reports whether the orchestrator should consider a
// different provider after this error. Validation failures qualify: the
// same provider produced unusable content and should not be blindly
// retried, but an alternative may still succeed.
func TriggersFailover(err error) bool {
	var ee *EnrichError
	if errors.As(err, &ee) {
		return ee.Retryable || ee.Type == TypeValidationFailed
	}
	return false
}
