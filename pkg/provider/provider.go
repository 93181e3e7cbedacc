// Package provider defines the public interface for AI backend adapters.
// Each backend (OpenAI, Anthropic, the simulator) implements this
// interface to handle request/response transformation; the orchestrator
// owns the HTTP client, timeouts, and retry policy.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/vitalyst/enrich/pkg/types"
)

// Request is the unified content-generation request handed to an adapter.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Provider is the interface all AI backend adapters implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// BuildRequest transforms a unified Request into a provider-specific
	// HTTP request: parameter mapping, headers, body serialization.
	BuildRequest(ctx context.Context, req *Request) (*http.Request, error)

	// ParseResponse transforms a provider-specific response body into the
	// unified RawResponse shape.
	ParseResponse(resp *http.Response) (*types.RawResponse, error)

	// MapError converts a provider error response into a standardized
	// *errors.EnrichError.
	MapError(statusCode int, body []byte) error
}

// ModelConfig describes one model offered by a provider.
type ModelConfig struct {
	Name      string `yaml:"name" json:"name"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
	Priority  int    `yaml:"priority" json:"priority"`
}

// RateLimitConfig is the per-provider request budget.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute" json:"tokens_per_minute"`
	MaxConcurrent     int `yaml:"max_concurrent" json:"max_concurrent"`
}

// CostConfig is the per-provider cost table, USD.
type CostConfig struct {
	CostPerToken   float64 `yaml:"cost_per_token" json:"cost_per_token"`
	CostPerRequest float64 `yaml:"cost_per_request" json:"cost_per_request"`
}

// RetryConfig is the per-provider retry policy.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
	InitialDelay  time.Duration `yaml:"initial_delay" json:"initial_delay"`
}

// Config is the immutable per-provider configuration loaded at startup.
// One instance per provider, owned by the registry after registration.
type Config struct {
	Name      string          `yaml:"name" json:"name"`
	Type      string          `yaml:"type" json:"type"`
	APIKey    string          `yaml:"api_key" json:"-"` // secret reference, resolved before registration
	BaseURL   string          `yaml:"base_url" json:"base_url,omitempty"`
	Models    []ModelConfig   `yaml:"models" json:"models"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Cost      CostConfig      `yaml:"cost" json:"cost"`
	Timeout   time.Duration   `yaml:"timeout" json:"timeout"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`

	// Priority breaks scoring ties between providers; lower wins.
	Priority int `yaml:"priority" json:"priority"`
}

// DefaultModel returns the highest-priority model, or the zero value if
// none are configured.
func (c *Config) DefaultModel() ModelConfig {
	var best ModelConfig
	for i, m := range c.Models {
		if i == 0 || m.Priority < best.Priority {
			best = m
		}
	}
	return best
}

// Normalize fills unset policy fields with defaults.
func (c *Config) Normalize() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BackoffFactor <= 1 {
		c.Retry.BackoffFactor = 2
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = 200 * time.Millisecond
	}
	if c.RateLimit.MaxConcurrent <= 0 {
		c.RateLimit.MaxConcurrent = 8
	}
}

// Factory creates provider instances from configuration.
type Factory func(cfg Config) (Provider, error)
