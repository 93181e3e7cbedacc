// Package anthropic adapts the unified generation request to the
// Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/vitalyst/enrich/pkg/errors"
	"github.com/vitalyst/enrich/pkg/provider"
	"github.com/vitalyst/enrich/pkg/types"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "anthropic"

	// DefaultBaseURL is the default Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the Anthropic API version header value.
	DefaultAPIVersion = "2023-06-01"

	// DefaultMaxTokens applies when the request does not set a limit.
	DefaultMaxTokens = 1000
)

// Provider implements the Anthropic Messages API adapter.
type Provider struct {
	name    string
	apiKey  string
	baseURL string
}

// New creates an Anthropic provider from configuration.
func New(cfg provider.Config) (provider.Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewConfigError("anthropic: api_key is required")
	}
	p := &Provider{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		baseURL: DefaultBaseURL,
	}
	if p.name == "" {
		p.name = ProviderName
	}
	if cfg.BaseURL != "" {
		p.baseURL = cfg.BaseURL
	}
	return p, nil
}

func (p *Provider) Name() string { return p.name }

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) BuildRequest(ctx context.Context, req *provider.Request) (*http.Request, error) {
	out := messagesRequest{
		Model:     req.Model,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
		MaxTokens: DefaultMaxTokens,
		System:    req.System,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", DefaultAPIVersion)
	return httpReq, nil
}

func (p *Provider) ParseResponse(resp *http.Response) (*types.RawResponse, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewInvalidResponseError(p.name, "", "read response: "+err.Error())
	}

	var out messagesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.NewInvalidResponseError(p.name, "", "unmarshal response: "+err.Error())
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.NewInvalidResponseError(p.name, out.Model, "response contains no text content")
	}

	return &types.RawResponse{
		Content: text.String(),
		Model:   out.Model,
		Usage: types.Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}

func (p *Provider) MapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return errors.NewAuthenticationError(p.name, "", message)
	case statusCode == http.StatusTooManyRequests:
		return errors.NewRateLimitError(p.name, "", message)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return errors.NewTimeoutError(p.name, "", message)
	case statusCode >= 500:
		return errors.NewServerError(p.name, "", statusCode, message)
	default:
		return errors.NewInvalidResponseError(p.name, "",
			fmt.Sprintf("unexpected status %d: %s", statusCode, message))
	}
}
