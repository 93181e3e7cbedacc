// Package openai adapts the unified generation request to the OpenAI
// Chat Completions API.
package openai

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
	ProviderName = "openai"

	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Provider implements the OpenAI Chat Completions adapter.
type Provider struct {
	name    string
	apiKey  string
	baseURL string
}

// New creates an OpenAI provider from configuration.
func New(cfg provider.Config) (provider.Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewConfigError("openai: api_key is required")
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

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Provider) BuildRequest(ctx context.Context, req *provider.Request) (*http.Request, error) {
	out := chatRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}
	if req.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: req.System})
	}
	out.Messages = append(out.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	return httpReq, nil
}

func (p *Provider) ParseResponse(resp *http.Response) (*types.RawResponse, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewInvalidResponseError(p.name, "", "read response: "+err.Error())
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.NewInvalidResponseError(p.name, "", "unmarshal response: "+err.Error())
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return nil, errors.NewInvalidResponseError(p.name, out.Model, "response contains no choices")
	}

	return &types.RawResponse{
		Content: out.Choices[0].Message.Content,
		Model:   out.Model,
		Usage: types.Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}

func (p *Provider) MapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
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
