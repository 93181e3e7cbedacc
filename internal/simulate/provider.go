package simulate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/vitalyst/enrich/pkg/errors"
	"github.com/vitalyst/enrich/pkg/provider"
	"github.com/vitalyst/enrich/pkg/types"
)

// failure is one scripted outcome consumed per attempt.
type failure struct {
	timeout bool
	status  int
}

// Provider is an in-process provider adapter backed by the Simulator.
// It implements both provider.Provider and http.RoundTripper, so the
// orchestrator drives it through the exact same build/do/parse path it
// uses for real backends, with no network involved.
type Provider struct {
	name    string
	entity  types.EntityType
	version string
	model   string
	sim     *Simulator

	mu     sync.Mutex
	script []failure
	calls  int
}

// NewProvider returns a simulated provider generating (entity, version)
// responses under the given provider name.
func NewProvider(name string, entity types.EntityType, version string, sim *Simulator) *Provider {
	return &Provider{
		name:    name,
		entity:  entity,
		version: version,
		model:   "sim-" + string(entity),
		sim:     sim,
	}
}

func (p *Provider) Name() string { return p.name }

// FailTimeout scripts the next n attempts to fail with a timeout.
func (p *Provider) FailTimeout(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		p.script = append(p.script, failure{timeout: true})
	}
}

// FailStatus scripts the next n attempts to fail with the given HTTP
// status code.
func (p *Provider) FailStatus(status, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		p.script = append(p.script, failure{status: status})
	}
}

// Calls reports how many attempts reached this provider.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type simRequest struct {
	Model       string  `json:"model"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

func (p *Provider) BuildRequest(ctx context.Context, req *provider.Request) (*http.Request, error) {
	body, err := json.Marshal(simRequest{
		Model:       req.Model,
		System:      req.System,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("simulate: marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s.simulated.invalid/v1/generate", p.name)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// timeoutError satisfies net.Error so callers classify it like a real
// transport timeout.
type timeoutError struct{}

func (timeoutError) Error() string   { return "simulated call deadline exceeded" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// RoundTrip serves the request locally: it pops the next scripted
// failure if one is queued, otherwise returns a fresh schema-conforming
// response.
func (p *Provider) RoundTrip(req *http.Request) (*http.Response, error) {
	p.mu.Lock()
	p.calls++
	var next *failure
	if len(p.script) > 0 {
		next = &p.script[0]
		p.script = p.script[1:]
	}
	p.mu.Unlock()

	if next != nil {
		if next.timeout {
			return nil, timeoutError{}
		}
		return simResponse(req, next.status, fmt.Sprintf(`{"error":{"message":"simulated %d"}}`, next.status)), nil
	}

	content, err := p.sim.JSON(p.entity, p.version)
	if err != nil {
		return nil, err
	}

	var in simRequest
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &in)
	}
	model := in.Model
	if model == "" {
		model = p.model
	}

	promptTokens := len(in.Prompt) / 4
	completionTokens := len(content) / 4
	body, err := json.Marshal(types.RawResponse{
		Content: content,
		Model:   model,
		Usage: types.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	})
	if err != nil {
		return nil, err
	}
	return simResponse(req, http.StatusOK, string(body)), nil
}

func simResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Request:    req,
	}
}

func (p *Provider) ParseResponse(resp *http.Response) (*types.RawResponse, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewInvalidResponseError(p.name, p.model, err.Error())
	}
	var out types.RawResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.NewInvalidResponseError(p.name, p.model, "malformed simulated response body")
	}
	if out.Content == "" {
		return nil, errors.NewInvalidResponseError(p.name, p.model, "empty content")
	}
	return &out, nil
}

func (p *Provider) MapError(statusCode int, body []byte) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return errors.NewAuthenticationError(p.name, p.model, "simulated authentication failure")
	case statusCode == http.StatusTooManyRequests:
		return errors.NewRateLimitError(p.name, p.model, "simulated rate limit")
	case statusCode >= 500:
		return errors.NewServerError(p.name, p.model, statusCode, "simulated upstream error")
	default:
		return errors.NewInvalidResponseError(p.name, p.model,
			fmt.Sprintf("unexpected status %d: %s", statusCode, string(body)))
	}
}

// Client returns an *http.Client whose transport is this provider, for
// wiring the simulated path into the orchestrator's call step.
func (p *Provider) Client() *http.Client {
	return &http.Client{Transport: p}
}
