package openai

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalyst/enrich/pkg/errors"
	"github.com/vitalyst/enrich/pkg/provider"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(provider.Config{Name: "openai", Type: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	return p.(*Provider)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(provider.Config{Name: "openai", Type: "openai"})
	assert.Error(t, err)
}

func TestBuildRequest(t *testing.T) {
	p := newTestProvider(t)

	req, err := p.BuildRequest(context.Background(), &provider.Request{
		Model:       "gpt-4",
		System:      "You are a nutritionist.",
		Prompt:      "Describe Vitamin C.",
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

	var body chatRequest
	raw, _ := io.ReadAll(req.Body)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "gpt-4", body.Model)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "user", body.Messages[1].Role)
	require.NotNil(t, body.Temperature)
	assert.Equal(t, 0.7, *body.Temperature)
	assert.Equal(t, 1000, body.MaxTokens)
}

func TestParseResponse(t *testing.T) {
	p := newTestProvider(t)

	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body: io.NopCloser(strings.NewReader(`{
			"id": "chatcmpl-1",
			"model": "gpt-4",
			"choices": [{"message": {"role": "assistant", "content": "{\"description\":\"...\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 80, "total_tokens": 200}
		}`)),
	}

	raw, err := p.ParseResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", raw.Model)
	assert.Equal(t, 200, raw.Usage.TotalTokens)
	assert.Contains(t, raw.Content, "description")
}

func TestParseResponseNoChoices(t *testing.T) {
	p := newTestProvider(t)
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"id":"x","model":"gpt-4","choices":[]}`)),
	}
	_, err := p.ParseResponse(resp)
	require.Error(t, err)

	var enrichErr *errors.EnrichError
	require.ErrorAs(t, err, &enrichErr)
	assert.Equal(t, errors.TypeInvalidResponse, enrichErr.Type)
}

func TestMapError(t *testing.T) {
	p := newTestProvider(t)
	body := []byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`)

	var enrichErr *errors.EnrichError
	require.ErrorAs(t, p.MapError(http.StatusTooManyRequests, body), &enrichErr)
	assert.Equal(t, errors.TypeRateLimitExceeded, enrichErr.Type)
	assert.Equal(t, "rate limited", enrichErr.Message)

	require.ErrorAs(t, p.MapError(http.StatusUnauthorized, nil), &enrichErr)
	assert.Equal(t, errors.TypeAuthentication, enrichErr.Type)

	require.ErrorAs(t, p.MapError(http.StatusInternalServerError, nil), &enrichErr)
	assert.Equal(t, errors.TypeProviderServerError, enrichErr.Type)
}
