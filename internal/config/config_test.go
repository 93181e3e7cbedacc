package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalyst/enrich/internal/secret"
)

const validYAML = `
server:
  port: 9090
providers:
  - name: openai
    type: openai
    api_key: env://OPENAI_API_KEY
    models:
      - name: gpt-4
        max_tokens: 8192
        priority: 1
    rate_limit:
      requests_per_minute: 60
      tokens_per_minute: 90000
      max_concurrent: 4
    cost:
      cost_per_token: 0.00003
      cost_per_request: 0.001
    timeout: 20s
  - name: anthropic
    type: anthropic
    api_key: env://ANTHROPIC_API_KEY
    models:
      - name: claude-3-sonnet
        max_tokens: 4096
        priority: 1
budgets:
  daily: 10
  monthly: 200
defaults:
  temperature: 0.7
  max_tokens: 1000
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "openai", cfg.Providers[0].Name)
	assert.Equal(t, "env://OPENAI_API_KEY", cfg.Providers[0].APIKey)
	assert.Equal(t, 60, cfg.Providers[0].RateLimit.RequestsPerMinute)
	assert.Equal(t, 20*time.Second, cfg.Providers[0].Timeout)
	assert.Equal(t, 10.0, cfg.Budgets.Daily)

	// Defaults survive partial config.
	assert.Equal(t, 0.7, cfg.Defaults.Temperature)
	assert.Equal(t, "memory", cfg.Audit.Backend)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("ENRICH_TEST_PORT", "7070")
	cfg, err := LoadFromFile(writeConfig(t, `
server:
  port: ${ENRICH_TEST_PORT}
providers:
  - name: openai
    type: openai
    api_key: sk-inline
    models:
      - name: gpt-4
`))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"no providers":   "server:\n  port: 8080\n",
		"missing name":   "providers:\n  - type: openai\n    api_key: k\n    models:\n      - name: m\n",
		"missing key":    "providers:\n  - name: openai\n    type: openai\n    models:\n      - name: m\n",
		"no models":      "providers:\n  - name: openai\n    type: openai\n    api_key: k\n",
		"duplicate name": "providers:\n  - name: a\n    type: openai\n    api_key: k\n    models:\n      - name: m\n  - name: a\n    type: openai\n    api_key: k\n    models:\n      - name: m\n",
		"bad audit":      "audit:\n  backend: s3\nproviders:\n  - name: a\n    type: openai\n    api_key: k\n    models:\n      - name: m\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestManagerResolvesSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic-test")

	m, err := NewManager(context.Background(), writeConfig(t, validYAML), secret.NewManager(), discardLogger())
	require.NoError(t, err)
	defer m.Close()

	cfg := m.Get()
	assert.Equal(t, "sk-openai-test", cfg.Providers[0].APIKey)
	assert.Equal(t, "sk-anthropic-test", cfg.Providers[1].APIKey)
}

func TestManagerFailsOnUnresolvableSecret(t *testing.T) {
	os.Unsetenv("ENRICH_MISSING_KEY")
	_, err := NewManager(context.Background(), writeConfig(t, `
providers:
  - name: openai
    type: openai
    api_key: env://ENRICH_MISSING_KEY
    models:
      - name: gpt-4
`), secret.NewManager(), discardLogger())
	assert.Error(t, err)
}

func TestWatchReloadsOnFileChange(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic-test")

	path := writeConfig(t, validYAML)
	m, err := NewManager(context.Background(), path, secret.NewManager(), discardLogger())
	require.NoError(t, err)
	defer m.Close()

	reloaded := make(chan *Config, 1)
	m.OnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	updated := strings.Replace(validYAML, "cost_per_request: 0.001", "cost_per_request: 0.5", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case c := <-reloaded:
		assert.InDelta(t, 0.5, c.Providers[0].Cost.CostPerRequest, 1e-9)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}

	assert.InDelta(t, 0.5, m.Get().Providers[0].Cost.CostPerRequest, 1e-9)
}

func TestWatchKeepsCurrentConfigOnBadReload(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic-test")

	path := writeConfig(t, validYAML)
	m, err := NewManager(context.Background(), path, secret.NewManager(), discardLogger())
	require.NoError(t, err)
	defer m.Close()

	called := make(chan struct{}, 1)
	m.OnChange(func(*Config) {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("providers: ["), 0o600))

	select {
	case <-called:
		t.Fatal("reload callback fired for a broken config")
	case <-time.After(time.Second):
	}
	assert.Equal(t, 9090, m.Get().Server.Port)
}
