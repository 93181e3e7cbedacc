// Package config loads and validates the service configuration from
// YAML, with environment-variable expansion and optional hot-reload of
// the provider catalog.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalyst/enrich/internal/cost"
	"github.com/vitalyst/enrich/internal/secret"
	"github.com/vitalyst/enrich/pkg/errors"
	"github.com/vitalyst/enrich/pkg/provider"
)

// ServerConfig contains HTTP server settings for the enrichd binary.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DefaultsConfig holds generation parameters applied when a template
// does not override them.
type DefaultsConfig struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Language    string  `yaml:"language"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AuditConfig selects and sizes the audit event store.
type AuditConfig struct {
	Backend   string `yaml:"backend"`    // memory, redis
	RedisAddr string `yaml:"redis_addr"` // for the redis backend
	Retention int    `yaml:"retention"`
}

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Providers []provider.Config   `yaml:"providers"`
	Budgets   cost.Budgets        `yaml:"budgets"`
	Defaults  DefaultsConfig      `yaml:"defaults"`
	Logging   LoggingConfig       `yaml:"logging"`
	Metrics   MetricsConfig       `yaml:"metrics"`
	Audit     AuditConfig         `yaml:"audit"`
	Vault     *secret.VaultConfig `yaml:"vault,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Defaults: DefaultsConfig{
			Temperature: 0.7,
			MaxTokens:   1000,
			Language:    "en",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Audit:   AuditConfig{Backend: "memory", Retention: 4096},
	}
}

// LoadFromFile reads and parses a YAML configuration file. Environment
// variables in the form ${VAR_NAME} are expanded before parsing;
// api_key fields stay as secret references until ResolveSecrets runs.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.NewConfigError("parse config: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for startup-fatal errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewConfigError(fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}
	if len(c.Providers) == 0 {
		return errors.NewConfigError("at least one provider must be configured")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return errors.NewConfigError(fmt.Sprintf("provider[%d]: name is required", i))
		}
		if seen[p.Name] {
			return errors.NewConfigError(fmt.Sprintf("provider %q configured twice", p.Name))
		}
		seen[p.Name] = true
		if p.Type == "" {
			return errors.NewConfigError(fmt.Sprintf("provider %q: type is required", p.Name))
		}
		if p.APIKey == "" {
			return errors.NewConfigError(fmt.Sprintf("provider %q: api_key is required", p.Name))
		}
		if len(p.Models) == 0 {
			return errors.NewConfigError(fmt.Sprintf("provider %q: at least one model must be configured", p.Name))
		}
		if p.Timeout < 0 {
			return errors.NewConfigError(fmt.Sprintf("provider %q: timeout cannot be negative", p.Name))
		}
		if p.RateLimit.RequestsPerMinute < 0 || p.RateLimit.TokensPerMinute < 0 || p.RateLimit.MaxConcurrent < 0 {
			return errors.NewConfigError(fmt.Sprintf("provider %q: rate limits cannot be negative", p.Name))
		}
		if p.Cost.CostPerToken < 0 || p.Cost.CostPerRequest < 0 {
			return errors.NewConfigError(fmt.Sprintf("provider %q: cost table cannot be negative", p.Name))
		}
	}

	if c.Budgets.Daily < 0 || c.Budgets.Monthly < 0 {
		return errors.NewConfigError("budget thresholds cannot be negative")
	}
	switch c.Audit.Backend {
	case "", "memory":
	case "redis":
		if c.Audit.RedisAddr == "" {
			return errors.NewConfigError("audit backend redis requires redis_addr")
		}
	default:
		return errors.NewConfigError("unknown audit backend " + c.Audit.Backend)
	}
	return nil
}
