package enrich

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vitalyst/enrich/internal/audit"
	"github.com/vitalyst/enrich/internal/cost"
	"github.com/vitalyst/enrich/internal/prompt"
	"github.com/vitalyst/enrich/internal/validate"
	"github.com/vitalyst/enrich/pkg/provider"
)

// providerInstance is a pre-built adapter registered alongside its
// configuration, optionally with a dedicated HTTP client. Used for the
// simulator and in tests.
type providerInstance struct {
	Config   provider.Config
	Provider provider.Provider
	Client   *http.Client
}

// ServiceConfig holds all construction-time configuration for Service.
type ServiceConfig struct {
	Providers         []provider.Config
	ProviderInstances []providerInstance

	Budgets cost.Budgets

	// Extra templates and schemas registered on top of the built-ins.
	Templates []prompt.Template
	Schemas   []validate.Schema

	AuditStore audit.Store
	Logger     *slog.Logger
	HTTPClient *http.Client

	DefaultLanguage string
	DefaultTimeout  time.Duration
}

// Option configures the Service.
type Option func(*ServiceConfig)

func defaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Logger:          slog.Default(),
		DefaultLanguage: "en",
		DefaultTimeout:  30 * time.Second,
	}
}

// WithProvider adds a provider created from configuration via the
// adapter factory registry.
func WithProvider(cfg provider.Config) Option {
	return func(c *ServiceConfig) {
		c.Providers = append(c.Providers, cfg)
	}
}

// WithProviderInstance adds a pre-built adapter with its configuration.
// A nil client selects the shared HTTP client.
func WithProviderInstance(cfg provider.Config, p provider.Provider, client *http.Client) Option {
	return func(c *ServiceConfig) {
		c.ProviderInstances = append(c.ProviderInstances, providerInstance{
			Config:   cfg,
			Provider: p,
			Client:   client,
		})
	}
}

// WithBudgets sets the advisory daily/monthly spend thresholds.
func WithBudgets(b cost.Budgets) Option {
	return func(c *ServiceConfig) { c.Budgets = b }
}

// WithTemplate publishes an additional prompt template version.
func WithTemplate(t prompt.Template) Option {
	return func(c *ServiceConfig) { c.Templates = append(c.Templates, t) }
}

// WithSchema publishes an additional validation schema version.
func WithSchema(s validate.Schema) Option {
	return func(c *ServiceConfig) { c.Schemas = append(c.Schemas, s) }
}

// WithAuditStore selects the audit event store. Defaults to an
// in-memory ring buffer.
func WithAuditStore(s audit.Store) Option {
	return func(c *ServiceConfig) { c.AuditStore = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *ServiceConfig) { c.Logger = l }
}

// WithHTTPClient sets the shared HTTP client for provider calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *ServiceConfig) { c.HTTPClient = client }
}

// WithDefaultLanguage sets the template language used when a call does
// not specify one.
func WithDefaultLanguage(lang string) Option {
	return func(c *ServiceConfig) { c.DefaultLanguage = lang }
}

// WithDefaultTimeout sets the provider call timeout used when neither
// the call options nor the provider config specify one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *ServiceConfig) { c.DefaultTimeout = d }
}
