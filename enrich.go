// Package enrich orchestrates AI content generation for knowledge-graph
// entities: it routes requests across providers under rate and cost
// limits, renders versioned prompts, validates structured responses,
// and fails over between providers on qualifying errors.
package enrich

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vitalyst/enrich/internal/audit"
	"github.com/vitalyst/enrich/internal/cost"
	"github.com/vitalyst/enrich/internal/event"
	"github.com/vitalyst/enrich/internal/metrics"
	"github.com/vitalyst/enrich/internal/perf"
	"github.com/vitalyst/enrich/internal/prompt"
	"github.com/vitalyst/enrich/internal/ratelimit"
	"github.com/vitalyst/enrich/internal/registry"
	"github.com/vitalyst/enrich/internal/simulate"
	"github.com/vitalyst/enrich/internal/validate"
	"github.com/vitalyst/enrich/pkg/provider"
	"github.com/vitalyst/enrich/pkg/types"
	"github.com/vitalyst/enrich/providers"
)

// Service is the enrichment entry point. It is safe for concurrent use
// by multiple goroutines.
type Service struct {
	registry  *registry.Registry
	limiter   *ratelimit.Limiter
	costs     *cost.Manager
	monitor   *perf.Monitor
	engine    *prompt.Engine
	validator *validate.Validator
	sim       *simulate.Simulator
	bus       *event.Bus
	audit     *audit.Logger
	logger    *slog.Logger

	httpClient *http.Client
	clients    map[string]*http.Client // per-provider overrides

	cfg *ServiceConfig

	current   atomic.Int64
	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// New creates a Service with the given options. At least one provider
// must be configured.
func New(opts ...Option) (*Service, error) {
	cfg := defaultServiceConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Service{
		registry:  registry.New(),
		limiter:   ratelimit.New(),
		monitor:   perf.NewMonitor(),
		engine:    prompt.NewEngine(),
		validator: validate.NewValidator(),
		logger:    cfg.Logger,
		clients:   make(map[string]*http.Client),
		cfg:       cfg,
	}
	s.bus = event.NewBus(cfg.Logger)
	s.costs = cost.NewManager(cfg.Budgets, cfg.Logger)

	s.httpClient = cfg.HTTPClient
	if s.httpClient == nil {
		s.httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	store := cfg.AuditStore
	if store == nil {
		store = audit.NewMemoryStore(0)
	}
	s.audit = audit.NewLogger(store)

	for _, t := range prompt.Builtin() {
		if err := s.engine.Register(t); err != nil {
			return nil, err
		}
	}
	for _, t := range cfg.Templates {
		if err := s.engine.Register(t); err != nil {
			return nil, err
		}
	}
	for _, sc := range validate.BuiltinSchemas() {
		if err := s.validator.Register(sc); err != nil {
			return nil, err
		}
	}
	for _, sc := range cfg.Schemas {
		if err := s.validator.Register(sc); err != nil {
			return nil, err
		}
	}
	s.sim = simulate.New(s.validator)

	for _, pcfg := range cfg.Providers {
		prov, err := providers.Create(pcfg)
		if err != nil {
			return nil, err
		}
		if err := s.addProvider(pcfg, prov, nil); err != nil {
			return nil, err
		}
	}
	for _, inst := range cfg.ProviderInstances {
		if err := s.addProvider(inst.Config, inst.Provider, inst.Client); err != nil {
			return nil, err
		}
	}

	// Budget alerts fan out to the event bus, the audit log, and
	// Prometheus. Delivery is advisory; in-flight calls are unaffected.
	s.costs.Subscribe(func(alert types.CostAlert) {
		s.logger.Warn("budget threshold crossed",
			"provider", alert.Provider,
			"level", string(alert.Level),
			"threshold", alert.Threshold,
			"total", alert.Total,
		)
		metrics.BudgetAlerts.WithLabelValues(alert.Provider, string(alert.Level)).Inc()
		s.bus.Publish(types.EventCostAlert, map[string]any{
			"provider":  alert.Provider,
			"level":     string(alert.Level),
			"threshold": alert.Threshold,
			"total":     alert.Total,
		})
		_ = s.audit.Alert(context.Background(), alert.Provider, map[string]any{
			"level":     string(alert.Level),
			"threshold": alert.Threshold,
			"total":     alert.Total,
		})
	})

	return s, nil
}

func (s *Service) addProvider(cfg provider.Config, prov provider.Provider, client *http.Client) error {
	if err := s.registry.Register(cfg, prov); err != nil {
		return err
	}
	entry, _ := s.registry.Get(cfg.Name)
	s.limiter.Configure(cfg.Name, entry.Config.RateLimit)
	s.costs.Configure(cfg.Name, entry.Config.Cost)
	if client != nil {
		s.clients[cfg.Name] = client
	}
	return nil
}

func (s *Service) clientFor(name string) *http.Client {
	if c, ok := s.clients[name]; ok {
		return c
	}
	return s.httpClient
}

// Generate runs the full orchestration for one entity: select a
// provider by score, render the prompt, call with retry and failover,
// validate, and settle cost. It returns a result or a single terminal
// error naming the failure category and the providers attempted.
func (s *Service) Generate(ctx context.Context, ectx types.EntityContext, opts *types.GenerateOptions) (*types.GenerationResult, error) {
	if opts == nil {
		opts = &types.GenerateOptions{}
	}

	op := newOperation(s, ectx, opts)

	s.current.Add(1)
	s.total.Add(1)
	defer s.current.Add(-1)

	result, err := op.run(ctx)
	if err != nil {
		s.failed.Add(1)
		metrics.GenerateRequests.WithLabelValues(string(ectx.EntityType()), op.lastProvider(), "error").Inc()
		return nil, err
	}
	s.succeeded.Add(1)
	metrics.GenerateRequests.WithLabelValues(string(ectx.EntityType()), result.Provider, "success").Inc()
	return result, nil
}

// Validate checks a response against the bound schema version. An
// empty version resolves to the latest registered one.
func (s *Service) Validate(entity types.EntityType, response map[string]any, version string) (*types.ValidationResult, error) {
	res, err := s.validator.Validate(entity, response, version)
	if err != nil {
		return nil, err
	}
	if !res.IsValid {
		metrics.ValidationFailures.WithLabelValues(string(entity)).Inc()
	}
	return res, nil
}

// Simulate produces a schema-conforming result without any provider
// call. The result carries the same shape Generate returns.
func (s *Service) Simulate(entity types.EntityType, opts *types.GenerateOptions) (*types.GenerationResult, error) {
	if opts == nil {
		opts = &types.GenerateOptions{}
	}
	start := time.Now()

	content, err := s.sim.Generate(entity, opts.Version)
	if err != nil {
		return nil, err
	}
	validation, err := s.validator.Validate(entity, content, opts.Version)
	if err != nil {
		return nil, err
	}

	return &types.GenerationResult{
		EntityType: entity,
		Content:    content,
		Provider:   "simulator",
		Confidence: validation.Metrics.Confidence,
		Validation: validation,
		Metadata: types.ResultMetadata{
			OperationID:    uuid.NewString(),
			Model:          "simulator",
			Timestamp:      start.UTC(),
			ProcessingTime: time.Since(start),
			Attempts:       1,
			Simulated:      true,
		},
	}, nil
}

// Reload applies the hot-reloadable slice of a configuration change:
// pricing and model metadata for already-registered providers. Provider
// instances, credentials, and rate limits stay as constructed; names
// with no registered provider are skipped. Applied updates are
// announced as a model_update status event.
func (s *Service) Reload(cfgs []provider.Config) {
	var updated []string
	for _, cfg := range cfgs {
		if !s.registry.UpdateMetadata(cfg) {
			s.logger.Debug("reload skipped unregistered provider", "name", cfg.Name)
			continue
		}
		s.costs.Configure(cfg.Name, cfg.Cost)
		updated = append(updated, cfg.Name)
	}
	if len(updated) == 0 {
		return
	}

	s.logger.Info("provider metadata reloaded", "providers", updated)
	s.bus.Publish(types.EventModelUpdate, map[string]any{"providers": updated})
}

// Operation returns the recorded attempt history for one operation id,
// in attempt order.
func (s *Service) Operation(opID string) []perf.Attempt {
	return s.monitor.Operation(opID)
}

// Subscribe returns a channel of status events (provider status, model
// updates, cost alerts) and a cancel function. Events are dropped, not
// queued, when the subscriber falls behind.
func (s *Service) Subscribe() (<-chan types.StatusEvent, func()) {
	return s.bus.Subscribe()
}

// Audit returns the audit logger, for wiring external sinks or reading
// recent events.
func (s *Service) Audit() *audit.Logger {
	return s.audit
}

// ProviderMetrics is the per-provider observability slice.
type ProviderMetrics struct {
	Performance perf.Snapshot      `json:"performance"`
	Cost        cost.Snapshot      `json:"cost"`
	RateLimits  ratelimit.Snapshot `json:"rate_limits"`
}

// CurrentMetrics describes in-flight activity.
type CurrentMetrics struct {
	InFlightOperations int64 `json:"in_flight_operations"`
}

// GlobalMetrics aggregates operation outcomes since startup.
type GlobalMetrics struct {
	Operations int64 `json:"operations"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
}

// MetricsSnapshot is the read-only observability view.
type MetricsSnapshot struct {
	PerProvider map[string]ProviderMetrics `json:"per_provider"`
	Current     CurrentMetrics             `json:"current"`
	Global      GlobalMetrics              `json:"global"`
}

// Metrics returns a point-in-time snapshot of per-provider performance,
// cost, and rate-limit state plus global counters.
func (s *Service) Metrics() MetricsSnapshot {
	snap := MetricsSnapshot{
		PerProvider: make(map[string]ProviderMetrics),
		Current:     CurrentMetrics{InFlightOperations: s.current.Load()},
		Global: GlobalMetrics{
			Operations: s.total.Load(),
			Succeeded:  s.succeeded.Load(),
			Failed:     s.failed.Load(),
		},
	}
	for _, name := range s.registry.Names() {
		pm := ProviderMetrics{}
		if perfSnap, ok := s.monitor.Snapshot(name); ok {
			pm.Performance = perfSnap
		}
		if costSnap, ok := s.costs.Snapshot(name); ok {
			pm.Cost = costSnap
		}
		if rlSnap, ok := s.limiter.Snapshot(name); ok {
			pm.RateLimits = rlSnap
		}
		snap.PerProvider[name] = pm
	}
	return snap
}

// Close shuts down the event bus and flushes the audit store.
func (s *Service) Close() error {
	s.bus.Close()
	return s.audit.Close()
}
