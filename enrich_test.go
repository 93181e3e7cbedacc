package enrich

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalyst/enrich/internal/cost"
	"github.com/vitalyst/enrich/internal/simulate"
	"github.com/vitalyst/enrich/internal/validate"
	"github.com/vitalyst/enrich/pkg/errors"
	"github.com/vitalyst/enrich/pkg/provider"
	"github.com/vitalyst/enrich/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func simProviderConfig(name string, priority int) provider.Config {
	return provider.Config{
		Name:   name,
		Type:   "simulated",
		APIKey: "sk-test",
		Models: []provider.ModelConfig{
			{Name: "sim-nutrient", MaxTokens: 1000, Priority: 1},
		},
		Cost: provider.CostConfig{CostPerToken: 0.00001, CostPerRequest: 0.001},
		Retry: provider.RetryConfig{
			MaxRetries:    3,
			BackoffFactor: 2,
			InitialDelay:  time.Millisecond,
		},
		Priority: priority,
	}
}

// newSimProvider builds a simulated backend for nutrient content.
func newSimProvider(t *testing.T, name string) *simulate.Provider {
	t.Helper()
	v := validate.NewValidator()
	for _, s := range validate.BuiltinSchemas() {
		require.NoError(t, v.Register(s))
	}
	return simulate.NewProvider(name, types.EntityNutrient, "v1", simulate.New(v))
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append(opts, WithLogger(discardLogger()))
	s, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func nutrientCtx() types.NutrientContext {
	return types.NutrientContext{Name: "Vitamin C", ChemicalFormula: "C6H8O6"}
}

func TestGenerateSuccess(t *testing.T) {
	p := newSimProvider(t, "openai")
	s := newTestService(t,
		WithProviderInstance(simProviderConfig("openai", 1), p, p.Client()),
	)

	result, err := s.Generate(context.Background(), nutrientCtx(), nil)
	require.NoError(t, err)

	assert.Equal(t, types.EntityNutrient, result.EntityType)
	assert.Equal(t, "openai", result.Provider)
	assert.True(t, result.Validation.IsValid)
	assert.Contains(t, result.Content, "description")
	assert.Equal(t, 1, result.Metadata.Attempts)
	assert.NotEmpty(t, result.Metadata.OperationID)
	assert.Positive(t, result.Metadata.TokenCount)
	assert.False(t, result.Metadata.Simulated)
}

func TestGenerateNoProviders(t *testing.T) {
	s := newTestService(t)
	_, err := s.Generate(context.Background(), nutrientCtx(), nil)
	require.Error(t, err)

	var enrichErr *errors.EnrichError
	require.ErrorAs(t, err, &enrichErr)
	assert.Equal(t, errors.TypeNoAvailableProvider, enrichErr.Type)
}

// Two concurrent calls against a provider capped at one request per
// minute: exactly one lands on it, the other fails over to the
// next-scored provider, and both succeed.
func TestConcurrentCallsSplitAcrossProviders(t *testing.T) {
	pa := newSimProvider(t, "openai")
	pb := newSimProvider(t, "anthropic")

	cfgA := simProviderConfig("openai", 1)
	cfgA.RateLimit.RequestsPerMinute = 1
	cfgB := simProviderConfig("anthropic", 2)

	s := newTestService(t,
		WithProviderInstance(cfgA, pa, pa.Client()),
		WithProviderInstance(cfgB, pb, pb.Client()),
	)

	var wg sync.WaitGroup
	results := make([]*types.GenerationResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Generate(context.Background(), nutrientCtx(), nil)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, results[0].Provider, results[1].Provider)

	seen := map[string]bool{results[0].Provider: true, results[1].Provider: true}
	assert.True(t, seen["openai"])
	assert.True(t, seen["anthropic"])
}

// A provider that times out twice then succeeds within the retry budget
// produces a successful result, and the monitor records all three
// attempts under the same operation id.
func TestRetryThenSucceed(t *testing.T) {
	p := newSimProvider(t, "openai")
	p.FailTimeout(2)

	s := newTestService(t,
		WithProviderInstance(simProviderConfig("openai", 1), p, p.Client()),
	)

	result, err := s.Generate(context.Background(), nutrientCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, 3, result.Metadata.Attempts)

	attempts := s.Operation(result.Metadata.OperationID)
	require.Len(t, attempts, 3)
	failures, successes := 0, 0
	for _, a := range attempts {
		if a.Success {
			successes++
		} else {
			failures++
		}
	}
	assert.Equal(t, 2, failures)
	assert.Equal(t, 1, successes)
}

// A provider that always errors retryably is retried at most maxRetries
// times, then the orchestrator moves on; with no alternative it fails
// with the attempted chain in the error.
func TestRetryBudgetExhausted(t *testing.T) {
	p := newSimProvider(t, "openai")
	p.FailStatus(http.StatusInternalServerError, 10)

	s := newTestService(t,
		WithProviderInstance(simProviderConfig("openai", 1), p, p.Client()),
	)

	_, err := s.Generate(context.Background(), nutrientCtx(), nil)
	require.Error(t, err)
	assert.Equal(t, 3, p.Calls())

	var enrichErr *errors.EnrichError
	require.ErrorAs(t, err, &enrichErr)
	assert.Equal(t, []string{"openai"}, enrichErr.Attempted)
}

func TestFailoverToSecondProvider(t *testing.T) {
	pa := newSimProvider(t, "openai")
	pa.FailStatus(http.StatusServiceUnavailable, 10)
	pb := newSimProvider(t, "anthropic")

	s := newTestService(t,
		WithProviderInstance(simProviderConfig("openai", 1), pa, pa.Client()),
		WithProviderInstance(simProviderConfig("anthropic", 2), pb, pb.Client()),
	)

	result, err := s.Generate(context.Background(), nutrientCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", result.Provider)
	assert.Equal(t, 3, pa.Calls())
	assert.Equal(t, 1, pb.Calls())
}

// Authentication failures are fatal: no retry, no failover, even with a
// healthy alternative configured.
func TestAuthFailureIsFatal(t *testing.T) {
	pa := newSimProvider(t, "openai")
	pa.FailStatus(http.StatusUnauthorized, 10)
	pb := newSimProvider(t, "anthropic")

	s := newTestService(t,
		WithProviderInstance(simProviderConfig("openai", 1), pa, pa.Client()),
		WithProviderInstance(simProviderConfig("anthropic", 2), pb, pb.Client()),
	)

	_, err := s.Generate(context.Background(), nutrientCtx(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, pa.Calls())
	assert.Equal(t, 0, pb.Calls())

	var enrichErr *errors.EnrichError
	require.ErrorAs(t, err, &enrichErr)
	assert.Equal(t, errors.TypeAuthentication, enrichErr.Type)
}

// MaxRetries override in the call options trumps the provider policy.
func TestMaxRetriesOverride(t *testing.T) {
	p := newSimProvider(t, "openai")
	p.FailStatus(http.StatusInternalServerError, 10)

	s := newTestService(t,
		WithProviderInstance(simProviderConfig("openai", 1), p, p.Client()),
	)

	_, err := s.Generate(context.Background(), nutrientCtx(), &types.GenerateOptions{MaxRetries: 1})
	require.Error(t, err)
	assert.Equal(t, 1, p.Calls())
}

// Crossing the daily budget fires exactly one daily alert, delivered on
// the status event channel.
func TestDailyBudgetAlertFiresOnce(t *testing.T) {
	p := newSimProvider(t, "openai")

	cfg := simProviderConfig("openai", 1)
	cfg.Cost = provider.CostConfig{CostPerRequest: 6}

	s := newTestService(t,
		WithProviderInstance(cfg, p, p.Client()),
		WithBudgets(cost.Budgets{Daily: 10}),
	)

	events, cancel := s.Subscribe()
	defer cancel()

	for i := 0; i < 3; i++ {
		_, err := s.Generate(context.Background(), nutrientCtx(), nil)
		require.NoError(t, err)
	}

	alerts := 0
	deadline := time.After(time.Second)
collect:
	for {
		select {
		case ev := <-events:
			if ev.Type == types.EventCostAlert && ev.Data["level"] == "daily" {
				alerts++
			}
		case <-deadline:
			break collect
		}
	}
	assert.Equal(t, 1, alerts)

	snap := s.Metrics().PerProvider["openai"]
	assert.GreaterOrEqual(t, snap.Cost.DailyTotal, 18.0)
}

// Cancellation during the retry wait propagates out, releases the
// rate-limiter slot, and voids the tracked estimate.
func TestCancellationReleasesResources(t *testing.T) {
	p := newSimProvider(t, "openai")
	p.FailTimeout(10)

	cfg := simProviderConfig("openai", 1)
	cfg.Retry.InitialDelay = 5 * time.Second
	cfg.RateLimit.MaxConcurrent = 1

	s := newTestService(t,
		WithProviderInstance(cfg, p, p.Client()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(ctx, nutrientCtx(), nil)
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("generate did not return after cancellation")
	}

	snap := s.Metrics().PerProvider["openai"]
	assert.Equal(t, 0, snap.RateLimits.InFlight)
	assert.Positive(t, snap.Cost.Voided)
}

// Reloaded pricing reaches the running service: subsequent calls are
// billed at the new rate and subscribers hear a model_update event.
func TestReloadAppliesPricing(t *testing.T) {
	p := newSimProvider(t, "openai")
	cfg := simProviderConfig("openai", 1)
	cfg.Cost = provider.CostConfig{CostPerRequest: 0.001}

	s := newTestService(t,
		WithProviderInstance(cfg, p, p.Client()),
	)

	events, cancel := s.Subscribe()
	defer cancel()

	next := cfg
	next.Cost = provider.CostConfig{CostPerRequest: 5}
	s.Reload([]provider.Config{
		next,
		simProviderConfig("unregistered", 9),
	})

	select {
	case ev := <-events:
		require.Equal(t, types.EventModelUpdate, ev.Type)
		assert.Equal(t, []string{"openai"}, ev.Data["providers"])
	case <-time.After(time.Second):
		t.Fatal("no model_update event after reload")
	}

	_, err := s.Generate(context.Background(), nutrientCtx(), nil)
	require.NoError(t, err)

	snap := s.Metrics().PerProvider["openai"]
	assert.GreaterOrEqual(t, snap.Cost.DailyTotal, 5.0)
}

func TestSimulateNeverCallsProviders(t *testing.T) {
	p := newSimProvider(t, "openai")
	s := newTestService(t,
		WithProviderInstance(simProviderConfig("openai", 1), p, p.Client()),
	)

	result, err := s.Simulate(types.EntityNutrient, nil)
	require.NoError(t, err)

	assert.Equal(t, "simulator", result.Provider)
	assert.True(t, result.Metadata.Simulated)
	assert.True(t, result.Validation.IsValid)
	assert.Equal(t, 0, p.Calls())
}

func TestValidateSurface(t *testing.T) {
	s := newTestService(t)

	res, err := s.Validate(types.EntityNutrient, map[string]any{"description": "too short"}, "v1")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Less(t, res.Metrics.Completeness, 1.0)
}

func TestMetricsSnapshot(t *testing.T) {
	p := newSimProvider(t, "openai")
	s := newTestService(t,
		WithProviderInstance(simProviderConfig("openai", 1), p, p.Client()),
	)

	_, err := s.Generate(context.Background(), nutrientCtx(), nil)
	require.NoError(t, err)

	snap := s.Metrics()
	assert.Equal(t, int64(1), snap.Global.Operations)
	assert.Equal(t, int64(1), snap.Global.Succeeded)
	assert.Equal(t, int64(0), snap.Current.InFlightOperations)

	pm, ok := snap.PerProvider["openai"]
	require.True(t, ok)
	assert.Equal(t, int64(1), pm.Performance.Attempts)
	assert.Positive(t, pm.Cost.DailyTotal)
}

func TestAuditTrail(t *testing.T) {
	p := newSimProvider(t, "openai")
	s := newTestService(t,
		WithProviderInstance(simProviderConfig("openai", 1), p, p.Client()),
	)

	_, err := s.Generate(context.Background(), nutrientCtx(), nil)
	require.NoError(t, err)

	events, err := s.Audit().Recent(context.Background(), 10)
	require.NoError(t, err)

	counts := make(map[string]int)
	for _, ev := range events {
		counts[string(ev.Type)]++
	}
	assert.Equal(t, 1, counts["selection"])
	assert.Equal(t, 1, counts["validation"])
	assert.Equal(t, 1, counts["generation"])
}
