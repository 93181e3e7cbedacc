package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enricherrors "github.com/vitalyst/enrich/pkg/errors"
	"github.com/vitalyst/enrich/pkg/provider"
)

func cfg(name string, priority int, models ...string) provider.Config {
	mcs := make([]provider.ModelConfig, len(models))
	for i, m := range models {
		mcs[i] = provider.ModelConfig{Name: m, MaxTokens: 1000, Priority: i}
	}
	return provider.Config{Name: name, Type: name, Priority: priority, Models: mcs}
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(cfg("openai", 0, "gpt-4o"), nil))

	e, ok := r.Get("openai")
	require.True(t, ok)
	assert.Equal(t, "openai", e.Config.Name)
	// Normalize fills retry defaults on registration.
	assert.Equal(t, 3, e.Config.Retry.MaxRetries)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := New()
	err := r.Register(provider.Config{Models: []provider.ModelConfig{{Name: "m"}}}, nil)
	require.Error(t, err)
}

func TestRegisterConflictingModels(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(cfg("openai", 0, "gpt-4o"), nil))

	// Identical model set is an idempotent no-op.
	require.NoError(t, r.Register(cfg("openai", 0, "gpt-4o"), nil))

	err := r.Register(cfg("openai", 0, "gpt-4o-mini"), nil)
	require.Error(t, err)
	var ee *enricherrors.EnrichError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, enricherrors.TypeConfig, ee.Type)
}

func TestListOrderedByPriority(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(cfg("anthropic", 1, "claude-3-sonnet"), nil))
	require.NoError(t, r.Register(cfg("openai", 0, "gpt-4o"), nil))
	require.NoError(t, r.Register(cfg("azure", 1, "gpt-4o"), nil))

	assert.Equal(t, []string{"openai", "anthropic", "azure"}, r.Names())
}

func TestDefaultModelPicksHighestPriority(t *testing.T) {
	c := provider.Config{Models: []provider.ModelConfig{
		{Name: "gpt-4o-mini", Priority: 2},
		{Name: "gpt-4o", Priority: 1},
	}}
	assert.Equal(t, "gpt-4o", c.DefaultModel().Name)
}

func TestUpdateMetadataSwapsPricing(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(cfg("openai", 0, "gpt-4o"), nil))

	before, _ := r.Get("openai")

	next := cfg("openai", 0, "gpt-4o-mini")
	next.Cost = provider.CostConfig{CostPerToken: 0.002, CostPerRequest: 0.1}
	require.True(t, r.UpdateMetadata(next))

	after, _ := r.Get("openai")
	assert.InDelta(t, 0.002, after.Config.Cost.CostPerToken, 1e-9)
	assert.Equal(t, "gpt-4o-mini", after.Config.Models[0].Name)

	// Copy-on-write: the pre-update entry is untouched.
	assert.Zero(t, before.Config.Cost.CostPerToken)
	assert.Equal(t, "gpt-4o", before.Config.Models[0].Name)
}

func TestUpdateMetadataUnknownProvider(t *testing.T) {
	r := New()
	assert.False(t, r.UpdateMetadata(cfg("missing", 0, "m")))
}

func TestUpdateMetadataKeepsModelsWhenOmitted(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(cfg("openai", 0, "gpt-4o"), nil))

	require.True(t, r.UpdateMetadata(provider.Config{
		Name: "openai",
		Cost: provider.CostConfig{CostPerRequest: 0.25},
	}))

	e, _ := r.Get("openai")
	assert.Equal(t, "gpt-4o", e.Config.Models[0].Name)
	assert.InDelta(t, 0.25, e.Config.Cost.CostPerRequest, 1e-9)
}
