// Package providers maps provider type names to adapter factories, so
// new backends are added by registration rather than by editing
// orchestration logic.
package providers

import (
	"sort"
	"sync"

	"github.com/vitalyst/enrich/pkg/errors"
	"github.com/vitalyst/enrich/pkg/provider"
	"github.com/vitalyst/enrich/providers/anthropic"
	"github.com/vitalyst/enrich/providers/openai"
)

var (
	registry     = make(map[string]provider.Factory)
	registryOnce sync.Once
	registryMu   sync.RWMutex
)

// Register binds a factory to a provider type name.
func Register(providerType string, factory provider.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[providerType] = factory
}

// Create builds an adapter instance from configuration.
func Create(cfg provider.Config) (provider.Provider, error) {
	RegisterBuiltins()

	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NewConfigError("unknown provider type " + cfg.Type)
	}
	return factory(cfg)
}

// List returns the registered provider type names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterBuiltins registers the built-in adapter factories. Called
// automatically on first Create.
func RegisterBuiltins() {
	registryOnce.Do(func() {
		Register("openai", openai.New)
		Register("anthropic", anthropic.New)
	})
}
