// Package registry implements the provider catalog. Providers are added
// by registration at startup; consumers read concurrently afterwards.
package registry

import (
	"fmt"
	"sort"
	"sync"

	enricherrors "github.com/vitalyst/enrich/pkg/errors"
	"github.com/vitalyst/enrich/pkg/provider"
)

// Entry pairs an immutable provider configuration with its adapter.
type Entry struct {
	Config   provider.Config
	Provider provider.Provider
}

// Registry is the catalog of configured providers. Single writer at
// startup, many readers afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds a provider. Registering the same name again is accepted
// only when the model set is identical; conflicting re-registration is a
// configuration error.
func (r *Registry) Register(cfg provider.Config, prov provider.Provider) error {
	if cfg.Name == "" {
		return enricherrors.NewConfigError("provider name is required")
	}
	if len(cfg.Models) == 0 {
		return enricherrors.NewConfigError(fmt.Sprintf("provider %q: at least one model is required", cfg.Name))
	}
	cfg.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[cfg.Name]; ok {
		if !sameModelSet(existing.Config.Models, cfg.Models) {
			return enricherrors.NewConfigError(
				fmt.Sprintf("provider %q registered twice with conflicting model sets", cfg.Name))
		}
		return nil
	}

	r.entries[cfg.Name] = &Entry{Config: cfg, Provider: prov}
	return nil
}

// UpdateMetadata replaces the pricing and model metadata of an
// already-registered provider. The entry is swapped copy-on-write, so
// operations holding the old entry keep a consistent view. Provider
// instances, credentials, and transport settings are fixed at
// registration; unknown names report false.
func (r *Registry) UpdateMetadata(cfg provider.Config) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[cfg.Name]
	if !ok {
		return false
	}

	updated := *existing
	updated.Config.Cost = cfg.Cost
	if len(cfg.Models) > 0 {
		updated.Config.Models = cfg.Models
	}
	r.entries[cfg.Name] = &updated
	return true
}

// Get returns the entry for a provider name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// List returns all entries ordered by configured priority, name as the
// final tiebreak so the order is stable.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Config.Priority != out[j].Config.Priority {
			return out[i].Config.Priority < out[j].Config.Priority
		}
		return out[i].Config.Name < out[j].Config.Name
	})
	return out
}

// Names returns provider names in List order.
func (r *Registry) Names() []string {
	entries := r.List()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Config.Name
	}
	return names
}

func sameModelSet(a, b []provider.ModelConfig) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, m := range a {
		seen[m.Name] = true
	}
	for _, m := range b {
		if !seen[m.Name] {
			return false
		}
	}
	return true
}
