// Package secret resolves provider API keys from external stores.
// References use a URI scheme prefix ("env://OPENAI_API_KEY",
// "vault://secret/data/openai#api_key"); a bare value with no scheme is
// treated as the secret itself.
package secret

import (
	"context"
	"strings"
	"sync"

	"github.com/vitalyst/enrich/pkg/errors"
)

// Resolver fetches a secret value for a store-specific path.
type Resolver interface {
	Get(ctx context.Context, path string) (string, error)
	Close() error
}

// Manager routes secret references to the Resolver registered for their
// scheme.
type Manager struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

// NewManager returns a Manager with the env resolver pre-registered.
func NewManager() *Manager {
	m := &Manager{resolvers: make(map[string]Resolver)}
	m.Register("env", EnvResolver{})
	return m
}

// Register binds a resolver to a scheme, replacing any previous one.
func (m *Manager) Register(scheme string, r Resolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvers[scheme] = r
}

// Resolve returns the secret value for ref. A ref without a scheme is
// returned verbatim.
func (m *Manager) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, path, found := strings.Cut(ref, "://")
	if !found {
		return ref, nil
	}

	m.mu.RLock()
	r, ok := m.resolvers[scheme]
	m.mu.RUnlock()
	if !ok {
		return "", errors.NewConfigError("no secret resolver registered for scheme " + scheme)
	}
	return r.Get(ctx, path)
}

// Close closes every registered resolver, returning the first error.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var firstErr error
	for _, r := range m.resolvers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
