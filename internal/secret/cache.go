package secret

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedResolver decorates a Resolver with in-memory caching so secret
// stores are not hit on every config reload.
type CachedResolver struct {
	inner Resolver
	cache *cache.Cache
}

// NewCachedResolver caches values from inner for ttl.
func NewCachedResolver(inner Resolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: cache.New(ttl, ttl*2),
	}
}

func (r *CachedResolver) Get(ctx context.Context, path string) (string, error) {
	if val, found := r.cache.Get(path); found {
		if str, ok := val.(string); ok {
			return str, nil
		}
	}
	val, err := r.inner.Get(ctx, path)
	if err != nil {
		return "", err
	}
	r.cache.Set(path, val, cache.DefaultExpiration)
	return val, nil
}

func (r *CachedResolver) Close() error {
	return r.inner.Close()
}
