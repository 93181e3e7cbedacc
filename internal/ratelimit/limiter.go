// Package ratelimit tracks per-provider request, token, and concurrency
// budgets. A denial is immediate and feeds provider selection; the
// limiter never retries or blocks.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitalyst/enrich/pkg/provider"
)

// Snapshot is a read-only view of one provider's limiter state.
type Snapshot struct {
	Provider          string  `json:"provider"`
	RequestsPerMinute int     `json:"requests_per_minute"`
	TokensPerMinute   int     `json:"tokens_per_minute"`
	MaxConcurrent     int     `json:"max_concurrent"`
	AvailableRequests float64 `json:"available_requests"`
	AvailableTokens   float64 `json:"available_tokens"`
	InFlight          int     `json:"in_flight"`
	Denials           int64   `json:"denials"`
}

type providerLimiter struct {
	mu       sync.Mutex
	requests *rate.Limiter // nil when unlimited
	tokens   *rate.Limiter // nil when unlimited
	cfg      provider.RateLimitConfig
	inFlight int
	denials  int64
}

// Limiter answers whether a provider can accept a request right now.
// Windows refill continuously (token bucket), so counters roll rather
// than reset on calendar minute boundaries.
type Limiter struct {
	mu        sync.RWMutex
	providers map[string]*providerLimiter
}

// New creates an empty limiter. Providers are added via Configure.
func New() *Limiter {
	return &Limiter{providers: make(map[string]*providerLimiter)}
}

// Configure installs the budget for a provider. Called once at startup
// per provider, before any acquisition.
func (l *Limiter) Configure(name string, cfg provider.RateLimitConfig) {
	pl := &providerLimiter{cfg: cfg}
	if cfg.RequestsPerMinute > 0 {
		pl.requests = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}
	if cfg.TokensPerMinute > 0 {
		pl.tokens = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60.0), cfg.TokensPerMinute)
	}

	l.mu.Lock()
	l.providers[name] = pl
	l.mu.Unlock()
}

// TryAcquire reports whether the provider can accept a request costing
// estTokens tokens. On success the in-flight count is incremented and
// both window budgets are debited atomically; Release must be called on
// every exit path. Unknown providers are always denied.
func (l *Limiter) TryAcquire(name string, estTokens int) bool {
	l.mu.RLock()
	pl, ok := l.providers[name]
	l.mu.RUnlock()
	if !ok {
		return false
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.cfg.MaxConcurrent > 0 && pl.inFlight >= pl.cfg.MaxConcurrent {
		pl.denials++
		return false
	}

	now := time.Now()

	var reqRes *rate.Reservation
	if pl.requests != nil {
		reqRes = pl.requests.ReserveN(now, 1)
		if !reqRes.OK() || reqRes.DelayFrom(now) > 0 {
			reqRes.CancelAt(now)
			pl.denials++
			return false
		}
	}

	if pl.tokens != nil && estTokens > 0 {
		n := estTokens
		if n > pl.tokens.Burst() {
			// A single oversized request can never fit the window.
			if reqRes != nil {
				reqRes.CancelAt(now)
			}
			pl.denials++
			return false
		}
		tokRes := pl.tokens.ReserveN(now, n)
		if !tokRes.OK() || tokRes.DelayFrom(now) > 0 {
			tokRes.CancelAt(now)
			if reqRes != nil {
				reqRes.CancelAt(now)
			}
			pl.denials++
			return false
		}
	}

	pl.inFlight++
	return true
}

// Release decrements the in-flight count after a call completes,
// successfully or not. Releasing below zero is a no-op.
func (l *Limiter) Release(name string) {
	l.mu.RLock()
	pl, ok := l.providers[name]
	l.mu.RUnlock()
	if !ok {
		return
	}

	pl.mu.Lock()
	if pl.inFlight > 0 {
		pl.inFlight--
	}
	pl.mu.Unlock()
}

// InFlight returns the current in-flight count for a provider.
func (l *Limiter) InFlight(name string) int {
	l.mu.RLock()
	pl, ok := l.providers[name]
	l.mu.RUnlock()
	if !ok {
		return 0
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.inFlight
}

// Snapshot returns the current state of one provider's limiter.
func (l *Limiter) Snapshot(name string) (Snapshot, bool) {
	l.mu.RLock()
	pl, ok := l.providers[name]
	l.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	s := Snapshot{
		Provider:          name,
		RequestsPerMinute: pl.cfg.RequestsPerMinute,
		TokensPerMinute:   pl.cfg.TokensPerMinute,
		MaxConcurrent:     pl.cfg.MaxConcurrent,
		InFlight:          pl.inFlight,
		Denials:           pl.denials,
	}
	if pl.requests != nil {
		s.AvailableRequests = pl.requests.Tokens()
	}
	if pl.tokens != nil {
		s.AvailableTokens = pl.tokens.Tokens()
	}
	return s, true
}
