package ratelimit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalyst/enrich/pkg/provider"
)

func TestTryAcquireUnknownProvider(t *testing.T) {
	l := New()
	assert.False(t, l.TryAcquire("nope", 10))
}

func TestConcurrencyCap(t *testing.T) {
	l := New()
	l.Configure("openai", provider.RateLimitConfig{MaxConcurrent: 2})

	assert.True(t, l.TryAcquire("openai", 0))
	assert.True(t, l.TryAcquire("openai", 0))
	assert.False(t, l.TryAcquire("openai", 0), "third acquire must fail at the cap")

	l.Release("openai")
	assert.True(t, l.TryAcquire("openai", 0), "release frees a slot")
}

func TestRequestsPerMinute(t *testing.T) {
	l := New()
	l.Configure("openai", provider.RateLimitConfig{RequestsPerMinute: 1, MaxConcurrent: 10})

	assert.True(t, l.TryAcquire("openai", 0))
	l.Release("openai")

	// Window refills at 1/60 per second; the second request inside the
	// same instant must be denied.
	assert.False(t, l.TryAcquire("openai", 0))
}

func TestTokensPerMinute(t *testing.T) {
	l := New()
	l.Configure("openai", provider.RateLimitConfig{TokensPerMinute: 100, MaxConcurrent: 10})

	assert.True(t, l.TryAcquire("openai", 60))
	assert.False(t, l.TryAcquire("openai", 60), "window has only 40 tokens left")
	assert.True(t, l.TryAcquire("openai", 40))
}

func TestOversizedTokenRequestDenied(t *testing.T) {
	l := New()
	l.Configure("openai", provider.RateLimitConfig{TokensPerMinute: 100, MaxConcurrent: 10})
	assert.False(t, l.TryAcquire("openai", 500))
}

func TestDenialDoesNotConsumeRequestBudget(t *testing.T) {
	l := New()
	l.Configure("openai", provider.RateLimitConfig{
		RequestsPerMinute: 2,
		TokensPerMinute:   100,
		MaxConcurrent:     10,
	})

	// Token denial must cancel the request reservation.
	assert.False(t, l.TryAcquire("openai", 500))
	assert.True(t, l.TryAcquire("openai", 50))
	assert.True(t, l.TryAcquire("openai", 50))
}

func TestReleaseBelowZeroIsNoop(t *testing.T) {
	l := New()
	l.Configure("openai", provider.RateLimitConfig{MaxConcurrent: 1})
	l.Release("openai")
	assert.Equal(t, 0, l.InFlight("openai"))
}

func TestConcurrentAcquireRespectsCap(t *testing.T) {
	l := New()
	cap := 5
	l.Configure("openai", provider.RateLimitConfig{MaxConcurrent: cap})

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("openai", 0) {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, cap, acquired)
	assert.Equal(t, cap, l.InFlight("openai"))
}

func TestSnapshot(t *testing.T) {
	l := New()
	l.Configure("openai", provider.RateLimitConfig{
		RequestsPerMinute: 10,
		TokensPerMinute:   1000,
		MaxConcurrent:     3,
	})
	require.True(t, l.TryAcquire("openai", 100))
	assert.False(t, l.TryAcquire("nope", 0))

	s, ok := l.Snapshot("openai")
	require.True(t, ok)
	assert.Equal(t, 1, s.InFlight)
	assert.Equal(t, 10, s.RequestsPerMinute)
	assert.InDelta(t, 9, s.AvailableRequests, 1)
	assert.InDelta(t, 900, s.AvailableTokens, 10)

	_, ok = l.Snapshot("nope")
	assert.False(t, ok)
}
