// Package perf tracks per-provider and per-operation attempt outcomes.
// The success ratio and latency averages feed provider selection.
package perf

import (
	"sync"
	"time"
)

const (
	defaultHistorySize = 10
	maxTrackedOps      = 1024
	ewmaOldWeight      = 0.9
	ewmaNewWeight      = 0.1
)

// Attempt is one provider call within an operation.
type Attempt struct {
	Provider  string        `json:"provider"`
	StartedAt time.Time     `json:"started_at"`
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// Snapshot is a read-only view of one provider's performance counters.
type Snapshot struct {
	Provider     string  `json:"provider"`
	Attempts     int64   `json:"attempts"`
	Successes    int64   `json:"successes"`
	Failures     int64   `json:"failures"`
	Active       int64   `json:"active"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRatio float64 `json:"success_ratio"`
}

type providerStats struct {
	attempts       int64
	successes      int64
	failures       int64
	active         int64
	avgLatencyMs   float64
	latencyHistory []float64
	lastAttempt    time.Time
}

// Monitor records attempt outcomes. Safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	providers map[string]*providerStats
	ops       map[string][]Attempt
	opOrder   []string
	pending   map[string]time.Time // opID+provider -> start
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		providers: make(map[string]*providerStats),
		ops:       make(map[string][]Attempt),
		pending:   make(map[string]time.Time),
	}
}

// AttemptStart records the beginning of a provider call for an
// operation.
func (m *Monitor) AttemptStart(opID, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreate(provider)
	stats.active++
	m.pending[opID+"/"+provider] = time.Now()
}

// AttemptEnd records the outcome of a provider call. A nil err counts
// as success. Both halves must be called for every attempt.
func (m *Monitor) AttemptEnd(opID, provider string, err error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreate(provider)
	if stats.active > 0 {
		stats.active--
	}

	key := opID + "/" + provider
	start, ok := m.pending[key]
	if !ok {
		start = now
	}
	delete(m.pending, key)
	latency := now.Sub(start)

	stats.attempts++
	stats.lastAttempt = now
	latencyMs := float64(latency.Milliseconds())
	if err == nil {
		stats.successes++
		if stats.avgLatencyMs == 0 {
			stats.avgLatencyMs = latencyMs
		} else {
			stats.avgLatencyMs = stats.avgLatencyMs*ewmaOldWeight + latencyMs*ewmaNewWeight
		}
		m.appendHistory(stats, latencyMs)
	} else {
		stats.failures++
	}

	att := Attempt{
		Provider:  provider,
		StartedAt: start,
		Latency:   latency,
		Success:   err == nil,
	}
	if err != nil {
		att.Error = err.Error()
	}
	m.recordOpAttempt(opID, att)
}

// SuccessRatio returns the fraction of successful attempts for a
// provider. Providers with no history score a full 1.0 so new providers
// are not starved out of selection.
func (m *Monitor) SuccessRatio(provider string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.providers[provider]
	if !ok || stats.attempts == 0 {
		return 1.0
	}
	return float64(stats.successes) / float64(stats.attempts)
}

// Snapshot returns the current counters for a provider.
func (m *Monitor) Snapshot(provider string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.providers[provider]
	if !ok {
		return Snapshot{}, false
	}
	ratio := 1.0
	if stats.attempts > 0 {
		ratio = float64(stats.successes) / float64(stats.attempts)
	}
	return Snapshot{
		Provider:     provider,
		Attempts:     stats.attempts,
		Successes:    stats.successes,
		Failures:     stats.failures,
		Active:       stats.active,
		AvgLatencyMs: stats.avgLatencyMs,
		SuccessRatio: ratio,
	}, true
}

// Operation returns the attempts recorded for an operation ID, in order.
func (m *Monitor) Operation(opID string) []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempts := m.ops[opID]
	out := make([]Attempt, len(attempts))
	copy(out, attempts)
	return out
}

func (m *Monitor) getOrCreate(provider string) *providerStats {
	stats, ok := m.providers[provider]
	if !ok {
		stats = &providerStats{latencyHistory: make([]float64, 0, defaultHistorySize)}
		m.providers[provider] = stats
	}
	return stats
}

func (m *Monitor) appendHistory(stats *providerStats, latencyMs float64) {
	if len(stats.latencyHistory) < defaultHistorySize {
		stats.latencyHistory = append(stats.latencyHistory, latencyMs)
		return
	}
	copy(stats.latencyHistory[0:], stats.latencyHistory[1:])
	stats.latencyHistory[len(stats.latencyHistory)-1] = latencyMs
}

// recordOpAttempt keeps per-operation history bounded: once the cap is
// reached the oldest operation is evicted wholesale.
func (m *Monitor) recordOpAttempt(opID string, att Attempt) {
	if _, ok := m.ops[opID]; !ok {
		if len(m.opOrder) >= maxTrackedOps {
			oldest := m.opOrder[0]
			m.opOrder = m.opOrder[1:]
			delete(m.ops, oldest)
		}
		m.opOrder = append(m.opOrder, opID)
	}
	m.ops[opID] = append(m.ops[opID], att)
}
