// Package metrics exposes Prometheus collectors for the orchestration
// layer: attempts, latencies, cost, budget alerts, and rate-limit
// denials.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "enrich"

// LatencyBuckets covers the expected AI call latency range, from local
// simulator calls to slow remote completions.
var LatencyBuckets = []float64{
	0.005, 0.025, 0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 5.0,
	7.5, 10.0, 15.0, 20.0, 30.0, 60.0, 120.0,
}

var (
	// GenerateRequests counts generate calls by terminal outcome.
	GenerateRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_requests_total",
			Help:      "Total generate calls by entity type, provider, and outcome",
		},
		[]string{"entity_type", "provider", "outcome"},
	)

	// ProviderAttempts counts individual provider call attempts.
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Total provider call attempts by result",
		},
		[]string{"provider", "result"},
	)

	// AttemptLatency tracks per-attempt provider call latency.
	AttemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_latency_seconds",
			Help:      "Provider call attempt latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider"},
	)

	// InFlight tracks concurrently executing provider calls.
	InFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_calls",
			Help:      "Provider calls currently in flight",
		},
		[]string{"provider"},
	)

	// RateLimitDenials counts tryAcquire denials.
	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Rate limiter acquisition denials",
		},
		[]string{"provider"},
	)

	// CostTracked accumulates tracked spend in USD.
	CostTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Tracked provider spend in USD",
		},
		[]string{"provider"},
	)

	// BudgetAlerts counts budget threshold crossings.
	BudgetAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_alerts_total",
			Help:      "Budget alerts fired, by level",
		},
		[]string{"provider", "level"},
	)

	// ValidationFailures counts responses rejected by the validator.
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Responses failing schema validation",
		},
		[]string{"entity_type"},
	)

	// TokensUsed accumulates provider-reported token usage.
	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Provider-reported token usage",
		},
		[]string{"provider", "kind"},
	)
)
