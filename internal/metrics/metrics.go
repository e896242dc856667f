// Package metrics provides Prometheus metrics for the explanation engine.
// It tracks request outcomes, cache behavior, generation attempts, token
// usage, and durable-store eviction.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tutormux"
)

// LatencyBuckets defines histogram buckets for generation latency, in
// seconds. Generation calls are slow relative to cache hits, so the
// buckets skew toward multi-second tails.
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1.0, 1.5, 2.0, 2.5, 3.0,
	4.0, 5.0, 7.5, 10.0, 15.0, 20.0, 30.0, 60.0,
}

// =============================================================================
// Request Metrics
// =============================================================================

var (
	// RequestsTotal counts explanation requests by how they resolved.
	// Outcome is one of: fast_hit, durable_hit, generated, fallback, error.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total explanation requests by outcome",
		},
		[]string{"outcome"},
	)

	// RequestsRejected counts requests rejected before reaching the cache.
	RequestsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Requests rejected by input validation",
		},
		[]string{"error_code"},
	)

	// RequestLatency tracks end-to-end request latency.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "End-to-end request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"outcome"},
	)
)

// =============================================================================
// Cache Metrics
// =============================================================================

var (
	// CacheHits counts cache hits by tier (fast or durable).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits by storage tier",
		},
		[]string{"tier"},
	)

	// CacheMisses counts requests that missed both tiers.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Requests that missed both cache tiers",
		},
	)

	// CacheEvictions counts entries removed by LRU eviction.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries removed from the durable store by LRU eviction",
		},
	)

	// CoalescedRequests counts requests that joined an in-flight
	// generation for the same key instead of starting their own.
	CoalescedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_requests_total",
			Help:      "Requests that joined an in-flight generation for the same key",
		},
	)
)

// =============================================================================
// Generation Metrics
// =============================================================================

var (
	// GenerationAttempts counts individual generation attempts by model
	// tier and result.
	GenerationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Generation attempts by model tier and result",
		},
		[]string{"tier", "result"},
	)

	// GenerationLatency tracks per-attempt generation latency.
	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Per-attempt generation latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"tier"},
	)

	// PromptTokens counts estimated prompt tokens sent to generation.
	PromptTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_tokens_total",
			Help:      "Estimated prompt tokens sent to generation",
		},
		[]string{"tier"},
	)
)
