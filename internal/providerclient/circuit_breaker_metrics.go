package providerclient

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CircuitBreakerMetrics holds Prometheus metrics shared by every
// providerclient.CircuitBreaker in the process. Every vector is labeled
// with (kind, provider) — "reranker"/"cross-encoder", "vision"/"describe",
// and so on — because ORBIT runs many rerank and vision providers
// concurrently (one breaker per providerfactory cache entry), unlike a
// single-backend LLM client where one unlabeled counter was enough.
type CircuitBreakerMetrics struct {
	// State is the current state per (kind, provider): 0=closed, 1=open, 2=half_open.
	State *prometheus.GaugeVec

	// Failures tracks failed calls per (kind, provider).
	Failures *prometheus.CounterVec

	// Successes tracks successful calls per (kind, provider).
	Successes *prometheus.CounterVec

	// StateChanges tracks state transitions per (kind, provider, from, to).
	StateChanges *prometheus.CounterVec

	// RequestsBlocked tracks requests blocked while open, per (kind, provider).
	RequestsBlocked *prometheus.CounterVec

	// HalfOpenRequests tracks test requests in half-open state, per (kind, provider).
	HalfOpenRequests *prometheus.CounterVec

	// SlowCalls tracks calls exceeding the slow-call threshold, per (kind, provider).
	SlowCalls *prometheus.CounterVec

	// CallDuration tracks call latency per (kind, provider, result).
	CallDuration *prometheus.HistogramVec
}

var (
	// Global singleton metrics instance to prevent duplicate registration;
	// every CircuitBreaker records into this one set of vectors, keyed by
	// its own (kind, provider) label pair.
	defaultMetrics     *CircuitBreakerMetrics
	defaultMetricsOnce sync.Once
)

// NewCircuitBreakerMetrics returns the process-wide provider circuit
// breaker metrics, under the orbit/provider_circuit_breaker namespace.
func NewCircuitBreakerMetrics() *CircuitBreakerMetrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewCircuitBreakerMetricsWithNamespace("orbit", "provider_circuit_breaker")
	})
	return defaultMetrics
}

// NewCircuitBreakerMetricsWithNamespace creates metrics with a custom
// namespace/subsystem. Call at most once per namespace/subsystem pair —
// promauto panics on duplicate registration.
func NewCircuitBreakerMetricsWithNamespace(namespace, subsystem string) *CircuitBreakerMetrics {
	identity := []string{"kind", "provider"}

	return &CircuitBreakerMetrics{
		State: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state",
			Help:      "Current state of a provider's circuit breaker (0=closed, 1=open, 2=half_open)",
		}, identity),

		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Total number of failed calls to a provider (includes slow calls)",
		}, identity),

		Successes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "successes_total",
			Help:      "Total number of successful calls to a provider",
		}, identity),

		StateChanges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "state_changes_total",
				Help:      "Total number of circuit breaker state changes per provider",
			},
			[]string{"kind", "provider", "from", "to"},
		),

		RequestsBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_blocked_total",
			Help:      "Total number of requests blocked by an open circuit breaker, per provider",
		}, identity),

		HalfOpenRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "half_open_requests_total",
			Help:      "Total number of half-open test requests, per provider",
		}, identity),

		SlowCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slow_calls_total",
			Help:      "Total number of slow calls (exceeding threshold), per provider",
		}, identity),

		CallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "call_duration_seconds",
				Help:      "Duration of provider calls in seconds (enables p50/p95/p99 analysis)",
				// Buckets span a single vision call (sub-second) through a
				// large-batch rerank call (tens of documents in one request).
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0, 30.0},
			},
			[]string{"kind", "provider", "result"},
		),
	}
}
