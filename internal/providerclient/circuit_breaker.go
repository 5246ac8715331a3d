// Package providerclient implements a generic retrying HTTP client with a
// circuit breaker, used for the rerank and vision provider kinds that have
// no vendor Go SDK in the corpus (spec SPEC_FULL.md DOMAIN STACK). Unlike a
// single always-on LLM client, ORBIT may hold many Clients at once — one per
// (kind, provider_name, model_override) entry in the provider factory cache
// — so every breaker here is tagged with the kind and provider name it
// guards, and metrics carry those as labels rather than assuming one
// process-wide backend.
package providerclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means circuit breaker is operational - all requests pass through.
	StateClosed CircuitBreakerState = iota
	// StateOpen means circuit breaker is open - requests fail-fast without calling the backend.
	StateOpen
	// StateHalfOpen means circuit breaker is testing if the backend recovered - limited requests allowed.
	StateHalfOpen
)

// String returns human-readable state name.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// callResult represents a single call result for sliding window calculation.
type callResult struct {
	timestamp time.Time
	success   bool
	duration  time.Duration
	slow      bool
}

// CircuitBreaker guards one provider identity — a single (kind, name,
// model_override) entry behind providerfactory.Handle.Reranker or
// .Vision — against cascading failures by failing fast once that specific
// backend is unhealthy. A reranker backend going down does not trip the
// breaker guarding an unrelated vision backend: each providerclient.Client
// owns its own CircuitBreaker instance. Thread-safe for concurrent use.
type CircuitBreaker struct {
	// Identity, immutable after creation.
	kind         string
	providerName string

	// Configuration (immutable after creation)
	maxFailures      int
	resetTimeout     time.Duration
	failureThreshold float64
	timeWindow       time.Duration
	slowCallDuration time.Duration
	halfOpenMaxCalls int

	// State (protected by mutex)
	mu                   sync.RWMutex
	state                CircuitBreakerState
	failureCount         int
	successCount         int
	consecutiveFailures  int
	consecutiveSuccesses int
	lastStateChange      time.Time
	lastFailure          time.Time
	lastSuccess          time.Time
	halfOpenCalls        int

	// Sliding window for failure rate calculation
	callResults []callResult

	// Observability
	logger  *slog.Logger
	metrics *CircuitBreakerMetrics
}

// CircuitBreakerConfig holds configuration for a provider circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the threshold of consecutive failures before opening the circuit.
	MaxFailures int `mapstructure:"max_failures"`

	// ResetTimeout is the duration to wait in open state before transitioning to half-open.
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`

	// FailureThreshold is the failure rate (0.0-1.0) to trigger opening the circuit.
	FailureThreshold float64 `mapstructure:"failure_threshold"`

	// TimeWindow is the duration for calculating failure rate.
	TimeWindow time.Duration `mapstructure:"time_window"`

	// SlowCallDuration is the threshold above which calls are considered slow
	// (and counted as failures). Rerank calls fan out over many documents in
	// one HTTP round trip, so this threshold is typically set higher for a
	// reranker provider than for a single-image vision call.
	SlowCallDuration time.Duration `mapstructure:"slow_call_duration"`

	// HalfOpenMaxCalls is the number of test calls allowed in half-open state.
	HalfOpenMaxCalls int `mapstructure:"half_open_max_calls"`

	// Enabled controls whether the circuit breaker is active for this provider.
	Enabled bool `mapstructure:"enabled"`
}

// DefaultCircuitBreakerConfig returns production-ready default configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:      5,
		ResetTimeout:     30 * time.Second,
		FailureThreshold: 0.5, // 50% failure rate
		TimeWindow:       60 * time.Second,
		SlowCallDuration: 3 * time.Second,
		HalfOpenMaxCalls: 1,
		Enabled:          true,
	}
}

// Validate checks if configuration is valid.
func (c CircuitBreakerConfig) Validate() error {
	if c.MaxFailures <= 0 {
		return errors.New("max_failures must be positive")
	}
	if c.ResetTimeout <= 0 {
		return errors.New("reset_timeout must be positive")
	}
	if c.FailureThreshold < 0 || c.FailureThreshold > 1 {
		return errors.New("failure_threshold must be between 0 and 1")
	}
	if c.TimeWindow <= 0 {
		return errors.New("time_window must be positive")
	}
	if c.SlowCallDuration <= 0 {
		return errors.New("slow_call_duration must be positive")
	}
	if c.HalfOpenMaxCalls <= 0 {
		return errors.New("half_open_max_calls must be positive")
	}
	return nil
}

// NewCircuitBreaker creates a circuit breaker for one (kind, providerName)
// identity, e.g. ("reranker", "cross-encoder") or ("vision", "describe").
func NewCircuitBreaker(config CircuitBreakerConfig, kind, providerName string, logger *slog.Logger, metrics *CircuitBreakerMetrics) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	cb := &CircuitBreaker{
		kind:             kind,
		providerName:     providerName,
		maxFailures:      config.MaxFailures,
		resetTimeout:     config.ResetTimeout,
		failureThreshold: config.FailureThreshold,
		timeWindow:       config.TimeWindow,
		slowCallDuration: config.SlowCallDuration,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		state:            StateClosed,
		lastStateChange:  time.Now(),
		callResults:      make([]callResult, 0, 100),
		logger:           logger,
		metrics:          metrics,
	}

	if metrics != nil {
		metrics.State.WithLabelValues(kind, providerName).Set(float64(StateClosed))
	}

	return cb, nil
}

// Call executes the operation through the circuit breaker.
// Returns ErrCircuitBreakerOpen if circuit is open.
func (cb *CircuitBreaker) Call(ctx context.Context, operation func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	startTime := time.Now()
	err := operation(ctx)
	duration := time.Since(startTime)

	cb.afterCall(err, duration)

	return err
}

// beforeCall checks if request is allowed based on current state.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.resetTimeout {
			cb.transitionToHalfOpenUnsafe()
			return nil // Allow test request
		}

		if cb.metrics != nil {
			cb.metrics.RequestsBlocked.WithLabelValues(cb.kind, cb.providerName).Inc()
		}

		cb.logger.Debug("circuit breaker is open, request blocked",
			"kind", cb.kind, "provider", cb.providerName,
			"time_since_open", time.Since(cb.lastStateChange),
			"reset_timeout", cb.resetTimeout,
		)

		return ErrCircuitBreakerOpen

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			if cb.metrics != nil {
				cb.metrics.RequestsBlocked.WithLabelValues(cb.kind, cb.providerName).Inc()
			}
			return ErrCircuitBreakerOpen
		}

		cb.halfOpenCalls++
		if cb.metrics != nil {
			cb.metrics.HalfOpenRequests.WithLabelValues(cb.kind, cb.providerName).Inc()
		}

		return nil

	case StateClosed:
		return nil
	}

	return nil
}

// afterCall records the result and updates the state machine.
func (cb *CircuitBreaker) afterCall(err error, duration time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	isSlow := duration >= cb.slowCallDuration
	isSuccess := err == nil && !isSlow

	now := time.Now()
	cb.callResults = append(cb.callResults, callResult{
		timestamp: now,
		success:   isSuccess,
		duration:  duration,
		slow:      isSlow,
	})

	cb.cleanOldResultsUnsafe()

	if isSuccess {
		cb.successCount++
		cb.consecutiveSuccesses++
		cb.consecutiveFailures = 0
		cb.lastSuccess = now

		if cb.metrics != nil {
			cb.metrics.Successes.WithLabelValues(cb.kind, cb.providerName).Inc()
			cb.metrics.CallDuration.WithLabelValues(cb.kind, cb.providerName, "success").Observe(duration.Seconds())
		}

		cb.logger.Debug("circuit breaker recorded success",
			"kind", cb.kind, "provider", cb.providerName,
			"duration", duration,
			"consecutive_successes", cb.consecutiveSuccesses,
			"state", cb.state,
		)
	} else {
		cb.failureCount++
		cb.consecutiveFailures++
		cb.consecutiveSuccesses = 0
		cb.lastFailure = now

		if cb.metrics != nil {
			cb.metrics.Failures.WithLabelValues(cb.kind, cb.providerName).Inc()
			if isSlow {
				cb.metrics.SlowCalls.WithLabelValues(cb.kind, cb.providerName).Inc()
			}
			cb.metrics.CallDuration.WithLabelValues(cb.kind, cb.providerName, "failure").Observe(duration.Seconds())
		}

		cb.logger.Warn("circuit breaker recorded failure",
			"kind", cb.kind, "provider", cb.providerName,
			"error", err,
			"category", ClassifyError(cb.kind, err),
			"duration", duration,
			"slow", isSlow,
			"consecutive_failures", cb.consecutiveFailures,
			"state", cb.state,
		)
	}

	switch cb.state {
	case StateClosed:
		if cb.shouldOpenUnsafe() {
			cb.transitionToOpenUnsafe()
		}

	case StateHalfOpen:
		if isSuccess {
			cb.transitionToClosedUnsafe()
		} else {
			cb.transitionToOpenUnsafe()
		}
	}
}

// shouldOpenUnsafe determines if circuit should open (must be called with lock held).
func (cb *CircuitBreaker) shouldOpenUnsafe() bool {
	if len(cb.callResults) < cb.maxFailures {
		return false
	}

	if cb.consecutiveFailures >= cb.maxFailures {
		return true
	}

	totalCalls := len(cb.callResults)
	failures := 0
	for _, result := range cb.callResults {
		if !result.success {
			failures++
		}
	}

	failureRate := float64(failures) / float64(totalCalls)
	return failureRate >= cb.failureThreshold
}

// transitionToOpenUnsafe transitions to OPEN state (must be called with lock held).
func (cb *CircuitBreaker) transitionToOpenUnsafe() {
	oldState := cb.state
	cb.state = StateOpen
	cb.lastStateChange = time.Now()
	cb.halfOpenCalls = 0

	cb.logger.Warn("circuit breaker opened",
		"kind", cb.kind, "provider", cb.providerName,
		"previous_state", oldState,
		"failure_count", cb.failureCount,
		"consecutive_failures", cb.consecutiveFailures,
		"reset_timeout", cb.resetTimeout,
		"last_failure", cb.lastFailure.Format(time.RFC3339),
	)

	if cb.metrics != nil {
		cb.metrics.StateChanges.WithLabelValues(cb.kind, cb.providerName, oldState.String(), "open").Inc()
		cb.metrics.State.WithLabelValues(cb.kind, cb.providerName).Set(float64(StateOpen))
	}
}

// transitionToHalfOpenUnsafe transitions to HALF_OPEN state (must be called with lock held).
func (cb *CircuitBreaker) transitionToHalfOpenUnsafe() {
	oldState := cb.state
	cb.state = StateHalfOpen
	cb.lastStateChange = time.Now()
	cb.halfOpenCalls = 0

	cb.logger.Info("circuit breaker entering half-open state",
		"kind", cb.kind, "provider", cb.providerName,
		"previous_state", oldState,
		"time_since_open", time.Since(cb.lastFailure),
		"last_failure", cb.lastFailure.Format(time.RFC3339),
	)

	if cb.metrics != nil {
		cb.metrics.StateChanges.WithLabelValues(cb.kind, cb.providerName, oldState.String(), "half_open").Inc()
		cb.metrics.State.WithLabelValues(cb.kind, cb.providerName).Set(float64(StateHalfOpen))
	}
}

// transitionToClosedUnsafe transitions to CLOSED state (must be called with lock held).
func (cb *CircuitBreaker) transitionToClosedUnsafe() {
	oldState := cb.state
	cb.state = StateClosed
	cb.lastStateChange = time.Now()
	cb.halfOpenCalls = 0

	cb.failureCount = 0
	cb.consecutiveFailures = 0
	cb.callResults = make([]callResult, 0, 100)

	cb.logger.Info("circuit breaker closed",
		"kind", cb.kind, "provider", cb.providerName,
		"previous_state", oldState,
		"success_count", cb.successCount,
		"time_since_last_failure", time.Since(cb.lastFailure),
	)

	if cb.metrics != nil {
		cb.metrics.StateChanges.WithLabelValues(cb.kind, cb.providerName, oldState.String(), "closed").Inc()
		cb.metrics.State.WithLabelValues(cb.kind, cb.providerName).Set(float64(StateClosed))
	}
}

// cleanOldResultsUnsafe removes results outside time window (must be called with lock held).
func (cb *CircuitBreaker) cleanOldResultsUnsafe() {
	cutoff := time.Now().Add(-cb.timeWindow)

	firstValid := 0
	for i, result := range cb.callResults {
		if result.timestamp.After(cutoff) {
			firstValid = i
			break
		}
		cb.callResults[i] = callResult{}
	}

	if firstValid > 0 {
		cb.callResults = cb.callResults[firstValid:]
	}
}

// GetState returns current state (thread-safe).
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns current statistics (thread-safe).
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	var nextRetryAt time.Time
	if cb.state == StateOpen {
		nextRetryAt = cb.lastStateChange.Add(cb.resetTimeout)
	}

	return CircuitBreakerStats{
		Kind:                 cb.kind,
		ProviderName:         cb.providerName,
		State:                cb.state,
		FailureCount:         cb.failureCount,
		SuccessCount:         cb.successCount,
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		LastFailure:          cb.lastFailure,
		LastSuccess:          cb.lastSuccess,
		LastStateChange:      cb.lastStateChange,
		TotalCalls:           len(cb.callResults),
		NextRetryAt:          nextRetryAt,
	}
}

// Reset resets the circuit breaker to its initial closed state (for testing/manual intervention).
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenCalls = 0
	cb.callResults = make([]callResult, 0, 100)
	cb.lastStateChange = time.Now()

	cb.logger.Info("circuit breaker manually reset",
		"kind", cb.kind, "provider", cb.providerName,
		"previous_state", oldState,
	)

	if cb.metrics != nil {
		cb.metrics.State.WithLabelValues(cb.kind, cb.providerName).Set(float64(StateClosed))
	}
}

// CircuitBreakerStats holds a snapshot of circuit breaker statistics for one
// provider identity.
type CircuitBreakerStats struct {
	Kind                 string
	ProviderName         string
	State                CircuitBreakerState
	FailureCount         int
	SuccessCount         int
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastFailure          time.Time
	LastSuccess          time.Time
	LastStateChange      time.Time
	TotalCalls           int
	NextRetryAt          time.Time
}
