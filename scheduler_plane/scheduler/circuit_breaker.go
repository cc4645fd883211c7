package scheduler

import (
	"sync"
	"time"

	"github.com/itskum47/TaskFlux/scheduler_plane/observability"
)

// CircuitBreaker guards the predictor. It opens on the N-th consecutive
// failure and closes on any successful prediction. There is no persistent
// half-open state: once open, prediction is skipped except for a single
// probe allowed each time probeInterval elapses since the last failure.
type CircuitBreaker struct {
	mu sync.Mutex

	consecutiveFailures int
	lastFailure         time.Time
	open                bool

	threshold     int
	probeInterval time.Duration
	lastProbe     time.Time
}

// BreakerState is a point-in-time snapshot for debugging and tests.
type BreakerState struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure"`
	Open                bool      `json:"open"`
}

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive failures and probes every probeInterval while open.
func NewCircuitBreaker(threshold int, probeInterval time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 3
	}
	return &CircuitBreaker{
		threshold:     threshold,
		probeInterval: probeInterval,
	}
}

// AllowAttempt reports whether the dispatcher may call the predictor now.
// Closed: always. Open: only when the probe interval has elapsed since the
// later of the last failure and the last probe; claiming the probe re-arms
// the interval.
func (cb *CircuitBreaker) AllowAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return true
	}
	if cb.probeInterval <= 0 {
		return false
	}
	since := cb.lastFailure
	if cb.lastProbe.After(since) {
		since = cb.lastProbe
	}
	if time.Since(since) >= cb.probeInterval {
		cb.lastProbe = time.Now()
		return true
	}
	return false
}

// RecordSuccess resets all breaker state. One success closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasOpen := cb.open
	cb.consecutiveFailures = 0
	cb.lastFailure = time.Time{}
	cb.lastProbe = time.Time{}
	cb.open = false

	if wasOpen {
		observability.CircuitBreakerTransitions.WithLabelValues("closed").Inc()
	}
	observability.CircuitBreakerState.Set(0)
}

// RecordFailure counts one predictor failure and opens the circuit at the
// threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailure = time.Now()
	if cb.consecutiveFailures >= cb.threshold && !cb.open {
		cb.open = true
		observability.CircuitBreakerTransitions.WithLabelValues("open").Inc()
		observability.CircuitBreakerState.Set(1)
	}
}

// IsOpen reports the open flag.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}

// State returns a snapshot.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerState{
		ConsecutiveFailures: cb.consecutiveFailures,
		LastFailure:         cb.lastFailure,
		Open:                cb.open,
	}
}
