package reservation

import (
	"sync"
	"time"
)

// State is one of the three circuit-breaker states described in spec §4.1.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// CircuitBreaker guards calls to the fast reservation store. It trips open
// after a run of consecutive failures, probes for recovery after a cooldown,
// and closes again on a successful probe. All state transitions happen
// under a single mutex so concurrent callers observe a consistent state.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenMaxCalls int

	state           State
	failureCount    int
	lastFailureAt   time.Time
	halfOpenCalls   int
}

func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration, halfOpenMaxCalls int) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
		state:            StateClosed,
	}
}

// Allow reports whether a call is permitted right now, transitioning
// open -> half-open when the recovery timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureAt) >= cb.recoveryTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 1 // this call is the first half-open probe
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenCalls < cb.halfOpenMaxCalls {
			cb.halfOpenCalls++
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets failure counters.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.halfOpenCalls = 0
}

// RecordFailure advances the failure count and trips the breaker open once
// the threshold is reached, or immediately on a half-open probe failure.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailureAt = time.Now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.failureThreshold {
		cb.state = StateOpen
	}
}

// Call executes fn if the breaker allows it, recording the outcome.
// ErrCircuitOpen is returned without invoking fn when the breaker is open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// CurrentState reports the breaker's state for health/metrics reporting.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
