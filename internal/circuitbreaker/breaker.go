package circuitbreaker

import (
	"context"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Testing with one request
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// failureFloor is the minimum number of consecutive failures before the
// error-rate threshold is even considered.
const failureFloor = 5

// Config holds the process-wide breaker tuning shared by all services.
type Config struct {
	// Timeout is the deadline for a single Execute operation.
	Timeout time.Duration
	// ErrorThresholdPercent trips the circuit once the failure rate over
	// all requests reaches this percentage (and failureFloor is met).
	ErrorThresholdPercent float64
	// ResetTimeout is the cooldown before an open circuit probes again.
	ResetTimeout time.Duration
	// OnStateChange, if set, is notified after every state transition.
	// It is invoked outside the breaker's critical section.
	OnStateChange func(service string, from, to State)
}

// Stats is an immutable snapshot of a breaker's counters and state.
type Stats struct {
	Service         string     `json:"service"`
	State           string     `json:"state"`
	FailureCount    int        `json:"failure_count"`
	SuccessCount    int64      `json:"success_count"`
	RequestCount    int64      `json:"request_count"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
	LastSuccessTime *time.Time `json:"last_success_time,omitempty"`
}

// CircuitBreaker guards calls to a single upstream service. It fast-fails
// while OPEN, probes after the reset cooldown, and races every operation
// against the configured timeout.
type CircuitBreaker struct {
	mutex           sync.Mutex
	service         string
	state           State
	failureCount    int
	successCount    int64
	requestCount    int64
	lastFailureTime time.Time
	lastSuccessTime time.Time
	cfg             Config
}

func New(service string, cfg Config) *CircuitBreaker {
	return &CircuitBreaker{
		service: service,
		state:   StateClosed,
		cfg:     cfg,
	}
}

// Execute runs op through the breaker. While OPEN and inside the cooldown
// window it returns CircuitOpenError without invoking op. Otherwise op runs
// with a context that expires after the configured timeout; losing the race
// yields a TimeoutError and counts as a failure. The underlying error from a
// failing op is returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, cb.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			cb.onFailure()
			return err
		}
		cb.onSuccess()
		return nil
	case <-opCtx.Done():
		// Cancellation is cooperative: opCtx aborts context-aware I/O,
		// and a late result on done is simply discarded.
		cb.onFailure()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TimeoutError{Service: cb.service, Timeout: cb.cfg.Timeout}
	}
}

// beforeRequest counts the attempt and enforces the OPEN fast-fail path.
// The OPEN to HALF_OPEN transition is checked lazily here, on traffic,
// rather than by a background timer.
func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()

	cb.requestCount++

	if cb.state == StateOpen {
		if time.Since(cb.lastFailureTime) >= cb.cfg.ResetTimeout {
			cb.setState(StateHalfOpen)
		} else {
			cb.mutex.Unlock()
			return &CircuitOpenError{Service: cb.service}
		}
	}

	cb.mutex.Unlock()
	return nil
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mutex.Lock()

	cb.failureCount = 0
	cb.successCount++
	cb.lastSuccessTime = time.Now()

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}

	cb.mutex.Unlock()
}

func (cb *CircuitBreaker) onFailure() {
	cb.mutex.Lock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.state == StateHalfOpen {
		// A failed recovery probe reopens immediately.
		cb.setState(StateOpen)
		cb.mutex.Unlock()
		return
	}

	failureRate := float64(cb.failureCount) / float64(max(cb.requestCount, 1)) * 100
	if cb.failureCount >= failureFloor && failureRate >= cb.cfg.ErrorThresholdPercent {
		cb.setState(StateOpen)
	}

	cb.mutex.Unlock()
}

// setState transitions the breaker and schedules the OnStateChange callback.
// Must be called with the mutex held; the callback runs on its own goroutine
// so it can safely call back into the breaker.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}

	prev := cb.state
	cb.state = next

	if cb.cfg.OnStateChange != nil {
		go cb.cfg.OnStateChange(cb.service, prev, next)
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Stats returns a read-only snapshot of the breaker. It never blocks on
// in-flight operations and has no side effects.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	stats := Stats{
		Service:      cb.service,
		State:        cb.state.String(),
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		RequestCount: cb.requestCount,
	}

	if !cb.lastFailureTime.IsZero() {
		t := cb.lastFailureTime
		stats.LastFailureTime = &t
	}
	if !cb.lastSuccessTime.IsZero() {
		t := cb.lastSuccessTime
		stats.LastSuccessTime = &t
	}

	return stats
}

// Reset forces the breaker back to CLOSED with all counters zeroed.
// Administrative override only; steady-state logic never calls it.
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()

	cb.setState(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.requestCount = 0
	cb.lastFailureTime = time.Time{}
	cb.lastSuccessTime = time.Time{}

	cb.mutex.Unlock()
}
