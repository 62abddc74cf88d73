// Package circuitbreaker implements the circuit breaker pattern for upstream
// service calls.
//
// A circuit breaker prevents cascading failures by temporarily fast-failing
// requests to a failing service. It has three states:
//
//   - CLOSED: Normal operation, requests pass through
//   - OPEN: Service failing, requests blocked
//   - HALF-OPEN: Testing if the service recovered
//
// The circuit trips once at least five consecutive failures accumulate and
// the overall failure rate reaches the configured percentage. An open circuit
// re-probes lazily: the first call after the reset cooldown transitions to
// HALF-OPEN and actually runs.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(circuitbreaker.Config{
//	    Timeout:               10 * time.Second,
//	    ErrorThresholdPercent: 50,
//	    ResetTimeout:          30 * time.Second,
//	})
//	cb := registry.GetBreaker("core-data")
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//	    // Call the upstream...
//	    return err
//	})
package circuitbreaker
