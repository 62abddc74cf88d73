package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// CircuitOpenError signals a fast-fail: the breaker is OPEN and the wrapped
// operation was never invoked.
type CircuitOpenError struct {
	Service string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open for service %q", e.Service)
}

// TimeoutError is raised when the operation loses the race against the
// breaker's deadline.
type TimeoutError struct {
	Service string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation for service %q timed out after %s", e.Service, e.Timeout)
}

// IsCircuitOpen reports whether err is a fast-fail caused by an open circuit.
func IsCircuitOpen(err error) bool {
	var openErr *CircuitOpenError
	return errors.As(err, &openErr)
}

// IsTimeout reports whether err is a breaker-imposed timeout.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}
