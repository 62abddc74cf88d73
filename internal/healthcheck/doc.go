// Package healthcheck implements bounded-time health probing for upstream
// services. Each probe runs through the service's circuit breaker and is
// normalized to healthy, degraded or unhealthy.
package healthcheck
