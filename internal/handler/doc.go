// Package handler implements the gateway's health and introspection HTTP
// endpoints: aggregated health, per-service probes and circuit breaker stats.
package handler
