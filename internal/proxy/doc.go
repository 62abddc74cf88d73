// Package proxy guards reverse-proxied requests with per-service circuit
// breakers. When a circuit is open it serves a precomputed fallback payload
// selected by the request path; any other upstream failure produces a stable
// JSON error body. A send-once guard makes response writing idempotent so
// racing completion paths can never produce two responses.
package proxy
