// Package upstream implements reverse proxy forwarding to the gateway's
// backing services. Each upstream owns a route prefix, rewrites paths to the
// service's own URL space, and reports transport failures to the caller
// instead of writing its own error responses.
package upstream
