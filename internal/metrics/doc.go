// Package metrics provides real-time metrics collection for the gateway.
//
// It uses a channel-based event pipeline to asynchronously collect metrics about:
//   - Forwarded request counts and latency percentiles (P50, P95, P99) per service
//   - Fallback responses served while circuits are open
//   - Upstream transport errors and circuit breaker trips
//   - Health cache reads by tier (fresh, stale, live)
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the request path. Events are emitted with non-blocking semantics
// and dropped under backpressure rather than stalling proxied requests.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventRequestForwarded,
//		Service:    "core-data",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot()
//
// The collector supports graceful shutdown with event draining to prevent
// data loss.
package metrics
