// Package healthcache aggregates per-service health probes into a single
// cached snapshot with bounded staleness.
//
// Reads are served in three tiers:
//
//   - fresh: snapshot younger than the TTL, returned as-is
//   - stale: snapshot within twice the TTL, returned immediately while a
//     background refresh runs
//   - live: no usable snapshot, a synchronous refresh blocks the caller
//
// A full refresh probes all services concurrently and never aborts early;
// a failing service contributes an unhealthy entry instead of failing the
// aggregate. Concurrent probes for the same service are coalesced to a
// single in-flight check whose result every caller shares.
package healthcache
