package healthcache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/faceguard/api-gateway/internal/healthcheck"
)

const (
	FreshnessFresh = "fresh"
	FreshnessStale = "stale"
	FreshnessLive  = "live"
)

// GatewayStats is the gateway's own health summary embedded in the
// aggregated snapshot.
type GatewayStats struct {
	UptimeMs        int64 `json:"uptime_ms"`
	TotalRequests   int64 `json:"total_requests"`
	FallbacksServed int64 `json:"fallbacks_served"`
}

// StatsFunc supplies GatewayStats at snapshot time.
type StatsFunc func() GatewayStats

// Snapshot is one aggregated health payload: overall status plus every
// per-service probe result and the gateway's self-stats.
type Snapshot struct {
	Status    healthcheck.Status            `json:"status"`
	Timestamp time.Time                     `json:"timestamp"`
	Services  map[string]healthcheck.Result `json:"services"`
	Gateway   GatewayStats                  `json:"gateway"`
}

// CacheInfo annotates a response with how it was served.
type CacheInfo struct {
	ServedFromCache bool   `json:"served_from_cache"`
	AgeMs           *int64 `json:"age_ms,omitempty"`
	Freshness       string `json:"freshness"`
}

// Response is a snapshot plus its cache annotation.
type Response struct {
	Snapshot
	CacheInfo CacheInfo `json:"cache_info"`
}

// Cache owns the single aggregated health snapshot. Reads are served in three
// tiers: fresh (within TTL) straight from cache, usable stale (within twice
// the TTL) from cache while a background refresh runs, and cold via a
// synchronous refresh. Concurrent probes for the same service are coalesced
// so at most one is in flight.
type Cache struct {
	mutex      sync.Mutex
	snapshot   *Snapshot
	writtenAt  time.Time
	ttl        time.Duration
	refreshing atomic.Bool

	checker  *healthcheck.Checker
	services []string
	flight   singleflight.Group
	logger   *slog.Logger
	stats    StatsFunc
}

func New(logger *slog.Logger, checker *healthcheck.Checker, ttl time.Duration, stats StatsFunc) *Cache {
	if stats == nil {
		stats = func() GatewayStats { return GatewayStats{} }
	}

	return &Cache{
		ttl:      ttl,
		checker:  checker,
		services: checker.Services(),
		logger:   logger,
		stats:    stats,
	}
}

// Aggregated returns the aggregated health of all monitored services,
// preferring cached data per the tier rules above.
func (c *Cache) Aggregated(ctx context.Context) Response {
	c.mutex.Lock()
	snap := c.snapshot
	age := time.Since(c.writtenAt)
	c.mutex.Unlock()

	if snap != nil {
		if age < c.ttl {
			return cachedResponse(snap, age, FreshnessFresh)
		}

		if age < 2*c.ttl {
			c.refreshInBackground()
			return cachedResponse(snap, age, FreshnessStale)
		}
	}

	// A canceled caller must not poison the shared snapshot with
	// context-canceled probe results; probes carry their own timeout.
	fresh := c.refresh(context.WithoutCancel(ctx))
	return Response{
		Snapshot: *fresh,
		CacheInfo: CacheInfo{
			ServedFromCache: false,
			Freshness:       FreshnessLive,
		},
	}
}

// CheckService runs a single live probe for one service, coalesced with any
// probe already in flight for it.
func (c *Cache) CheckService(ctx context.Context, service string) healthcheck.Result {
	v, _, _ := c.flight.Do(service, func() (interface{}, error) {
		return c.checker.Check(ctx, service), nil
	})
	return v.(healthcheck.Result)
}

// refreshInBackground starts at most one asynchronous refresh at a time.
// Its errors stay local; the caller already got a stale response.
func (c *Cache) refreshInBackground() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer c.refreshing.Store(false)
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Background health refresh panicked", slog.Any("panic", r))
			}
		}()

		c.refresh(context.Background())
		c.logger.Debug("Background health refresh completed")
	}()
}

// refresh probes every service concurrently, stores the aggregate as the new
// snapshot and returns it. One service failing never aborts the others: probe
// closures always return nil, failures are folded into per-service results.
func (c *Cache) refresh(ctx context.Context) *Snapshot {
	results := make([]healthcheck.Result, len(c.services))

	var g errgroup.Group
	for i, service := range c.services {
		g.Go(func() error {
			results[i] = c.CheckService(ctx, service)
			return nil
		})
	}
	g.Wait()

	byService := make(map[string]healthcheck.Result, len(results))
	for _, r := range results {
		byService[r.Service] = r
	}

	snap := &Snapshot{
		Status:    Overall(results),
		Timestamp: time.Now(),
		Services:  byService,
		Gateway:   c.stats(),
	}

	c.mutex.Lock()
	c.snapshot = snap
	c.writtenAt = time.Now()
	c.mutex.Unlock()

	return snap
}

// Overall folds per-service statuses: healthy iff every service is healthy,
// unhealthy iff none is, degraded otherwise.
func Overall(results []healthcheck.Result) healthcheck.Status {
	healthy := 0
	for _, r := range results {
		if r.Status == healthcheck.StatusHealthy {
			healthy++
		}
	}

	switch {
	case healthy == len(results):
		return healthcheck.StatusHealthy
	case healthy == 0:
		return healthcheck.StatusUnhealthy
	default:
		return healthcheck.StatusDegraded
	}
}

func cachedResponse(snap *Snapshot, age time.Duration, freshness string) Response {
	ageMs := age.Milliseconds()
	return Response{
		Snapshot: *snap,
		CacheInfo: CacheInfo{
			ServedFromCache: true,
			AgeMs:           &ageMs,
			Freshness:       freshness,
		},
	}
}
