package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestForwarded EventType = "request_forwarded"
	EventFallbackServed   EventType = "fallback_served"
	EventUpstreamError    EventType = "upstream_error"
	EventBreakerOpened    EventType = "breaker_opened"
	EventCacheRead        EventType = "cache_read"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Service    string
	Duration   time.Duration
	StatusCode int
	CacheTier  string
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit sends an event without blocking; events are dropped when the buffer
// is full rather than stalling the request path.
func (c *Collector) Emit(event MetricEvent) {
	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestForwarded:
		c.metrics.RecordForward(event.Service, event.Duration, event.StatusCode)

	case EventFallbackServed:
		c.metrics.RecordFallback(event.Service)

	case EventUpstreamError:
		c.metrics.RecordUpstreamError(event.Service)

	case EventBreakerOpened:
		c.metrics.RecordBreakerOpen(event.Service)

	case EventCacheRead:
		c.metrics.RecordCacheRead(event.CacheTier)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

// Totals exposes the lifetime request/fallback counters and uptime.
func (c *Collector) Totals() (requests, fallbacks int64, uptime time.Duration) {
	return c.metrics.Totals()
}
