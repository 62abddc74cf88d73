package healthcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/faceguard/api-gateway/internal/circuitbreaker"
	"github.com/faceguard/api-gateway/internal/upstream"
)

// Status is the normalized outcome of a single health probe.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// probeTimeout bounds a single health probe. Deliberately shorter than the
// general request timeout so a hung upstream cannot stall aggregation.
const probeTimeout = 5 * time.Second

// Result is the outcome of one probe against one service.
type Result struct {
	Service        string    `json:"service"`
	Status         Status    `json:"status"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Timestamp      time.Time `json:"timestamp"`
	Error          string    `json:"error,omitempty"`
}

// Checker probes upstream services through their circuit breakers.
type Checker struct {
	client    *http.Client
	logger    *slog.Logger
	breakers  *circuitbreaker.Registry
	upstreams map[string]*upstream.Upstream
}

func NewChecker(logger *slog.Logger, breakers *circuitbreaker.Registry, upstreams []*upstream.Upstream) *Checker {
	byName := make(map[string]*upstream.Upstream, len(upstreams))
	for _, u := range upstreams {
		byName[u.Name()] = u
	}

	return &Checker{
		client:    &http.Client{Timeout: probeTimeout},
		logger:    logger,
		breakers:  breakers,
		upstreams: byName,
	}
}

// Services lists the monitored service identifiers.
func (c *Checker) Services() []string {
	names := make([]string, 0, len(c.upstreams))
	for name := range c.upstreams {
		names = append(names, name)
	}
	return names
}

// Known reports whether service is monitored by this checker.
func (c *Checker) Known(service string) bool {
	_, ok := c.upstreams[service]
	return ok
}

// Check issues one bounded probe against the service's health endpoint,
// routed through that service's circuit breaker. A 2xx response is healthy,
// any other status is degraded, and transport failures are unhealthy. An open
// circuit is reported as unhealthy rather than surfaced as an error.
func (c *Checker) Check(ctx context.Context, service string) Result {
	start := time.Now()

	u, ok := c.upstreams[service]
	if !ok {
		return Result{
			Service:   service,
			Status:    StatusUnhealthy,
			Timestamp: time.Now(),
			Error:     fmt.Sprintf("unknown service %q", service),
		}
	}

	// The op may outlive Execute when the timeout race fires, so it must not
	// share plain variables with this goroutine.
	var probeCode atomic.Int32
	err := c.breakers.GetBreaker(service).Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.HealthURL(), nil)
		if err != nil {
			return err
		}

		res, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		io.Copy(io.Discard, res.Body)

		probeCode.Store(int32(res.StatusCode))
		return nil
	})

	result := Result{
		Service:        service,
		ResponseTimeMs: float64(time.Since(start)) / float64(time.Millisecond),
		Timestamp:      time.Now(),
	}

	switch code := probeCode.Load(); {
	case err != nil:
		result.Status = StatusUnhealthy
		result.Error = err.Error()

		if circuitbreaker.IsCircuitOpen(err) {
			c.logger.Debug("Health probe skipped, circuit open",
				slog.String("service", service))
		} else {
			c.logger.Warn("Health probe failed",
				slog.String("service", service),
				slog.String("error", err.Error()))
		}
	case code >= 200 && code < 300:
		result.Status = StatusHealthy
	default:
		result.Status = StatusDegraded
	}

	return result
}
