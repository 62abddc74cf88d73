package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/faceguard/api-gateway/internal/circuitbreaker"
	"github.com/faceguard/api-gateway/internal/metrics"
	"github.com/faceguard/api-gateway/internal/upstream"
)

// errorBody is the stable JSON shape of every gateway-generated error.
type errorBody struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	Service    string    `json:"service"`
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"statusCode"`
}

// Guard proxies inbound requests to one upstream service through its circuit
// breaker. Exactly one response is written per request: upstream success,
// circuit-open fallback, or a generic unavailable body.
type Guard struct {
	logger    *slog.Logger
	upstream  *upstream.Upstream
	breaker   *circuitbreaker.CircuitBreaker
	collector *metrics.Collector
}

func NewGuard(logger *slog.Logger, u *upstream.Upstream, breaker *circuitbreaker.CircuitBreaker, collector *metrics.Collector) *Guard {
	return &Guard{
		logger:    logger,
		upstream:  u,
		breaker:   breaker,
		collector: collector,
	}
}

func (g *Guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	guard := newSendGuard(g.logger)
	gw := &guardedWriter{w: w, guard: guard}

	// Observability headers; set before any write so they ride along with
	// whichever response wins.
	w.Header().Set("X-Circuit-State", g.breaker.State().String())
	w.Header().Set("X-Gateway-Service", g.upstream.Name())

	// Per-call deadline for the whole guarded operation, independent of the
	// breaker's own timeout race.
	ctx, cancel := context.WithTimeout(r.Context(), g.upstream.Timeout())
	defer cancel()

	forwarded := make(chan struct{})

	start := time.Now()
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		defer close(forwarded)
		return g.upstream.Forward(gw, r.WithContext(ctx))
	})
	duration := time.Since(start)

	switch {
	case err == nil:
		g.logger.Debug("Forwarded request",
			slog.String("service", g.upstream.Name()),
			slog.String("path", r.URL.Path),
			slog.Int("status", gw.statusCode),
			slog.Duration("duration", duration))
		g.emit(metrics.MetricEvent{
			Type:       metrics.EventRequestForwarded,
			Timestamp:  time.Now(),
			Service:    g.upstream.Name(),
			Duration:   duration,
			StatusCode: gw.statusCode,
		})

	case circuitbreaker.IsCircuitOpen(err):
		g.writeFallback(w, r, guard)

	default:
		// The forward may still be streaming after a timeout. Cancel it and
		// wait for it to finish so no write can land on w once this handler
		// has returned. Fast-fails never reach here, so forwarded always
		// closes.
		cancel()
		<-forwarded

		g.logger.Warn("Upstream call failed",
			slog.String("service", g.upstream.Name()),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		g.writeUnavailable(w, guard)
		g.emit(metrics.MetricEvent{
			Type:      metrics.EventUpstreamError,
			Timestamp: time.Now(),
			Service:   g.upstream.Name(),
		})
	}
}

// writeFallback serves the precomputed payload for an open circuit, decorated
// with the breaker's state and a timestamp.
func (g *Guard) writeFallback(w http.ResponseWriter, r *http.Request, guard *sendGuard) {
	fb := FallbackFor(g.upstream.Name(), r.URL.Path)

	body := fb.payload()
	body["circuit_breaker"] = map[string]any{
		"state":   circuitbreaker.StateOpen.String(),
		"service": g.upstream.Name(),
		"stats":   g.breaker.Stats(),
	}
	body["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	g.logger.Info("Serving circuit-open fallback",
		slog.String("service", g.upstream.Name()),
		slog.String("path", r.URL.Path))

	writeJSON(w, guard, g.logger, fb.StatusCode, body)
	g.emit(metrics.MetricEvent{
		Type:      metrics.EventFallbackServed,
		Timestamp: time.Now(),
		Service:   g.upstream.Name(),
	})
}

func (g *Guard) writeUnavailable(w http.ResponseWriter, guard *sendGuard) {
	writeJSON(w, guard, g.logger, http.StatusServiceUnavailable, errorBody{
		Error:      "Service Temporarily Unavailable",
		Message:    "The " + g.upstream.Name() + " service is not responding",
		Service:    g.upstream.Name(),
		Timestamp:  time.Now().UTC(),
		StatusCode: http.StatusServiceUnavailable,
	})
}

func (g *Guard) emit(event metrics.MetricEvent) {
	if g.collector == nil {
		return
	}
	g.collector.Emit(event)
}
