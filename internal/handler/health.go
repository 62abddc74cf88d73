package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/faceguard/api-gateway/internal/circuitbreaker"
	"github.com/faceguard/api-gateway/internal/healthcache"
	"github.com/faceguard/api-gateway/internal/healthcheck"
	"github.com/faceguard/api-gateway/internal/metrics"
)

// HealthHandler serves the gateway's monitoring endpoints: aggregated health,
// per-service health, and circuit breaker introspection.
type HealthHandler struct {
	logger    *slog.Logger
	cache     *healthcache.Cache
	checker   *healthcheck.Checker
	breakers  *circuitbreaker.Registry
	collector *metrics.Collector
}

func NewHealthHandler(logger *slog.Logger, cache *healthcache.Cache, checker *healthcheck.Checker, breakers *circuitbreaker.Registry, collector *metrics.Collector) *HealthHandler {
	return &HealthHandler{
		logger:    logger,
		cache:     cache,
		checker:   checker,
		breakers:  breakers,
		collector: collector,
	}
}

// Aggregated handles GET /health: 200 when every service is healthy,
// 503 otherwise.
func (h *HealthHandler) Aggregated(w http.ResponseWriter, r *http.Request) {
	resp := h.cache.Aggregated(r.Context())

	if h.collector != nil {
		h.collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventCacheRead,
			Timestamp: time.Now(),
			CacheTier: resp.CacheInfo.Freshness,
		})
	}

	status := http.StatusOK
	if resp.Status != healthcheck.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

// Service handles GET /health/{service}: a single live probe, coalesced with
// any check already in flight.
func (h *HealthHandler) Service(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")

	if !h.checker.Known(service) {
		h.writeJSON(w, http.StatusNotFound, map[string]any{
			"error":      "Unknown Service",
			"message":    "no such service: " + service,
			"service":    service,
			"timestamp":  time.Now().UTC(),
			"statusCode": http.StatusNotFound,
		})
		return
	}

	result := h.cache.CheckService(r.Context(), service)

	status := http.StatusOK
	if result.Status != healthcheck.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, result)
}

// Breakers handles GET /health/circuit-breakers.
func (h *HealthHandler) Breakers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.breakers.Stats())
}

func (h *HealthHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode health response", slog.String("error", err.Error()))
	}
}
