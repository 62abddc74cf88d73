package main

import (
	"net/http"

	"github.com/faceguard/api-gateway/internal/handler"
	"github.com/faceguard/api-gateway/internal/metrics"
)

func setupRouter(healthHandler *handler.HealthHandler, collector *metrics.Collector, guards map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.Aggregated)
	mux.HandleFunc("GET /health/circuit-breakers", healthHandler.Breakers)
	mux.HandleFunc("GET /health/{service}", healthHandler.Service)
	mux.HandleFunc("GET /metrics", collector.Handler())

	for prefix, guard := range guards {
		mux.Handle(prefix, guard)
		mux.Handle(prefix+"/", guard)
	}

	return mux
}
