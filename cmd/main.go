package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faceguard/api-gateway/config"
	"github.com/faceguard/api-gateway/internal/circuitbreaker"
	"github.com/faceguard/api-gateway/internal/handler"
	"github.com/faceguard/api-gateway/internal/healthcache"
	"github.com/faceguard/api-gateway/internal/healthcheck"
	"github.com/faceguard/api-gateway/internal/httpserver"
	"github.com/faceguard/api-gateway/internal/metrics"
	"github.com/faceguard/api-gateway/internal/proxy"
	"github.com/faceguard/api-gateway/internal/upstream"
	"github.com/faceguard/api-gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(1000, log)
	collector.Start(ctx)

	breakerCfg, err := buildBreakerConfig(cfg, log, collector)
	if err != nil {
		log.Error("Failed to build circuit breaker config", slog.Any("err", err))
		os.Exit(1)
	}
	registry := circuitbreaker.NewRegistry(breakerCfg)

	upstreams, err := buildUpstreams(cfg, log)
	if err != nil {
		log.Error("Failed to initialize upstream services", slog.Any("err", err))
		os.Exit(1)
	}

	checker := healthcheck.NewChecker(log, registry, upstreams)

	cacheTTL, err := time.ParseDuration(cfg.HealthCache.TTL)
	if err != nil {
		log.Error("Invalid health cache TTL", slog.Any("err", err))
		os.Exit(1)
	}

	cache := healthcache.New(log, checker, cacheTTL, func() healthcache.GatewayStats {
		requests, fallbacks, uptime := collector.Totals()
		return healthcache.GatewayStats{
			UptimeMs:        uptime.Milliseconds(),
			TotalRequests:   requests,
			FallbacksServed: fallbacks,
		}
	})

	healthHandler := handler.NewHealthHandler(log, cache, checker, registry, collector)

	guards := make(map[string]http.Handler, len(upstreams))
	for _, u := range upstreams {
		guards[u.RoutePrefix()] = proxy.NewGuard(log, u, registry.GetBreaker(u.Name()), collector)
	}

	mux := setupRouter(healthHandler, collector, guards)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("API gateway listening",
		slog.String("address", cfg.Server.Address),
		slog.Int("services", len(upstreams)))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting gateway", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildBreakerConfig(cfg *config.Config, log *slog.Logger, collector *metrics.Collector) (circuitbreaker.Config, error) {
	timeout, err := time.ParseDuration(cfg.CircuitBreaker.Timeout)
	if err != nil {
		return circuitbreaker.Config{}, err
	}

	resetTimeout, err := time.ParseDuration(cfg.CircuitBreaker.ResetTimeout)
	if err != nil {
		return circuitbreaker.Config{}, err
	}

	return circuitbreaker.Config{
		Timeout:               timeout,
		ErrorThresholdPercent: cfg.CircuitBreaker.ErrorThresholdPercent,
		ResetTimeout:          resetTimeout,
		OnStateChange: func(service string, from, to circuitbreaker.State) {
			log.Warn("Circuit breaker state changed",
				slog.String("service", service),
				slog.String("from", from.String()),
				slog.String("to", to.String()))

			if to == circuitbreaker.StateOpen {
				collector.Emit(metrics.MetricEvent{
					Type:      metrics.EventBreakerOpened,
					Timestamp: time.Now(),
					Service:   service,
				})
			}
		},
	}, nil
}

func buildUpstreams(cfg *config.Config, log *slog.Logger) ([]*upstream.Upstream, error) {
	var upstreams []*upstream.Upstream

	for _, sc := range cfg.Services {
		u, err := url.Parse(sc.URL)
		if err != nil {
			log.Error("Failed to parse service URL",
				slog.String("service", sc.Name),
				slog.String("url", sc.URL),
				slog.String("error", err.Error()))
			continue
		}

		timeout, err := time.ParseDuration(sc.Timeout)
		if err != nil {
			log.Error("Failed to parse service timeout",
				slog.String("service", sc.Name),
				slog.String("error", err.Error()))
			continue
		}

		upstreams = append(upstreams, upstream.New(sc.Name, u, sc.RoutePrefix, sc.TargetPrefix, timeout))
	}

	if len(upstreams) == 0 {
		return nil, os.ErrInvalid
	}

	return upstreams, nil
}
