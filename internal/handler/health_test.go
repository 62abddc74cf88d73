package handler_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/faceguard/api-gateway/internal/circuitbreaker"
	"github.com/faceguard/api-gateway/internal/handler"
	"github.com/faceguard/api-gateway/internal/healthcache"
	"github.com/faceguard/api-gateway/internal/healthcheck"
	"github.com/faceguard/api-gateway/internal/upstream"
)

var _ = Describe("HealthHandler", func() {
	var log *slog.Logger

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
	})

	newStack := func(upstreamURLs map[string]string, ttl time.Duration) (*handler.HealthHandler, *circuitbreaker.Registry) {
		registry := circuitbreaker.NewRegistry(circuitbreaker.Config{
			Timeout:               2 * time.Second,
			ErrorThresholdPercent: 50,
			ResetTimeout:          time.Minute,
		})

		var upstreams []*upstream.Upstream
		for name, raw := range upstreamURLs {
			u, err := url.Parse(raw)
			Expect(err).NotTo(HaveOccurred())
			upstreams = append(upstreams, upstream.New(name, u, "/api/"+name, "/"+name, time.Second))
		}

		checker := healthcheck.NewChecker(log, registry, upstreams)
		cache := healthcache.New(log, checker, ttl, nil)
		return handler.NewHealthHandler(log, cache, checker, registry, nil), registry
	}

	Describe("Aggregated", func() {
		It("should return 200 when every service is healthy", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			h, _ := newStack(map[string]string{
				"core-data":     server.URL,
				"camera-stream": server.URL,
			}, time.Minute)

			rec := httptest.NewRecorder()
			h.Aggregated(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))

			var resp healthcache.Response
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Status).To(Equal(healthcheck.StatusHealthy))
			Expect(resp.Services).To(HaveLen(2))
			Expect(resp.CacheInfo.Freshness).To(Equal(healthcache.FreshnessLive))
		})

		It("should return 503 when any service is down", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			h, _ := newStack(map[string]string{
				"core-data":        server.URL,
				"face-recognition": "http://127.0.0.1:1", // nothing listens here
			}, time.Minute)

			rec := httptest.NewRecorder()
			h.Aggregated(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))

			var resp healthcache.Response
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Status).To(Equal(healthcheck.StatusDegraded))
			Expect(resp.Services["face-recognition"].Status).To(Equal(healthcheck.StatusUnhealthy))
		})

		It("should serve the second read from cache", func() {
			var probes atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				probes.Add(1)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			h, _ := newStack(map[string]string{"core-data": server.URL}, time.Minute)

			rec1 := httptest.NewRecorder()
			h.Aggregated(rec1, httptest.NewRequest(http.MethodGet, "/health", nil))
			rec2 := httptest.NewRecorder()
			h.Aggregated(rec2, httptest.NewRequest(http.MethodGet, "/health", nil))

			var resp healthcache.Response
			Expect(json.Unmarshal(rec2.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.CacheInfo.ServedFromCache).To(BeTrue())
			Expect(resp.CacheInfo.Freshness).To(Equal(healthcache.FreshnessFresh))
			Expect(probes.Load()).To(Equal(int32(1)))
		})
	})

	Describe("Service", func() {
		It("should return a live probe result for a known service", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			h, _ := newStack(map[string]string{"core-data": server.URL}, time.Minute)

			req := httptest.NewRequest(http.MethodGet, "/health/core-data", nil)
			req.SetPathValue("service", "core-data")
			rec := httptest.NewRecorder()
			h.Service(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))

			var result healthcheck.Result
			Expect(json.Unmarshal(rec.Body.Bytes(), &result)).To(Succeed())
			Expect(result.Service).To(Equal("core-data"))
			Expect(result.Status).To(Equal(healthcheck.StatusHealthy))
		})

		It("should return 503 for an unhealthy service", func() {
			h, _ := newStack(map[string]string{"core-data": "http://127.0.0.1:1"}, time.Minute)

			req := httptest.NewRequest(http.MethodGet, "/health/core-data", nil)
			req.SetPathValue("service", "core-data")
			rec := httptest.NewRecorder()
			h.Service(rec, req)

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))

			var result healthcheck.Result
			Expect(json.Unmarshal(rec.Body.Bytes(), &result)).To(Succeed())
			Expect(result.Status).To(Equal(healthcheck.StatusUnhealthy))
			Expect(result.Error).NotTo(BeEmpty())
		})

		It("should return 404 for an unknown service", func() {
			h, _ := newStack(map[string]string{"core-data": "http://127.0.0.1:1"}, time.Minute)

			req := httptest.NewRequest(http.MethodGet, "/health/billing", nil)
			req.SetPathValue("service", "billing")
			rec := httptest.NewRecorder()
			h.Service(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNotFound))

			var body map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body["error"]).To(Equal("Unknown Service"))
			Expect(body["service"]).To(Equal("billing"))
		})
	})

	Describe("Breakers", func() {
		It("should report stats for every registered breaker", func() {
			h, registry := newStack(map[string]string{"core-data": "http://127.0.0.1:1"}, time.Minute)
			registry.GetBreaker("core-data")
			registry.GetBreaker("camera-stream")

			rec := httptest.NewRecorder()
			h.Breakers(rec, httptest.NewRequest(http.MethodGet, "/health/circuit-breakers", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var stats map[string]circuitbreaker.Stats
			Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
			Expect(stats).To(HaveKey("core-data"))
			Expect(stats).To(HaveKey("camera-stream"))
			Expect(stats["core-data"].State).To(Equal("closed"))
		})
	})
})
