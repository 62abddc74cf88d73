package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex          sync.RWMutex
	requests       map[string]int64
	forwardTimes   map[string][]time.Duration
	statusCodes    map[string]map[int]int64
	fallbacks      map[string]int64
	upstreamErrors map[string]int64
	breakerOpens   map[string]int64
	cacheReads     map[string]int64
	startTime      time.Time
}

type Snapshot struct {
	TotalRequests  int64                     `json:"total_requests"`
	TotalFallbacks int64                     `json:"total_fallbacks"`
	Uptime         time.Duration             `json:"uptime"`
	Services       map[string]ServiceMetrics `json:"services"`
	CacheReads     map[string]int64          `json:"cache_reads"`
}

type ServiceMetrics struct {
	Requests       int64         `json:"requests"`
	Fallbacks      int64         `json:"fallbacks"`
	UpstreamErrors int64         `json:"upstream_errors"`
	BreakerOpens   int64         `json:"breaker_opens"`
	AvgForward     time.Duration `json:"avg_forward"`
	P50Forward     time.Duration `json:"p50_forward"`
	P95Forward     time.Duration `json:"p95_forward"`
	P99Forward     time.Duration `json:"p99_forward"`
	StatusCodes    map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:       make(map[string]int64),
		forwardTimes:   make(map[string][]time.Duration),
		statusCodes:    make(map[string]map[int]int64),
		fallbacks:      make(map[string]int64),
		upstreamErrors: make(map[string]int64),
		breakerOpens:   make(map[string]int64),
		cacheReads:     make(map[string]int64),
		startTime:      time.Now(),
	}
}

func (m *Metrics) RecordForward(service string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.requests[service]++
	m.forwardTimes[service] = append(m.forwardTimes[service], duration)

	if len(m.forwardTimes[service]) > 1000 {
		m.forwardTimes[service] = m.forwardTimes[service][1:]
	}

	if m.statusCodes[service] == nil {
		m.statusCodes[service] = make(map[int]int64)
	}
	m.statusCodes[service][statusCode]++
}

func (m *Metrics) RecordFallback(service string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[service]++
	m.fallbacks[service]++
}

func (m *Metrics) RecordUpstreamError(service string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[service]++
	m.upstreamErrors[service]++
}

func (m *Metrics) RecordBreakerOpen(service string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakerOpens[service]++
}

func (m *Metrics) RecordCacheRead(tier string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.cacheReads[tier]++
}

// Totals returns the lifetime request and fallback counts plus uptime,
// used for the gateway's self-stats in the health snapshot.
func (m *Metrics) Totals() (requests, fallbacks int64, uptime time.Duration) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, n := range m.requests {
		requests += n
	}
	for _, n := range m.fallbacks {
		fallbacks += n
	}
	return requests, fallbacks, time.Since(m.startTime)
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:     time.Since(m.startTime),
		Services:   make(map[string]ServiceMetrics),
		CacheReads: make(map[string]int64, len(m.cacheReads)),
	}

	for tier, n := range m.cacheReads {
		snap.CacheReads[tier] = n
	}

	// Collect all service identifiers seen by any counter
	allServices := make(map[string]bool)
	for service := range m.requests {
		allServices[service] = true
	}
	for service := range m.fallbacks {
		allServices[service] = true
	}
	for service := range m.upstreamErrors {
		allServices[service] = true
	}
	for service := range m.breakerOpens {
		allServices[service] = true
	}

	for service := range allServices {
		snap.TotalRequests += m.requests[service]
		snap.TotalFallbacks += m.fallbacks[service]

		// Copy the inner map so the snapshot stays stable while new
		// requests land.
		codes := make(map[int]int64, len(m.statusCodes[service]))
		for code, n := range m.statusCodes[service] {
			codes[code] = n
		}

		sm := ServiceMetrics{
			Requests:       m.requests[service],
			Fallbacks:      m.fallbacks[service],
			UpstreamErrors: m.upstreamErrors[service],
			BreakerOpens:   m.breakerOpens[service],
			StatusCodes:    codes,
		}

		durations := m.forwardTimes[service]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			sm.AvgForward = average(sorted)
			sm.P50Forward = percentile(sorted, 0.50)
			sm.P95Forward = percentile(sorted, 0.95)
			sm.P99Forward = percentile(sorted, 0.99)
		}

		snap.Services[service] = sm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
