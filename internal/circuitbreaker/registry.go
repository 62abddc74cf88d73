package circuitbreaker

import (
	"sync"
)

// Registry owns one CircuitBreaker per upstream service, created lazily and
// kept for the process lifetime.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      Config
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

func (r *Registry) GetBreaker(service string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[service]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[service]; exists {
		return cb
	}

	cb = New(service, r.cfg)
	r.breakers[service] = cb
	return cb
}

// Reset forces every registered breaker back to CLOSED.
func (r *Registry) Reset() {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}

// Stats snapshots every registered breaker, keyed by service.
func (r *Registry) Stats() map[string]Stats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]Stats, len(r.breakers))
	for service, cb := range r.breakers {
		stats[service] = cb.Stats()
	}
	return stats
}
