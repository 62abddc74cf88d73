package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
)

type sendOwner int

const (
	ownerNone sendOwner = iota
	ownerUpstream
	ownerGateway
)

// sendGuard makes response writing idempotent: the first path to claim the
// response wins and every later attempt by the other path is a silent no-op.
// A claim is per path, not per write, so a claimed path may keep streaming
// its body.
type sendGuard struct {
	mutex  sync.Mutex
	owner  sendOwner
	logger *slog.Logger
}

func newSendGuard(logger *slog.Logger) *sendGuard {
	return &sendGuard{logger: logger}
}

// claim returns true if the response belongs to owner, claiming it if still
// unowned.
func (s *sendGuard) claim(owner sendOwner) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.owner == ownerNone {
		s.owner = owner
		return true
	}
	if s.owner != owner {
		s.logger.Debug("Duplicate response attempt suppressed")
		return false
	}
	return true
}

// guardedWriter is the ResponseWriter handed to the reverse proxy. Writes are
// forwarded only while the upstream path owns the response; anything arriving
// after the gateway wrote a fallback is swallowed.
type guardedWriter struct {
	w          http.ResponseWriter
	guard      *sendGuard
	statusCode int
}

func (g *guardedWriter) Header() http.Header {
	return g.w.Header()
}

func (g *guardedWriter) WriteHeader(code int) {
	if !g.guard.claim(ownerUpstream) {
		return
	}
	g.statusCode = code
	g.w.WriteHeader(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	if !g.guard.claim(ownerUpstream) {
		return len(b), nil
	}
	if g.statusCode == 0 {
		g.statusCode = http.StatusOK
	}
	return g.w.Write(b)
}

func (g *guardedWriter) Flush() {
	if g.guard.claim(ownerUpstream) {
		if f, ok := g.w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// writeJSON writes a gateway-owned JSON response, unless the upstream path
// already claimed the exchange.
func writeJSON(w http.ResponseWriter, guard *sendGuard, logger *slog.Logger, status int, body any) {
	if !guard.claim(ownerGateway) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response body", slog.String("error", err.Error()))
	}
}
