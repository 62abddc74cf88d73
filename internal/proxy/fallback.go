package proxy

import (
	"net/http"
	"strings"
)

// Fallback is a canned response served when a service's circuit is open and
// no live call is possible.
type Fallback struct {
	StatusCode int
	Body       map[string]any
}

type fallbackRule struct {
	pathContains []string
	fallback     Fallback
}

// fallbackTable is static and process-wide: one rule list per service, each
// matched against the inbound path, plus a per-service health default.
var fallbackTable = map[string][]fallbackRule{
	"core-data": {
		{
			pathContains: []string{"/persons"},
			fallback: Fallback{
				StatusCode: http.StatusServiceUnavailable,
				Body: map[string]any{
					"persons": []any{},
					"total":   0,
					"message": "Person data is temporarily unavailable",
				},
			},
		},
	},
	"face-recognition": {
		{
			pathContains: []string{"/recognize", "/process"},
			fallback: Fallback{
				StatusCode: http.StatusServiceUnavailable,
				Body: map[string]any{
					"recognized": false,
					"matches":    []any{},
					"message":    "Face recognition is temporarily unavailable",
				},
			},
		},
	},
	"camera-stream": {
		{
			pathContains: []string{"/cameras"},
			fallback: Fallback{
				StatusCode: http.StatusServiceUnavailable,
				Body: map[string]any{
					"cameras": []any{},
					"total":   0,
					"message": "Camera streams are temporarily unavailable",
				},
			},
		},
	},
}

// FallbackFor selects the canned payload for a circuit-open response by
// categorizing the request path; unmatched paths get the service's generic
// health fallback.
func FallbackFor(service, path string) Fallback {
	for _, rule := range fallbackTable[service] {
		for _, fragment := range rule.pathContains {
			if strings.Contains(path, fragment) {
				return rule.fallback
			}
		}
	}

	return Fallback{
		StatusCode: http.StatusServiceUnavailable,
		Body: map[string]any{
			"status":  "unhealthy",
			"service": service,
			"message": "Service health is unavailable",
		},
	}
}

// payload returns a shallow copy so callers can decorate it without mutating
// the static table.
func (f Fallback) payload() map[string]any {
	body := make(map[string]any, len(f.Body)+2)
	for k, v := range f.Body {
		body[k] = v
	}
	return body
}
