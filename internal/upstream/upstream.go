package upstream

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"
)

type proxyErrorKey struct{}

// Upstream represents one proxied service: its base URL, the route prefix it
// owns on the gateway, and the path rewriting applied before forwarding.
type Upstream struct {
	name         string
	baseURL      *url.URL
	routePrefix  string
	targetPrefix string
	timeout      time.Duration
	proxy        *httputil.ReverseProxy
}

// New creates an Upstream that forwards requests to baseURL, swapping
// routePrefix for targetPrefix on the request path.
func New(name string, baseURL *url.URL, routePrefix, targetPrefix string, timeout time.Duration) *Upstream {
	u := &Upstream{
		name:         name,
		baseURL:      baseURL,
		routePrefix:  routePrefix,
		targetPrefix: targetPrefix,
		timeout:      timeout,
	}

	u.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(baseURL)
			pr.Out.URL.Path = u.RewritePath(pr.In.URL.Path)
			pr.SetXForwarded()
		},
		// Transport errors are reported to the caller through the request
		// context instead of the default 502 write; the caller owns the
		// response.
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if slot, ok := r.Context().Value(proxyErrorKey{}).(*error); ok {
				*slot = err
			}
		},
	}

	return u
}

// Name returns the service identifier.
func (u *Upstream) Name() string {
	return u.name
}

// URL returns the upstream base URL.
func (u *Upstream) URL() *url.URL {
	return u.baseURL
}

// RoutePrefix returns the gateway path prefix routed to this upstream.
func (u *Upstream) RoutePrefix() string {
	return u.routePrefix
}

// Timeout returns the per-call deadline for guarded requests.
func (u *Upstream) Timeout() time.Duration {
	return u.timeout
}

// HealthURL returns the upstream's health probe endpoint.
func (u *Upstream) HealthURL() string {
	return u.baseURL.ResolveReference(&url.URL{Path: "/health/"}).String()
}

// RewritePath swaps the gateway route prefix for the upstream's own prefix.
// Paths outside the route prefix pass through unchanged.
func (u *Upstream) RewritePath(path string) string {
	if u.routePrefix == "" || !strings.HasPrefix(path, u.routePrefix) {
		return path
	}

	rest := strings.TrimPrefix(path, u.routePrefix)
	if rest == "" {
		return u.targetPrefix
	}
	return u.targetPrefix + rest
}

// Forward proxies the request synchronously and returns the transport error,
// if any. On a transport error nothing has been written to w.
func (u *Upstream) Forward(w http.ResponseWriter, r *http.Request) (err error) {
	var proxyErr error

	// ReverseProxy aborts a failed mid-stream copy by panicking with
	// ErrAbortHandler. Forward does not run on the server's handler
	// goroutine, so translate the abort into an error instead.
	defer func() {
		if rec := recover(); rec != nil {
			if rec != http.ErrAbortHandler {
				panic(rec)
			}
			err = proxyErr
			if err == nil {
				err = context.Canceled
			}
		}
	}()

	ctx := r.Context()
	u.proxy.ServeHTTP(w, r.WithContext(contextWithErrorSlot(ctx, &proxyErr)))
	return proxyErr
}

func contextWithErrorSlot(ctx context.Context, slot *error) context.Context {
	return context.WithValue(ctx, proxyErrorKey{}, slot)
}
