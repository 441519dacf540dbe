package proxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/smiledesk/smiledesk/libs/httpx"
	"github.com/smiledesk/smiledesk/libs/metrics"
)

// Identity headers set for upstream services. Incoming copies are always dropped.
const (
	HeaderUserID   = "X-User-Id"
	HeaderClinicID = "X-Clinic-Id"
	HeaderRole     = "X-Role"
)

// Route sends every request under Prefix to Upstream. Protect, when set, guards the route.
type Route struct {
	Name     string
	Prefix   string
	Upstream *url.URL
	Protect  httpx.Middleware
}

// Register mounts routes on mux. Each upstream gets one reverse proxy using transport.
func Register(mux *http.ServeMux, routes []Route, transport http.RoundTripper, m *metrics.HTTP, logger *slog.Logger) {
	proxies := map[string]*httputil.ReverseProxy{}
	for _, rt := range routes {
		key := rt.Upstream.String()
		p, ok := proxies[key]
		if !ok {
			p = newReverseProxy(rt.Upstream, transport, logger)
			proxies[key] = p
		}
		h := httpx.Chain(p, rt.Protect, ForwardIdentity)
		if m != nil {
			h = m.Wrap(rt.Name, h)
		}
		mount(mux, rt.Prefix, h)
	}
}

func newReverseProxy(target *url.URL, transport http.RoundTripper, logger *slog.Logger) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)
	if transport != nil {
		p.Transport = transport
	}
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed",
			"upstream", target.Host,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return p
}

func mount(mux *http.ServeMux, prefix string, h http.Handler) {
	if strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, h)
		return
	}
	mux.Handle(prefix, h)
	mux.Handle(prefix+"/", h)
}

// ForwardIdentity replaces client supplied identity headers with the authenticated principal,
// if any. The Authorization header is passed through so upstreams can verify it again.
func ForwardIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(HeaderUserID)
		r.Header.Del(HeaderClinicID)
		r.Header.Del(HeaderRole)
		if p, ok := httpx.PrincipalFromContext(r.Context()); ok {
			r.Header.Set(HeaderUserID, p.UserID())
			r.Header.Set(HeaderClinicID, p.ClinicID)
			r.Header.Set(HeaderRole, p.Role)
		}
		if id := httpx.RequestIDFromContext(r.Context()); id != "" {
			r.Header.Set(httpx.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

// ParseUpstream validates a service base URL.
func ParseUpstream(name, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%s upstream: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%s upstream: %q is not an absolute http(s) url", name, raw)
	}
	return u, nil
}
