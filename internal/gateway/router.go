package gateway

import (
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"

	"taskboard/internal/middleware"
	"taskboard/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDHeader carries the verified username to backends.
const UserIDHeader = "userId"

// Rejection reasons reported in logs and metrics.
const (
	reasonNoRoute      = "no_route"
	reasonMissingToken = "missing_token"
	reasonExpired      = "token_expired"
	reasonBadSignature = "bad_signature"
	reasonInvalidToken = "invalid_token"
	reasonRateLimited  = "rate_limited"
	reasonUpstream     = "upstream_error"
)

// Router is the edge router. It holds no per-request state.
type Router struct {
	table     *Table
	verifier  middleware.TokenVerifier
	limiter   Limiter
	logger    observability.Logger
	transport http.RoundTripper
	proxies   map[string]*httputil.ReverseProxy
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLimiter enables per-client admission control.
func WithLimiter(l Limiter) RouterOption {
	return func(r *Router) {
		r.limiter = l
	}
}

// WithRouterLogger sets the router logger.
func WithRouterLogger(logger observability.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithTransport sets the transport used to reach backends.
func WithTransport(t http.RoundTripper) RouterOption {
	return func(r *Router) {
		r.transport = t
	}
}

// NewRouter builds one reverse proxy per route.
func NewRouter(table *Table, verifier middleware.TokenVerifier, opts ...RouterOption) *Router {
	r := &Router{
		table:    table,
		verifier: verifier,
		logger:   observability.NopLogger(),
		proxies:  make(map[string]*httputil.ReverseProxy),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, route := range table.Routes() {
		r.proxies[route.Name] = r.newProxy(route.Backend)
	}
	return r
}

func (r *Router) newProxy(target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			director(req, target)
		},
		Transport: r.transport,
		// Server-sent event streams must not be buffered.
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			observability.GatewayRejectionsTotal.WithLabelValues(reasonUpstream).Inc()
			r.logger.WithContext(req.Context()).Warn("upstream request failed",
				observability.String("backend", target.Host),
				observability.String("path", req.URL.Path),
				observability.Error(err),
			)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

// director rewrites the outbound request to the backend, keeping the path.
// ReverseProxy strips hop-by-hop headers after this runs and keeps upgrades intact.
func director(req *http.Request, target *url.URL) {
	clientHost := req.Host
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	if target.Path != "" && target.Path != "/" {
		req.URL.Path = singleJoiningSlash(target.Path, req.URL.Path)
	}

	if req.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	req.Header.Set("X-Forwarded-Host", clientHost)
	req.Host = target.Host
}

func singleJoiningSlash(a, b string) string {
	switch aslash, bslash := a[len(a)-1] == '/', b != "" && b[0] == '/'; {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

// Mount sends every request the engine has no explicit route for through
// the edge router.
func (r *Router) Mount(engine *gin.Engine) {
	engine.NoRoute(r.Handle)
}

// Handle classifies, verifies and forwards one request.
func (r *Router) Handle(c *gin.Context) {
	req := c.Request
	logger := r.logger.WithContext(req.Context())

	route, ok := r.table.Match(req.URL.Path)
	if !ok {
		r.reject(c, http.StatusNotFound, reasonNoRoute)
		return
	}

	if r.limiter != nil {
		allowed, err := r.limiter.Allow(req.Context(), clientKey(req))
		if err != nil {
			logger.Warn("rate limiter unavailable, admitting request", observability.Error(err))
		} else if !allowed {
			r.reject(c, http.StatusTooManyRequests, reasonRateLimited)
			return
		}
	}

	// Never trust an identity header supplied by the client.
	req.Header.Del(UserIDHeader)

	if route.RequiresAuth {
		token, ok := middleware.BearerToken(req.Header.Get("Authorization"))
		if !ok {
			r.reject(c, http.StatusUnauthorized, reasonMissingToken)
			return
		}
		claims, err := r.verifier.ValidateToken(token)
		if err != nil {
			reason := rejectionReason(err)
			logger.Debug("token verification failed",
				observability.String("route", route.Name),
				observability.String("reason", reason),
				observability.Error(err),
			)
			r.reject(c, http.StatusUnauthorized, reason)
			return
		}
		req.Header.Set(UserIDHeader, claims.Username)
	}

	logger.Debug("forwarding request",
		observability.String("route", route.Name),
		observability.String("backend", route.Backend.Host),
	)
	r.proxies[route.Name].ServeHTTP(c.Writer, req)
}

func (r *Router) reject(c *gin.Context, status int, reason string) {
	observability.GatewayRejectionsTotal.WithLabelValues(reason).Inc()
	c.AbortWithStatus(status)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return reasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return reasonBadSignature
	default:
		return reasonInvalidToken
	}
}

func clientKey(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
