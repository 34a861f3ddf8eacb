// Package api builds the chi routers for the two network surfaces: the
// remote proxy (HTTP optimize endpoint) and the bridge relay (WebSocket).
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/promptpolish/internal/api/handlers"
	apmiddleware "github.com/matiasleandrokruk/promptpolish/internal/api/middleware"
	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

// ProxyDeps wires the proxy router. Providers and Usage are optional.
type ProxyDeps struct {
	Optimizer handlers.Optimizer
	Providers handlers.ProviderChecker
	Usage     handlers.UsageReader
	Limits    polish.Limits
	// RateLimit is requests per minute per client address; 0 disables it.
	RateLimit      int
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewProxyRouter creates the proxy's router.
//
//	GET  /health             liveness
//	GET  /health/providers   provider reachability
//	POST /, /v1/optimize     optimize (rate limited)
//	GET  /v1/usage[/recent]  usage log
//
// Every response carries CORS headers; OPTIONS is answered for any path and
// other methods on the optimize routes get 405.
func NewProxyRouter(d ProxyDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apmiddleware.CORS(d.AllowedOrigins, http.MethodGet, http.MethodPost))
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/health", handlers.Health)
	if d.Providers != nil {
		r.Get("/health/providers", handlers.ProviderHealth(d.Providers))
	}

	limiter := apmiddleware.NewRateLimiter(d.RateLimit, 0)
	optimize := handlers.NewOptimizeHandler(d.Optimizer, d.Limits, d.Logger)
	r.With(limiter.Middleware).Post("/", optimize.Optimize)
	r.With(limiter.Middleware).Post("/v1/optimize", optimize.Optimize)

	if d.Usage != nil {
		usage := handlers.NewUsageHandler(d.Usage)
		r.Route("/v1/usage", func(r chi.Router) {
			r.Get("/", usage.Counts)
			r.Get("/recent", usage.Recent)
		})
	}

	return r
}

// BridgeDeps wires the bridge router. A nil Tokens leaves /bridge open,
// which is only sensible on loopback.
type BridgeDeps struct {
	Bridge http.Handler
	Tokens apmiddleware.TokenParser
}

// NewBridgeRouter creates the relay's router.
//
//	GET /health  liveness
//	GET /bridge  WebSocket upgrade (token required when configured)
func NewBridgeRouter(d BridgeDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.Health)

	r.Group(func(r chi.Router) {
		if d.Tokens != nil {
			r.Use(apmiddleware.Auth(d.Tokens))
		}
		r.Method(http.MethodGet, "/bridge", d.Bridge)
	})

	return r
}
