package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"delivery-orchestrator/internal/http/handlers"
	obs "delivery-orchestrator/internal/http/middleware"
	"delivery-orchestrator/internal/http/middleware/ratelimit"
	"delivery-orchestrator/internal/http/pprofserver"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/metrics"
)

// Options carries what the ops routes need besides the handlers.
type Options struct {
	Logger   logx.Logger
	Metrics  *metrics.Set
	Gatherer prometheus.Gatherer
	// Limiter throttles the store-backed query routes; nil disables it.
	Limiter ratelimit.Limiter
	Pprof   pprofserver.Config
}

// New constructs the ops http.Handler: health, metrics, profiler and the
// operator queries.
func New(h *handlers.Handlers, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logx.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	logger := logx.Component(opts.Logger, "http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.Observability(logger, opts.Metrics.HTTPRequests, opts.Metrics.HTTPDuration))
	r.Use(middleware.Recoverer)

	r.Mount("/debug", pprofserver.Handler(opts.Pprof))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))

		r.Get("/ping", h.Ping)
		r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(h.HealthcheckHead))
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(logger, opts.Metrics.RateLimited, opts.Limiter))
			r.Get("/orders/{orderNo}", h.Order)
			r.Get("/stats", h.Stats)
		})
	})
	r.NotFound(http.HandlerFunc(h.NotFound))

	return r
}
