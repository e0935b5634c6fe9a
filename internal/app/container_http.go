package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"delivery-orchestrator/internal/config"
	"delivery-orchestrator/internal/http/handlers"
	"delivery-orchestrator/internal/http/middleware/ratelimit"
	"delivery-orchestrator/internal/http/pprofserver"
	"delivery-orchestrator/internal/http/router"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/metrics"
	"delivery-orchestrator/internal/service/inspect"
	"delivery-orchestrator/internal/store"
	"delivery-orchestrator/internal/transport/changefeed"
)

const (
	healthCursor   = "healthcheck"
	limiterIdleTTL = 10 * time.Minute
)

func registerHTTP(container *dig.Container) error {
	providerHealth := func(st store.Store, consumer *changefeed.Consumer) handlers.HealthFunc {
		cursors := store.NewCursorStore(st)
		return func(ctx context.Context) error {
			if err := consumer.Err(); err != nil {
				return err
			}
			_, err := cursors.Load(ctx, healthCursor)
			return err
		}
	}
	providerHandlers := func(logger logx.Logger, insp *inspect.Service, health handlers.HealthFunc) *handlers.Handlers {
		return handlers.New(logger, insp, health)
	}
	providerLimiter := func(cfg *config.Config) ratelimit.Limiter {
		return ratelimit.NewTokenBucket(ratelimit.Config{
			Rate:  cfg.HTTP.InspectRate,
			Burst: cfg.HTTP.InspectBurst,
			Idle:  limiterIdleTTL,
		}, nil)
	}
	providerRouter := func(
		h *handlers.Handlers,
		cfg *config.Config,
		logger logx.Logger,
		m *metrics.Set,
		reg *prometheus.Registry,
		limiter ratelimit.Limiter,
	) http.Handler {
		return router.New(h, router.Options{
			Logger:   logger,
			Metrics:  m,
			Gatherer: reg,
			Limiter:  limiter,
			Pprof:    pprofserver.Config{User: cfg.HTTP.PprofUser, Pass: cfg.HTTP.PprofPass},
		})
	}
	providerServer := func(cfg *config.Config, mux http.Handler) *http.Server {
		return &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return provideAll(container,
		providerHealth,
		providerHandlers,
		providerLimiter,
		providerRouter,
		providerServer,
	)
}
