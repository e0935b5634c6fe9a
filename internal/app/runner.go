package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"delivery-orchestrator/internal/config"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/simulate"
	"delivery-orchestrator/internal/service/sweep"
	"delivery-orchestrator/internal/transport/changefeed"
)

const shutdownTimeout = 15 * time.Second

// Runner runs the orchestrator out of a container.
type Runner struct {
	runFn func(*dig.Container) error
}

// NewRunner returns a Runner.
func NewRunner() *Runner {
	return &Runner{runFn: run}
}

// Run blocks until the context given to the container is done or a
// component fails, then releases every resource. The error is what the
// process should exit with: an invariant violation seen by a watcher wins
// over a clean shutdown.
func (r *Runner) Run(container *dig.Container) error {
	err := r.runFn(container)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func run(container *dig.Container) error {
	return invoke(container, serve)
}

type runParams struct {
	dig.In

	Ctx       context.Context
	Cfg       *config.Config
	Logger    logx.Logger
	Consumer  *changefeed.Consumer
	Sweeper   *sweep.Sweeper
	Server    *http.Server
	Simulator *simulate.Simulator `optional:"true"`
}

func serve(p runParams) error {
	logger := p.Logger

	var ln net.Listener
	if p.Cfg.HTTP.Enabled() {
		var err error
		if ln, err = net.Listen("tcp", p.Server.Addr); err != nil {
			return configError(err)
		}
	}

	g, gctx := errgroup.WithContext(p.Ctx)
	g.Go(func() error { return p.Consumer.Run(gctx) })
	g.Go(func() error { return p.Sweeper.Run(gctx) })
	if p.Simulator != nil {
		g.Go(func() error { return p.Simulator.Run(gctx, nil) })
	}
	if ln != nil {
		g.Go(func() error { return startServer(p.Server, ln, logger) })
		g.Go(func() error {
			<-gctx.Done()
			gracefulShutdown(p.Server, logger, shutdownTimeout)
			return nil
		})
	}

	logger.Info("orchestrator started", logx.Bool("http", ln != nil), logx.Bool("simulator", p.Simulator != nil))
	err := g.Wait()
	logger.Info("orchestrator stopped")
	if v := p.Consumer.Err(); v != nil {
		return v
	}
	return err
}

func startServer(server *http.Server, ln net.Listener, logger logx.Logger) error {
	logger.Info("ops server listening", logx.String("addr", ln.Addr().String()))
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func gracefulShutdown(srv *http.Server, logger logx.Logger, timeout time.Duration) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("graceful shutdown error", logx.Err(err))
	}
}
