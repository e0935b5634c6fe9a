package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	"delivery-orchestrator/internal/bus"
	"delivery-orchestrator/internal/config"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/metrics"
	"delivery-orchestrator/internal/service/archive"
	"delivery-orchestrator/internal/service/commit"
	"delivery-orchestrator/internal/service/dispatch"
	"delivery-orchestrator/internal/service/inspect"
	"delivery-orchestrator/internal/service/latency"
	"delivery-orchestrator/internal/service/lifecycle"
	"delivery-orchestrator/internal/service/orders"
	"delivery-orchestrator/internal/service/orderstate"
	"delivery-orchestrator/internal/service/reply"
	"delivery-orchestrator/internal/service/simulate"
	"delivery-orchestrator/internal/service/sweep"
	"delivery-orchestrator/internal/store"
	"delivery-orchestrator/internal/transport/changefeed"
)

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	openStore     StoreOpener
	openPublisher PublisherOpener
	logger        logx.Logger
	logOut        io.Writer
	storeAttempts int
	replay        []changefeed.Option
	simulator     bool
}

// NewContainerBuilder returns a builder wired to the real backends.
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		openStore:     openStore,
		openPublisher: openPublisher,
		logOut:        os.Stdout,
	}
}

// WithStoreOpener replaces how the store is opened.
func (b *ContainerBuilder) WithStoreOpener(fn StoreOpener) *ContainerBuilder {
	if fn != nil {
		b.openStore = fn
	}
	return b
}

// WithPublisherOpener replaces how the bus publisher is opened.
func (b *ContainerBuilder) WithPublisherOpener(fn PublisherOpener) *ContainerBuilder {
	if fn != nil {
		b.openPublisher = fn
	}
	return b
}

// WithLogger makes the container use logger instead of building one from
// the configuration.
func (b *ContainerBuilder) WithLogger(logger logx.Logger) *ContainerBuilder {
	b.logger = logger
	return b
}

// WithLogOutput sets where the JSON logger writes.
func (b *ContainerBuilder) WithLogOutput(w io.Writer) *ContainerBuilder {
	if w != nil {
		b.logOut = w
	}
	return b
}

// WithStoreAttempts bounds the attempts of every store call; zero retries
// until the context ends.
func (b *ContainerBuilder) WithStoreAttempts(n int) *ContainerBuilder {
	b.storeAttempts = n
	return b
}

// WithReplay starts watcher (all watchers when empty) after token.
func (b *ContainerBuilder) WithReplay(watcher, token string) *ContainerBuilder {
	b.replay = append(b.replay, changefeed.WithStartToken(watcher, token))
	return b
}

// WithSimulator adds the simulated collaborators to the container.
func (b *ContainerBuilder) WithSimulator() *ContainerBuilder {
	b.simulator = true
	return b
}

// Build assembles the container. Nothing is opened until a provider is
// invoked.
func (b *ContainerBuilder) Build(ctx context.Context, cfg *config.Config) (*dig.Container, error) {
	container := dig.New()

	if err := b.registerCore(container, ctx, cfg); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := b.registerStore(container); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := b.registerBus(container); err != nil {
		return nil, fmt.Errorf("bus: %w", err)
	}
	if err := registerService(container); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if err := b.registerConsumer(container); err != nil {
		return nil, fmt.Errorf("consumer: %w", err)
	}
	if err := registerHTTP(container); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if b.simulator {
		if err := registerSimulator(container); err != nil {
			return nil, fmt.Errorf("simulator: %w", err)
		}
	}
	return container, nil
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

func (b *ContainerBuilder) registerCore(container *dig.Container, ctx context.Context, cfg *config.Config) error {
	providerLogger := func(cfg *config.Config) (logx.Logger, error) {
		if b.logger != nil {
			return b.logger, nil
		}
		return NewLogger(cfg.Log, b.logOut)
	}
	providerRegistry := func() *prometheus.Registry {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		return reg
	}
	return provideAll(container,
		func() context.Context { return ctx },
		func() *config.Config { return cfg },
		providerLogger,
		providerRegistry,
		func(reg *prometheus.Registry) (*metrics.Set, error) { return metrics.NewSet(reg) },
		newResources,
	)
}

func (b *ContainerBuilder) registerStore(container *dig.Container) error {
	providerStore := func(
		ctx context.Context,
		cfg *config.Config,
		logger logx.Logger,
		m *metrics.Set,
		res *resources,
	) (store.Store, error) {
		raw, err := connectStoreWithRetry(ctx, b.openStore, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		res.add("store", raw.Close)
		return store.NewRetrying(raw, logx.Component(logger, "store"), m.StoreRetries, store.RetryConfig{
			BaseDelay:   cfg.Store.RetryBase,
			MaxDelay:    cfg.Store.RetryMax,
			MaxAttempts: b.storeAttempts,
		}), nil
	}
	return provideAll(container, providerStore)
}

func (b *ContainerBuilder) registerBus(container *dig.Container) error {
	providerPublisher := func(
		ctx context.Context,
		cfg *config.Config,
		logger logx.Logger,
		res *resources,
	) (bus.Publisher, error) {
		p, err := b.openPublisher(ctx, cfg.Bus, logger)
		if err != nil {
			return nil, fmt.Errorf("open bus: %w", err)
		}
		res.add("bus", func(context.Context) error { return p.Close() })
		return p, nil
	}
	return provideAll(container, providerPublisher)
}

func registerService(container *dig.Container) error {
	return provideAll(container,
		func(st store.Store, logger logx.Logger, m *metrics.Set) *orderstate.Machine {
			return orderstate.New(st, logger, m.OrdersFailed)
		},
		func(machine *orderstate.Machine, cfg *config.Config, logger logx.Logger, m *metrics.Set) *dispatch.Dispatcher {
			return dispatch.New(machine, dispatch.Config{
				FanOut:   cfg.Dispatch.FanOut,
				MaxWaves: cfg.Dispatch.MaxWaves,
			}, logger, m.Offers)
		},
		func(st store.Store, m *metrics.Set) *latency.Recorder {
			return latency.NewRecorder(st, m.AssignmentDelay)
		},
		func(
			machine *orderstate.Machine,
			recorder *latency.Recorder,
			publisher bus.Publisher,
			logger logx.Logger,
			m *metrics.Set,
		) *commit.Committer {
			return commit.New(machine, recorder, logger,
				commit.WithPublisher(publisher),
				commit.WithCounters(m.Assignments, m.CommitConflicts),
			)
		},
		func(c *commit.Committer, d *dispatch.Dispatcher, machine *orderstate.Machine, logger logx.Logger) *reply.Watcher {
			return reply.New(c, d, machine, logger)
		},
		func(machine *orderstate.Machine, logger logx.Logger, m *metrics.Set) *archive.Archiver {
			return archive.New(machine, logger, m.Archived)
		},
		func(d *dispatch.Dispatcher, w *reply.Watcher, a *archive.Archiver) *orders.Processor {
			return orders.NewProcessor(d, w).WithArchiver(a)
		},
		func(machine *orderstate.Machine, cfg *config.Config, logger logx.Logger, m *metrics.Set) *sweep.Sweeper {
			return sweep.New(machine, sweep.Config{
				RestaurantTTL: cfg.Dispatch.RestaurantTTL(),
				CourierTTL:    cfg.Dispatch.CourierTTL(),
				Interval:      cfg.Sweep.Interval,
			}, logger, m.Expired)
		},
		lifecycle.New,
		inspect.New,
	)
}

func (b *ContainerBuilder) registerConsumer(container *dig.Container) error {
	providerConsumer := func(
		st store.Store,
		p *orders.Processor,
		cfg *config.Config,
		logger logx.Logger,
		m *metrics.Set,
	) *changefeed.Consumer {
		opts := append([]changefeed.Option{changefeed.WithEventsCounter(m.EventsHandled)}, b.replay...)
		return changefeed.New(st, orders.Sources(), p, changefeed.Config{
			Partitions: cfg.Watch.Partitions,
			Grace:      cfg.Watch.ShutdownGrace,
			RetryBase:  cfg.Store.RetryBase,
			RetryMax:   cfg.Store.RetryMax,
		}, logger, opts...)
	}
	return provideAll(container, providerConsumer)
}

func registerSimulator(container *dig.Container) error {
	return provideAll(container,
		func(machine *orderstate.Machine, lc *lifecycle.Service, cfg *config.Config, logger logx.Logger) *simulate.Simulator {
			sc := cfg.Simulator
			return simulate.New(machine, lc, simulate.Config{
				RestaurantAcceptRate: sc.RestaurantAcceptRate,
				CourierAcceptRate:    sc.CourierAcceptRate,
				ReplyDelayMin:        sc.ReplyDelayMin,
				ReplyDelayMax:        sc.ReplyDelayMax,
				DeliveryDuration:     sc.DeliveryDuration,
				SeedCouriers:         sc.SeedCouriers,
				SeedRestaurants:      sc.SeedRestaurants,
				OrderInterval:        sc.OrderInterval,
				Orders:               sc.Orders,
				Seed:                 sc.Seed,
				RetryBase:            cfg.Store.RetryBase,
				RetryMax:             cfg.Store.RetryMax,
			}, logger)
		},
	)
}
