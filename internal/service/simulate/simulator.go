// Package simulate plays the external collaborators of the orchestrator:
// restaurants and couriers answering requests, couriers finishing
// deliveries, and clients placing orders. It only touches requests through
// conditional updates, like any real actor would.
package simulate

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"delivery-orchestrator/internal/bus"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/orderstate"
	"delivery-orchestrator/internal/store"
)

// Config drives the simulated actors.
type Config struct {
	RestaurantAcceptRate float64
	CourierAcceptRate    float64
	ReplyDelayMin        time.Duration
	ReplyDelayMax        time.Duration
	DeliveryDuration     time.Duration
	SeedCouriers         int
	SeedRestaurants      int
	// OrderInterval spaces generated orders; zero disables the generator.
	OrderInterval time.Duration
	// Orders caps generated orders; zero means no cap.
	Orders int
	// Seed makes the random decisions reproducible; zero seeds from the clock.
	Seed int64
	// RetryBase and RetryMax bound the reconnect backoff of the feeds.
	RetryBase time.Duration
	RetryMax  time.Duration
}

type deliverer interface {
	Deliver(ctx context.Context, orderNo string) (domain.Order, error)
}

// Simulator runs every actor against one store.
type Simulator struct {
	cfg      Config
	st       store.Store
	m        *orderstate.Machine
	delivery deliverer
	logger   logx.Logger

	mu  sync.Mutex
	rnd *rand.Rand

	inFlight int
}

// New returns a Simulator.
func New(m *orderstate.Machine, delivery deliverer, cfg Config, logger logx.Logger) *Simulator {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 100 * time.Millisecond
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = 30 * time.Second
	}
	return &Simulator{
		cfg:      cfg,
		st:       m.Store(),
		m:        m,
		delivery: delivery,
		logger:   logx.Component(logger, "simulator"),
		rnd:      rand.New(rand.NewSource(cfg.Seed)),
		inFlight: 64,
	}
}

// Run seeds the store, then answers requests, finishes deliveries and
// places orders until ctx is done. Deliveries follow attribution messages
// when sub is not nil, Order updates otherwise.
func (s *Simulator) Run(ctx context.Context, sub bus.Subscriber) error {
	if _, err := s.Seed(ctx); err != nil {
		return err
	}

	// Streams are opened before any order is generated so that no request
	// slips between the seed and the first read.
	restaurants, err := s.st.Watch(ctx, requestFeed(store.RestaurantRequests))
	if err != nil {
		return err
	}
	couriers, err := s.st.Watch(ctx, requestFeed(store.DeliveryRequests))
	if err != nil {
		_ = restaurants.Close()
		return err
	}
	var orders store.ChangeStream
	if sub == nil {
		if orders, err = s.st.Watch(ctx, progressFeed()); err != nil {
			_ = restaurants.Close()
			_ = couriers.Close()
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.answerRestaurants(ctx, restaurants) })
	g.Go(func() error { return s.answerCouriers(ctx, couriers) })
	g.Go(func() error { return s.finishDeliveries(ctx, sub, orders) })
	g.Go(func() error { return s.generateOrders(ctx) })

	s.logger.Info("simulator started",
		logx.Any("restaurantAcceptRate", s.cfg.RestaurantAcceptRate),
		logx.Any("courierAcceptRate", s.cfg.CourierAcceptRate),
		logx.Bool("bus", sub != nil),
	)
	err = g.Wait()
	s.logger.Info("simulator stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Simulator) chance(p float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64() < p
}

func (s *Simulator) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

func (s *Simulator) replyDelay() time.Duration {
	lo, hi := s.cfg.ReplyDelayMin, s.cfg.ReplyDelayMax
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + time.Duration(s.rnd.Int63n(int64(hi-lo)))
}

// follow hands every event of stream to fn, reopening the feed after the
// last seen token when the store drops it.
func (s *Simulator) follow(ctx context.Context, stream store.ChangeStream, opts store.WatchOptions, fn func(store.Event)) error {
	attempt := 0
	for {
		err := drain(ctx, stream, &opts, fn)
		if ctx.Err() != nil {
			return nil
		}
		if !store.IsRetryable(err) {
			return err
		}
		for {
			attempt++
			d := store.Backoff(s.cfg.RetryBase, s.cfg.RetryMax, attempt)
			s.logger.Warn("feed interrupted, reconnecting",
				logx.String("collection", opts.Collection),
				logx.Int("attempt", attempt),
				logx.Duration("backoff", d),
				logx.Err(err),
			)
			if !store.SleepContext(ctx, d) {
				return nil
			}
			if stream, err = s.st.Watch(ctx, opts); err == nil {
				attempt = 0
				break
			}
			if !store.IsRetryable(err) {
				return err
			}
		}
	}
}

func drain(ctx context.Context, stream store.ChangeStream, opts *store.WatchOptions, fn func(store.Event)) error {
	defer stream.Close()
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		opts.ResumeAfter = ev.Token
		fn(ev)
	}
}

func requestFeed(collection string) store.WatchOptions {
	return store.WatchOptions{Collection: collection, Kinds: []store.EventKind{store.Insert}}
}

func progressFeed() store.WatchOptions {
	return store.WatchOptions{Collection: store.Orders, Kinds: []store.EventKind{store.Update}}
}
