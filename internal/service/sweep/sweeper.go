package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/orderstate"
	"delivery-orchestrator/internal/store"
)

// Config holds the request TTLs and the sweep period.
type Config struct {
	RestaurantTTL time.Duration
	CourierTTL    time.Duration
	Interval      time.Duration
	// BatchSize caps the requests expired per collection and pass.
	BatchSize int
}

// Result counts the requests a pass expired.
type Result struct {
	Restaurant int
	Delivery   int
}

type labeledCounter interface {
	WithLabelValues(lvs ...string) prometheus.Counter
}

// Sweeper expires requests that outlived their TTL. An expiry is an update
// event that re-enters the watchers.
type Sweeper struct {
	m       *orderstate.Machine
	st      store.Store
	cfg     Config
	logger  logx.Logger
	expired labeledCounter
}

// New returns a Sweeper. expired may be nil.
func New(m *orderstate.Machine, cfg Config, logger logx.Logger, expired labeledCounter) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Sweeper{m: m, st: m.Store(), cfg: cfg, logger: logx.Component(logger, "sweeper"), expired: expired}
}

// Sweep runs one TTL pass over both request collections.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	n, err := s.expire(ctx, store.RestaurantRequests, s.cfg.RestaurantTTL)
	res.Restaurant = n
	if err != nil {
		return res, err
	}
	n, err = s.expire(ctx, store.DeliveryRequests, s.cfg.CourierTTL)
	res.Delivery = n
	if err != nil {
		return res, err
	}
	if res.Restaurant+res.Delivery > 0 {
		s.logger.Info("requests expired", logx.Int("restaurant", res.Restaurant), logx.Int("delivery", res.Delivery))
	}
	return res, nil
}

func (s *Sweeper) expire(ctx context.Context, collection string, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	deadline := s.m.Now().Add(-ttl)
	docs, err := s.st.FindMany(ctx, collection,
		store.Where(store.Eq("status", domain.RequestRequested), store.Lt("requestedAt", deadline)),
		store.FindOptions{Sort: []store.SortKey{store.Asc("requestedAt")}, Limit: s.cfg.BatchSize},
	)
	if err != nil {
		return 0, fmt.Errorf("find timed out %s: %w", collection, err)
	}
	expired := 0
	for _, d := range docs {
		ok, err := s.m.CloseRequest(ctx, collection, d.String("id"), domain.RequestExpired)
		if err != nil {
			return expired, err
		}
		if !ok {
			continue
		}
		expired++
		if s.expired != nil {
			s.expired.WithLabelValues(collection).Inc()
		}
		s.logger.Debug("request expired",
			logx.String("collection", collection),
			logx.String("id", d.String("id")),
			logx.String("orderNo", d.String("orderNo")),
		)
	}
	return expired, nil
}

// Run sweeps every Interval until ctx is done. Overlapping passes are
// skipped.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), func() {
		passCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := s.Sweep(passCtx); err != nil && ctx.Err() == nil {
			s.logger.Warn("sweep failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}

	s.logger.Info("sweeper started",
		logx.Duration("interval", s.cfg.Interval),
		logx.Duration("restaurantTTL", s.cfg.RestaurantTTL),
		logx.Duration("courierTTL", s.cfg.CourierTTL),
	)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
	return nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ l logx.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
