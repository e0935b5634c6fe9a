// Package changefeed turns store change streams into handler calls. Each
// watched source has one reader; events are spread over partitions by order
// number so that one order is never handled concurrently, and each source's
// resume token only advances past events that were handled.
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/orders"
	"delivery-orchestrator/internal/store"
)

// Handler processes a single change event.
type Handler interface {
	Handle(ctx context.Context, ev store.Event) error
}

// HandleFunc adapts a function to Handler.
type HandleFunc func(context.Context, store.Event) error

func (f HandleFunc) Handle(ctx context.Context, ev store.Event) error { return f(ctx, ev) }

// Config tunes the consumer.
type Config struct {
	Partitions int
	QueueSize  int
	// Grace bounds the drain of queued events on shutdown.
	Grace         time.Duration
	RetryBase     time.Duration
	RetryMax      time.Duration
	MaxAttempts   int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Partitions < 1 {
		c.Partitions = 8
	}
	if c.QueueSize < 1 {
		c.QueueSize = 64
	}
	if c.Grace <= 0 {
		c.Grace = 10 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 100 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 250 * time.Millisecond
	}
	return c
}

// Event outcomes, as counted per watcher.
const (
	OutcomeHandled   = "handled"
	OutcomeConflict  = "commit_conflict"
	OutcomeSkipped   = "skipped"
	OutcomeViolation = "invariant_violation"
	OutcomeAbandoned = "abandoned"
)

type labeledCounter interface {
	WithLabelValues(lvs ...string) prometheus.Counter
}

// Option tunes a Consumer.
type Option func(*Consumer)

// WithStartToken makes watcher start after token instead of its saved
// cursor. An empty watcher name applies to every watcher.
func WithStartToken(watcher, token string) Option {
	return func(c *Consumer) { c.start[watcher] = token }
}

// WithEventsCounter counts handled events by watcher and outcome.
func WithEventsCounter(events labeledCounter) Option {
	return func(c *Consumer) { c.events = events }
}

// Consumer reads every source and feeds the partitions.
type Consumer struct {
	st      store.Store
	cursors *store.CursorStore
	sources []orders.Source
	handler Handler
	cfg     Config
	logger  logx.Logger
	events  labeledCounter
	start   map[string]string
	sleep   func(context.Context, time.Duration) bool

	mu    sync.Mutex
	fatal error
}

type item struct {
	ev      store.Event
	source  string
	seq     uint64
	tracker *ackTracker
}

// New returns a Consumer.
func New(st store.Store, sources []orders.Source, h Handler, cfg Config, logger logx.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		st:      st,
		cursors: store.NewCursorStore(st),
		sources: sources,
		handler: h,
		cfg:     cfg.withDefaults(),
		logger:  logx.Component(logger, "changefeed"),
		start:   make(map[string]string),
		sleep:   store.SleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Err returns the invariant violation that halted a partition, if any.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

func (c *Consumer) setFatal(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fatal == nil {
		c.fatal = err
	}
}

// Run consumes until ctx is done, then drains queued events for at most
// Grace and saves the final cursors. It returns the first invariant
// violation observed, or the error that stopped a reader.
func (c *Consumer) Run(ctx context.Context) error {
	trackers := make(map[string]*ackTracker, len(c.sources))
	starts := make(map[string]string, len(c.sources))
	for _, src := range c.sources {
		token, err := c.startToken(ctx, src.Name)
		if err != nil {
			return fmt.Errorf("load cursor of %s: %w", src.Name, err)
		}
		starts[src.Name] = token
		trackers[src.Name] = newAckTracker(token)
	}

	queues := make([]chan item, c.cfg.Partitions)
	for i := range queues {
		queues[i] = make(chan item, c.cfg.QueueSize)
	}

	handleCtx, abandon := context.WithCancel(context.WithoutCancel(ctx))
	defer abandon()

	var partitions sync.WaitGroup
	for i, q := range queues {
		partitions.Add(1)
		go func() {
			defer partitions.Done()
			c.partition(handleCtx, i, q)
		}()
	}

	flushCtx, stopFlush := context.WithCancel(ctx)
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		c.flushLoop(flushCtx, trackers)
	}()

	c.logger.Info("change feed consumer started", logx.Int("partitions", c.cfg.Partitions), logx.Int("sources", len(c.sources)))

	readers, readCtx := errgroup.WithContext(ctx)
	for _, src := range c.sources {
		readers.Go(func() error {
			return c.read(readCtx, src, starts[src.Name], trackers[src.Name], queues)
		})
	}
	readErr := readers.Wait()
	for _, q := range queues {
		close(q)
	}

	drained := make(chan struct{})
	go func() {
		partitions.Wait()
		close(drained)
	}()
	grace := time.NewTimer(c.cfg.Grace)
	defer grace.Stop()
	select {
	case <-drained:
	case <-grace.C:
		c.logger.Warn("shutdown grace elapsed, abandoning in-flight events", logx.Duration("grace", c.cfg.Grace))
		abandon()
		<-drained
	}

	stopFlush()
	<-flushed
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	c.flush(finalCtx, trackers)

	for name, tr := range trackers {
		if n := tr.outstanding(); n > 0 {
			c.logger.Info("events left for replay", logx.String("watcher", name), logx.Int("count", n))
		}
	}
	c.logger.Info("change feed consumer stopped")

	if err := c.Err(); err != nil {
		return err
	}
	return readErr
}

func (c *Consumer) startToken(ctx context.Context, name string) (string, error) {
	if t, ok := c.start[name]; ok {
		return t, nil
	}
	if t, ok := c.start[""]; ok {
		return t, nil
	}
	t, err := c.cursors.Load(ctx, name)
	if err != nil {
		return "", err
	}
	if t == "" {
		return store.TokenOrigin, nil
	}
	return t, nil
}

func (c *Consumer) read(ctx context.Context, src orders.Source, token string, tr *ackTracker, queues []chan item) error {
	log := c.logger.With(logx.String("watcher", src.Name))
	opts := src.Watch
	failures := 0
	for {
		opts.ResumeAfter = token
		stream, err := c.st.Watch(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !store.IsRetryable(err) {
				return fmt.Errorf("watch %s: %w", src.Name, err)
			}
			failures++
			log.Warn("watch failed, retrying", logx.Int("attempt", failures), logx.Err(err))
			if !c.sleep(ctx, store.Backoff(c.cfg.RetryBase, c.cfg.RetryMax, failures)) {
				return nil
			}
			continue
		}
		log.Info("watching", logx.String("collection", opts.Collection), logx.String("resumeAfter", token))

		for {
			ev, err := stream.Next(ctx)
			if err != nil {
				_ = stream.Close()
				if ctx.Err() != nil {
					return nil
				}
				failures++
				log.Warn("change stream interrupted, reconnecting", logx.String("resumeAfter", token), logx.Err(err))
				if !c.sleep(ctx, store.Backoff(c.cfg.RetryBase, c.cfg.RetryMax, failures)) {
					return nil
				}
				break
			}
			failures = 0
			token = ev.Token

			it := item{ev: ev, source: src.Name, seq: tr.track(ev.Token), tracker: tr}
			q := queues[partitionOf(orders.PartitionKey(ev), len(queues))]
			select {
			case q <- it:
			case <-ctx.Done():
				_ = stream.Close()
				return nil
			}
		}
	}
}

func partitionOf(key string, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}

func (c *Consumer) partition(ctx context.Context, id int, q <-chan item) {
	log := c.logger.With(logx.Int("partition", id))
	halted := false
	for it := range q {
		if halted || ctx.Err() != nil {
			continue
		}
		outcome := c.handle(ctx, it, log)
		if c.events != nil {
			c.events.WithLabelValues(it.source, outcome).Inc()
		}
		switch outcome {
		case OutcomeHandled, OutcomeConflict, OutcomeSkipped:
			it.tracker.ack(it.seq)
		case OutcomeViolation:
			halted = true
		}
	}
}

func (c *Consumer) handle(ctx context.Context, it item, log logx.Logger) string {
	log = log.With(
		logx.String("watcher", it.source),
		logx.String("orderNo", it.ev.Doc.String("orderNo")),
		logx.String("token", it.ev.Token),
	)
	for attempt := 1; ; attempt++ {
		err := c.handler.Handle(ctx, it.ev)
		switch {
		case err == nil:
			return OutcomeHandled
		case errors.Is(err, apperr.ErrCommitConflict):
			log.Debug("commit conflict acknowledged", logx.Err(err))
			return OutcomeConflict
		case errors.Is(err, apperr.ErrInvariantViolation):
			c.setFatal(err)
			log.Error("invariant violation, partition halted", logx.Err(err))
			return OutcomeViolation
		case ctx.Err() != nil:
			return OutcomeAbandoned
		}

		var perm PermanentError
		permanent := errors.As(err, &perm) || errors.Is(err, apperr.ErrInvalid)
		if permanent || (!store.IsRetryable(err) && attempt >= c.cfg.MaxAttempts) {
			log.Error("event skipped", logx.Int("attempt", attempt), logx.Err(err))
			return OutcomeSkipped
		}
		delay := store.Backoff(c.cfg.RetryBase, c.cfg.RetryMax, attempt)
		log.Warn("event handling failed, retrying", logx.Int("attempt", attempt), logx.Duration("delay", delay), logx.Err(err))
		if !c.sleep(ctx, delay) {
			return OutcomeAbandoned
		}
	}
}

func (c *Consumer) flushLoop(ctx context.Context, trackers map[string]*ackTracker) {
	t := time.NewTicker(c.cfg.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.flush(ctx, trackers)
		}
	}
}

func (c *Consumer) flush(ctx context.Context, trackers map[string]*ackTracker) {
	for name, tr := range trackers {
		token, dirty := tr.pending()
		if !dirty {
			continue
		}
		if err := c.cursors.Save(ctx, name, token); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("cursor save failed", logx.String("watcher", name), logx.Err(err))
			}
			continue
		}
		tr.markSaved(token)
	}
}
