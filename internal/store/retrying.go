package store

import (
	"context"
	"errors"
	"time"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/logx"
)

type counter interface {
	Inc()
}

// RetryConfig configures the backoff of Retrying.
type RetryConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts bounds the attempts per call; zero retries until ctx is done.
	MaxAttempts int
}

// Retrying retries calls that fail with apperr.ErrStoreUnavailable using an
// exponential backoff capped at MaxDelay.
type Retrying struct {
	next    Store
	logger  logx.Logger
	retries counter
	cfg     RetryConfig
	sleep   func(context.Context, time.Duration) bool
}

// NewRetrying wraps next. It returns nil when next is nil.
func NewRetrying(next Store, logger logx.Logger, retries counter, cfg RetryConfig) *Retrying {
	if next == nil {
		return nil
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Retrying{next: next, logger: logger, retries: retries, cfg: cfg, sleep: SleepContext}
}

func (r *Retrying) Insert(ctx context.Context, collection string, doc Doc) error {
	return r.do(ctx, "Insert", collection, func() error {
		return r.next.Insert(ctx, collection, doc)
	})
}

func (r *Retrying) FindOne(ctx context.Context, collection string, filter Filter) (Doc, error) {
	var out Doc
	err := r.do(ctx, "FindOne", collection, func() error {
		d, err := r.next.FindOne(ctx, collection, filter)
		out = d
		return err
	})
	return out, err
}

func (r *Retrying) FindMany(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Doc, error) {
	var out []Doc
	err := r.do(ctx, "FindMany", collection, func() error {
		ds, err := r.next.FindMany(ctx, collection, filter, opts)
		out = ds
		return err
	})
	return out, err
}

// UpdateOneIf retries like the other calls. A retry after a lost reply may
// observe ErrNotMatched for an update that did apply; callers re-read state
// on ErrNotMatched.
func (r *Retrying) UpdateOneIf(ctx context.Context, collection string, filter Filter, m Mutation) (Doc, error) {
	var out Doc
	err := r.do(ctx, "UpdateOneIf", collection, func() error {
		d, err := r.next.UpdateOneIf(ctx, collection, filter, m)
		out = d
		return err
	})
	return out, err
}

func (r *Retrying) Watch(ctx context.Context, opts WatchOptions) (ChangeStream, error) {
	var out ChangeStream
	err := r.do(ctx, "Watch", opts.Collection, func() error {
		cs, err := r.next.Watch(ctx, opts)
		out = cs
		return err
	})
	return out, err
}

func (r *Retrying) Close(ctx context.Context) error { return r.next.Close(ctx) }

func (r *Retrying) do(ctx context.Context, method, collection string, call func() error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			break
		}
		if r.cfg.MaxAttempts > 0 && attempt >= r.cfg.MaxAttempts {
			break
		}
		delay := Backoff(r.cfg.BaseDelay, r.cfg.MaxDelay, attempt)
		if r.retries != nil {
			r.retries.Inc()
		}
		r.logger.Warn("store retry",
			logx.String("method", method),
			logx.String("collection", collection),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if !r.sleep(ctx, delay) {
			break
		}
	}
	return lastErr
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, apperr.ErrStoreUnavailable)
}

// Backoff returns base*2^(attempt-1) capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return max
	}
	d := base << (attempt - 1)
	if max > 0 && d > max {
		return max
	}
	return d
}

// SleepContext waits for d and reports false when ctx ended first.
func SleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var _ Store = (*Retrying)(nil)
