// Package ratelimit throttles operator queries per client.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// Nop lets everything through.
type Nop struct{}

// Allow always returns true.
func (Nop) Allow(string) bool { return true }

// Config tunes a TokenBucket.
type Config struct {
	Rate  float64       // tokens per second
	Burst int           // bucket capacity
	Idle  time.Duration // buckets unused for longer are dropped; 0 keeps them
}

// TokenBucket keeps one bucket per key.
type TokenBucket struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket returns a limiter refilling cfg.Rate tokens per second up
// to cfg.Burst. now may be nil.
func NewTokenBucket(cfg Config, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &TokenBucket{cfg: cfg, now: now, buckets: make(map[string]*bucket)}
}

// Allow takes one token from key's bucket.
func (l *TokenBucket) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), last: now}
		l.buckets[key] = b
	}
	if dt := now.Sub(b.last); dt > 0 {
		b.tokens = min(b.tokens+dt.Seconds()*l.cfg.Rate, float64(l.cfg.Burst))
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter is the time a drained bucket needs for one token.
func (l *TokenBucket) RetryAfter() time.Duration {
	return time.Duration(float64(time.Second) / l.cfg.Rate)
}

func (l *TokenBucket) sweep(now time.Time) {
	if l.cfg.Idle <= 0 || now.Sub(l.lastSweep) < l.cfg.Idle {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.last) > l.cfg.Idle {
			delete(l.buckets, k)
		}
	}
}

func (l *TokenBucket) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
