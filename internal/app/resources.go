package app

import (
	"context"
	"sync"

	"delivery-orchestrator/internal/logx"
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// resources tracks what the container opened so it can be closed in
// reverse order.
type resources struct {
	mu      sync.Mutex
	closers []closer
}

func newResources() *resources {
	return &resources{}
}

func (r *resources) add(name string, fn func(context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// closeAll closes every resource, newest first. It is safe to call twice.
func (r *resources) closeAll(ctx context.Context, logger logx.Logger) {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.fn(ctx); err != nil {
			logger.Error("close error", logx.String("resource", c.name), logx.Err(err))
		}
	}
}
