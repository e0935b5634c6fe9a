package memstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/store"
)

type stream struct {
	s    *Store
	opts store.WatchOptions
	pos  int64

	closeOnce sync.Once
	done      chan struct{}
}

func (st *stream) Next(ctx context.Context) (store.Event, error) {
	for {
		st.s.mu.Lock()
		if st.s.closed {
			st.s.mu.Unlock()
			return store.Event{}, apperr.Unavailable(fmt.Errorf("memstore closed"))
		}
		if !st.s.unavailable {
			if ev, ok := st.scanLocked(); ok {
				st.s.mu.Unlock()
				return ev, nil
			}
		}
		wake := st.s.wake
		st.s.mu.Unlock()

		select {
		case <-ctx.Done():
			return store.Event{}, ctx.Err()
		case <-st.done:
			return store.Event{}, fmt.Errorf("change stream closed: %w", context.Canceled)
		case <-wake:
		}
	}
}

// scanLocked returns the first selected change after pos. The log is dense:
// entry i has seq i+1.
func (st *stream) scanLocked() (store.Event, bool) {
	for st.pos < st.s.seq {
		c := st.s.log[st.pos]
		st.pos = c.seq
		if c.collection != st.opts.Collection || !st.opts.Wants(c.kind) {
			continue
		}
		return store.Event{
			Kind:       c.kind,
			Collection: c.collection,
			Doc:        c.doc.Clone(),
			Token:      strconv.FormatInt(c.seq, 10),
		}, true
	}
	return store.Event{}, false
}

func (st *stream) Close() error {
	st.closeOnce.Do(func() { close(st.done) })
	return nil
}
