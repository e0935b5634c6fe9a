package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/store"
)

const fetchBatch = 256

// Watch opens a stream over the change log. Tokens are change sequence
// numbers. The stream holds a pooled connection listening for change
// notifications and polls the log at least once per poll interval.
func (s *Store) Watch(ctx context.Context, opts store.WatchOptions) (store.ChangeStream, error) {
	var after int64
	switch opts.ResumeAfter {
	case "":
		err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&after)
		if err != nil {
			return nil, fmt.Errorf("current change position: %w", classify(err))
		}
	case store.TokenOrigin:
	default:
		n, err := strconv.ParseInt(opts.ResumeAfter, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("resume token %q: %w", opts.ResumeAfter, apperr.ErrInvalid)
		}
		after = n
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener: %w", classify(err))
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", classify(err))
	}

	var kinds []string
	for _, k := range opts.Kinds {
		kinds = append(kinds, string(k))
	}
	return &stream{s: s, conn: conn, opts: opts, kinds: kinds, after: after}, nil
}

type stream struct {
	s     *Store
	conn  *pgxpool.Conn
	opts  store.WatchOptions
	kinds []string
	after int64
	buf   []store.Event

	closeOnce sync.Once
}

func (st *stream) Next(ctx context.Context) (store.Event, error) {
	for {
		if len(st.buf) > 0 {
			ev := st.buf[0]
			st.buf = st.buf[1:]
			return ev, nil
		}
		if err := st.fetch(ctx); err != nil {
			return store.Event{}, err
		}
		if len(st.buf) > 0 {
			continue
		}
		if err := st.wait(ctx); err != nil {
			return store.Event{}, err
		}
	}
}

func (st *stream) fetch(ctx context.Context) error {
	rows, err := st.conn.Query(ctx, `
		SELECT seq, kind, doc FROM changes
		WHERE collection = $1 AND seq > $2 AND ($3::text[] IS NULL OR kind = ANY($3::text[]))
		ORDER BY seq
		LIMIT $4`,
		st.opts.Collection, st.after, st.kinds, fetchBatch,
	)
	if err != nil {
		return st.fail(ctx, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq  int64
			kind string
			raw  []byte
		)
		if err := rows.Scan(&seq, &kind, &raw); err != nil {
			return st.fail(ctx, err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return err
		}
		st.after = seq
		st.buf = append(st.buf, store.Event{
			Kind:       store.EventKind(kind),
			Collection: st.opts.Collection,
			Doc:        doc,
			Token:      strconv.FormatInt(seq, 10),
		})
	}
	if err := rows.Err(); err != nil {
		return st.fail(ctx, err)
	}
	return nil
}

// wait blocks until a change of the watched collection is announced or
// the poll interval elapses.
func (st *stream) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, st.s.poll)
	defer cancel()
	for {
		n, err := st.conn.Conn().WaitForNotification(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return st.fail(ctx, err)
		}
		if n.Payload == st.opts.Collection {
			return nil
		}
	}
}

func (st *stream) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("change stream %s: %w", st.opts.Collection, apperr.Unavailable(err))
}

func (st *stream) Close() error {
	st.closeOnce.Do(func() {
		if !st.conn.Conn().IsClosed() {
			ctx, cancel := context.WithTimeout(context.Background(), st.s.poll)
			defer cancel()
			if _, err := st.conn.Exec(ctx, "UNLISTEN "+notifyChannel); err != nil {
				st.conn.Conn().Close(ctx)
			}
		}
		st.conn.Release()
	})
	return nil
}
