// Package repository is the PostgreSQL Store backend. Documents live in one
// JSONB table keyed by (collection, natural key); every mutation appends to
// a change log in the same transaction and notifies listening streams.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/store"
)

const (
	// notifyChannel is the LISTEN/NOTIFY channel carrying the collection
	// name of every change.
	notifyChannel = "store_changes"
	// changeLock serializes writers so that change sequence order equals
	// commit order.
	changeLock int64 = 0x6f72636865737472
)

// Store implements store.Store on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger logx.Logger
	poll   time.Duration
}

// Option tunes a Store.
type Option func(*Store)

// WithPollInterval bounds how long a stream waits for a notification
// before querying the change log anyway.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.poll = d
		}
	}
}

// New wraps pool. The schema must be migrated.
func New(pool *pgxpool.Pool, logger logx.Logger, opts ...Option) *Store {
	s := &Store{pool: pool, logger: logx.Component(logger, "postgres"), poll: time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn, migrates the schema and returns the Store.
func Open(ctx context.Context, dsn, database string, logger logx.Logger, opts ...Option) (*Store, error) {
	pool, err := NewPool(ctx, dsn, database)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool, logger, opts...), nil
}

// withTx opens a transaction holding the change lock and executes fn
// within it.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, changeLock); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("change lock: %w", classify(err))
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", logx.Err(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

func appendChange(ctx context.Context, tx pgx.Tx, kind store.EventKind, collection string, doc []byte) error {
	var seq int64
	err := tx.QueryRow(ctx,
		`INSERT INTO changes (collection, kind, doc) VALUES ($1, $2, $3::jsonb) RETURNING seq`,
		collection, string(kind), string(doc),
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("append change: %w", classify(err))
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
		return fmt.Errorf("notify change %d: %w", seq, classify(err))
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc store.Doc) error {
	key, err := store.Key(collection, doc)
	if err != nil {
		return err
	}
	data, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO documents (collection, key, doc) VALUES ($1, $2, $3::jsonb)`,
			collection, key, string(data),
		)
		if err != nil {
			if IsDuplicate(err) {
				return fmt.Errorf("%s %s: %w", collection, key, apperr.ErrDuplicate)
			}
			return fmt.Errorf("insert %s %s: %w", collection, key, classify(err))
		}
		return appendChange(ctx, tx, store.Insert, collection, data)
	})
}

func (s *Store) FindOne(ctx context.Context, collection string, filter store.Filter) (store.Doc, error) {
	docs, err := s.FindMany(ctx, collection, filter, store.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s %s: %w", collection, filter, apperr.ErrNotFound)
	}
	return docs[0], nil
}

func (s *Store) FindMany(ctx context.Context, collection string, filter store.Filter, opts store.FindOptions) ([]store.Doc, error) {
	sql, args, err := selectDocs(collection, filter, opts)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, classify(err))
	}
	defer rows.Close()

	capacity := 0
	if opts.Limit > 0 {
		capacity = opts.Limit
	}
	out := make([]store.Doc, 0, capacity)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, classify(err))
		}
		d, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, classify(err))
	}
	return out, nil
}

func (s *Store) UpdateOneIf(ctx context.Context, collection string, filter store.Filter, m store.Mutation) (store.Doc, error) {
	sql, args, err := lockDocs(collection, filter)
	if err != nil {
		return nil, err
	}
	var prior store.Doc
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		key, raw, err := lockOne(ctx, tx, sql, args)
		if err != nil {
			if errors.Is(err, apperr.ErrNotMatched) {
				return fmt.Errorf("%s %s: %w", collection, filter, err)
			}
			return err
		}
		if prior, err = decodeDoc(raw); err != nil {
			return err
		}
		next := m.Apply(prior)
		keyField := store.KeyField(collection)
		next[keyField] = prior[keyField]
		data, err := encodeDoc(next)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE documents SET doc = $3::jsonb, updated_at = now() WHERE collection = $1 AND key = $2`,
			collection, key, string(data),
		)
		if err != nil {
			return fmt.Errorf("update %s %s: %w", collection, key, classify(err))
		}
		return appendChange(ctx, tx, store.Update, collection, data)
	})
	if err != nil {
		return nil, err
	}
	return prior, nil
}

func lockOne(ctx context.Context, tx pgx.Tx, sql string, args []any) (string, []byte, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return "", nil, fmt.Errorf("select for update: %w", classify(err))
	}
	defer rows.Close()

	var (
		key     string
		raw     []byte
		matches int
	)
	for rows.Next() {
		matches++
		if err := rows.Scan(&key, &raw); err != nil {
			return "", nil, fmt.Errorf("scan: %w", classify(err))
		}
	}
	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("select for update: %w", classify(err))
	}
	if matches != 1 {
		return "", nil, apperr.ErrNotMatched
	}
	return key, raw, nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return classify(s.pool.Ping(ctx))
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

var _ store.Store = (*Store)(nil)
