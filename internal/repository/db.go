package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const minConns = 16

// NewPool creates and pings a new pgx connection pool. A non-empty database
// overrides the one named in dsn. Every open change stream holds one
// connection, so the pool is never smaller than minConns.
func NewPool(ctx context.Context, dsn, database string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if database != "" {
		cfg.ConnConfig.Database = database
	}
	if cfg.MaxConns < minConns {
		cfg.MaxConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, classify(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, classify(err)
	}
	return pool, nil
}
