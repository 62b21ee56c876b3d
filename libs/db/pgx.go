package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured is returned by Available when the process was started
// without a database. Callers treat it like any other per-cycle store
// failure: skip, log, retry on the next tick.
var ErrNotConfigured = errors.New("database not configured")

type Pool struct {
	*pgxpool.Pool
}

func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	pool, err := newPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

// OpenLazy builds the pool without verifying connectivity. Connections are
// established on first use, so an unreachable database does not prevent the
// process from starting; callers see the failure on their next query and are
// expected to skip and retry.
func OpenLazy(ctx context.Context, databaseURL string) (*Pool, error) {
	pool, err := newPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

func newPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	return pgxpool.NewWithConfig(ctx, cfg)
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// Available reports whether the pool exists at all. It says nothing about
// connectivity; a reachable-but-down database surfaces on the next query.
func (p *Pool) Available() error {
	if p == nil || p.Pool == nil {
		return ErrNotConfigured
	}
	return nil
}

func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}
}
