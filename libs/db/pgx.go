package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool tuning. The pool is shared by the request handlers and the outbox
// relay, so MaxConns leaves headroom for the relay's polling transaction
// alongside concurrent slot queries and bookings.
const (
	maxConns        = 12
	minConns        = 2
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
	openPingTimeout = 5 * time.Second
)

type Pool struct {
	*pgxpool.Pool
}

// Open connects and verifies the database is reachable before returning;
// a service that cannot reach its store should fail at startup, not on the
// first booking.
func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = connMaxLifetime
	cfg.MaxConnIdleTime = connMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, openPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// ReadyCheck adapts the pool to the readiness endpoint's check signature.
func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errors.New("database pool not configured")
		}
		return pool.Ping(ctx)
	}
}
