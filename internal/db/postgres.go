// Package db opens the PostgreSQL pool shared by the session store and the
// identity directory, and embeds the schema migrations.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open builds a pgxpool from dsn and validates connectivity. It does not run
// migrations.
func Open(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		pcfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := Ping(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Ping checks that a connection can be acquired within timeout.
func Ping(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
