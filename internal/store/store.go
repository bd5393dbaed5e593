// Package store owns the Postgres connection pool and the thin scanning
// helpers the engine queries through.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dbadmin/internal/config"
)

// ErrNotFound is returned when a lookup by identifier matches no row.
var ErrNotFound = errors.New("record not found")

type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens and pings a pgx pool.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.PoolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

// BeginTx starts a transaction on the pool.
func (d *DB) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return d.Pool.Begin(ctx)
}

// Get scans a single row into dest, mapping pgx.ErrNoRows to
// ErrNotFound.
func Get(ctx context.Context, q pgxscan.Querier, dest any, sql string, args ...any) error {
	if err := pgxscan.Get(ctx, q, dest, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Select scans all rows into dest, which must be a pointer to a slice.
func Select(ctx context.Context, q pgxscan.Querier, dest any, sql string, args ...any) error {
	return pgxscan.Select(ctx, q, dest, sql, args...)
}
