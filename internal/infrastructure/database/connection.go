// Package database holds the pgx implementations of the persistence
// interfaces: compliance rules, profiles, audit events, monitoring
// configurations, screening state, entities and lifecycle bookkeeping.
// Queries are tenant-scoped; the schema is assumed to exist.
package database

import (
	"context"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a pgx connection pool from the database configuration
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.NewSystemError("invalid database URL").WithCause(err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.NewSystemError("failed to create connection pool").WithCause(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewSystemError("database unreachable").WithCause(err)
	}
	return pool, nil
}
