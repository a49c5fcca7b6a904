// Package postgres is the shared back-office queue store, for terminals
// that keep their queue on one PostgreSQL database instead of a local file.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/posqueue/internal/infrastructure/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool connects to the shared queue database. A terminal holds few
// connections, so idle ones are dropped quickly.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 2 * time.Minute
	poolConfig.HealthCheckPeriod = 15 * time.Second
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "posqueue"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
