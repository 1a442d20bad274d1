package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"procurement/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool and verifies it with a ping
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 1
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Health reports pool statistics
func Health(ctx context.Context, pool *pgxpool.Pool) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}

	s := pool.Stat()
	stats["status"] = "up"
	stats["total_conns"] = strconv.Itoa(int(s.TotalConns()))
	stats["idle_conns"] = strconv.Itoa(int(s.IdleConns()))
	stats["acquired_conns"] = strconv.Itoa(int(s.AcquiredConns()))
	stats["max_conns"] = strconv.Itoa(int(s.MaxConns()))
	return stats
}
