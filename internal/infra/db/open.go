// Package db opens the PostgreSQL pool and owns the schema.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"feed-resilience/internal/observability/metrics"
	"feed-resilience/internal/pkg/config"
)

var ErrMissingDSN = errors.New("database DSN not set")

const pingTimeout = 5 * time.Second

// PoolConfig sizes the sql.DB pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig suits a worker running a handful of jobs at once.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// LoadPoolConfig reads DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS,
// DB_CONN_MAX_LIFETIME and DB_CONN_MAX_IDLE_TIME through l.
func LoadPoolConfig(l *config.Loader) PoolConfig {
	d := DefaultPoolConfig()
	return PoolConfig{
		MaxOpenConns:    l.Int("DB_MAX_OPEN_CONNS", d.MaxOpenConns, config.IntRange(1, 500)),
		MaxIdleConns:    l.Int("DB_MAX_IDLE_CONNS", d.MaxIdleConns, config.IntRange(1, 500)),
		ConnMaxLifetime: l.Duration("DB_CONN_MAX_LIFETIME", d.ConnMaxLifetime, config.ValidatePositiveDuration),
		ConnMaxIdleTime: l.Duration("DB_CONN_MAX_IDLE_TIME", d.ConnMaxIdleTime, config.ValidatePositiveDuration),
	}
}

func (p PoolConfig) apply(db *sql.DB) {
	db.SetMaxOpenConns(p.MaxOpenConns)
	db.SetMaxIdleConns(min(p.MaxIdleConns, p.MaxOpenConns))
	db.SetConnMaxLifetime(p.ConnMaxLifetime)
	db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
}

// Open connects to dsn through the pgx driver and pings it.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrMissingDSN
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.apply(conn)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connected",
		slog.Int("max_open_conns", pool.MaxOpenConns),
		slog.Int("max_idle_conns", pool.MaxIdleConns))
	return conn, nil
}

// ReportPoolStats publishes pool usage every interval until ctx is done.
func ReportPoolStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		stats := db.Stats()
		metrics.UpdateDBConnectionStats(stats.InUse, stats.Idle)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
