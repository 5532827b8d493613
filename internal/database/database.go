// Package database opens the PostgreSQL pool backing the session-event
// recorder.
package database

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Calicanx/aitutor-stream/internal/config"
)

// ConnString assembles the postgres:// URL for cfg. Credentials are
// escaped by the URL builder; ssl_mode already carries its default from
// config, so an empty value simply omits the parameter.
func ConnString(cfg config.DBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Name,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = "sslmode=" + cfg.SSLMode
	}
	return u.String()
}

// Connect opens a sized pool and pings it so a bad DSN or unreachable
// host fails at startup, not on the first event flush.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse recorder dsn: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open recorder pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping recorder database: %w", err)
	}
	return pool, nil
}
