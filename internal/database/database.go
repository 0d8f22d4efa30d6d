// Package database builds the shared PostgreSQL connection pool.
package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"newsletter-go/internal/config"
	"newsletter-go/internal/logging"
)

const defaultConnectTimeout = 5 * time.Second

// NewPool parses the settings into a pgxpool config, opens the pool and pings it.
// The pool is closed again if the ping fails.
func NewPool(ctx context.Context, settings config.DatabaseSettings, logger *logging.ContextLogger) (*pgxpool.Pool, error) {
	dsn := settings.ConnectionString()
	poolConfig, err := ParseConfig(settings)
	if err != nil {
		return nil, err
	}
	poolConfig.ConnConfig.Tracer = &queryTracer{logger: logger}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	timeout := settings.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", sanitizeDSN(dsn), err)
	}

	logger.WithFields(logrus.Fields{
		"dsn":       sanitizeDSN(dsn),
		"max_conns": poolConfig.MaxConns,
		"min_conns": poolConfig.MinConns,
	}).Info("postgres pool created")

	return pool, nil
}

// ParseConfig maps the settings onto a pgxpool.Config without connecting.
func ParseConfig(settings config.DatabaseSettings) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(settings.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if settings.MaxConns > 0 {
		poolConfig.MaxConns = settings.MaxConns
	}
	if settings.MinConns > 0 {
		poolConfig.MinConns = settings.MinConns
	}
	if settings.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = settings.MaxConnLifetime
	}
	if settings.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = settings.MaxConnIdleTime
	}
	if settings.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = settings.ConnectTimeout
	}
	return poolConfig, nil
}

func sanitizeDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "***")
		}
	}
	return parsed.String()
}

// queryTracer forwards failed queries to the application logger. SQL text is not logged.
type queryTracer struct {
	logger *logging.ContextLogger
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return ctx
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	if data.Err != nil {
		t.logger.ErrorWithTracing(ctx, "postgres query failed", data.Err, logrus.Fields{
			"command_tag": data.CommandTag.String(),
		})
	}
}
