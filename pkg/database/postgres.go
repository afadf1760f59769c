package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DSN returns the connection URL. Credentials are escaped so passwords may
// contain URL metacharacters.
func (c *PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

const (
	defaultRetryAttempts = 3
	defaultRetryBaseWait = 1 * time.Second
	retryJitterPercent   = 25
)

// startupBackoff waits 1s, 2s ... between attempts with ±25% jitter and
// stops after defaultRetryAttempts tries.
func startupBackoff() retry.Backoff {
	b := retry.NewExponential(defaultRetryBaseWait)
	b = retry.WithJitterPercent(retryJitterPercent, b)
	return retry.WithMaxRetries(defaultRetryAttempts-1, b)
}

// withStartupRetry runs op up to defaultRetryAttempts times while it keeps
// failing with a connection error. Other errors return immediately.
func withStartupRetry(ctx context.Context, what string, logger *slog.Logger, op func() error) error {
	attempt := 0
	err := retry.Do(ctx, startupBackoff(), func(ctx context.Context) error {
		attempt++
		err := op()
		if err == nil || !IsConnectionError(err) {
			return err
		}
		if logger != nil && attempt < defaultRetryAttempts {
			logger.WarnContext(ctx, what+" failed, retrying",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", defaultRetryAttempts),
				slog.String("error", err.Error()),
			)
		}
		return retry.RetryableError(err)
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return fmt.Errorf("%s: context canceled during retry: %w", what, err)
	case IsConnectionError(err):
		return fmt.Errorf("%s after %d attempts: %w", what, attempt, err)
	default:
		return err
	}
}

// NewPostgresPool opens a pool and pings it, retrying connection failures
// during startup. logger may be nil.
func NewPostgresPool(ctx context.Context, cfg *PostgresConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	var pool *pgxpool.Pool
	err = withStartupRetry(ctx, "connect to postgres", logger, func() error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// PostgresChecker returns a readiness probe for pool.
func PostgresChecker(pool interface{ Ping(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return pool.Ping(ctx)
	}
}
