package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config is read from the "db" section. Zero pool settings keep the pgxpool
// defaults; QueryTimeout bounds every repository call.
type Config struct {
	DSN               string        `mapstructure:"dsn"`
	AppName           string        `mapstructure:"app_name"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	if c.DSN == "" {
		return nil, errors.New("db: dsn is empty")
	}
	if c.MinConns > 0 && c.MaxConns > 0 && c.MinConns > c.MaxConns {
		return nil, fmt.Errorf("db: min_conns %d exceeds max_conns %d", c.MinConns, c.MaxConns)
	}
	pcfg, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	set := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	if c.MaxConns > 0 {
		pcfg.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pcfg.MinConns = c.MinConns
	}
	set(&pcfg.MaxConnLifetime, c.MaxConnLifetime)
	set(&pcfg.MaxConnIdleTime, c.MaxConnIdleTime)
	set(&pcfg.HealthCheckPeriod, c.HealthCheckPeriod)
	if c.AppName != "" {
		pcfg.ConnConfig.RuntimeParams["application_name"] = c.AppName
	}
	return pcfg, nil
}

type DB struct {
	Pool         *pgxpool.Pool
	QueryTimeout time.Duration
}

const connectPingTimeout = 5 * time.Second

// New opens the pool and fails fast when the database is unreachable.
func New(ctx context.Context, cfg Config) (*DB, error) {
	pcfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{Pool: pool, QueryTimeout: cfg.QueryTimeout}, nil
}

func (db *DB) Close() { db.Pool.Close() }

// Ping backs the /healthz endpoints.
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.QueryTimeout)
}
