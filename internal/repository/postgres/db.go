package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	URL               string        `mapstructure:"dsn"`
	AppName           string        `mapstructure:"application_name"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
}

type DB struct {
	Pool         *pgxpool.Pool
	QueryTimeout time.Duration
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if c.AppName != "" {
		pcfg.ConnConfig.RuntimeParams["application_name"] = c.AppName
	}
	if c.MaxConns > 0 {
		pcfg.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pcfg.MinConns = min(c.MinConns, pcfg.MaxConns)
	}
	if c.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		pcfg.MaxConnIdleTime = c.MaxConnIdleTime
	}
	if c.HealthCheckPeriod > 0 {
		pcfg.HealthCheckPeriod = c.HealthCheckPeriod
	}
	return pcfg, nil
}

// New opens the pool, checks it answers and exports its stats as
// db_pool_* gauges on the default registry.
func New(ctx context.Context, cfg Config) (*DB, error) {
	pcfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(hctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := registerPoolStats(prometheus.DefaultRegisterer, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool, QueryTimeout: cfg.QueryTimeout}, nil
}

func registerPoolStats(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	gauges := map[string]struct {
		help string
		fn   func(*pgxpool.Stat) float64
	}{
		"db_pool_total_conns":    {"Connections currently in the pool.", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
		"db_pool_acquired_conns": {"Connections checked out of the pool.", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
		"db_pool_idle_conns":     {"Idle connections in the pool.", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
		"db_pool_max_conns":      {"Configured pool size.", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
	}
	for name, g := range gauges {
		fn := g.fn
		err := reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: name,
			Help: g.help,
		}, func() float64 { return fn(pool.Stat()) }))
		var are prometheus.AlreadyRegisteredError
		if err != nil && !errors.As(err, &are) {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

func (db *DB) Close() { db.Pool.Close() }

// Ping is used as the /healthz probe.
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.QueryTimeout)
}
