package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func init() {
	Register("postgres", func() Datasource { return &PostgresDatasource{} })
}

// PostgresDatasource pools a pgxpool.Pool, grounded on the teacher's
// internal/database/postgres connection pool (ParseConfig from a DSN, pool
// size and lifetime from config, connect-timeout context, ping on connect).
type PostgresDatasource struct {
	base
	pool *pgxpool.Pool
}

func (d *PostgresDatasource) Name() string { return "postgres" }

func (d *PostgresDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "dsn", "") == "" && stringField(cfg, "host", "") == "" {
		return NewError("postgres", FailureConfigInvalid, fmt.Errorf("neither dsn nor host set"))
	}
	d.configure(cfg)
	return nil
}

func (d *PostgresDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}

	dsn := d.dsn()
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return NewError("postgres", FailureConfigInvalid, err)
	}
	poolConfig.MaxConns = int32(intField(d.cfg, "max_connections", 10))

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return NewError("postgres", FailureConnectionFailed, err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return NewError("postgres", FailureConnectionFailed, err)
	}

	d.pool = pool
	return nil
}

func (d *PostgresDatasource) dsn() string {
	if dsn := stringField(d.cfg, "dsn", ""); dsn != "" {
		return dsn
	}
	host := stringField(d.cfg, "host", "localhost")
	port := intField(d.cfg, "port", 5432)
	database := stringField(d.cfg, "database", "postgres")
	user := stringField(d.cfg, "username", "postgres")
	password := stringField(d.cfg, "password", "")
	sslMode := stringField(d.cfg, "ssl_mode", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", user, password, host, port, database, sslMode)
}

func (d *PostgresDatasource) HealthCheck(ctx context.Context) bool {
	if d.pool == nil {
		return false
	}
	return d.pool.Ping(ctx) == nil
}

func (d *PostgresDatasource) Close(ctx context.Context) error {
	if d.pool != nil {
		d.pool.Close()
	}
	return nil
}

// CacheKey shares a pool across adapters pointing at the identical
// host/port/database/user quadruple, mirroring the pattern the teacher's
// Elasticsearch equivalent (in original_source) uses for its own backend.
func (d *PostgresDatasource) CacheKey() string {
	return fmt.Sprintf("postgres:%s:%d:%s:%s",
		stringField(d.cfg, "host", "localhost"),
		intField(d.cfg, "port", 5432),
		stringField(d.cfg, "database", "postgres"),
		stringField(d.cfg, "username", "postgres"))
}

func (d *PostgresDatasource) Client() interface{} { return d.pool }
