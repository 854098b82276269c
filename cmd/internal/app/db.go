package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"invtrack/cmd/internal/dbschema"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbConnectTimeout = 3 * time.Second
	dbMaxIdleTime    = 5 * time.Minute
	dbAppName        = "invtrack"
)

// NewDBPool opens the invtrack pool and fails fast when Postgres is
// unreachable. Sessions are tagged with application_name so operators can
// find them in pg_stat_activity. The schema is not applied here; see Migrate.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := dbPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("db: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return pool, nil
}

func dbPoolConfig(cfg Config) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: parse url: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns > 0 {
		pcfg.MinConns = cfg.DBMinConns
	}
	if pcfg.MinConns > pcfg.MaxConns {
		return nil, fmt.Errorf("db: min conns %d exceeds max conns %d", pcfg.MinConns, pcfg.MaxConns)
	}
	pcfg.MaxConnIdleTime = dbMaxIdleTime
	if _, set := pcfg.ConnConfig.RuntimeParams["application_name"]; !set {
		pcfg.ConnConfig.RuntimeParams["application_name"] = dbAppName
	}
	return pcfg, nil
}

// CheckDB reports whether the pool answers within timeout and schema holds
// every invtrack table. /readyz uses it so a pod pointed at an unmigrated
// database stays out of rotation.
func CheckDB(parent context.Context, pool *pgxpool.Pool, schema string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("db: ping: %w", err)
	}
	missing, err := dbschema.Missing(ctx, pool, schemaOrDefault(schema))
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("db: schema %s not migrated, missing %s", schemaOrDefault(schema), strings.Join(missing, ", "))
	}
	return nil
}

// Migrate applies the invtrack schema. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	return dbschema.Apply(ctx, pool, schemaOrDefault(schema))
}

func schemaOrDefault(schema string) string {
	if s := strings.TrimSpace(schema); s != "" {
		return s
	}
	return dbschema.DefaultSchema
}
