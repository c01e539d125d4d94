// Package database owns the Postgres connection pool and schema migrations
// used by the postgres dedup backend.
package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	zerologadapter "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/jackc/tern/v2/migrate"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const versionTable = "gameevents_schema_version"

// PoolOptions tunes NewPool.
type PoolOptions struct {
	MaxConns int32
	// NewRelic traces queries as datastore segments instead of logging them.
	NewRelic bool
	Logger   zerolog.Logger
	LogLevel tracelog.LogLevel
}

// NewPool creates a pgx pool for databaseURL and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.ConnConfig.Tracer = queryTracer(opts)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func queryTracer(opts PoolOptions) pgx.QueryTracer {
	if opts.NewRelic {
		return nrpgx5.NewTracer()
	}
	level := opts.LogLevel
	if level == 0 {
		level = tracelog.LogLevelWarn
	}
	return &tracelog.TraceLog{
		Logger:   zerologadapter.NewLogger(opts.Logger),
		LogLevel: level,
	}
}

// Migrate applies the embedded migrations using a connection from pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	m, err := migrate.NewMigrator(ctx, conn.Conn(), versionTable)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.LoadMigrations(Migrations()); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return m.Migrate(ctx)
}

// Migrations exposes the embedded migration files.
func Migrations() fs.FS {
	sub, _ := fs.Sub(migrationFiles, "migrations")
	return sub
}
