// Package database owns the PostgreSQL pool and the versioned schema that the
// snapshot store and the event log write to.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options configures the pool.
type Options struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration // default 30m
	MaxConnIdleTime time.Duration // default 5m
}

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// ParseURL validates a PostgreSQL connection URL.
func ParseURL(url string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	return cfg, nil
}

func (o Options) poolConfig() (*pgxpool.Config, error) {
	if o.MaxConns < 0 || o.MinConns < 0 {
		return nil, fmt.Errorf("connection limits must not be negative")
	}
	if o.MaxConns > 0 && o.MinConns > o.MaxConns {
		return nil, fmt.Errorf("min conns %d exceeds max conns %d", o.MinConns, o.MaxConns)
	}

	cfg, err := ParseURL(o.URL)
	if err != nil {
		return nil, err
	}
	if o.MaxConns > 0 {
		cfg.MaxConns = int32(o.MaxConns)
	}
	cfg.MinConns = int32(o.MinConns)

	cfg.MaxConnLifetime = 30 * time.Minute
	if o.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = o.MaxConnLifetime
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	if o.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = o.MaxConnIdleTime
	}
	return cfg, nil
}

// Open creates the pool and pings it. The pool is closed again on failure.
func Open(ctx context.Context, o Options) (*DB, error) {
	cfg, err := o.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s: %w", cfg.ConnConfig.Host, err)
	}

	slog.Debug("database pool ready", "host", cfg.ConnConfig.Host, "max_conns", cfg.MaxConns)
	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// HealthCheck is used by the readiness probe.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations are append-only. Never edit an applied step; add a new one.
var migrations = []migration{
	{1, "engine snapshots", []string{
		`CREATE TABLE IF NOT EXISTS engine_snapshots (
			name       TEXT PRIMARY KEY,
			version    INTEGER NOT NULL,
			data       JSONB NOT NULL,
			saved_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}},
	{2, "quest events", []string{
		`CREATE TABLE IF NOT EXISTS quest_events (
			id          BIGSERIAL PRIMARY KEY,
			event_type  TEXT NOT NULL,
			user_id     TEXT NOT NULL DEFAULT '',
			actor_id    TEXT NOT NULL DEFAULT '',
			data        JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quest_events_user ON quest_events(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_quest_events_type ON quest_events(event_type)`,
	}},
}

// migrationLockID serializes Migrate across replicas starting together.
const migrationLockID int64 = 0x67726e71 // "grnq"

// Migrate applies the migrations that are not yet recorded.
func (db *DB) Migrate(ctx context.Context) error {
	return Migrate(ctx, db.Pool)
}

// Migrate applies pending migrations in one transaction under an advisory
// lock and records each version in schema_migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := currentVersion(ctx, tx)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for i, stmt := range m.stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d (%s) step %d: %w", m.version, m.name, i+1, err)
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	slog.Info("database schema up to date", "applied", applied, "version", LatestVersion())
	return nil
}

func currentVersion(ctx context.Context, tx pgx.Tx) (int, error) {
	var v *int
	err := tx.QueryRow(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}

// LatestVersion is the schema version Migrate brings a database to.
func LatestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].version
}

// Version reports the schema version recorded in the database.
func (db *DB) Version(ctx context.Context) (int, error) {
	var v *int
	err := db.Pool.QueryRow(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}
