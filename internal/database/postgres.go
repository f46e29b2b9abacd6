package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stwalsh4118/daysteward/internal/config"
)

// Database wraps the pgx connection pool and provides database operations.
type Database struct {
	Pool *pgxpool.Pool
}

// NewPostgresPool creates a new PostgreSQL connection pool using pgx.
// It configures the pool based on the provided database configuration,
// tests the connection, and returns a Database instance.
func NewPostgresPool(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MinConns = int32(cfg.PoolMin)
	poolConfig.MaxConns = int32(cfg.PoolMax)

	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second
	poolConfig.MaxConnIdleTime = 30 * time.Second
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection immediately
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{Pool: pool}, nil
}

// Migrate creates the ledger tables if they do not exist yet.
func (db *Database) Migrate(ctx context.Context) error {
	for i, stmt := range postgresSchema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

// Ping checks if the database connection is alive.
func (db *Database) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close gracefully closes the database connection pool.
// It waits for all connections to be returned to the pool before closing.
func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Stats returns statistics about the connection pool.
func (db *Database) Stats() *pgxpool.Stat {
	if db.Pool == nil {
		return nil
	}
	return db.Pool.Stat()
}

// Amounts are NUMERIC(78,0): wide enough for any 256-bit value. Collection
// times are unix nanoseconds since TIMESTAMPTZ only keeps microseconds.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS parcels (
		id             INTEGER PRIMARY KEY,
		month          INTEGER NOT NULL,
		day            INTEGER NOT NULL,
		price          NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (price >= 0),
		last_collected BIGINT NOT NULL,
		minted         BOOLEAN NOT NULL DEFAULT FALSE,
		foreclosed     BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		id    INTEGER PRIMARY KEY,
		owner TEXT NOT NULL,
		name  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS tokens_owner_idx ON tokens (owner)`,
	`CREATE TABLE IF NOT EXISTS deposits (
		owner  TEXT PRIMARY KEY,
		amount NUMERIC(78,0) NOT NULL CHECK (amount >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS balances (
		name   TEXT PRIMARY KEY,
		amount NUMERIC(78,0) NOT NULL CHECK (amount >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id              INTEGER PRIMARY KEY CHECK (id = 1),
		admin           TEXT NOT NULL,
		beneficiary     TEXT NOT NULL,
		legacy_token    TEXT NOT NULL DEFAULT '',
		legacy_epoch    BIGINT NOT NULL DEFAULT 0,
		tax_numerator   BIGINT NOT NULL,
		tax_denominator BIGINT NOT NULL,
		mint_price      NUMERIC(78,0) NOT NULL,
		min_deposit     NUMERIC(78,0) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payouts (
		seq        BIGSERIAL PRIMARY KEY,
		id         UUID NOT NULL UNIQUE,
		recipient  TEXT NOT NULL,
		amount     NUMERIC(78,0) NOT NULL CHECK (amount >= 0),
		reason     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}
