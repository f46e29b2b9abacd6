package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) a SQLite ledger at path and applies
// the schema. The special path ":memory:" gives a private in-memory database.
// The handle is limited to one connection so writers are serialised.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	for i, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

// Amounts are base-10 TEXT; timestamps are unix nanoseconds.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS parcels (
		id             INTEGER PRIMARY KEY,
		month          INTEGER NOT NULL,
		day            INTEGER NOT NULL,
		price          TEXT NOT NULL DEFAULT '0',
		last_collected INTEGER NOT NULL,
		minted         INTEGER NOT NULL DEFAULT 0,
		foreclosed     INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS tokens (
		id    INTEGER PRIMARY KEY,
		owner TEXT NOT NULL,
		name  TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS tokens_owner_idx ON tokens (owner);`,
	`CREATE TABLE IF NOT EXISTS deposits (
		owner  TEXT PRIMARY KEY,
		amount TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS balances (
		name   TEXT PRIMARY KEY,
		amount TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS settings (
		id              INTEGER PRIMARY KEY CHECK (id = 1),
		admin           TEXT NOT NULL,
		beneficiary     TEXT NOT NULL,
		legacy_token    TEXT NOT NULL DEFAULT '',
		legacy_epoch    INTEGER NOT NULL DEFAULT 0,
		tax_numerator   INTEGER NOT NULL,
		tax_denominator INTEGER NOT NULL,
		mint_price      TEXT NOT NULL,
		min_deposit     TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS payouts (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		recipient  TEXT NOT NULL,
		amount     TEXT NOT NULL,
		reason     TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
}
