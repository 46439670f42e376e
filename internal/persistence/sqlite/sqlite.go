// Package sqlite opens the authoritative community database. A single
// writer connection serializes all mutations; the ledger's transaction
// boundaries do the invariant enforcement on top.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
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
	// WAL keeps readers unblocked while the purchase path writes.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS maps (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			deleted_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			deleted_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS plots (
			id TEXT PRIMARY KEY,
			map_id TEXT NOT NULL REFERENCES maps(id),
			name TEXT NOT NULL DEFAULT '',
			x REAL NOT NULL,
			y REAL NOT NULL,
			width REAL NOT NULL,
			height REAL NOT NULL,
			plot_type TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 100,
			owner_id TEXT REFERENCES accounts(id),
			house_type TEXT,
			house_color TEXT,
			likes_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);`,
		// Schema-level backstop for the one-plot-per-account invariant.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_plots_owner_unique
			ON plots(owner_id) WHERE owner_id IS NOT NULL AND deleted_at IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_plots_map ON plots(map_id);`,
		`CREATE TABLE IF NOT EXISTS plot_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plot_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			account_id TEXT,
			previous_owner_id TEXT,
			new_owner_id TEXT,
			price REAL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tx_plot ON plot_transactions(plot_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS plot_likes (
			plot_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (plot_id, account_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}
