// Package sqlite provides SQLite-based persistent storage for Rise.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Append-only XP ledger. Rows are never updated or deleted except
		// by retention pruning; corrections append reversal rows.
		`CREATE TABLE IF NOT EXISTS xp_ledger (
			id          TEXT PRIMARY KEY,
			created_at  INTEGER NOT NULL,
			day         TEXT NOT NULL,
			source      TEXT NOT NULL,
			source_id   TEXT,
			amount      INTEGER NOT NULL,
			description TEXT,
			multiplier  REAL,
			reversal_of TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_day ON xp_ledger(day)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_day_source ON xp_ledger(day, source)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_created ON xp_ledger(created_at)`,

		// Key-value store for singleton state records (streak state,
		// challenge definitions and progress) persisted as JSON blobs.
		`CREATE TABLE IF NOT EXISTS state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Reward calculation history, analytics only. Not primary state.
		`CREATE TABLE IF NOT EXISTS reward_history (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			challenge_id     TEXT NOT NULL,
			month            TEXT NOT NULL,
			star_level       INTEGER NOT NULL,
			base_reward      INTEGER NOT NULL,
			completion_bonus INTEGER NOT NULL,
			streak_bonus     INTEGER NOT NULL,
			milestone_bonus  INTEGER NOT NULL,
			total_awarded    INTEGER NOT NULL,
			is_balanced      BOOLEAN NOT NULL,
			tier             TEXT NOT NULL,
			note             TEXT,
			created_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reward_month ON reward_history(month)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── State Key-Value ────────────────────────────────────────────────────────
// The storage contract the calculation core depends on: get/set a JSON
// blob by a fixed key per entity.

// SetState stores a state key-value pair.
func (d *DB) SetState(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetState retrieves a state value by key. Returns "" if key not found.
func (d *DB) GetState(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
