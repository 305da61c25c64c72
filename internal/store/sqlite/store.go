// Package sqlite persists the durable scanner state: the config row, the
// scan universe, trigger events and per-user delivery settings.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/mattn/go-sqlite3"
)

// Store is a single-connection SQLite store. One connection keeps
// concurrent writers queued in Go instead of failing with SQLITE_BUSY.
// It satisfies the config, universe, event and preference ports.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Timestamps are stored as unix milliseconds.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS scanner_config (
			id                    INTEGER PRIMARY KEY CHECK (id = 1),
			enabled               INTEGER NOT NULL,
			timeframe             TEXT    NOT NULL,
			min_vol_1m            INTEGER NOT NULL,
			rvol_lookback_minutes INTEGER NOT NULL,
			rvol_1m_threshold     REAL    NOT NULL,
			rvol_5m_threshold     REAL    NOT NULL,
			min_pct_change_1m     REAL    NOT NULL,
			min_pct_change_5m     REAL    NOT NULL,
			require_green_candle  INTEGER NOT NULL,
			require_hod_break     INTEGER NOT NULL,
			cooldown_minutes      INTEGER NOT NULL,
			realert_on_new_hod    INTEGER NOT NULL,
			updated_at            INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS universe_tickers (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL UNIQUE,
			enabled    INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trigger_events (
			id                  TEXT    PRIMARY KEY,
			symbol              TEXT    NOT NULL,
			triggered_at        INTEGER NOT NULL,
			reason_tags         TEXT    NOT NULL,
			o                   REAL    NOT NULL,
			h                   REAL    NOT NULL,
			l                   REAL    NOT NULL,
			c                   REAL    NOT NULL,
			v                   INTEGER NOT NULL,
			last_price          REAL    NOT NULL,
			vol_1m              INTEGER NOT NULL,
			vol_5m              INTEGER NOT NULL,
			avg_vol_1m_lookback REAL    NOT NULL,
			rvol_1m             REAL    NOT NULL,
			rvol_5m             REAL    NOT NULL,
			pct_change_1m       REAL    NOT NULL,
			pct_change_5m       REAL    NOT NULL,
			hod                 REAL    NOT NULL,
			broke_hod           INTEGER NOT NULL,
			score               REAL    NOT NULL,
			config_snapshot     TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trigger_events_symbol_ts
			ON trigger_events (symbol, triggered_at DESC);
		CREATE INDEX IF NOT EXISTS idx_trigger_events_ts
			ON trigger_events (triggered_at DESC);

		CREATE TABLE IF NOT EXISTS user_scanner_settings (
			user_id               INTEGER PRIMARY KEY,
			follow_alerts         INTEGER NOT NULL,
			live_feed_enabled     INTEGER NOT NULL,
			cleared_until         INTEGER,
			pushover_enabled      INTEGER NOT NULL,
			pushover_user_key     TEXT    NOT NULL DEFAULT '',
			pushover_device       TEXT    NOT NULL DEFAULT '',
			pushover_sound        TEXT    NOT NULL DEFAULT '',
			pushover_priority     INTEGER NOT NULL DEFAULT 0,
			notify_min_score      REAL,
			notify_only_hod_break INTEGER NOT NULL DEFAULT 0,
			updated_at            INTEGER NOT NULL
		);
	`)
	return err
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database liveness.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
