// Package sqlitestore provides SQLite-backed persistence for the
// engine's mutable state: balances, sessions, relationship records,
// scenario progress, dialogue history, and memories.
//
// The debit and session-supersede invariants live here: balance
// mutation is a single conditional UPDATE and session switching is one
// transaction, so they hold across processes, not just goroutines.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Sentinel errors mapped by the service layer.
var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientFunds = errors.New("insufficient balance")
)

// Store provides SQLite-backed persistence for engine state.
type Store struct {
	sqlDB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id    TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	character_id    TEXT NOT NULL,
	status          TEXT NOT NULL,
	scenario_id     TEXT NOT NULL DEFAULT '',
	scene_id        TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	last_message_at INTEGER NOT NULL,
	ended_at        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_pair
	ON sessions (user_id, character_id, status);

CREATE TABLE IF NOT EXISTS relationships (
	user_id            TEXT NOT NULL,
	character_id       TEXT NOT NULL,
	affection_level    INTEGER NOT NULL DEFAULT 0,
	trust_level        INTEGER NOT NULL DEFAULT 0,
	intimacy_level     INTEGER NOT NULL DEFAULT 0,
	stage              TEXT NOT NULL,
	total_interactions INTEGER NOT NULL DEFAULT 0,
	story_flags        TEXT NOT NULL DEFAULT '{}',
	unlocked_memories  TEXT NOT NULL DEFAULT '[]',
	created_at         INTEGER NOT NULL,
	last_updated       INTEGER NOT NULL,
	PRIMARY KEY (user_id, character_id)
);

CREATE TABLE IF NOT EXISTS scenario_progress (
	user_id      TEXT NOT NULL,
	character_id TEXT NOT NULL,
	scenario_id  TEXT NOT NULL,
	status       TEXT NOT NULL,
	scene_id     TEXT NOT NULL DEFAULT '',
	choices_made TEXT NOT NULL DEFAULT '[]',
	started_at   INTEGER NOT NULL,
	completed_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, character_id, scenario_id)
);

CREATE TABLE IF NOT EXISTS dialogue_turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	emotion    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dialogue_session
	ON dialogue_turns (session_id, id);

CREATE TABLE IF NOT EXISTS memories (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	character_id TEXT NOT NULL,
	scenario_id  TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_pair
	ON memories (user_id, character_id, created_at);
`

// Open opens and migrates the engine SQLite store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
