// Package sqlite implements the repository interfaces on an embedded SQLite
// database. It is the default store: one file on disk, no server to run.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without CGo
// and cross-compiles like any other Go program.
//
// DOCUMENT-SHAPED COLUMNS:
// Meal schedules and the tag lists of a health profile are stored as JSON
// text. They are always read and written as a whole, never queried by
// element, so a side table would add joins without adding anything.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/dietcraft/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/dietcraft.db" → file-based database
//   - ":memory:"          → in-memory database, used by the tests
//
// Every pooled connection gets foreign keys switched on through the DSN;
// a PRAGMA run with Exec would only reach the one connection it ran on.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is a separate, empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. The context is unused; it is there so
// every store backend shuts down the same way.
func (db *DB) Close(_ context.Context) error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// every start.
func (db *DB) migrate() error {
	// Uniqueness of email and of the (provider, external id) pair is what
	// keeps concurrent registrations and logins from creating duplicates.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                  TEXT PRIMARY KEY,
			email               TEXT NOT NULL UNIQUE,
			password_hash       TEXT,
			name                TEXT NOT NULL DEFAULT '',
			role                TEXT NOT NULL DEFAULT 'user',
			active              INTEGER NOT NULL DEFAULT 1,
			oauth_provider      TEXT,
			oauth_id            TEXT,
			reset_token         TEXT,
			reset_token_expires DATETIME,
			reset_attempts      INTEGER NOT NULL DEFAULT 0,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_oauth
			ON users(oauth_provider, oauth_id) WHERE oauth_id IS NOT NULL;
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS health_profiles (
			id                   TEXT PRIMARY KEY,
			user_id              TEXT NOT NULL UNIQUE REFERENCES users(id),
			age                  INTEGER NOT NULL,
			gender               TEXT NOT NULL DEFAULT '',
			height               REAL NOT NULL,
			weight               REAL NOT NULL,
			activity_level       TEXT NOT NULL,
			dietary_restrictions TEXT NOT NULL DEFAULT '[]',
			health_goals         TEXT NOT NULL DEFAULT '[]',
			last_updated         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating health_profiles table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS meal_plans (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id),
			meals      TEXT NOT NULL DEFAULT '[]',
			duration   INTEGER NOT NULL,
			start_date DATETIME NOT NULL,
			status     TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_meal_plans_user_created
			ON meal_plans(user_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating meal_plans table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// encodeJSON marshals v for a JSON text column.
func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
