// Package authsvc is the auth subsystem of SPEC_FULL.md §4.G: OTP issuance, JWT bearer
// tokens, signed-URL verification, and permission resolution against auth.sqlite3 — a plain
// database/sql store, never replicated through CR-SQLite.
package authsvc

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// storeDDL bootstraps auth.sqlite3's three tables: users (OTP-verified identities), otp_codes
// (one outstanding code per email), and roles (resolved Permissions per user per database).
const storeDDL = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS otp_codes (
	email      TEXT PRIMARY KEY,
	code_hash  TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	consumed   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS roles (
	user_id           TEXT NOT NULL,
	database_name     TEXT NOT NULL,
	permissions_json  TEXT NOT NULL,
	PRIMARY KEY (user_id, database_name)
);
`

// Store wraps auth.sqlite3's connection pool. Unlike a tenant Database, this store is a
// conventional multi-connection database/sql pool — there is no authorizer or update hook to
// pin to a single physical connection.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) auth.sqlite3 at path and runs its DDL.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("authsvc: opening auth store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("authsvc: pinging auth store: %w", err)
	}
	if _, err := db.Exec(storeDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("authsvc: migrating auth store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
