// Package db provides SQLite storage for the listening history.
package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Common errors.
var (
	ErrInvalidDimension = errors.New("invalid ranking dimension")
	ErrInvalidLimit     = errors.New("invalid ranking limit")
	ErrInvalidHour      = errors.New("invalid hour")
)

// DB wraps the SQLite database file holding the listening history.
type DB struct {
	conn *sql.DB
}

// New opens (creating if needed) the history database at path.
// Use ":memory:" for an in-memory database in tests.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// The store is a single-writer resource, and a :memory: database only
	// exists on the connection that opened it. One connection covers both.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// History returns a HistoryRepository.
func (db *DB) History() *HistoryRepository {
	return &HistoryRepository{conn: db.conn}
}
