package tracestore

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// formatVersion is stamped into PRAGMA user_version. Bump it when the event
// columns change meaning; older binaries refuse newer logs.
const formatVersion = 1

// Store is an append-only log of propagation traces, one row per run and
// one row per event.
type Store struct {
	db *sql.DB
}

// Open creates or opens a trace log at path.
func Open(path string) (*Store, error) {
	// go-sqlite3 applies these per connection. WAL lets "rxstore trace"
	// read a log while a run is still appending to it.
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init trace log %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read format version: %w", err)
	}
	if version > formatVersion {
		return fmt.Errorf("trace log format v%d is newer than supported v%d", version, formatVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", formatVersion)); err != nil {
		return fmt.Errorf("stamp format version: %w", err)
	}
	return nil
}

// pragma reads a pragma as text. Tests use it.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return value, nil
}
