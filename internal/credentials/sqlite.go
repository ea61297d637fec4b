package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// BackendSQLite is the backend name of SQLiteStore.
const BackendSQLite = "sqlite"

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS tokens (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	token TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`
	sqliteSelect = `SELECT token FROM tokens WHERE id = 1`
	sqliteUpsert = `INSERT OR REPLACE INTO tokens (id, token, updated_at) VALUES (1, ?, ?)`
)

// SQLiteStore keeps the credentials as a single JSON row in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema exists.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storeErr(BackendSQLite, "open", err)
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, storeErr(BackendSQLite, "open", fmt.Errorf("create schema: %w", err))
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Credentials, error) {
	var tokenJSON string
	err := s.db.QueryRowContext(ctx, sqliteSelect).Scan(&tokenJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(BackendSQLite, "load", err)
	}
	creds, err := unmarshal([]byte(tokenJSON))
	if err != nil {
		return nil, storeErr(BackendSQLite, "load", err)
	}
	return creds, nil
}

func (s *SQLiteStore) Save(ctx context.Context, creds *Credentials) error {
	data, err := marshal(creds)
	if err != nil {
		return storeErr(BackendSQLite, "save", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, string(data), time.Now().UTC()); err != nil {
		return storeErr(BackendSQLite, "save", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
