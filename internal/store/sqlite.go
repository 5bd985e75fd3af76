package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLite is a durable Store backed by a single SQLite file. Each record is a
// row, ordered by seq within its key.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	// WAL + 5s busy timeout
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time keeps Set transactions from contending.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, path: path}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS records(
	  key   TEXT    NOT NULL,
	  seq   INTEGER NOT NULL,
	  value TEXT    NOT NULL,
	  PRIMARY KEY (key, seq)
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) ([]Record, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT value FROM records WHERE key = ? ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", key, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			// Unreadable row: skip it, the rest of the collection still loads.
			continue
		}
		out = append(out, Record(value))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", key, err)
	}
	return out, nil
}

// Set implements Store.
func (s *SQLite) Set(ctx context.Context, key string, records []Record) error {
	if s.db == nil {
		return ErrClosed
	}
	transaction, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := transaction.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to clear %s: %w", key, err)
	}
	statement, err := transaction.PrepareContext(ctx, `INSERT INTO records(key, seq, value) VALUES(?,?,?)`)
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	for i, rec := range records {
		if _, err := statement.ExecContext(ctx, key, i, string(rec)); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
