// Package sqlitestore keeps a session journal in a SQLite database.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const dbFileName = "journal.db"

const schema = `CREATE TABLE IF NOT EXISTS entries (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL
)`

// Journal implements mal.Journal on top of a single entries table. Entry
// order is insertion order.
type Journal struct {
	path string
	db   *sql.DB
}

// Open opens (or creates) dir/journal.db.
func Open(dir string) (*Journal, error) {
	path := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{path: path, db: db}, nil
}

func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) Append(entry string) error {
	if _, err := j.db.Exec(`INSERT INTO entries (source) VALUES (?)`, entry); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	return nil
}

func (j *Journal) Entries() ([]string, error) {
	rows, err := j.db.Query(`SELECT source FROM entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("entries: %w", err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("entries: %w", err)
		}
		entries = append(entries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("entries: %w", err)
	}
	return entries, nil
}

// Reset deletes every entry inside one transaction.
func (j *Journal) Reset() error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		tx.Rollback()
		return fmt.Errorf("reset: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sqlite_sequence WHERE name = 'entries'`); err != nil {
		tx.Rollback()
		return fmt.Errorf("reset: %w", err)
	}
	return tx.Commit()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
