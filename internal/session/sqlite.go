package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// SQLiteBackend keeps one JSON document per identity in a single
// table. The merge contract matches FileBackend: read, fold, rewrite
// the whole record. SQLite serializes the writes.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and migrates) the database at the given path.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS user_memory (
			identity   TEXT PRIMARY KEY,
			record     TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Load reads and decodes the identity's record. Unknown identities get
// the zero record.
func (b *SQLiteBackend) Load(identity string) (MemoryRecord, error) {
	var doc string
	err := b.db.QueryRow(
		`SELECT record FROM user_memory WHERE identity = ?`, identity,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return MemoryRecord{}, nil
	}
	if err != nil {
		return MemoryRecord{}, fmt.Errorf("load %s: %w", identity, err)
	}

	var rec MemoryRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return MemoryRecord{}, fmt.Errorf("parse record for %s: %w", identity, err)
	}
	return rec, nil
}

// Merge reads the stored document, folds the facts in, and upserts the
// rewritten document.
func (b *SQLiteBackend) Merge(identity string, rec MemoryRecord) error {
	existing, err := b.Load(identity)
	if err != nil {
		return err
	}
	existing.Merge(rec)

	doc, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = b.db.Exec(
		`INSERT INTO user_memory (identity, record, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (identity) DO UPDATE
		 SET record = excluded.record, updated_at = excluded.updated_at`,
		identity, string(doc), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store %s: %w", identity, err)
	}
	return nil
}
