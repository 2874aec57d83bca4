// Package sqlite provides a core.SessionStore persisted in a SQLite database
// using the pure Go modernc.org/sqlite driver. Each message is one row holding
// the JSON encoding of a core.Content.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/captain/core"
)

// Store handles thread persistence.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes seq allocation
}

// Open creates (or opens) the database at path and applies the schema. The
// parent directory is created when missing. Use ":memory:" for a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		thread_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (thread_id, seq)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get loads the thread, creating an empty one lazily.
func (s *Store) Get(id string) (*core.Session, error) {
	now := time.Now().UTC()
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO threads (id, created_at, updated_at) VALUES (?, ?, ?)`,
		id, now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	sess := core.NewSession(id)
	if err := s.db.QueryRow(
		`SELECT created_at, updated_at FROM threads WHERE id = ?`, id,
	).Scan(&sess.Created, &sess.Updated); err != nil {
		return nil, fmt.Errorf("failed to query thread: %w", err)
	}

	rows, err := s.db.Query(`SELECT payload FROM messages WHERE thread_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		var c core.Content
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		sess.Messages = append(sess.Messages, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return sess, nil
}

// Append stores messages at the end of the thread in a single transaction.
func (s *Store) Append(id string, contents ...core.Content) error {
	if len(contents) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err := tx.Exec(
		`INSERT INTO threads (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		id, now, now,
	); err != nil {
		return fmt.Errorf("failed to upsert thread: %w", err)
	}

	var next int64
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE thread_id = ?`, id,
	).Scan(&next); err != nil {
		return fmt.Errorf("failed to query sequence: %w", err)
	}

	for _, c := range contents {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		next++
		if _, err := tx.Exec(
			`INSERT INTO messages (thread_id, seq, role, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, next, c.Role, string(payload), now,
		); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

// Delete removes the thread and its messages.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM threads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}
