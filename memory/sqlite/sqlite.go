// Package sqlite provides a core.DocumentStore persisted in SQLite. Chunks are
// indexed with an FTS5 table and ranked by bm25.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/memory"
)

// Store handles document persistence.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ core.DocumentStore = (*Store)(nil)

// Open creates (or opens) the database at path and applies the schema. Use
// ":memory:" for a private in-memory database.
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
	CREATE TABLE IF NOT EXISTS chunks (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		collection     TEXT    NOT NULL,
		source         TEXT    NOT NULL,
		title_path     TEXT    NOT NULL DEFAULT '',
		chunk_index    INTEGER NOT NULL,
		section_chunks INTEGER NOT NULL,
		content        TEXT    NOT NULL,
		created_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection, source);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		title_path,
		content,
		content='chunks',
		content_rowid='id'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, title_path, content)
		VALUES (new.id, new.title_path, new.content);
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, title_path, content)
		VALUES ('delete', old.id, old.title_path, old.content);
	END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store implements core.DocumentStore.
func (s *Store) Store(collection, source string, chunks []core.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE collection = ? AND source = ?`, collection, source); err != nil {
		return fmt.Errorf("failed to replace chunks: %w", err)
	}

	now := time.Now().UTC()
	for _, c := range chunks {
		if _, err := tx.Exec(
			`INSERT INTO chunks (collection, source, title_path, chunk_index, section_chunks, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			collection, source, c.TitlePath, c.Index, c.SectionChunks, c.Content, now,
		); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return tx.Commit()
}

// Search implements core.DocumentStore. Any query term may match; bm25
// orders the hits.
func (s *Store) Search(collection, query string, limit int) ([]core.SearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.Query(`
		SELECT c.source, c.title_path, c.chunk_index, c.section_chunks, c.content, fts.rank
		FROM chunks_fts fts
		JOIN chunks c ON c.id = fts.rowid
		WHERE chunks_fts MATCH ? AND c.collection = ?
		ORDER BY fts.rank, c.source, c.chunk_index
		LIMIT ?`, match, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []core.SearchResult
	for rows.Next() {
		r := core.SearchResult{Collection: collection}
		var rank float64
		if err := rows.Scan(&r.Source, &r.TitlePath, &r.Index, &r.SectionChunks, &r.Content, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		// bm25 ranks are negative, lower is better
		r.Score = -rank
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return results, nil
}

// Collections implements core.DocumentStore.
func (s *Store) Collections() ([]core.CollectionInfo, error) {
	rows, err := s.db.Query(`SELECT collection, COUNT(*) FROM chunks GROUP BY collection ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var infos []core.CollectionInfo
	for rows.Next() {
		var info core.CollectionInfo
		if err := rows.Scan(&info.Name, &info.Chunks); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// ftsQuery quotes each term so FTS5 operators in user input stay literal.
func ftsQuery(query string) string {
	terms := memory.Terms(query)
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}
