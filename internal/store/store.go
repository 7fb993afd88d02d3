// Package store persists processing results in SQLite so the review API
// can list what came in and intake staff can flag documents that need a
// second look.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Config controls the database location.
type Config struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// DefaultConfig provides the documented default.
func DefaultConfig() Config {
	return Config{Path: "scanprep.db"}
}

// Record is one processed document.
type Record struct {
	ID             string    `json:"id"`
	Basename       string    `json:"basename"`
	Path           string    `json:"path"`
	DocType        string    `json:"doc_type"`
	Pages          int       `json:"pages"`
	CorrectedPages int       `json:"corrected_pages"`
	Reconstructed  bool      `json:"reconstructed"`
	Text           string    `json:"text"`
	Flagged        bool      `json:"flagged"`
	CreatedAt      time.Time `json:"created_at"`
}

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("document not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	basename        TEXT NOT NULL,
	path            TEXT NOT NULL,
	doc_type        TEXT NOT NULL DEFAULT 'other',
	pages           INTEGER NOT NULL,
	corrected_pages INTEGER NOT NULL DEFAULT 0,
	reconstructed   INTEGER NOT NULL DEFAULT 0,
	text            TEXT NOT NULL DEFAULT '',
	flagged         INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_basename ON documents(basename);
`

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// modernc's driver serializes writes itself but concurrent write
	// attempts still surface SQLITE_BUSY without a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert saves a new record and returns it with ID and CreatedAt set.
func (s *Store) Insert(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, basename, path, doc_type, pages, corrected_pages, reconstructed, text, flagged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Basename, rec.Path, rec.DocType, rec.Pages,
		rec.CorrectedPages, rec.Reconstructed, rec.Text, rec.Flagged, rec.CreatedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("inserting document %s: %w", rec.Basename, err)
	}
	return rec, nil
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, basename, path, doc_type, pages, corrected_pages, reconstructed, text, flagged, created_at
		FROM documents ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetByBasename returns the newest record for a basename.
func (s *Store) GetByBasename(ctx context.Context, basename string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, basename, path, doc_type, pages, corrected_pages, reconstructed, text, flagged, created_at
		FROM documents WHERE basename = ? ORDER BY created_at DESC LIMIT 1`, basename)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// SetFlag marks or unmarks a document for review.
func (s *Store) SetFlag(ctx context.Context, id string, flagged bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET flagged = ? WHERE id = ?`, flagged, id)
	if err != nil {
		return fmt.Errorf("flagging document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.Basename, &rec.Path, &rec.DocType, &rec.Pages,
		&rec.CorrectedPages, &rec.Reconstructed, &rec.Text, &rec.Flagged, &rec.CreatedAt,
	)
	return rec, err
}
