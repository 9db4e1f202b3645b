package bookcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"bookshelf/internal/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL DEFAULT '',
		cover TEXT NOT NULL DEFAULT '',
		pdf_data BLOB,
		timestamp INTEGER NOT NULL
	);
`

// SQLiteBackend stores records in a single-table SQLite database.
// The database is opened, and its schema created, on first use; a failed
// open is retried by the next call.
type SQLiteBackend struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteBackend returns a backend for the database file at path
func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{path: path}
}

func (s *SQLiteBackend) open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite3", s.path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	s.db = db
	return db, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, book models.CachedBook) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO books (id, text, cover, pdf_data, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, book.ID, book.Text, book.Cover, book.PDFData, book.Timestamp)
	if err != nil {
		return fmt.Errorf("put cached book: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Get(ctx context.Context, id string) (models.CachedBook, bool, error) {
	db, err := s.open(ctx)
	if err != nil {
		return models.CachedBook{}, false, err
	}

	book := models.CachedBook{ID: id}
	err = db.QueryRowContext(ctx,
		`SELECT text, cover, pdf_data, timestamp FROM books WHERE id = ?`, id).
		Scan(&book.Text, &book.Cover, &book.PDFData, &book.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CachedBook{}, false, nil
	}
	if err != nil {
		return models.CachedBook{}, false, fmt.Errorf("get cached book: %w", err)
	}
	return book, true, nil
}

func (s *SQLiteBackend) Clear(ctx context.Context) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM books`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the database if it was opened
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
