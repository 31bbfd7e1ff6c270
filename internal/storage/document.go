package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Document names shared by every backend.
const (
	DocumentPersonality = "personality"
	DocumentSessions    = "sessions"
)

// documentFileMode matches what a plain os.WriteFile of the document would leave.
const documentFileMode = 0o644

// ErrNoDocument is returned by Read when the document was never written.
var ErrNoDocument = errors.New("document not found")

// Documents persists whole JSON documents by name.
type Documents interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, body []byte) error
}

// FileDocuments maps document names onto files on disk.
type FileDocuments struct {
	paths map[string]string
}

// NewFileDocuments returns a backend writing each named document to its path.
func NewFileDocuments(paths map[string]string) *FileDocuments {
	copied := make(map[string]string, len(paths))
	for name, path := range paths {
		copied[name] = path
	}
	return &FileDocuments{paths: copied}
}

func (f *FileDocuments) path(name string) (string, error) {
	p, ok := f.paths[name]
	if !ok {
		return "", fmt.Errorf("unknown document %q", name)
	}
	return p, nil
}

// Read returns ErrNoDocument when the file does not exist.
func (f *FileDocuments) Read(_ context.Context, name string) ([]byte, error) {
	p, err := f.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoDocument
		}
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// Write replaces the file atomically through a sibling temp file.
func (f *FileDocuments) Write(_ context.Context, name string, body []byte) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(documentFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", p, err)
	}
	return nil
}

// SQLDocuments stores documents as rows of the documents table.
type SQLDocuments struct {
	db     *sql.DB
	driver string
}

func NewSQLDocuments(db *sql.DB, driver string) *SQLDocuments {
	return &SQLDocuments{db: db, driver: strings.ToLower(driver)}
}

func (s *SQLDocuments) postgres() bool {
	return s.driver == "postgres" || s.driver == "pgx"
}

func (s *SQLDocuments) Read(ctx context.Context, name string) ([]byte, error) {
	query := `SELECT body FROM documents WHERE name = ?`
	if s.postgres() {
		query = `SELECT body FROM documents WHERE name = $1`
	}
	var body string
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDocument
		}
		return nil, fmt.Errorf("select document %s: %w", name, err)
	}
	return []byte(body), nil
}

func (s *SQLDocuments) Write(ctx context.Context, name string, body []byte) error {
	var query string
	switch {
	case s.postgres():
		query = `INSERT INTO documents (name, body, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	case s.driver == "mysql":
		query = `INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	}
	if _, err := s.db.ExecContext(ctx, query, name, string(body), time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert document %s: %w", name, err)
	}
	return nil
}
