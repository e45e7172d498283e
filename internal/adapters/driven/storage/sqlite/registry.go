// Package sqlite provides a SQLite-backed metadata registry.
// The database runs in WAL mode; each save replaces a document's record in
// one transaction, so readers never observe a partially written record.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ramble-labs/lectern/internal/core/domain"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
	"github.com/ramble-labs/lectern/internal/logger"
)

// Ensure Registry implements the interface.
var _ driven.MetadataRegistry = (*Registry)(nil)

// schema creates the registry tables. Chunk rows are owned by their
// document row and removed with it.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id     TEXT PRIMARY KEY,
	num_chunks INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id    TEXT PRIMARY KEY,
	doc_id      TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	text        TEXT NOT NULL,
	char_length INTEGER NOT NULL,
	created_at  DATETIME NOT NULL,
	UNIQUE (doc_id, position)
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id, position);
`

// Registry is a SQLite implementation of driven.MetadataRegistry.
type Registry struct {
	db   *sql.DB
	path string
}

// NewRegistry opens (or creates) the registry database under dataDir.
func NewRegistry(dataDir string) (*Registry, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("%w: data directory is required", domain.ErrInvalidConfig)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metadata.db")

	// WAL mode for concurrent readers alongside the single writer.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Registry{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (r *Registry) Path() string {
	return r.path
}

// Save persists the full chunk record for a document in one transaction.
func (r *Registry) Save(ctx context.Context, docID string, chunks []domain.Chunk) error {
	if err := domain.ValidateDocID(docID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save for %s: %w", docID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("clearing prior record for %s: %w", docID, err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO documents (doc_id, num_chunks, created_at) VALUES (?, ?, ?)",
		docID, len(chunks), now,
	); err != nil {
		return fmt.Errorf("inserting document row for %s: %w", docID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (chunk_id, doc_id, position, text, char_length, created_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing chunk insert for %s: %w", docID, err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx,
			chunk.ID, docID, chunk.Position, chunk.Text, chunk.CharLength, chunk.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing save for %s: %w", docID, err)
	}

	logger.Debug("saved metadata for %s (%d chunks)", docID, len(chunks))
	return nil
}

// Load retrieves the record for a document.
func (r *Registry) Load(ctx context.Context, docID string) (*domain.DocumentMetadata, error) {
	record := &domain.DocumentMetadata{DocID: docID}

	row := r.db.QueryRowContext(ctx,
		"SELECT num_chunks, created_at FROM documents WHERE doc_id = ?", docID)
	if err := row.Scan(&record.NumChunks, &record.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("loading document row for %s: %w", docID, err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT chunk_id, position, text, char_length, created_at FROM chunks WHERE doc_id = ? ORDER BY position",
		docID)
	if err != nil {
		return nil, fmt.Errorf("loading chunks for %s: %w", docID, err)
	}
	defer rows.Close()

	for rows.Next() {
		chunk := domain.Chunk{DocID: docID}
		if err := rows.Scan(&chunk.ID, &chunk.Position, &chunk.Text, &chunk.CharLength, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk for %s: %w", docID, err)
		}
		record.Chunks = append(record.Chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks for %s: %w", docID, err)
	}

	return record, nil
}

// Delete removes the record for a document.
func (r *Registry) Delete(ctx context.Context, docID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE doc_id = ?", docID)
	if err != nil {
		return fmt.Errorf("deleting record for %s: %w", docID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete for %s: %w", docID, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	logger.Debug("deleted metadata for %s", docID)
	return nil
}

// ListDocuments returns the identifiers of all recorded documents.
func (r *Registry) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT doc_id FROM documents ORDER BY doc_id")
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}
