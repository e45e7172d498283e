// Package file provides a file-backed metadata registry.
// Each document gets one JSON record; writes go to a temporary file in the
// same directory and are atomically renamed into place, so readers never
// observe a partially written record and a failed save leaves the prior
// record intact.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ramble-labs/lectern/internal/core/domain"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
	"github.com/ramble-labs/lectern/internal/logger"
)

// Ensure Registry implements the interface.
var _ driven.MetadataRegistry = (*Registry)(nil)

// recordSuffix is the file name suffix for metadata records.
const recordSuffix = ".metadata.json"

// Registry is a file-based implementation of driven.MetadataRegistry.
type Registry struct {
	dir string
}

// NewRegistry creates a registry rooted at dir, creating it if needed.
func NewRegistry(dir string) (*Registry, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: metadata directory is required", domain.ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating metadata directory: %w", err)
	}
	return &Registry{dir: dir}, nil
}

// Save persists the full chunk record for a document, replacing any prior
// record wholesale.
func (r *Registry) Save(_ context.Context, docID string, chunks []domain.Chunk) error {
	if err := domain.ValidateDocID(docID); err != nil {
		return err
	}

	record := domain.DocumentMetadata{
		DocID:     docID,
		NumChunks: len(chunks),
		CreatedAt: time.Now().UTC(),
		Chunks:    chunks,
	}

	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", docID, err)
	}

	final := r.recordPath(docID)
	tmp, err := os.CreateTemp(r.dir, docID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp record for %s: %w", docID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing record for %s: %w", docID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing record for %s: %w", docID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing record for %s: %w", docID, err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("installing record for %s: %w", docID, err)
	}

	logger.Debug("saved metadata for %s (%d chunks)", docID, len(chunks))
	return nil
}

// Load retrieves the record for a document.
func (r *Registry) Load(_ context.Context, docID string) (*domain.DocumentMetadata, error) {
	if err := domain.ValidateDocID(docID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.recordPath(docID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading record for %s: %w", docID, err)
	}

	var record domain.DocumentMetadata
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding record for %s: %w", docID, err)
	}
	return &record, nil
}

// Delete removes the record for a document.
func (r *Registry) Delete(_ context.Context, docID string) error {
	if err := domain.ValidateDocID(docID); err != nil {
		return err
	}

	err := os.Remove(r.recordPath(docID))
	if os.IsNotExist(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting record for %s: %w", docID, err)
	}
	logger.Debug("deleted metadata for %s", docID)
	return nil
}

// ListDocuments returns the identifiers of all recorded documents.
func (r *Registry) ListDocuments(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("listing metadata directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, recordSuffix))
	}
	return ids, nil
}

// Close is a no-op for the file backend.
func (r *Registry) Close() error {
	return nil
}

func (r *Registry) recordPath(docID string) string {
	return filepath.Join(r.dir, docID+recordSuffix)
}
