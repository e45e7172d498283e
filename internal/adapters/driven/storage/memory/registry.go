// Package memory provides an in-memory metadata registry for tests and
// ephemeral runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ramble-labs/lectern/internal/core/domain"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.MetadataRegistry = (*Registry)(nil)

// Registry is an in-memory implementation of driven.MetadataRegistry.
type Registry struct {
	mu      sync.RWMutex
	records map[string]domain.DocumentMetadata
}

// NewRegistry creates a new in-memory registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]domain.DocumentMetadata),
	}
}

// Save persists the full chunk record for a document.
func (r *Registry) Save(_ context.Context, docID string, chunks []domain.Chunk) error {
	if err := domain.ValidateDocID(docID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[docID] = domain.DocumentMetadata{
		DocID:     docID,
		NumChunks: len(chunks),
		CreatedAt: time.Now().UTC(),
		Chunks:    append([]domain.Chunk(nil), chunks...),
	}
	return nil
}

// Load retrieves the record for a document.
func (r *Registry) Load(_ context.Context, docID string) (*domain.DocumentMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[docID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := record
	cp.Chunks = append([]domain.Chunk(nil), record.Chunks...)
	return &cp, nil
}

// Delete removes the record for a document.
func (r *Registry) Delete(_ context.Context, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[docID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.records, docID)
	return nil
}

// ListDocuments returns the identifiers of all recorded documents.
func (r *Registry) ListDocuments(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// Close is a no-op for the in-memory backend.
func (r *Registry) Close() error {
	return nil
}
