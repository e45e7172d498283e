// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/ramble-labs/lectern/internal/core/domain"
)

// MetadataRegistry is the durable source of truth for which documents exist
// and which chunks compose them.
//
// Writes are atomic: a save either fully replaces the prior record or fails
// leaving it intact, and reads never observe a partially written record.
// The registry assumes a single writer; concurrent readers are safe.
type MetadataRegistry interface {
	// Save persists the full chunk record for a document, replacing any
	// prior record wholesale.
	Save(ctx context.Context, docID string, chunks []domain.Chunk) error

	// Load retrieves the record for a document.
	// Returns domain.ErrNotFound if the document was never ingested.
	Load(ctx context.Context, docID string) (*domain.DocumentMetadata, error)

	// Delete removes the record for a document.
	// Returns domain.ErrNotFound if no record exists; callers decide
	// whether that is an error.
	Delete(ctx context.Context, docID string) error

	// ListDocuments returns the identifiers of all recorded documents.
	ListDocuments(ctx context.Context) ([]string, error)

	// Close releases resources held by the registry.
	Close() error
}
