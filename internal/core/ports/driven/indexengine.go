package driven

import (
	"context"

	"github.com/ramble-labs/lectern/internal/core/domain"
)

// IndexHandle is an opaque in-memory structure supporting similarity search
// over one document's chunks. Handles are produced and consumed only by the
// IndexEngine that created them; the index cache treats them as values.
type IndexHandle any

// IndexEngine builds, searches and persists per-document retrieval indices.
//
// Persisted artifacts live one-per-document and are loadable independently of
// the metadata registry: a missing artifact with present metadata triggers a
// rebuild, a present artifact with missing metadata is an orphan and ignored.
type IndexEngine interface {
	// Build constructs a fresh in-memory index over the given chunks.
	Build(ctx context.Context, chunks []domain.Chunk) (IndexHandle, error)

	// Search returns the top-k chunks most relevant to the query,
	// best first.
	Search(ctx context.Context, handle IndexHandle, query string, k int) ([]domain.Snippet, error)

	// Persist durably stores the index artifact for the document.
	Persist(ctx context.Context, handle IndexHandle, docID string) error

	// Load restores a previously persisted index.
	// Returns domain.ErrNotFound if no artifact exists for the document.
	Load(ctx context.Context, docID string) (IndexHandle, error)

	// Remove deletes the persisted artifact for the document, if any.
	// Removing a non-existent artifact is not an error.
	Remove(ctx context.Context, docID string) error
}
