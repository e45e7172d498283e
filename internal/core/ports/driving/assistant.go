// Package driving provides interfaces for application entry points (primary/inbound ports).
package driving

import (
	"context"

	"github.com/ramble-labs/lectern/internal/core/domain"
)

// IngestResult reports a successful ingestion.
type IngestResult struct {
	// DocID is the identifier the document was ingested under.
	DocID string `json:"doc_id"`

	// NumChunks is how many chunks the document produced.
	NumChunks int `json:"num_chunks"`
}

// QueryResult is the outcome of one query turn.
//
// A query over a missing or empty document is a normal outcome, not an
// error: Found is false and Warning explains why.
type QueryResult struct {
	// SessionID identifies the conversation this turn belongs to.
	SessionID string `json:"session_id"`

	// DocID is the queried document.
	DocID string `json:"doc_id"`

	// Answer is the synthesised answer. Empty when no language model is
	// available or the call failed; Snippets are still returned.
	Answer string `json:"answer,omitempty"`

	// Snippets are the ranked retrieval results backing the answer.
	Snippets []domain.Snippet `json:"snippets"`

	// Found is false when no relevant chunks were retrievable.
	Found bool `json:"found"`

	// Warning carries a human-readable reason when the result is degraded
	// (no content found, answer synthesis failed). Empty on clean success.
	Warning string `json:"warning,omitempty"`
}

// Assistant coordinates ingestion, retrieval and answering.
// It is the only surface the transport layer talks to.
type Assistant interface {
	// Ingest loads, chunks, records and indexes a document source.
	// When docID is empty an identifier is derived from the source name.
	// forceRecreate replaces any existing record and index wholesale.
	Ingest(ctx context.Context, source, docID string, forceRecreate bool) (*IngestResult, error)

	// IngestText ingests already-extracted text under the given identifier.
	IngestText(ctx context.Context, docID, text string, forceRecreate bool) (*IngestResult, error)

	// Query retrieves the top-k chunks of a document relevant to the
	// question and synthesises an answer, attributing the turn to a
	// session. An empty sessionID starts a new conversation.
	Query(ctx context.Context, sessionID, docID, question string, k int) (*QueryResult, error)

	// Delete removes a document's index and metadata. Deleting an unknown
	// document is safe; deleted reports whether anything was removed.
	Delete(ctx context.Context, docID string) (deleted bool, err error)

	// ListDocuments returns the identifiers of all ingested documents.
	ListDocuments(ctx context.Context) ([]string, error)
}
