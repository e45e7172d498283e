package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	// This is an expected outcome, surfaced to the caller and never logged
	// as an error.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates a configuration that must be rejected at
	// construction time (bad chunk sizes, missing paths). It is fatal at
	// startup and never recovered.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyContent indicates a document produced no extractable text or
	// no chunks. Ingestion fails with this before any state is persisted.
	ErrEmptyContent = errors.New("no content")

	// ErrInvalidDocID indicates a document identifier that cannot name
	// on-disk artifacts.
	ErrInvalidDocID = errors.New("invalid document id")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLLMUnavailable indicates the language model service is not
	// configured or not reachable. Query answering degrades to retrieved
	// snippets without a synthesised answer.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Index building and similarity search are disabled.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)
