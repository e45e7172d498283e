package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// chunkIDPrefixLen is the number of leading bytes of chunk text that
// participate in the chunk ID hash. Two chunks at the same position with the
// same leading text are considered identical for re-ingest detection.
const chunkIDPrefixLen = 100

// Chunk is a bounded contiguous segment of a document's text.
// Chunks are immutable once created.
type Chunk struct {
	// ID is deterministic: identical (doc, position, text prefix) inputs
	// always produce the same ID, so re-ingesting unchanged content is
	// detectable and idempotent.
	ID string `json:"chunk_id"`

	// DocID links to the owning document.
	DocID string `json:"doc_id"`

	// Position is the 0-based ordinal within the document. Positions are
	// contiguous from 0 for any one document.
	Position int `json:"position"`

	// Text is the chunk content.
	Text string `json:"text"`

	// CharLength is len(Text) in bytes, stored for display and budgeting
	// without loading the text.
	CharLength int `json:"char_length"`

	// CreatedAt is when the chunk was produced by ingestion.
	CreatedAt time.Time `json:"created_at"`
}

// NewChunkID derives the stable identifier for a chunk.
// The scheme is doc-scoped and content-addressed on the text prefix.
func NewChunkID(docID string, position int, text string) string {
	prefix := text
	if len(prefix) > chunkIDPrefixLen {
		prefix = prefix[:chunkIDPrefixLen]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%d_%s", docID, position, prefix)))
	return fmt.Sprintf("%s_chunk_%d_%s", docID, position, hex.EncodeToString(sum[:])[:8])
}

// DocumentMetadata is the durable record for one ingested document.
// It is owned exclusively by the metadata registry: created atomically on
// successful ingest, replaced wholesale on forced re-ingest, deleted
// atomically on document deletion.
type DocumentMetadata struct {
	// DocID is the unique document identifier.
	DocID string `json:"doc_id"`

	// NumChunks is len(Chunks), kept explicit so listings can skip
	// deserialising chunk bodies.
	NumChunks int `json:"num_chunks"`

	// CreatedAt is when this record was written.
	CreatedAt time.Time `json:"created_at"`

	// Chunks are the document's chunks in position order.
	Chunks []Chunk `json:"chunks"`
}

// Snippet is one ranked retrieval result.
type Snippet struct {
	// Chunk is the matched chunk.
	Chunk Chunk `json:"chunk"`

	// Score is the relevance score; higher is more relevant.
	Score float64 `json:"score"`
}
