// Package chunker splits document text into ordered, overlapping segments
// with stable content-derived identifiers.
//
// Splitting is fully deterministic: identical (text, chunk size, overlap)
// inputs always produce identical chunk sequences with identical IDs, which
// is what makes re-ingestion of unchanged content detectable upstream.
package chunker

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ramble-labs/lectern/internal/core/domain"
)

// DefaultChunkSize is the default maximum chunk length in characters.
const DefaultChunkSize = 512

// DefaultChunkOverlap is the default number of characters shared between
// adjacent chunks.
const DefaultChunkOverlap = 50

// defaultSeparators are tried in priority order when looking for a split
// point at or before the chunk boundary. An empty window falls through to a
// hard character cut.
var defaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// Chunker splits text into overlapping chunks.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		c.chunkSize = size
	}
}

// WithOverlap sets the overlap between adjacent chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// WithSeparators replaces the split separator priority list.
func WithSeparators(seps []string) Option {
	return func(c *Chunker) {
		c.separators = seps
	}
}

// New creates a chunker, validating the configuration.
// An overlap greater than or equal to the chunk size can never make
// progress, so it is rejected outright rather than silently adjusted.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: defaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfig, c.chunkSize)
	}
	if c.overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", domain.ErrInvalidConfig, c.overlap)
	}
	if c.overlap >= c.chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			domain.ErrInvalidConfig, c.overlap, c.chunkSize)
	}

	return c, nil
}

// ChunkSize returns the configured maximum chunk size.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into ordered chunks for the given document.
// Empty or whitespace-only input yields an empty sequence, not an error.
func (c *Chunker) Chunk(text, docID string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	now := time.Now().UTC()
	textLen := len(text)

	var chunks []domain.Chunk
	start := 0
	for start < textLen {
		end := start + c.chunkSize
		if end >= textLen {
			end = textLen
		} else {
			end = c.splitPoint(text, start, end)
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			pos := len(chunks)
			chunks = append(chunks, domain.Chunk{
				ID:         domain.NewChunkID(docID, pos, piece),
				DocID:      docID,
				Position:   pos,
				Text:       piece,
				CharLength: len(piece),
				CreatedAt:  now,
			})
		}

		if end >= textLen {
			break
		}

		// Next chunk starts overlap characters before this one ended,
		// always making forward progress.
		next := runeStart(text, end-c.overlap)
		if next <= start {
			_, size := utf8.DecodeRuneInString(text[start:])
			next = start + size
		}
		start = next
	}

	return chunks
}

// splitPoint finds the best separator position at or before the boundary.
// Separators are tried in priority order; the latest occurrence of the
// winning separator inside the window is used. If nothing matches, the hard
// cut lands on the nearest rune start so a multi-byte character is never
// split across chunks.
func (c *Chunker) splitPoint(text string, start, boundary int) int {
	window := text[start:boundary]
	for _, sep := range c.separators {
		idx := strings.LastIndex(window, sep)
		if idx <= 0 {
			continue
		}
		return start + idx + len(sep)
	}

	cut := runeStart(text, boundary)
	if cut <= start {
		// A single rune wider than the chunk size; emit it whole.
		_, size := utf8.DecodeRuneInString(text[start:])
		cut = start + size
	}
	return cut
}

// runeStart clamps a byte offset back to the start of the rune it falls in.
func runeStart(text string, i int) int {
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
