package driven

import "context"

// PageInfo describes one page of a loaded document, for sources that have
// page structure (PDFs). Plain text sources report a single page.
type PageInfo struct {
	// Number is the 1-based page number.
	Number int

	// CharLength is the number of characters extracted from the page.
	CharLength int
}

// LoadedDocument is the raw text produced by a DocumentLoader before
// chunking.
type LoadedDocument struct {
	// Text is the full extracted text.
	Text string

	// Pages describes the page structure, when the source has one.
	Pages []PageInfo
}

// DocumentLoader extracts raw text from a source (file path).
//
// Implementations must fail with an error wrapping domain.ErrEmptyContent
// when no text is extractable, so callers can distinguish unreadable sources
// from infrastructure failures.
type DocumentLoader interface {
	// Load extracts text and page metadata from the source.
	Load(ctx context.Context, source string) (*LoadedDocument, error)

	// Supports reports whether this loader handles the given source.
	Supports(source string) bool
}
