// Package pdf provides a document loader for PDF files.
package pdf

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ramble-labs/lectern/internal/core/domain"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
	"github.com/ramble-labs/lectern/internal/logger"
)

// Ensure Loader implements the interface.
var _ driven.DocumentLoader = (*Loader)(nil)

// MaxPages caps how many pages are processed per document.
const MaxPages = 500

// Loader extracts text from PDF files.
type Loader struct{}

// NewLoader creates a PDF loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Supports reports whether the source looks like a PDF file.
func (l *Loader) Supports(source string) bool {
	return strings.EqualFold(filepath.Ext(source), ".pdf")
}

// Load extracts text and page metadata from a PDF file.
// Pages with extraction failures are skipped; the load fails only when the
// whole document yields no text.
func (l *Loader) Load(_ context.Context, source string) (*driven.LoadedDocument, error) {
	f, reader, err := pdf.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", source, err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return nil, fmt.Errorf("PDF %s has no pages: %w", source, domain.ErrEmptyContent)
	}
	if totalPages > MaxPages {
		return nil, fmt.Errorf("PDF %s has %d pages, max is %d", source, totalPages, MaxPages)
	}

	var builder strings.Builder
	var pages []driven.PageInfo

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("PDF %s: page %d extraction failed: %v", source, pageNum, err)
			continue
		}

		cleaned := preprocess(text)
		if cleaned == "" {
			logger.Debug("PDF %s: page %d has no extractable text", source, pageNum)
			continue
		}

		// Page markers keep provenance visible in chunk text.
		fmt.Fprintf(&builder, "[Page %d]\n%s\n\n", pageNum, cleaned)
		pages = append(pages, driven.PageInfo{Number: pageNum, CharLength: len(cleaned)})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no text could be extracted from %s: %w", source, domain.ErrEmptyContent)
	}

	text := strings.TrimSpace(builder.String())
	logger.Debug("loaded PDF %s: %d page(s), %d characters", source, len(pages), len(text))

	return &driven.LoadedDocument{Text: text, Pages: pages}, nil
}

var (
	multiSpace   = regexp.MustCompile(`[ \t]+`)
	excessBlanks = regexp.MustCompile(`\n{3,}`)
)

// ligatures maps common typographic artifacts from PDF extraction back to
// plain text.
var ligatures = strings.NewReplacer(
	"ﬁ", "fi",
	"ﬂ", "fl",
	"–", "-",
	"—", "-",
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
)

// preprocess cleans raw extracted page text.
func preprocess(text string) string {
	text = ligatures.Replace(text)
	text = multiSpace.ReplaceAllString(text, " ")
	text = excessBlanks.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
