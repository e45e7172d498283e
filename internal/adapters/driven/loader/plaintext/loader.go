// Package plaintext provides a document loader for plain text files.
package plaintext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ramble-labs/lectern/internal/core/domain"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
)

// Ensure Loader implements the interface.
var _ driven.DocumentLoader = (*Loader)(nil)

// supportedExtensions are treated as plain text.
var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".rst":      true,
	".text":     true,
}

// Loader reads plain text files verbatim.
type Loader struct{}

// NewLoader creates a plain text loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Supports reports whether the source has a plain text extension.
func (l *Loader) Supports(source string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(source))]
}

// Load reads the file. Plain text has no page structure, so the whole file
// reports as a single page.
func (l *Loader) Load(_ context.Context, source string) (*driven.LoadedDocument, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("%s is empty: %w", source, domain.ErrEmptyContent)
	}

	return &driven.LoadedDocument{
		Text:  text,
		Pages: []driven.PageInfo{{Number: 1, CharLength: len(text)}},
	}, nil
}
