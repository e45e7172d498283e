// Package loader dispatches document loading to the adapter that supports
// the source's format.
package loader

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ramble-labs/lectern/internal/adapters/driven/loader/pdf"
	"github.com/ramble-labs/lectern/internal/adapters/driven/loader/plaintext"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
)

// Ensure Dispatcher implements the interface.
var _ driven.DocumentLoader = (*Dispatcher)(nil)

// Dispatcher selects a concrete loader by source format.
type Dispatcher struct {
	loaders []driven.DocumentLoader
}

// NewDispatcher creates a dispatcher over the given loaders, consulted in
// order.
func NewDispatcher(loaders ...driven.DocumentLoader) *Dispatcher {
	return &Dispatcher{loaders: loaders}
}

// NewDefault creates a dispatcher with the built-in loaders (PDF, plain
// text).
func NewDefault() *Dispatcher {
	return NewDispatcher(pdf.NewLoader(), plaintext.NewLoader())
}

// Supports reports whether any registered loader handles the source.
func (d *Dispatcher) Supports(source string) bool {
	for _, l := range d.loaders {
		if l.Supports(source) {
			return true
		}
	}
	return false
}

// Load extracts text via the first loader claiming the source.
func (d *Dispatcher) Load(ctx context.Context, source string) (*driven.LoadedDocument, error) {
	for _, l := range d.loaders {
		if l.Supports(source) {
			return l.Load(ctx, source)
		}
	}
	return nil, fmt.Errorf("unsupported document format %q", filepath.Ext(source))
}
