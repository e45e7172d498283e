package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// docIDPattern constrains identifiers to names that are safe as file stems
// for registry records and index artifacts.
var docIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateDocID reports whether id can be used as a document identifier.
func ValidateDocID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDocID)
	}
	if !docIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidDocID, id)
	}
	return nil
}

// DocIDFromSource derives a document identifier from a source path when the
// caller did not supply one. The file stem is lowercased and characters
// outside the identifier alphabet are replaced with underscores.
func DocIDFromSource(source string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	stem = strings.ToLower(stem)

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	id := strings.Trim(b.String(), "._-")
	if id == "" {
		id = "document"
	}
	return id
}
