package reader

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format defines a book format reader.
type Format interface {
	Name() string
	Extensions() []string
	Extract(filename string) (*Document, error)
}

var registry []Format

// Register adds a format reader to the registry.
func Register(f Format) {
	registry = append(registry, f)
}

// Lookup returns the registered format for filename's extension.
func Lookup(filename string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range registry {
		for _, e := range f.Extensions() {
			if ext == e {
				return f, true
			}
		}
	}
	return nil, false
}

// Extract reads filename with the format registered for its extension.
func Extract(filename string) (*Document, error) {
	f, ok := Lookup(filename)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported format: %w", filepath.Base(filename), ErrUnreadableBook)
	}
	return f.Extract(filename)
}

// SupportedFormats returns registered format names with their extensions.
func SupportedFormats() []string {
	var out []string
	for _, f := range registry {
		out = append(out, f.Name()+" ("+strings.Join(f.Extensions(), ", ")+")")
	}
	return out
}
