package core

import (
	"context"
	"io"
	"path"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// FileStore persists uploaded files and reads them back by their relative path.
type FileStore interface {
	// Save stores r under kind/ using a sanitized version of filename and returns the relative path.
	// Every call gets a new path.
	Save(ctx context.Context, kind, filename string, r io.Reader) (string, error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

// Upload is a file received from a form.
type Upload struct {
	Filename string
	Content  io.Reader
}

// HasExtension reports whether filename ends with one of exts (case-insensitive, dot included).
func HasExtension(filename string, exts ...string) bool {
	ext := strings.ToLower(path.Ext(filename))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
