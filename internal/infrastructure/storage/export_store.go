// Package storage persists finished export files and serves their download
// locations.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type ExportStore struct {
	dir     string
	baseURL string
}

func NewExportStore(dir, baseURL string) *ExportStore {
	return &ExportStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Dir returns the directory export files are written to.
func (s *ExportStore) Dir() string {
	return s.dir
}

// Create opens a new export file for writing and returns its path on disk.
func (s *ExportStore) Create(name string) (io.WriteCloser, string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create export dir: %w", err)
	}
	p := filepath.Join(s.dir, name)
	f, err := os.Create(p)
	if err != nil {
		return nil, "", fmt.Errorf("create export file: %w", err)
	}
	return f, p, nil
}

func (s *ExportStore) DownloadURL(name string) string {
	return s.baseURL + "/downloads/" + name
}
