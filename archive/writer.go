// Package archive persists transformed newsletters and maintains the
// browsable index page over them.
package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// IndexFile is the name of the generated listing page.
const IndexFile = "index.html"

// Writer persists finished archive entries into the output directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter ensures the output directory exists and returns a writer bound
// to it.
func NewWriter(dir string, logger *slog.Logger) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores the document as <stem>.html, unconditionally overwriting an
// existing entry with the same slug (last write wins). Returns the path
// written.
func (w *Writer) Write(stem, doc string) (string, error) {
	path := filepath.Join(w.dir, stem+".html")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write archive entry %s: %w", path, err)
	}
	if w.logger != nil {
		w.logger.Debug("wrote archive entry", "path", path, "bytes", len(doc))
	}
	return path, nil
}
