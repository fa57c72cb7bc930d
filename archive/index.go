package archive

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/k3a/html2text"

	"github.com/benoit-getinside/archive-news/slug"
)

//go:embed templates/index.html.tmpl
var tmplFS embed.FS

var indexTmpl = template.Must(template.ParseFS(tmplFS, "templates/index.html.tmpl"))

const excerptLen = 140

// Entry is one archived newsletter as rendered on the index page.
type Entry struct {
	Filename string
	Title    string
	Excerpt  string
	ModTime  time.Time
}

// BuildIndex regenerates index.html from the archive entries currently in
// dir, newest first by modification time. The listing is rebuilt from
// scratch on every call; it never merges with a previous version.
func BuildIndex(dir string, logger *slog.Logger) error {
	entries, err := scanEntries(dir)
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, struct{ Entries []Entry }{entries}); err != nil {
		return fmt.Errorf("render index: %w", err)
	}

	path := filepath.Join(dir, IndexFile)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	if logger != nil {
		logger.Info("rebuilt archive index", "path", path, "entries", len(entries))
	}
	return nil
}

func scanEntries(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || name == IndexFile || !strings.HasSuffix(name, ".html") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		entries = append(entries, Entry{
			Filename: name,
			Title:    slug.Title(strings.TrimSuffix(name, ".html")),
			Excerpt:  excerpt(filepath.Join(dir, name)),
			ModTime:  info.ModTime(),
		})
	}
	return entries, nil
}

// excerpt derives a short plain-text preview of an entry. Best effort: an
// unreadable file simply gets no preview.
func excerpt(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	text := strings.Join(strings.Fields(html2text.HTML2Text(string(data))), " ")
	text = strings.TrimSpace(strings.TrimPrefix(text, "← Back to index"))

	runes := []rune(text)
	if len(runes) <= excerptLen {
		return text
	}
	cut := excerptLen
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = excerptLen
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}
