// Package assets persists the images referenced by a newsletter next to its
// archive entry, either from inline MIME parts or by fetching remote URLs.
package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/benoit-getinside/archive-news/model"
	"github.com/benoit-getinside/archive-news/slug"
)

// DefaultFetchTimeout bounds a single remote image download.
const DefaultFetchTimeout = 10 * time.Second

// userAgent mimics a regular browser; some newsletter CDNs refuse requests
// with a default Go client string.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// marker separates the entry slug from the asset identifier in filenames.
const marker = "_img_"

// Store writes rehosted assets into a single output directory.
type Store struct {
	dir    string
	client *http.Client
	logger *slog.Logger
}

// NewStore creates the output directory if needed and returns a store bound
// to it. A zero timeout falls back to DefaultFetchTimeout.
func NewStore(dir string, timeout time.Duration, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Store{
		dir:    dir,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// Dir returns the output directory the store writes into.
func (s *Store) Dir() string {
	return s.dir
}

// SaveInline writes every captured inline asset to disk and returns the
// Content-ID to local filename mapping used for src rewriting. A write
// failure is an environment problem and aborts the message.
func (s *Store) SaveInline(stem string, inlines map[string]model.InlineAsset) (map[string]string, error) {
	mapping := make(map[string]string, len(inlines))
	for cid, asset := range inlines {
		name := stem + marker + slug.Make(cid) + extensionFor(asset.MediaType)
		if err := os.WriteFile(filepath.Join(s.dir, name), asset.Data, 0o644); err != nil {
			return nil, fmt.Errorf("write inline asset %s: %w", name, err)
		}
		mapping[cid] = name
		if s.logger != nil {
			s.logger.Debug("saved inline asset", "cid", cid, "file", name, "bytes", len(asset.Data))
		}
	}
	return mapping, nil
}

// FetchRemote downloads a remote image and persists it under a filename
// derived from the entry slug and a per-document sequence number. The
// sequence is prefixed with "r" so a numeric Content-ID cannot produce the
// same name. Any
// network error, timeout or non-2xx status is returned to the caller, which
// leaves the original reference untouched. No retries.
func (s *Store) FetchRemote(ctx context.Context, rawURL, stem string, seq int) (string, error) {
	url := NormalizeURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body of %s: %w", url, err)
	}

	name := stem + marker + "r" + strconv.Itoa(seq) + extensionFor(resp.Header.Get("Content-Type"))
	if err := os.WriteFile(filepath.Join(s.dir, name), body, 0o644); err != nil {
		return "", fmt.Errorf("write remote asset %s: %w", name, err)
	}

	if s.logger != nil {
		s.logger.Debug("rehosted remote asset", "url", url, "file", name, "bytes", len(body))
	}
	return name, nil
}

// NormalizeURL turns protocol-relative URLs into HTTPS ones and leaves
// everything else untouched.
func NormalizeURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "//") {
		return "https:" + rawURL
	}
	return rawURL
}

// UpgradeToHTTPS rewrites a bare http:// URL to https:// so an asset left
// remote is not blocked as mixed content.
func UpgradeToHTTPS(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") {
		return "https://" + strings.TrimPrefix(rawURL, "http://")
	}
	return NormalizeURL(rawURL)
}

// extensionFor maps a declared media type to a filename extension,
// defaulting to .jpg when the type is missing or unknown.
func extensionFor(mediaType string) string {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return ".jpg"
	}
	switch mt {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/avif":
		return ".avif"
	case "image/bmp":
		return ".bmp"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	default:
		return ".jpg"
	}
}
