// Package assets stores rendered files that providers return as bytes and
// maps them to the urls the server publishes them under.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoutePrefix is the HTTP path prefix assets are served under.
const RoutePrefix = "/assets/"

// ErrInvalidName is returned for names that are not plain file names.
var ErrInvalidName = errors.New("invalid asset name")

// Store writes asset files into a directory.
type Store struct {
	dir       string
	publicURL string
	client    *http.Client
}

// New creates a store rooted at dir. publicURL is the server base url
// (e.g. "http://127.0.0.1:8080") used to build asset urls.
func New(dir, publicURL string) *Store {
	return &Store{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		client:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Dir returns the directory assets are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes data under a new unique name with the given extension and
// returns its public url.
func (s *Store) Save(data []byte, ext string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create assets directory: %w", err)
	}
	ext = "." + strings.TrimPrefix(ext, ".")
	name := uuid.New().String() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write asset: %w", err)
	}
	return s.URL(name), nil
}

// SaveReader streams r into a new asset file and returns its public url.
func (s *Store) SaveReader(r io.Reader, ext string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read asset: %w", err)
	}
	return s.Save(data, ext)
}

// URL returns the public url of the named asset.
func (s *Store) URL(name string) string {
	return s.publicURL + RoutePrefix + name
}

// Path returns the local file path of the named asset.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// LocalName returns the asset name when url points at this store.
func (s *Store) LocalName(url string) (string, bool) {
	name, ok := strings.CutPrefix(url, s.publicURL+RoutePrefix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Open returns a reader for url. Urls served by this store are read from
// disk; anything else is fetched over HTTP.
func (s *Store) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if name, ok := s.LocalName(url); ok {
		p, err := s.Path(name)
		if err != nil {
			return nil, err
		}
		return os.Open(p)
	}
	if p, ok := strings.CutPrefix(url, "file://"); ok {
		return os.Open(p)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}
