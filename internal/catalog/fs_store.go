// -----------------------------------------------------------------------
// Filesystem catalog store - write-once artifact catalog documents
// -----------------------------------------------------------------------

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/models"
)

// FileStore persists catalogs as JSON documents under a shared directory
// and serves them to workers through the configured base URL. Documents are
// write-once: writing an existing key fails.
type FileStore struct {
	root    string
	baseURL string
	client  *http.Client
	logger  arbor.ILogger
}

// NewFileStore creates a FileStore from the storage configuration
func NewFileStore(config *common.Config, logger arbor.ILogger) (*FileStore, error) {
	root := config.Storage.Catalog.Path
	if root == "" {
		return nil, fmt.Errorf("catalog storage path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	return &FileStore{
		root:    root,
		baseURL: strings.TrimRight(config.Storage.Catalog.BaseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}, nil
}

// URLFor returns the URL a worker would use to fetch the given key
func (s *FileStore) URLFor(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// pathFor maps a key to its on-disk location, rejecting path escapes
func (s *FileStore) pathFor(key string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimLeft(key, "/"))
	if clean == "/" {
		return "", fmt.Errorf("catalog key is empty")
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FileStore) Read(ctx context.Context, url string) (*models.ArtifactCatalog, error) {
	data, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var cat models.ArtifactCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", url, err)
	}
	return &cat, nil
}

// fetch resolves a URL to bytes. URLs under the store's own base are read
// straight from disk; anything else goes over HTTP.
func (s *FileStore) fetch(ctx context.Context, url string) ([]byte, error) {
	if s.baseURL != "" && strings.HasPrefix(url, s.baseURL+"/") {
		path, err := s.pathFor(strings.TrimPrefix(url, s.baseURL+"/"))
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", url, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog fetch %s returned status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog body %s: %w", url, err)
	}
	return data, nil
}

func (s *FileStore) Write(ctx context.Context, key string, catalog *models.ArtifactCatalog) (string, error) {
	return s.WriteJSON(ctx, key, catalog)
}

func (s *FileStore) WriteJSON(ctx context.Context, key string, v interface{}) (string, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create catalog directory: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode catalog %s: %w", key, err)
	}

	// O_EXCL enforces write-once
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("catalog %s already exists: %w", key, models.ErrConflict)
		}
		return "", fmt.Errorf("failed to create catalog %s: %w", key, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write catalog %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close catalog %s: %w", key, err)
	}

	s.logger.Debug().
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Wrote catalog document")

	return s.URLFor(key), nil
}

var _ interfaces.CatalogStore = (*FileStore)(nil)
