package interfaces

import (
	"context"

	"github.com/harmony-svc/orchestrator/internal/models"
)

// CatalogStore is the adapter to the external object store holding artifact
// catalogs. Documents are write-once: a key is never rewritten.
type CatalogStore interface {
	// Read fetches and decodes the catalog at the given URL
	Read(ctx context.Context, url string) (*models.ArtifactCatalog, error)

	// Write stores a catalog under the given key and returns its URL
	Write(ctx context.Context, key string, catalog *models.ArtifactCatalog) (string, error)

	// WriteJSON stores an arbitrary JSON document (maintenance summaries)
	WriteJSON(ctx context.Context, key string, v interface{}) (string, error)

	// URLFor returns the URL a worker would use to fetch the given key
	URLFor(key string) string
}
