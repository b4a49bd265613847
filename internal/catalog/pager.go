package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/models"
)

// WriteAggregate writes the combined input of an aggregating step as a chain
// of catalog pages under keyPrefix and returns the URL of the first page.
// Items are split into pages of at most pageSize, linked with prev/next so a
// worker can walk the whole input from the first page. A single page carries
// no links at all.
func WriteAggregate(ctx context.Context, store interfaces.CatalogStore, keyPrefix string, items []models.CatalogItem, pageSize int) (string, error) {
	if pageSize <= 0 {
		return "", fmt.Errorf("aggregate page size must be positive, got %d", pageSize)
	}

	pageCount := (len(items) + pageSize - 1) / pageSize
	if pageCount == 0 {
		pageCount = 1
	}

	keys := make([]string, pageCount)
	urls := make([]string, pageCount)
	for i := 0; i < pageCount; i++ {
		keys[i] = fmt.Sprintf("%s/catalog%d.json", keyPrefix, i)
		urls[i] = store.URLFor(keys[i])
	}

	for i := 0; i < pageCount; i++ {
		start := i * pageSize
		end := start + pageSize
		if end > len(items) {
			end = len(items)
		}

		page := &models.ArtifactCatalog{Items: items[start:end]}
		if i > 0 {
			page.Links = append(page.Links, models.CatalogLink{Rel: models.CatalogLinkRelPrev, Href: urls[i-1]})
		}
		if i < pageCount-1 {
			page.Links = append(page.Links, models.CatalogLink{Rel: models.CatalogLinkRelNext, Href: urls[i+1]})
		}

		// Page content is a pure function of the input, so an existing page
		// from an interrupted earlier attempt can be left in place.
		if _, err := store.Write(ctx, keys[i], page); err != nil && !errors.Is(err, models.ErrConflict) {
			return "", fmt.Errorf("failed to write aggregate page %d: %w", i, err)
		}
	}

	return urls[0], nil
}

// CollectItems walks a catalog page chain starting at url and returns every
// item in order. The chain is bounded to guard against a link cycle.
func CollectItems(ctx context.Context, store interfaces.CatalogStore, url string) ([]models.CatalogItem, error) {
	const maxPages = 10000

	var items []models.CatalogItem
	seen := make(map[string]bool)
	for page := 0; url != ""; page++ {
		if page >= maxPages || seen[url] {
			return nil, fmt.Errorf("catalog page chain at %s does not terminate", url)
		}
		seen[url] = true

		cat, err := store.Read(ctx, url)
		if err != nil {
			return nil, err
		}
		items = append(items, cat.Items...)
		url = cat.NextPage()
	}
	return items, nil
}
