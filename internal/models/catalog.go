// -----------------------------------------------------------------------
// Artifact Catalog - the document format steps use to exchange outputs
// -----------------------------------------------------------------------

package models

import (
	"strings"
	"time"
)

const (
	CatalogLinkRelPrev = "prev"
	CatalogLinkRelNext = "next"
)

// CatalogItem is one produced data item with optional spatial/temporal
// metadata. BBox is [W,S,E,N]; Temporal is "start,end" with both values in
// RFC 3339 and start <= end.
type CatalogItem struct {
	Href     string    `json:"href"`
	Title    string    `json:"title,omitempty"`
	Type     string    `json:"type,omitempty"`
	BBox     []float64 `json:"bbox,omitempty"`
	Temporal string    `json:"temporal,omitempty"`
}

// CatalogLink is a paging link between catalog pages
type CatalogLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// ArtifactCatalog enumerates produced data items. Aggregating steps receive
// their whole input as one catalog, split into a prev/next page chain when
// the item count exceeds the configured page size. Catalogs are write-once:
// the orchestrator never rewrites a catalog at a given URL.
type ArtifactCatalog struct {
	Items []CatalogItem `json:"items"`
	Links []CatalogLink `json:"links,omitempty"`
}

// NextPage returns the href of the next page link, or empty
func (c *ArtifactCatalog) NextPage() string {
	for _, l := range c.Links {
		if l.Rel == CatalogLinkRelNext {
			return l.Href
		}
	}
	return ""
}

// Validate checks the item's metadata. Violations surface as validation
// errors with a user-visible message and fail the producing work item.
func (i *CatalogItem) Validate() error {
	if i.Href == "" {
		return NewValidationError("catalog item has no href")
	}
	if len(i.BBox) != 0 && len(i.BBox) != 4 {
		return NewValidationError("bbox must contain exactly four values, got %d", len(i.BBox))
	}
	if i.Temporal != "" {
		parts := strings.Split(i.Temporal, ",")
		if len(parts) != 2 {
			return NewValidationError("temporal must contain exactly two timestamps, got %q", i.Temporal)
		}
		start, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[0]))
		if err != nil {
			return NewValidationError("temporal start %q is not RFC 3339", parts[0])
		}
		end, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[1]))
		if err != nil {
			return NewValidationError("temporal end %q is not RFC 3339", parts[1])
		}
		if start.After(end) {
			return NewValidationError("temporal start %q is after end %q", parts[0], parts[1])
		}
	}
	return nil
}

// Validate checks every item in the catalog
func (c *ArtifactCatalog) Validate() error {
	for idx := range c.Items {
		if err := c.Items[idx].Validate(); err != nil {
			return err
		}
	}
	return nil
}
