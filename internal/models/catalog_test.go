package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		item    CatalogItem
		wantErr bool
	}{
		{
			name: "valid item with metadata",
			item: CatalogItem{
				Href:     "https://example.com/r.zarr",
				BBox:     []float64{-180, -90, 180, 90},
				Temporal: "2020-01-01T00:00:00Z,2020-12-31T00:00:00Z",
			},
		},
		{
			name: "valid item without metadata",
			item: CatalogItem{Href: "https://example.com/a.nc"},
		},
		{
			name:    "missing href",
			item:    CatalogItem{},
			wantErr: true,
		},
		{
			name:    "bbox with wrong length",
			item:    CatalogItem{Href: "https://example.com/a", BBox: []float64{1, 2, 3}},
			wantErr: true,
		},
		{
			name:    "temporal with one timestamp",
			item:    CatalogItem{Href: "https://example.com/a", Temporal: "2020-01-01T00:00:00Z"},
			wantErr: true,
		},
		{
			name:    "temporal not RFC 3339",
			item:    CatalogItem{Href: "https://example.com/a", Temporal: "yesterday,today"},
			wantErr: true,
		},
		{
			name:    "temporal start after end",
			item:    CatalogItem{Href: "https://example.com/a", Temporal: "2021-01-01T00:00:00Z,2020-01-01T00:00:00Z"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidationError(err), "expected a validation error, got %T", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestArtifactCatalogNextPage(t *testing.T) {
	cat := &ArtifactCatalog{
		Links: []CatalogLink{
			{Rel: CatalogLinkRelPrev, Href: "https://example.com/page0"},
			{Rel: CatalogLinkRelNext, Href: "https://example.com/page2"},
		},
	}
	assert.Equal(t, "https://example.com/page2", cat.NextPage())

	assert.Empty(t, (&ArtifactCatalog{}).NextPage())
}
