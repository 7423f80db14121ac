package yetisearch

import (
	"github.com/yetidevworks/yetisearch-sub000/geo"
	"github.com/yetidevworks/yetisearch-sub000/internal/store"
)

// Document is a unit of indexable content: named content fields, free-form
// metadata, and an optional geographic point or bounding box.
type Document struct {
	// ID is the caller-supplied unique identifier within an index.
	ID string `json:"id"`
	// Content maps field names to text (or nested mappings of text).
	Content map[string]any `json:"content"`
	// Metadata carries filterable JSON values.
	Metadata map[string]any `json:"metadata,omitempty"`
	// Language is a BCP-47 tag used for stop-word handling and filtering.
	Language string `json:"language,omitempty"`
	// Type tags the document; defaults to "default".
	Type string `json:"type,omitempty"`
	// Timestamp is Unix seconds.
	Timestamp int64 `json:"timestamp,omitempty"`
	// Geo is an optional point location.
	Geo *geo.Point `json:"geo,omitempty"`
	// GeoBounds is an optional bounding box; wins over Geo when both set.
	GeoBounds *geo.Bounds `json:"geo_bounds,omitempty"`
}

// toStore lowers the public document into the storage record.
func (d *Document) toStore() *store.Document {
	return &store.Document{
		ID:        d.ID,
		Content:   d.Content,
		Metadata:  d.Metadata,
		Language:  d.Language,
		Type:      d.Type,
		Timestamp: d.Timestamp,
		Geo:       d.Geo,
		GeoBounds: d.GeoBounds,
	}
}

// fromStore raises a storage record back into the public type.
func fromStore(sd *store.Document) *Document {
	if sd == nil {
		return nil
	}
	return &Document{
		ID:        sd.ID,
		Content:   sd.Content,
		Metadata:  sd.Metadata,
		Language:  sd.Language,
		Type:      sd.Type,
		Timestamp: sd.Timestamp,
		Geo:       sd.Geo,
		GeoBounds: sd.GeoBounds,
	}
}
