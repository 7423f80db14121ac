// Package store persists documents and all auxiliary search structures in
// SQLite: the document table, the FTS5 inverted index, the R-tree spatial
// index, the optional term vocabulary, and per-index metadata. It executes
// planned queries produced by the query planner.
package store

import (
	"github.com/yetidevworks/yetisearch-sub000/geo"
)

// SchemaMode selects the FTS storage layout.
type SchemaMode string

const (
	// SchemaLegacy stores the string document id as an UNINDEXED FTS column.
	SchemaLegacy SchemaMode = "legacy"
	// SchemaExternal mirrors the document table via FTS5 external content,
	// keyed by the document's integer primary key.
	SchemaExternal SchemaMode = "external"
)

// Document is the unit of indexing.
type Document struct {
	ID        string
	Content   map[string]any // field → string or nested mapping
	Metadata  map[string]any
	Language  string
	Type      string
	Timestamp int64
	Geo       *geo.Point
	GeoBounds *geo.Bounds
}

// IndexOptions captures the per-index schema choices persisted in X_meta.
type IndexOptions struct {
	// FTSColumns lists the content fields carried as FTS columns.
	FTSColumns []string
	// MultiColumn creates one FTS column per content field so BM25 column
	// weights are native. Single-column mode concatenates all content.
	MultiColumn bool
	// Prefix configures FTS prefix index sizes (e.g. [2, 3]).
	Prefix []int
	// Detail is the FTS detail level: full, column or none.
	Detail string
	// EnableSpatial provisions the spatial table.
	EnableSpatial bool
	// IndexTerms maintains the X_terms vocabulary table (Levenshtein mode).
	IndexTerms bool
}

// DefaultIndexOptions returns the standard single-column spatial-enabled
// layout over a catch-all content column.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		FTSColumns:    []string{"content"},
		Detail:        "full",
		EnableSpatial: true,
	}
}

// indexMeta is the loaded form of an index's persisted schema choices.
type indexMeta struct {
	name    string
	mode    SchemaMode
	options IndexOptions
}

// Filter is one structured predicate of a planned query.
type Filter struct {
	Field    string // direct column, or "metadata.<path>"
	Operator string // = != > < >= <= in contains exists
	Value    any
}

// GeoFilters is the geo block of a planned query.
type GeoFilters struct {
	// Near filters to a radius around a point.
	Near *NearFilter
	// Within filters to a bounding box.
	Within *geo.Bounds
	// DistanceSort orders by distance from a point without filtering.
	DistanceSort *DistanceSort
	// Nearest activates the k-NN fast path (top k by distance, no text).
	Nearest int
	// MaxDistance adds a distance cap in Units.
	MaxDistance float64
	// Units applies to Near.Radius and MaxDistance. Empty means metres.
	Units string
	// CandidateCap overrides the enlarged candidate set size used when a
	// distance sort re-orders FTS-ranked rows in memory.
	CandidateCap int
}

// NearFilter is a point-radius constraint.
type NearFilter struct {
	Point  geo.Point
	Radius float64 // in GeoFilters.Units
}

// DistanceSort orders results by distance from a reference point.
type DistanceSort struct {
	From      geo.Point
	Direction string // asc or desc, default asc
}

// PlannedQuery is the payload handed from the query planner to the store.
type PlannedQuery struct {
	// Match is the FTS MATCH expression. Empty means no text predicate.
	Match string
	// Filters are applied in order as AND predicates.
	Filters []Filter
	// Language filters d.language when non-empty.
	Language string
	// Sort lists explicit sort keys, applied in order.
	Sort []SortSpec
	// FieldWeights feeds bm25() column weights in multi-column mode.
	FieldWeights map[string]float64
	// Fields restricts the MATCH to the named columns (two-pass search).
	Fields []string
	// Geo carries the geo filter block.
	Geo *GeoFilters
	// Limit and Offset page the result set.
	Limit  int
	Offset int
	// BypassCache skips the engine's result cache (plumbed through the
	// canonical form, not interpreted by the store).
	BypassCache bool
}

// SortSpec is one sort key.
type SortSpec struct {
	Field     string // "rank", "distance", direct column, or metadata.<path>
	Direction string // asc or desc
}

// Row is one raw search hit before result processing.
type Row struct {
	ID        string
	Content   string // JSON text
	Metadata  string // JSON text
	Language  string
	Type      string
	Timestamp int64
	// Rank is the negated bm25() value; higher is better. Zero when the
	// query had no text predicate.
	Rank float64
	// Distance is metres from the geo reference, when one was in play.
	Distance *float64
	// Lat/Lng carry the stored centroid when a spatial join ran.
	Lat *float64
	Lng *float64
}

// IndexStats summarises one index.
type IndexStats struct {
	Name          string
	DocumentCount int
	TermCount     int
	SpatialCount  int
	SizeBytes     int64
	Mode          SchemaMode
}

// TermFrequency is one vocabulary entry.
type TermFrequency struct {
	Term string
	Docs int
}
