package yetisearch

import (
	"encoding/json"
	"sort"

	"github.com/yetidevworks/yetisearch-sub000/geo"
	"github.com/yetidevworks/yetisearch-sub000/internal/store"
)

// Filter operators accepted by Query.Filters.
const (
	OpEqual        = "="
	OpNotEqual     = "!="
	OpGreater      = ">"
	OpLess         = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpIn           = "in"
	OpContains     = "contains"
	OpExists       = "exists"
)

// Filter is one structured predicate. Field is a direct column (id, type,
// language, timestamp) or a metadata path ("metadata.author.name").
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// SortSpec orders results by a field: "rank", "distance", a direct column,
// or a metadata path.
type SortSpec struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // asc or desc
}

// GeoQuery is the geographic part of a query.
type GeoQuery struct {
	// Near filters to a radius around a point.
	Near *NearQuery `json:"near,omitempty"`
	// Within filters to a bounding box.
	Within *geo.Bounds `json:"within,omitempty"`
	// DistanceSort orders by distance from a point without filtering.
	DistanceSort *DistanceSortQuery `json:"distance_sort,omitempty"`
	// Nearest returns the k nearest documents (no text query required).
	Nearest int `json:"nearest,omitempty"`
	// MaxDistance caps results at a distance in Units.
	MaxDistance float64 `json:"max_distance,omitempty"`
	// Units applies to radii and distances: m (default), km or mi.
	Units string `json:"units,omitempty"`
	// CandidateCap overrides the enlarged candidate set fetched before an
	// in-memory distance re-sort.
	CandidateCap int `json:"candidate_cap,omitempty"`
}

// NearQuery is a point-radius constraint.
type NearQuery struct {
	Point  geo.Point `json:"point"`
	Radius float64   `json:"radius"`
}

// DistanceSortQuery orders results by distance from a point.
type DistanceSortQuery struct {
	From      geo.Point `json:"from"`
	Direction string    `json:"direction,omitempty"` // asc (default) or desc
}

// FacetRequest asks for a value histogram over one field. The reserved
// field "distance" bins by Ranges (thresholds in Units).
type FacetRequest struct {
	Field    string    `json:"field"`
	Limit    int       `json:"limit,omitempty"`
	MinCount int       `json:"min_count,omitempty"`
	Ranges   []float64 `json:"ranges,omitempty"`
	Units    string    `json:"units,omitempty"`
}

// Query is a structured search request.
type Query struct {
	// Text is the free-text query. Empty is valid for pure filter/geo
	// queries.
	Text string `json:"query"`
	// Filters are AND'd metadata and column predicates.
	Filters []Filter `json:"filters,omitempty"`
	// Language scopes stop words and adds a language filter.
	Language string `json:"language,omitempty"`
	// Limit and Offset page results. Limit defaults to 20.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
	// Sort lists explicit sort keys.
	Sort []SortSpec `json:"sort,omitempty"`
	// FieldWeights boosts per-field relevance (native BM25 weights in
	// multi-column mode, post-processing re-score otherwise).
	FieldWeights map[string]float64 `json:"field_weights,omitempty"`
	// Fields restricts matching to the named content fields.
	Fields []string `json:"fields,omitempty"`
	// Geo is the geographic filter block.
	Geo *GeoQuery `json:"geo_filters,omitempty"`
	// Facets requests value histograms alongside results.
	Facets []FacetRequest `json:"facets,omitempty"`
	// UniqueByRoute aggregates chunks sharing metadata.route into one
	// representative result.
	UniqueByRoute bool `json:"unique_by_route,omitempty"`
	// Fuzzy overrides search.enable_fuzzy for this query. Nil inherits.
	Fuzzy *bool `json:"fuzzy,omitempty"`
	// BypassCache skips the result cache.
	BypassCache bool `json:"bypass_cache,omitempty"`
}

// canonical serialises the query into the stable form used as a cache key.
// Map iteration order is neutralised by sorting weight keys.
func (q *Query) canonical() string {
	type kv struct {
		K string  `json:"k"`
		V float64 `json:"v"`
	}
	shadow := struct {
		Q *Query `json:"q"`
		W []kv   `json:"w,omitempty"`
	}{Q: q}
	if len(q.FieldWeights) > 0 {
		for k, v := range q.FieldWeights {
			shadow.W = append(shadow.W, kv{k, v})
		}
		sort.Slice(shadow.W, func(i, j int) bool { return shadow.W[i].K < shadow.W[j].K })
	}
	b, _ := json.Marshal(shadow)
	return string(b)
}

// toStoreGeo lowers the geo block into the storage payload.
func (g *GeoQuery) toStore() *store.GeoFilters {
	if g == nil {
		return nil
	}
	gf := &store.GeoFilters{
		Nearest:      g.Nearest,
		MaxDistance:  g.MaxDistance,
		Units:        g.Units,
		CandidateCap: g.CandidateCap,
	}
	if g.Near != nil {
		gf.Near = &store.NearFilter{Point: g.Near.Point, Radius: g.Near.Radius}
	}
	if g.Within != nil {
		b := *g.Within
		gf.Within = &b
	}
	if g.DistanceSort != nil {
		gf.DistanceSort = &store.DistanceSort{From: g.DistanceSort.From, Direction: g.DistanceSort.Direction}
	}
	return gf
}

// referencePoint returns the point distances and bearings are measured
// from, when the query defines one.
func (g *GeoQuery) referencePoint() *geo.Point {
	if g == nil {
		return nil
	}
	if g.Near != nil {
		p := g.Near.Point
		return &p
	}
	if g.DistanceSort != nil {
		p := g.DistanceSort.From
		return &p
	}
	return nil
}
