package yetisearch

import "time"

// SearchResult is one scored hit.
type SearchResult struct {
	// ID is the document identifier.
	ID string `json:"id"`
	// Score is the final composed score (normalised text relevance after
	// fuzzy penalty, field boosts and distance blending).
	Score float64 `json:"score"`
	// Content and Metadata are the stored document payloads.
	Content   map[string]any `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Language  string         `json:"language,omitempty"`
	Type      string         `json:"type,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	// Distance is metres from the query's reference point, when one exists.
	Distance *float64 `json:"distance,omitempty"`
	// Bearing is the compass bearing (degrees) from the reference point to
	// the document centroid, with its 16-wind label.
	Bearing  *float64 `json:"bearing,omitempty"`
	Cardinal string   `json:"cardinal,omitempty"`
	// Highlights maps displayable fields to snippet excerpts with matches
	// wrapped in the configured tags.
	Highlights map[string]string `json:"highlights,omitempty"`
	// Index names the source index in multi-index searches.
	Index string `json:"_index,omitempty"`
}

// FacetValue is one histogram bucket.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Suggestion is one "did you mean" candidate.
type Suggestion struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// SearchResults is the complete response to one search.
type SearchResults struct {
	Results []SearchResult          `json:"results"`
	Total   int                     `json:"total"`
	Facets  map[string][]FacetValue `json:"facets,omitempty"`
	// Suggestion carries a best-effort "did you mean" rewrite when the
	// result set is empty and suggestions are enabled.
	Suggestion string        `json:"suggestion,omitempty"`
	Took       time.Duration `json:"took"`
}
