package yetisearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routedResult(id, route string, score float64) SearchResult {
	md := map[string]any{}
	if route != "" {
		md["route"] = route
	}
	return SearchResult{ID: id, Score: score, Metadata: md}
}

func TestDedupeByRoute_AggregatesChunks(t *testing.T) {
	// S5: three chunks of /a scoring 40, 30, 20 and one /b document at 35.
	results := dedupeByRoute([]SearchResult{
		routedResult("a1", "/a", 40),
		routedResult("a2", "/a", 30),
		routedResult("a3", "/a", 20),
		routedResult("b1", "/b", 35),
	})

	require.Len(t, results, 2)
	assert.Equal(t, "/a", results[0].Metadata["route"])
	assert.Equal(t, 90.0, results[0].Score)
	assert.Equal(t, "a1", results[0].ID) // highest-scoring chunk represents
	assert.Equal(t, 3, results[0].Metadata["chunk_count"])

	assert.Equal(t, "/b", results[1].Metadata["route"])
	assert.Equal(t, 35.0, results[1].Score)
	assert.Equal(t, 1, results[1].Metadata["chunk_count"])
}

func TestDedupeByRoute_NoDuplicateRoutes(t *testing.T) {
	results := dedupeByRoute([]SearchResult{
		routedResult("x1", "/x", 10),
		routedResult("x2", "/x", 12),
		routedResult("y1", "/y", 5),
	})

	seen := map[string]bool{}
	for _, r := range results {
		route := r.Metadata["route"].(string)
		assert.False(t, seen[route], "route %s appears twice", route)
		seen[route] = true
	}
}

func TestDedupeByRoute_MissingRoutePassesThrough(t *testing.T) {
	results := dedupeByRoute([]SearchResult{
		routedResult("solo1", "", 10),
		routedResult("solo2", "", 8),
		routedResult("r1", "/r", 6),
	})

	require.Len(t, results, 3)
	assert.Equal(t, "solo1", results[0].ID)
	// Pass-through results keep their own score untouched.
	assert.Equal(t, 10.0, results[0].Score)
}

func TestDedupeByRoute_RepresentativeKeepsOwnPayload(t *testing.T) {
	a := routedResult("low", "/p", 10)
	a.Content = map[string]any{"content": "low chunk"}
	b := routedResult("high", "/p", 20)
	b.Content = map[string]any{"content": "high chunk"}

	results := dedupeByRoute([]SearchResult{a, b})
	require.Len(t, results, 1)
	assert.Equal(t, "high", results[0].ID)
	assert.Equal(t, map[string]any{"content": "high chunk"}, results[0].Content)
	assert.Equal(t, 30.0, results[0].Score)
}
