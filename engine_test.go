package yetisearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yetidevworks/yetisearch-sub000/geo"
)

// newTestEngine builds an in-memory engine on the pure Go driver.
func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Storage.Driver = "modernc"
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func contentDoc(id, text string) *Document {
	return &Document{ID: id, Content: map[string]any{"content": text}}
}

func TestEngine_IndexLifecycle(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.CreateIndex(ctx, "notes"))
	exists, err := e.IndexExists(ctx, "notes")
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := e.ListIndices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, names)

	require.NoError(t, e.DropIndex(ctx, "notes"))
	exists, err = e.IndexExists(ctx, "notes")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEngine_SearchBasic(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "notes"))
	require.NoError(t, e.Insert(ctx, "notes", contentDoc("a", "quantum computing explained")))
	require.NoError(t, e.Insert(ctx, "notes", contentDoc("b", "gardening for beginners")))

	res, err := e.Search(ctx, "notes", &Query{Text: "quantum"})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "a", res.Results[0].ID)
	assert.Equal(t, 1, res.Total)
	assert.Positive(t, res.Results[0].Score)
}

func TestEngine_FuzzyCorrection(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "notes"))
	require.NoError(t, e.Insert(ctx, "notes", contentDoc("p", "Contact us by phone")))

	// S2: with fuzzy enabled the misspelling is corrected to an indexed
	// term; with fuzzy disabled it matches nothing.
	res, err := e.Search(ctx, "notes", &Query{Text: "fone"})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "p", res.Results[0].ID)

	off := false
	res, err = e.Search(ctx, "notes", &Query{Text: "fone", Fuzzy: &off})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestEngine_SuggestionOnEmptyResults(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "notes"))
	require.NoError(t, e.Insert(ctx, "notes", contentDoc("p", "Contact us by phone")))

	off := false
	res, err := e.Search(ctx, "notes", &Query{Text: "fone", Fuzzy: &off})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, "phone", res.Suggestion)
}

func TestEngine_Highlighting(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "notes"))
	require.NoError(t, e.Insert(ctx, "notes", contentDoc("p", "Contact us by phone today")))

	res, err := e.Search(ctx, "notes", &Query{Text: "phone"})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	require.NotNil(t, res.Results[0].Highlights)
	assert.Contains(t, res.Results[0].Highlights["content"], "<mark>phone</mark>")
}

func TestEngine_MultiColumnRanking(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		cfg.Indexer.Fields = map[string]FieldConfig{
			"title":   {Boost: 10, Store: true},
			"content": {Boost: 1, Store: true},
		}
		cfg.Indexer.FTS.MultiColumn = true
	})
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "articles"))
	require.NoError(t, e.Insert(ctx, "articles", &Document{
		ID:      "A",
		Content: map[string]any{"title": "Rocket Propulsion", "content": "physics"},
	}))
	require.NoError(t, e.Insert(ctx, "articles", &Document{
		ID:      "B",
		Content: map[string]any{"title": "Intro", "content": "rocket rocket rocket"},
	}))

	res, err := e.Search(ctx, "articles", &Query{Text: "rocket"})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "A", res.Results[0].ID)
	assert.Equal(t, "B", res.Results[1].ID)
}

func TestEngine_GeoSearchAndBearing(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "places"))

	center := geo.Point{Lat: 48.8566, Lng: 2.3522}
	north := geo.Point{Lat: center.Lat + 0.018, Lng: center.Lng} // ~2 km north
	require.NoError(t, e.Insert(ctx, "places", &Document{
		ID:      "north",
		Content: map[string]any{"content": "bakery"},
		Geo:     &north,
	}))

	res, err := e.Search(ctx, "places", &Query{
		Text: "bakery",
		Geo: &GeoQuery{
			Near:  &NearQuery{Point: center, Radius: 5},
			Units: "km",
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	r := res.Results[0]
	require.NotNil(t, r.Distance)
	assert.InDelta(t, 2000, *r.Distance, 100)
	require.NotNil(t, r.Bearing)
	assert.Equal(t, "N", r.Cardinal)
}

func TestEngine_DistanceBlending(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		cfg.Search.DistanceWeight = 0.7
		cfg.Search.DistanceDecayK = 0.01
	})
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "places"))

	center := geo.Point{Lat: 48.8566, Lng: 2.3522}
	near := geo.Point{Lat: center.Lat, Lng: center.Lng}
	far := geo.Point{Lat: center.Lat + 10.0/111.32, Lng: center.Lng}
	require.NoError(t, e.Insert(ctx, "places", &Document{
		ID: "near", Content: map[string]any{"content": "coffee shop"}, Geo: &near,
	}))
	require.NoError(t, e.Insert(ctx, "places", &Document{
		ID: "far", Content: map[string]any{"content": "coffee shop"}, Geo: &far,
	}))

	// S6: equally relevant text, the nearer document wins on the blended
	// score and sorts first.
	res, err := e.Search(ctx, "places", &Query{
		Text: "coffee",
		Geo: &GeoQuery{
			Near:  &NearQuery{Point: center, Radius: 20},
			Units: "km",
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "near", res.Results[0].ID)
	assert.Greater(t, res.Results[0].Score, res.Results[1].Score)
}

func TestEngine_DedupeByRoute(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "pages"))

	for _, d := range []*Document{
		{ID: "a1", Content: map[string]any{"content": "install guide part one"}, Metadata: map[string]any{"route": "/a"}},
		{ID: "a2", Content: map[string]any{"content": "install guide part two"}, Metadata: map[string]any{"route": "/a"}},
		{ID: "a3", Content: map[string]any{"content": "install guide part three"}, Metadata: map[string]any{"route": "/a"}},
		{ID: "b1", Content: map[string]any{"content": "install notes"}, Metadata: map[string]any{"route": "/b"}},
	} {
		require.NoError(t, e.Insert(ctx, "pages", d))
	}

	res, err := e.Search(ctx, "pages", &Query{Text: "install", UniqueByRoute: true})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	routes := map[string]SearchResult{}
	for _, r := range res.Results {
		route, _ := r.Metadata["route"].(string)
		routes[route] = r
	}
	require.Contains(t, routes, "/a")
	require.Contains(t, routes, "/b")
	assert.Equal(t, 3, routes["/a"].Metadata["chunk_count"])
	// The aggregate of three chunks outranks the single /b hit.
	assert.Equal(t, "/a", res.Results[0].Metadata["route"])
}

func TestEngine_ResultCacheIdentityAndInvalidation(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "notes"))
	require.NoError(t, e.Insert(ctx, "notes", contentDoc("a", "cached content")))

	q := &Query{Text: "cached"}
	first, err := e.Search(ctx, "notes", q)
	require.NoError(t, err)
	second, err := e.Search(ctx, "notes", q)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Any write to the index invalidates its cache entries.
	require.NoError(t, e.Insert(ctx, "notes", contentDoc("b", "cached too")))
	third, err := e.Search(ctx, "notes", q)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Len(t, third.Results, 2)

	// BypassCache skips both read and write of the cache.
	fourth, err := e.Search(ctx, "notes", &Query{Text: "cached", BypassCache: true})
	require.NoError(t, err)
	assert.NotSame(t, third, fourth)
}

func TestEngine_Facets(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "books"))

	for _, d := range []*Document{
		{ID: "1", Content: map[string]any{"content": "go systems programming"}, Metadata: map[string]any{"genre": "tech"}},
		{ID: "2", Content: map[string]any{"content": "go concurrency patterns"}, Metadata: map[string]any{"genre": "tech"}},
		{ID: "3", Content: map[string]any{"content": "go fishing stories"}, Metadata: map[string]any{"genre": "outdoors"}},
	} {
		require.NoError(t, e.Insert(ctx, "books", d))
	}

	res, err := e.Search(ctx, "books", &Query{
		Text:   "go",
		Facets: []FacetRequest{{Field: "metadata.genre"}},
	})
	require.NoError(t, err)
	require.Contains(t, res.Facets, "metadata.genre")
	values := res.Facets["metadata.genre"]
	require.Len(t, values, 2)
	assert.Equal(t, FacetValue{Value: "tech", Count: 2}, values[0])
	assert.Equal(t, FacetValue{Value: "outdoors", Count: 1}, values[1])
}

func TestEngine_DistanceFacet(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "places"))

	center := geo.Point{Lat: 48.8566, Lng: 2.3522}
	for id, km := range map[string]float64{"a": 0.5, "b": 1.5, "c": 4} {
		require.NoError(t, e.Insert(ctx, "places", &Document{
			ID:      id,
			Content: map[string]any{"content": "shop"},
			Geo:     &geo.Point{Lat: center.Lat + km/111.32, Lng: center.Lng},
		}))
	}

	res, err := e.Search(ctx, "places", &Query{
		Text: "shop",
		Geo: &GeoQuery{
			DistanceSort: &DistanceSortQuery{From: center},
		},
		Facets: []FacetRequest{{Field: "distance", Ranges: []float64{1, 2}, Units: "km"}},
	})
	require.NoError(t, err)
	require.Contains(t, res.Facets, "distance")
	bins := map[string]int{}
	for _, v := range res.Facets["distance"] {
		bins[v.Value] = v.Count
	}
	assert.Equal(t, 1, bins["0-1"])
	assert.Equal(t, 1, bins["1-2"])
	assert.Equal(t, 1, bins["2+"])
}

func TestEngine_SearchMultiple(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "left"))
	require.NoError(t, e.CreateIndex(ctx, "right"))
	require.NoError(t, e.Insert(ctx, "left", contentDoc("l1", "shared topic alpha")))
	require.NoError(t, e.Insert(ctx, "right", contentDoc("r1", "shared topic beta")))

	res, err := e.SearchMultiple(ctx, []string{"left", "right"}, &Query{Text: "shared"})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, 2, res.Total)

	indexes := map[string]bool{}
	for _, r := range res.Results {
		indexes[r.Index] = true
	}
	assert.True(t, indexes["left"])
	assert.True(t, indexes["right"])
}

func TestEngine_Suggest(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "notes"))
	require.NoError(t, e.Insert(ctx, "notes", contentDoc("p", "phone charger phone case")))

	suggestions, err := e.Suggest(ctx, "notes", "phnoe", 3)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "phone", suggestions[0].Text)
	assert.Equal(t, 1, suggestions[0].Count)
}

func TestEngine_UpdateConfigInvalidatesCaches(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "notes"))
	require.NoError(t, e.Insert(ctx, "notes", contentDoc("a", "configurable")))

	first, err := e.Search(ctx, "notes", &Query{Text: "configurable"})
	require.NoError(t, err)

	require.NoError(t, e.UpdateConfig(map[string]any{"search.min_score": 0.001}))

	second, err := e.Search(ctx, "notes", &Query{Text: "configurable"})
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	assert.Error(t, e.UpdateConfig(map[string]any{"storage.path": "/tmp/x"}))
	assert.Error(t, e.UpdateConfig(map[string]any{"search.min_score": "high"}))
}

func TestEngine_UpdateAndDelete(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "notes"))

	// Update requires an existing document.
	err := e.Update(ctx, "notes", contentDoc("a", "v1"))
	require.Error(t, err)

	require.NoError(t, e.Insert(ctx, "notes", contentDoc("a", "v1")))
	require.NoError(t, e.Update(ctx, "notes", contentDoc("a", "v2")))

	doc, err := e.GetDocument(ctx, "notes", "a")
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Content["content"])

	require.NoError(t, e.Delete(ctx, "notes", "a"))
	doc, err = e.GetDocument(ctx, "notes", "a")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestEngine_Stats(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "notes"))
	require.NoError(t, e.Insert(ctx, "notes", contentDoc("a", "some words here")))

	stats, err := e.GetIndexStats(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
}
