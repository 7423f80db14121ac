package yetisearch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yetidevworks/yetisearch-sub000/internal/store"
)

func newTestProcessor(mutate func(*SearchConfig)) *processor {
	cfg := DefaultConfig().Search
	if mutate != nil {
		mutate(&cfg)
	}
	return &processor{cfg: cfg}
}

func row(id string, rank float64, content map[string]any) store.Row {
	b, _ := json.Marshal(content)
	return store.Row{ID: id, Rank: rank, Content: string(b), Metadata: "{}"}
}

func plainPlan(match string, tokens ...string) *plannedSearch {
	return &plannedSearch{
		pq:              &store.PlannedQuery{Match: match},
		originalTokens:  tokens,
		correctedTokens: tokens,
		variants:        map[string][]string{},
	}
}

func TestProcess_NormalisesAgainstBatchMax(t *testing.T) {
	pr := newTestProcessor(nil)
	ps := plainPlan("alpha", "alpha")

	rows := []store.Row{
		row("best", 4.0, map[string]any{"content": "alpha"}),
		row("half", 2.0, map[string]any{"content": "alpha beta"}),
	}
	results := pr.process(rows, ps, &Query{Text: "alpha"}, false)
	require.Len(t, results, 2)
	assert.Equal(t, "best", results[0].ID)
	assert.InDelta(t, 100, results[0].Score, 0.001)
	assert.InDelta(t, 50, results[1].Score, 0.001)
}

func TestProcess_MinScoreDropsRows(t *testing.T) {
	pr := newTestProcessor(func(cfg *SearchConfig) { cfg.MinScore = 1.0 })
	ps := plainPlan("alpha", "alpha")

	rows := []store.Row{
		row("keep", 2.0, map[string]any{"content": "alpha"}),
		row("drop", 0.5, map[string]any{"content": "alpha"}),
	}
	results := pr.process(rows, ps, &Query{Text: "alpha"}, false)
	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].ID)
}

func TestFuzzyPenalty_Tiers(t *testing.T) {
	pr := newTestProcessor(nil) // base penalty 0.3

	ps := &plannedSearch{
		pq:              &store.PlannedQuery{Match: "x"},
		originalTokens:  []string{"quick", "fox"},
		correctedTokens: []string{"quick", "fox"},
		variants:        map[string][]string{"fox": {"foxes"}},
	}

	// Exact full phrase.
	assert.InDelta(t, 0.05, pr.fuzzyPenalty("the quick fox jumps", ps), 0.001)

	// All originals present, no fuzzy-only match.
	assert.InDelta(t, 0.10, pr.fuzzyPenalty("fox stories for the quick reader", ps), 0.001)

	// Mixed exact and fuzzy (one original + one variant).
	mixed := pr.fuzzyPenalty("quick foxes everywhere", ps)
	assert.InDelta(t, 0.3*(1-0.5*0.5), mixed, 0.001)

	// Only fuzzy: "foxes" is two edits from "fox", the middle tier.
	onlyFuzzy := pr.fuzzyPenalty("foxes everywhere", ps)
	assert.InDelta(t, 0.85*0.3, onlyFuzzy, 0.001)

	// Nothing matched at all: full penalty.
	assert.InDelta(t, 0.3, pr.fuzzyPenalty("unrelated text", ps), 0.001)
}

func TestFuzzyPenalty_ThreeQuarterTier(t *testing.T) {
	pr := newTestProcessor(nil)
	ps := &plannedSearch{
		pq:              &store.PlannedQuery{Match: "x"},
		originalTokens:  []string{"a1", "b2", "c3", "d4"},
		correctedTokens: []string{"a1", "b2", "c3", "d4"},
		variants:        map[string][]string{},
	}

	// Three of four originals present, out of phrase order.
	p := pr.fuzzyPenalty("c3 then b2 then a1", ps)
	assert.InDelta(t, 0.20, p, 0.001)
}

func TestFieldMatchScore_Tiers(t *testing.T) {
	tokens := []string{"rocket", "science"}
	phrase := "rocket science"

	score, tier := fieldMatchScore("Rocket Science", tokens, phrase)
	assert.Equal(t, tierExactField, tier)
	assert.Equal(t, 100.0, score)

	score, tier = fieldMatchScore("Intro to rocket science basics", tokens, phrase)
	assert.Equal(t, tierExactPhrase, tier)
	assert.Greater(t, score, 50.0)
	assert.LessOrEqual(t, score, 70.0)

	score, tier = fieldMatchScore("science of the modern rocket", tokens, phrase)
	assert.Equal(t, tierAllTerms, tier)
	assert.Greater(t, score, 20.0)
	assert.LessOrEqual(t, score, 40.0)

	score, tier = fieldMatchScore("rocket fuel prices", tokens, phrase)
	assert.Equal(t, tierPartial, tier)
	assert.InDelta(t, 2.5, score, 0.001)

	score, _ = fieldMatchScore("nothing relevant", tokens, phrase)
	assert.Zero(t, score)
}

func TestProcess_FieldWeightedRescoreOrdersExactTitleFirst(t *testing.T) {
	pr := newTestProcessor(nil)
	ps := plainPlan("rocket", "rocket")
	ps.pq.FieldWeights = map[string]float64{"title": 10, "content": 1}

	rows := []store.Row{
		row("body", 3.0, map[string]any{"title": "Misc", "content": "rocket rocket rocket notes"}),
		row("titled", 2.8, map[string]any{"title": "Rocket", "content": "physics"}),
	}
	results := pr.process(rows, ps, &Query{Text: "rocket"}, false)
	require.Len(t, results, 2)
	// The exact-title match overtakes the higher raw-rank body match.
	assert.Equal(t, "titled", results[0].ID)
}

func TestProcess_DistanceBlending(t *testing.T) {
	pr := newTestProcessor(func(cfg *SearchConfig) {
		cfg.DistanceWeight = 0.7
		cfg.DistanceDecayK = 0.01
	})
	ps := plainPlan("coffee", "coffee")

	near, far := 0.0, 10000.0
	rows := []store.Row{
		{ID: "far", Rank: 2.0, Content: `{"content":"coffee"}`, Metadata: "{}", Distance: &far},
		{ID: "near", Rank: 2.0, Content: `{"content":"coffee"}`, Metadata: "{}", Distance: &near},
	}
	results := pr.process(rows, ps, &Query{Text: "coffee"}, false)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMinimalSpan(t *testing.T) {
	// Tokens at positions [0, 9] and [2]: best window covers 0..2.
	span := minimalSpan([][]int{{0, 9}, {2}})
	assert.Equal(t, 3, span)

	span = minimalSpan([][]int{{5}, {6}, {7}})
	assert.Equal(t, 3, span)
}

func TestContainsWord_Boundaries(t *testing.T) {
	assert.True(t, containsWord("call by phone now", "phone"))
	assert.False(t, containsWord("telephones ring", "phone"))
	assert.True(t, containsWord("phone.", "phone"))
	assert.False(t, containsWord("", "phone"))
}

func TestNormalizeField(t *testing.T) {
	assert.Equal(t, "rocket science", normalizeField("  Rocket,  Science! "))
	// Diacritics are preserved, not folded.
	assert.Equal(t, "café", normalizeField("Café"))
}
