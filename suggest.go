package yetisearch

import (
	"context"
	"sort"
	"strings"

	"github.com/yetidevworks/yetisearch-sub000/internal/fuzzy"
)

// Suggest returns ranked spelling suggestions for a single term: indexed
// terms with confidence and document counts.
func (e *Engine) Suggest(ctx context.Context, index, term string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 5
	}
	vocab, err := e.vocabulary(ctx, index)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	sc := e.cfg.Search
	e.mu.RUnlock()

	corrector := fuzzy.NewCorrector(vocab, fuzzy.Config{
		TrigramSize:            sc.TrigramSize,
		TrigramThreshold:       sc.TrigramThreshold,
		JaroWinklerThreshold:   sc.JaroWinklerThreshold,
		LevenshteinMaxDistance: sc.LevenshteinThreshold,
		CorrectionThreshold:    sc.CorrectionThreshold,
		MaxVariations:          sc.MaxFuzzyVariations,
		MinTermFrequency:       sc.MinTermFrequency,
	})

	out := make([]Suggestion, 0, limit)
	for _, s := range corrector.Suggest(term, limit) {
		out = append(out, Suggestion{Text: s.Text, Score: s.Confidence, Count: s.Freq})
	}
	return out, nil
}

// GenerateSuggestions proposes corrected full queries for a query that
// found nothing. Candidate rewrites are probed against the index and
// ranked by hit count, then similarity to the input, then term frequency.
// Failures here degrade to an empty list; they never fail the caller.
func (e *Engine) GenerateSuggestions(ctx context.Context, index, queryText string, limit int) []Suggestion {
	if limit <= 0 {
		limit = 3
	}
	tokens := e.analyzer.Tokenize(queryText)
	if len(tokens) == 0 {
		return nil
	}

	vocab, err := e.vocabulary(ctx, index)
	if err != nil {
		e.log.Warn("suggestion generation failed", "index", index, "error", err)
		return nil
	}
	e.mu.RLock()
	sc := e.cfg.Search
	e.mu.RUnlock()
	corrector := fuzzy.NewCorrector(vocab, fuzzy.Config{
		TrigramSize:            sc.TrigramSize,
		TrigramThreshold:       sc.TrigramThreshold,
		JaroWinklerThreshold:   sc.JaroWinklerThreshold,
		LevenshteinMaxDistance: sc.LevenshteinThreshold,
		CorrectionThreshold:    sc.CorrectionThreshold,
		MaxVariations:          sc.MaxFuzzyVariations,
		MinTermFrequency:       sc.MinTermFrequency,
	})

	type candidate struct {
		text       string
		similarity float64
		freq       int
		hits       int
	}
	seen := map[string]bool{}
	var candidates []candidate

	// Rewrite one token at a time; every token contributes candidates, in
	// query order.
	for i, t := range tokens {
		for _, s := range corrector.Suggest(t, limit+2) {
			if s.Text == strings.ToLower(t) {
				continue
			}
			rewritten := make([]string, len(tokens))
			copy(rewritten, tokens)
			rewritten[i] = s.Text
			text := strings.Join(rewritten, " ")
			if seen[text] {
				continue
			}
			seen[text] = true
			candidates = append(candidates, candidate{
				text:       text,
				similarity: s.Confidence,
				freq:       s.Freq,
			})
		}
	}

	// Probe each rewrite; a variant that yields hits outranks any that
	// does not, ties broken by similarity then frequency.
	off := false
	for i := range candidates {
		n, err := e.Count(ctx, index, &Query{Text: candidates[i].text, Fuzzy: &off})
		if err != nil {
			e.log.Warn("suggestion probe failed", "index", index, "error", err)
			continue
		}
		candidates[i].hits = n
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].hits != candidates[j].hits {
			return candidates[i].hits > candidates[j].hits
		}
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		return candidates[i].freq > candidates[j].freq
	})

	out := make([]Suggestion, 0, limit)
	for _, c := range candidates {
		if c.hits == 0 {
			break
		}
		out = append(out, Suggestion{Text: c.text, Score: c.similarity, Count: c.hits})
		if len(out) >= limit {
			break
		}
	}
	return out
}
