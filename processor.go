package yetisearch

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/yetidevworks/yetisearch-sub000/geo"
	"github.com/yetidevworks/yetisearch-sub000/internal/fuzzy"
	"github.com/yetidevworks/yetisearch-sub000/internal/store"
)

// primaryFieldNames are always treated as primary for re-scoring.
var primaryFieldNames = map[string]bool{
	"title": true,
	"h1":    true,
	"name":  true,
	"label": true,
}

// processor turns raw storage rows into final scored results.
type processor struct {
	cfg SearchConfig
}

// process runs the score pipeline over one batch of rows.
func (pr *processor) process(rows []store.Row, ps *plannedSearch, q *Query, multiColumn bool) []SearchResult {
	hasText := ps.pq.Match != ""
	ref := q.Geo.referencePoint()

	type working struct {
		row      store.Row
		content  map[string]any
		metadata map[string]any
		fields   map[string]string
		docText  string
		adjusted float64
		final    float64
	}

	var batch []working
	for _, row := range rows {
		// Step 1: drop rows below the score floor.
		if hasText && pr.cfg.MinScore > 0 && math.Abs(row.Rank) < pr.cfg.MinScore {
			continue
		}
		w := working{row: row}
		_ = json.Unmarshal([]byte(row.Content), &w.content)
		if row.Metadata != "" {
			_ = json.Unmarshal([]byte(row.Metadata), &w.metadata)
		}
		w.fields = flattenFields(w.content)
		w.docText = strings.ToLower(joinFields(w.fields))

		// Step 3: fuzzy penalty against what actually matched.
		w.adjusted = row.Rank
		if hasText && ps.fuzzyUsed {
			penalty := pr.fuzzyPenalty(w.docText, ps)
			w.adjusted = row.Rank * (1 - penalty)
		}
		batch = append(batch, w)
	}

	// Step 2: normalise once per batch against the surviving maximum.
	var maxAdjusted float64
	for i := range batch {
		if batch[i].adjusted > maxAdjusted {
			maxAdjusted = batch[i].adjusted
		}
	}
	for i := range batch {
		if maxAdjusted > 0 {
			batch[i].final = 100 * batch[i].adjusted / maxAdjusted
		}
	}

	// Step 4: field-weighted re-score. Single-column mode multiplies; in
	// multi-column mode BM25 already weighted natively, so the boost is
	// only additive.
	weights := ps.pq.FieldWeights
	if hasText && len(weights) > 0 {
		for i := range batch {
			best, tier, primary := pr.bestFieldMatch(batch[i].fields, weights, ps.originalTokens)
			if best <= 0 {
				continue
			}
			if primary {
				best *= 2
			}
			k := 2.0
			switch tier {
			case tierExactField:
				k = 10
			case tierExactPhrase:
				k = 5
			}
			scaled := math.Pow(best/10, 1.5)
			if multiColumn {
				batch[i].final += scaled * k
			} else {
				batch[i].final *= 1 + scaled*k
			}
		}
	}

	// Steps 5-6: distance blending and bearing.
	results := make([]SearchResult, 0, len(batch))
	for _, w := range batch {
		final := w.final
		if w.row.Distance != nil && pr.cfg.DistanceWeight > 0 {
			k := pr.cfg.DistanceDecayK
			if k <= 0 {
				k = 0.01
			}
			dScore := 100 * math.Exp(-k*(*w.row.Distance)/1000)
			wgt := pr.cfg.DistanceWeight
			final = (1-wgt)*final + wgt*dScore
		}

		res := SearchResult{
			ID:        w.row.ID,
			Score:     final,
			Content:   w.content,
			Metadata:  w.metadata,
			Language:  w.row.Language,
			Type:      w.row.Type,
			Timestamp: w.row.Timestamp,
			Distance:  w.row.Distance,
		}
		if ref != nil && w.row.Lat != nil && w.row.Lng != nil {
			b := geo.Bearing(*ref, geo.Point{Lat: *w.row.Lat, Lng: *w.row.Lng})
			res.Bearing = &b
			res.Cardinal = geo.Cardinal(b)
		}
		results = append(results, res)
	}

	// Re-scoring changes relative order; relevance-sorted queries re-rank
	// by the final composed score. Explicit sorts keep storage order.
	preserveOrder := len(q.Sort) > 0 ||
		(q.Geo != nil && (q.Geo.DistanceSort != nil || q.Geo.Nearest > 0))
	if !preserveOrder && hasText {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}
	return results
}

// fuzzyPenalty grades how much of the match relied on fuzzy rewriting.
func (pr *processor) fuzzyPenalty(docText string, ps *plannedSearch) float64 {
	base := pr.cfg.FuzzyScorePenalty
	if base <= 0 {
		base = 0.3
	}

	orig := ps.originalTokens
	if len(orig) == 0 {
		return 0
	}

	// Exact full phrase present.
	phrase := strings.ToLower(strings.Join(orig, " "))
	if containsWord(docText, phrase) {
		return 0.05
	}

	presentOrig := 0
	for _, t := range orig {
		if containsWord(docText, strings.ToLower(t)) {
			presentOrig++
		}
	}
	type pair struct{ original, variant string }
	var matchedVariants []pair
	for original, vars := range ps.variants {
		for _, v := range vars {
			for _, part := range strings.Fields(strings.ToLower(v)) {
				if containsWord(docText, part) {
					matchedVariants = append(matchedVariants, pair{original, part})
				}
			}
		}
	}

	exactRatio := float64(presentOrig) / float64(len(orig))
	switch {
	case presentOrig == len(orig) && len(matchedVariants) == 0:
		return 0.10
	case exactRatio >= 0.75:
		return 0.20
	case presentOrig > 0 && len(matchedVariants) > 0:
		return base * (1 - 0.5*exactRatio)
	case len(matchedVariants) > 0:
		// Only fuzzy matches: scale the penalty by how close the closest
		// variant is to its original.
		penalty := base
		for _, mv := range matchedVariants {
			if p := variantPenalty(mv.original, mv.variant, base); p < penalty {
				penalty = p
			}
		}
		return penalty
	default:
		return base
	}
}

// variantPenalty grades one (original, variant) pair by Jaro-Winkler and
// edit-distance tiers, whichever is kinder.
func variantPenalty(original, variant string, base float64) float64 {
	penalty := base
	jw := fuzzy.JaroWinklerSimilarity(original, variant)
	switch {
	case jw >= 0.95:
		penalty = 0.7 * base
	case jw >= 0.85:
		penalty = 0.85 * base
	}
	switch fuzzy.Levenshtein(original, variant, 2) {
	case 1:
		if 0.7*base < penalty {
			penalty = 0.7 * base
		}
	case 2:
		if 0.85*base < penalty {
			penalty = 0.85 * base
		}
	}
	return penalty
}

// match tiers for field re-scoring, strongest first.
const (
	tierPartial = iota
	tierAllTerms
	tierExactPhrase
	tierExactField
)

// bestFieldMatch scores every weighted field and returns the best raw
// field score, its tier, and whether that field is primary.
func (pr *processor) bestFieldMatch(fields map[string]string, weights map[string]float64, tokens []string) (float64, int, bool) {
	if len(tokens) == 0 {
		return 0, tierPartial, false
	}
	lowered := make([]string, len(tokens))
	for i, t := range tokens {
		lowered[i] = strings.ToLower(t)
	}
	phrase := strings.Join(lowered, " ")

	var bestScore float64
	bestTier := tierPartial
	bestPrimary := false
	for field, weight := range weights {
		text, ok := fields[field]
		if !ok || text == "" {
			continue
		}
		score, tier := fieldMatchScore(text, lowered, phrase)
		if score <= 0 {
			continue
		}
		primary := primaryFieldNames[strings.ToLower(field)] || weight >= 5
		if score > bestScore || (score == bestScore && tier > bestTier) {
			bestScore, bestTier, bestPrimary = score, tier, primary
		}
	}
	return bestScore, bestTier, bestPrimary
}

// fieldMatchScore grades one field: exact field 100, exact phrase 50 plus
// a proximity bonus up to 20, all terms 20 plus bonus, partial 5 per ratio.
func fieldMatchScore(text string, tokens []string, phrase string) (float64, int) {
	clean := normalizeField(text)
	if clean == phrase {
		return 100, tierExactField
	}
	fieldTokens := strings.Fields(clean)
	if strings.Contains(" "+clean+" ", " "+phrase+" ") {
		return 50 + proximityBonus(len(tokens), len(tokens), len(fieldTokens)), tierExactPhrase
	}

	positions := tokenPositions(fieldTokens, tokens)
	matched := 0
	for _, pos := range positions {
		if len(pos) > 0 {
			matched++
		}
	}
	if matched == len(tokens) {
		span := minimalSpan(positions)
		return 20 + proximityBonus(len(tokens), span, len(fieldTokens)), tierAllTerms
	}
	if matched > 0 {
		return 5 * float64(matched) / float64(len(tokens)), tierPartial
	}
	return 0, tierPartial
}

// proximityBonus rewards terms packed tightly in a short field: full 20
// when the span equals the token count, decaying as the span widens.
func proximityBonus(tokenCount, span, fieldLen int) float64 {
	if span < tokenCount {
		span = tokenCount
	}
	bonus := 20 * float64(tokenCount) / float64(span)
	if fieldLen > 0 && fieldLen < 2*tokenCount {
		return bonus
	}
	return bonus * 0.9
}

// tokenPositions locates each query token within the field tokens.
func tokenPositions(fieldTokens, tokens []string) [][]int {
	out := make([][]int, len(tokens))
	for i, t := range tokens {
		for pos, ft := range fieldTokens {
			if ft == t {
				out[i] = append(out[i], pos)
			}
		}
	}
	return out
}

// minimalSpan finds the smallest window (in tokens) containing one
// occurrence of every token.
func minimalSpan(positions [][]int) int {
	indices := make([]int, len(positions))
	best := math.MaxInt
	for {
		lo, hi := math.MaxInt, math.MinInt
		advance := -1
		for i, pos := range positions {
			if len(pos) == 0 {
				return best
			}
			p := pos[indices[i]]
			if p < lo {
				lo = p
				advance = i
			}
			if p > hi {
				hi = p
			}
		}
		if hi-lo+1 < best {
			best = hi - lo + 1
		}
		indices[advance]++
		if indices[advance] >= len(positions[advance]) {
			return best
		}
	}
}

// normalizeField lowercases and strips punctuation for exact comparisons.
// Diacritics are preserved: index-side folding is the tokenizer's call.
func normalizeField(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsWord reports whether w occurs in text on word boundaries.
func containsWord(text, w string) bool {
	if w == "" {
		return false
	}
	start := 0
	for {
		i := strings.Index(text[start:], w)
		if i < 0 {
			return false
		}
		i += start
		before := i == 0 || !isWordRune(rune(text[i-1]))
		afterIdx := i + len(w)
		after := afterIdx >= len(text) || !isWordRune(rune(text[afterIdx]))
		if before && after {
			return true
		}
		start = i + 1
		if start >= len(text) {
			return false
		}
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// flattenFields lowers nested content into field → text.
func flattenFields(content map[string]any) map[string]string {
	out := make(map[string]string, len(content))
	for field, value := range content {
		out[field] = flattenText(value)
	}
	return out
}

func flattenText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := flattenText(v[k]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := flattenText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

func joinFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if fields[k] != "" {
			parts = append(parts, fields[k])
		}
	}
	return strings.Join(parts, " ")
}
