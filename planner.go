package yetisearch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yetidevworks/yetisearch-sub000/internal/analyzer"
	"github.com/yetidevworks/yetisearch-sub000/internal/fuzzy"
	"github.com/yetidevworks/yetisearch-sub000/internal/store"
)

// plannedSearch is the planner's output: the storage payload plus the
// token bookkeeping the result processor needs for penalty and highlight
// decisions.
type plannedSearch struct {
	pq *store.PlannedQuery

	// originalTokens are the analysed query tokens before rewriting.
	originalTokens []string
	// correctedTokens are the tokens actually sent to the matcher.
	correctedTokens []string
	// variants maps each original token to the fuzzy variations in play.
	variants map[string][]string
	// fuzzyUsed marks that correction or expansion changed the query.
	fuzzyUsed bool
}

// allMatchTokens returns every token that can appear in a matched document:
// corrected tokens plus active variants, longest first for highlighting.
func (p *plannedSearch) allMatchTokens() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		t = strings.ToLower(t)
		for _, part := range strings.Fields(t) {
			if part != "" && !seen[part] {
				seen[part] = true
				out = append(out, part)
			}
		}
	}
	for _, t := range p.originalTokens {
		add(t)
	}
	for _, t := range p.correctedTokens {
		add(t)
	}
	for _, vs := range p.variants {
		for _, v := range vs {
			add(v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// planner builds exactly one MATCH expression plus the structured payload
// handed to the store.
type planner struct {
	cfg      SearchConfig
	analyzer analyzer.Analyzer
	synonyms *synonymEngine
}

// planContext carries the per-index knowledge the planner needs.
type planContext struct {
	corrector   *fuzzy.Corrector // nil disables fuzzy rewriting
	multiColumn bool
	hasPrefix   bool
}

// plan rewrites one query. The corrector is already bound to the index's
// vocabulary snapshot.
func (p *planner) plan(q *Query, pc planContext) (*plannedSearch, error) {
	ps := &plannedSearch{
		variants: make(map[string][]string),
		pq: &store.PlannedQuery{
			Language:     q.Language,
			FieldWeights: q.FieldWeights,
			Fields:       q.Fields,
			Geo:          q.Geo.toStore(),
			Limit:        q.Limit,
			Offset:       q.Offset,
			BypassCache:  q.BypassCache,
		},
	}
	if p.cfg.MaxResults > 0 && ps.pq.Limit > p.cfg.MaxResults {
		ps.pq.Limit = p.cfg.MaxResults
	}
	for _, f := range q.Filters {
		sf, err := convertFilter(f)
		if err != nil {
			return nil, err
		}
		ps.pq.Filters = append(ps.pq.Filters, sf)
	}
	for _, s := range q.Sort {
		ps.pq.Sort = append(ps.pq.Sort, store.SortSpec{Field: s.Field, Direction: s.Direction})
	}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		return ps, nil
	}

	tokens := p.analyzer.Tokenize(text)
	tokens = p.analyzer.RemoveStopWords(tokens, q.Language)
	if len(tokens) == 0 {
		// Stop words only: match them literally rather than everything.
		tokens = p.analyzer.Tokenize(text)
	}
	ps.originalTokens = tokens

	if pc.corrector != nil {
		merged := pc.corrector.MergeTokens(tokens)
		if len(merged) != len(tokens) {
			ps.fuzzyUsed = true
		}
		tokens = merged
		ps.originalTokens = tokens
	}

	if pc.corrector == nil {
		ps.correctedTokens = tokens
		ps.pq.Match = p.assembleExact(tokens, pc)
	} else if p.cfg.FuzzyCorrectionMode {
		ps.correctedTokens = p.correctTokens(tokens, pc.corrector)
		for i, t := range tokens {
			if ps.correctedTokens[i] != t {
				ps.fuzzyUsed = true
				ps.variants[t] = []string{ps.correctedTokens[i]}
			}
		}
		ps.pq.Match = p.assembleExact(ps.correctedTokens, pc)
	} else {
		ps.correctedTokens = tokens
		p.expandTokens(ps, tokens, pc)
	}

	if p.cfg.EnableSynonyms && p.synonyms != nil && ps.pq.Match != "" {
		if additions := p.synonyms.Expand(tokens, q.Language); len(additions) > 0 {
			terms := make([]string, 0, len(additions))
			for _, syn := range additions {
				if strings.ContainsRune(syn, ' ') {
					terms = append(terms, quotePhrase(syn))
				} else {
					terms = append(terms, escapeToken(syn))
				}
			}
			ps.pq.Match = fmt.Sprintf("(%s) OR %s", ps.pq.Match, strings.Join(terms, " OR "))
		}
	}
	return ps, nil
}

// correctTokens replaces each token with its best correction. With
// fuzzy_last_token_only, earlier tokens stay exact (as-you-type UIs).
func (p *planner) correctTokens(tokens []string, corrector *fuzzy.Corrector) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		if p.cfg.FuzzyLastTokenOnly && i != len(tokens)-1 {
			out[i] = t
			continue
		}
		out[i] = corrector.Correct(t)
	}
	return out
}

// assembleExact joins tokens with implicit AND, escaping as needed and
// adding the trailing prefix star when configured.
func (p *planner) assembleExact(tokens []string, pc planContext) string {
	escaped := make([]string, len(tokens))
	for i, t := range tokens {
		escaped[i] = escapeToken(t)
	}
	if p.cfg.PrefixLastToken && pc.hasPrefix && len(escaped) > 0 {
		escaped[len(escaped)-1] += "*"
	}
	return strings.Join(escaped, " ")
}

// expandTokens builds the expansion-mode MATCH: exact phrase preferred,
// then proximity, then the fuzzy variation group.
func (p *planner) expandTokens(ps *plannedSearch, tokens []string, pc planContext) {
	algo, _ := fuzzy.ParseAlgorithm(p.cfg.FuzzyAlgorithm)
	budget := p.cfg.FuzzyTotalMaxVars
	if budget <= 0 {
		budget = 30
	}

	var allVariants []string
	for i, t := range tokens {
		if p.cfg.FuzzyLastTokenOnly && i != len(tokens)-1 {
			continue
		}
		if budget <= 0 {
			break
		}
		vars := pc.corrector.Variations(t, algo)
		if len(vars) > budget {
			vars = vars[:budget]
		}
		budget -= len(vars)
		if len(vars) > 0 {
			ps.variants[t] = vars
			ps.fuzzyUsed = true
			allVariants = append(allVariants, vars...)
		}
	}

	escaped := make([]string, len(tokens))
	for i, t := range tokens {
		escaped[i] = escapeToken(t)
	}
	escapedVars := make([]string, len(allVariants))
	for i, v := range allVariants {
		escapedVars[i] = escapeToken(v)
	}

	if len(tokens) == 1 {
		group := append([]string{escaped[0]}, escapedVars...)
		if p.cfg.PrefixLastToken && pc.hasPrefix {
			group[0] += "*"
		}
		if len(group) == 1 {
			ps.pq.Match = group[0]
			return
		}
		ps.pq.Match = "(" + strings.Join(group, " OR ") + ")"
		return
	}

	phrase := quotePhrase(strings.Join(tokens, " "))
	near := fmt.Sprintf("NEAR(%s, 10)", strings.Join(escaped, " "))
	parts := []string{phrase, near}
	if len(escapedVars) > 0 {
		parts = append(parts, "("+strings.Join(escapedVars, " OR ")+")")
	}
	ps.pq.Match = strings.Join(parts, " OR ")
}

// escapeToken neutralises FTS operators: anything beyond letters, digits
// and underscores is wrapped in double quotes (with inner quotes doubled).
func escapeToken(t string) string {
	clean := true
	for _, r := range t {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 127) {
			clean = false
			break
		}
	}
	if clean && t != "" && !isFTSKeyword(t) {
		return t
	}
	return quotePhrase(t)
}

// quotePhrase double-quotes a phrase, doubling embedded quotes.
func quotePhrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// isFTSKeyword reports whether a bare token would parse as an operator.
func isFTSKeyword(t string) bool {
	switch strings.ToUpper(t) {
	case "AND", "OR", "NOT", "NEAR":
		return true
	}
	return false
}

// convertFilter validates and lowers one public filter.
func convertFilter(f Filter) (store.Filter, error) {
	switch f.Operator {
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpIn, OpContains, OpExists:
	default:
		return store.Filter{}, fmt.Errorf("unknown filter operator %q", f.Operator)
	}
	return store.Filter{Field: f.Field, Operator: f.Operator, Value: f.Value}, nil
}
