package fuzzy

import (
	"sort"
	"strings"
)

// Variation is an indexed term similar to the input token.
type Variation struct {
	Term  string
	Score float64
	Freq  int
}

// Variations returns up to MaxVariations indexed terms within the
// algorithm's similarity cutoff, best first. AlgorithmBasic returns the
// consensus ranking.
func (c *Corrector) Variations(t string, algo Algorithm) []string {
	t = strings.ToLower(t)
	var vars []Variation
	switch algo {
	case AlgorithmTrigram:
		vars = c.trigramVariations(t)
	case AlgorithmJaroWinkler:
		vars = c.jaroWinklerVariations(t)
	case AlgorithmLevenshtein:
		vars = c.levenshteinVariations(t)
	default:
		for _, sc := range c.rankCandidates(t, c.cfg.MaxVariations) {
			vars = append(vars, Variation{Term: sc.term, Score: sc.consensus, Freq: sc.freq})
		}
	}

	sort.Slice(vars, func(i, j int) bool {
		if vars[i].Score != vars[j].Score {
			return vars[i].Score > vars[j].Score
		}
		if vars[i].Freq != vars[j].Freq {
			return vars[i].Freq > vars[j].Freq
		}
		return vars[i].Term < vars[j].Term
	})

	out := make([]string, 0, min2(len(vars), c.cfg.MaxVariations))
	for _, v := range vars {
		if len(out) >= c.cfg.MaxVariations {
			break
		}
		if v.Term == t {
			continue
		}
		out = append(out, v.Term)
	}
	return out
}

// trigramVariations collects terms by n-gram overlap, using 2-grams for
// short tokens where trigrams are too coarse.
func (c *Corrector) trigramVariations(t string) []Variation {
	var out []Variation
	for v, f := range c.vocab {
		if f < c.cfg.MinTermFrequency {
			continue
		}
		s := AdaptiveTrigramSimilarity(t, v, c.cfg.TrigramSize)
		if s >= c.cfg.TrigramThreshold {
			out = append(out, Variation{Term: v, Score: s, Freq: f})
		}
	}
	return out
}

// jaroWinklerVariations collects terms above the Jaro-Winkler cutoff.
func (c *Corrector) jaroWinklerVariations(t string) []Variation {
	var out []Variation
	for v, f := range c.vocab {
		if f < c.cfg.MinTermFrequency {
			continue
		}
		s := JaroWinklerSimilarity(t, v)
		if s >= c.cfg.JaroWinklerThreshold {
			out = append(out, Variation{Term: v, Score: s, Freq: f})
		}
	}
	return out
}

// levenshteinVariations collects terms within the edit-distance bound,
// prefiltered by length difference and shared bigrams so the full matrix
// only runs on plausible candidates.
func (c *Corrector) levenshteinVariations(t string) []Variation {
	maxDist := c.cfg.LevenshteinMaxDistance
	n := len([]rune(t))
	var out []Variation
	for v, f := range c.vocab {
		if f < c.cfg.MinTermFrequency {
			continue
		}
		if abs(len([]rune(v))-n) > maxDist {
			continue
		}
		if n > 4 && SharedBigramRatio(t, v) < 0.25 {
			continue
		}
		d := Levenshtein(t, v, maxDist)
		if d > maxDist {
			continue
		}
		score := 1 - float64(d)/float64(max2(n, len([]rune(v))))
		out = append(out, Variation{Term: v, Score: score, Freq: f})
	}
	return out
}

// SuggestionType labels where a suggestion came from.
type SuggestionType string

const (
	SuggestionExact     SuggestionType = "exact"
	SuggestionCorrected SuggestionType = "corrected"
	SuggestionPhonetic  SuggestionType = "phonetic"
	SuggestionSplit     SuggestionType = "split"
)

// Suggestion is a ranked correction with an explanation of its origin.
type Suggestion struct {
	Text       string
	Confidence float64
	Type       SuggestionType
	Freq       int
}

// Suggest returns up to k ranked corrections for t with confidence scores.
// Unlike Correct, it reports alternatives even for indexed tokens.
func (c *Corrector) Suggest(t string, k int) []Suggestion {
	t = strings.ToLower(t)
	if k <= 0 {
		k = 5
	}
	var out []Suggestion
	seen := map[string]bool{}

	if c.inVocab(t) {
		out = append(out, Suggestion{Text: t, Confidence: 1, Type: SuggestionExact, Freq: c.freq(t)})
		seen[t] = true
	}
	if fix, ok := QuickCorrection(t); ok && c.inVocab(fix) && !seen[fix] {
		out = append(out, Suggestion{Text: fix, Confidence: 0.95, Type: SuggestionPhonetic, Freq: c.freq(fix)})
		seen[fix] = true
	}
	for _, v := range DigraphVariants(t) {
		if c.inVocab(v) && !seen[v] {
			out = append(out, Suggestion{Text: v, Confidence: 0.9, Type: SuggestionPhonetic, Freq: c.freq(v)})
			seen[v] = true
		}
	}
	if a, b, ok := c.bestSplit(t); ok {
		joined := a + " " + b
		if !seen[joined] {
			out = append(out, Suggestion{Text: joined, Confidence: 0.8, Type: SuggestionSplit, Freq: min2(c.freq(a), c.freq(b))})
			seen[joined] = true
		}
	}
	for _, sc := range c.rankCandidates(t, k) {
		if seen[sc.term] {
			continue
		}
		out = append(out, Suggestion{Text: sc.term, Confidence: sc.consensus, Type: SuggestionCorrected, Freq: sc.freq})
		seen[sc.term] = true
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Freq != out[j].Freq {
			return out[i].Freq > out[j].Freq
		}
		return out[i].Text < out[j].Text
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
