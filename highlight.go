package yetisearch

import (
	"sort"
	"strings"
)

// highlighter extracts snippets around matches and wraps matched tokens in
// the configured tags.
type highlighter struct {
	openTag       string
	closeTag      string
	snippetLength int
}

func newHighlighter(cfg SearchConfig) *highlighter {
	h := &highlighter{
		openTag:       cfg.HighlightTag,
		closeTag:      cfg.HighlightTagClose,
		snippetLength: cfg.SnippetLength,
	}
	if h.openTag == "" {
		h.openTag = "<mark>"
	}
	if h.closeTag == "" {
		h.closeTag = "</mark>"
	}
	if h.snippetLength <= 0 {
		h.snippetLength = 160
	}
	return h
}

// highlightFields produces a snippet for every field containing a match.
// Tokens are cleaned of FTS operators and sorted longest first so shorter
// tokens never nest inside an already-wrapped span.
func (h *highlighter) highlightFields(fields map[string]string, tokens []string) map[string]string {
	cleaned := cleanTokens(tokens)
	if len(cleaned) == 0 {
		return nil
	}

	out := make(map[string]string)
	for field, text := range fields {
		if text == "" {
			continue
		}
		if snippet, ok := h.highlight(text, cleaned); ok {
			out[field] = snippet
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// highlight windows the text around the earliest match and wraps every
// token occurrence (including simple "+s" plurals) inside the window.
func (h *highlighter) highlight(text string, tokens []string) (string, bool) {
	lower := strings.ToLower(text)

	earliest := -1
	for _, t := range tokens {
		for _, form := range []string{t, t + "s"} {
			if idx := indexWord(lower, form); idx >= 0 && (earliest < 0 || idx < earliest) {
				earliest = idx
			}
		}
	}
	if earliest < 0 {
		return "", false
	}

	start, end, leading, trailing := window(text, earliest, h.snippetLength)
	snippet := text[start:end]
	snippetLower := lower[start:end]

	type span struct{ from, to int }
	var spans []span
	occupied := func(from, to int) bool {
		for _, s := range spans {
			if from < s.to && to > s.from {
				return true
			}
		}
		return false
	}

	for _, t := range tokens {
		for _, form := range []string{t, t + "s"} {
			searchFrom := 0
			for {
				idx := indexWordFrom(snippetLower, form, searchFrom)
				if idx < 0 {
					break
				}
				if !occupied(idx, idx+len(form)) {
					spans = append(spans, span{idx, idx + len(form)})
				}
				searchFrom = idx + len(form)
			}
		}
	}
	if len(spans) == 0 {
		return "", false
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].from < spans[j].from })

	var b strings.Builder
	if leading {
		b.WriteString("…")
	}
	prev := 0
	for _, s := range spans {
		b.WriteString(snippet[prev:s.from])
		b.WriteString(h.openTag)
		b.WriteString(snippet[s.from:s.to])
		b.WriteString(h.closeTag)
		prev = s.to
	}
	b.WriteString(snippet[prev:])
	if trailing {
		b.WriteString("…")
	}
	return b.String(), true
}

// window centres a snippet of roughly length chars on the match position,
// snapping both edges to word boundaries.
func window(text string, matchAt, length int) (start, end int, leading, trailing bool) {
	if len(text) <= length {
		return 0, len(text), false, false
	}
	start = matchAt - length/3
	if start < 0 {
		start = 0
	}
	end = start + length
	if end > len(text) {
		end = len(text)
		start = end - length
	}
	// Snap to word boundaries.
	for start > 0 && isWordRune(rune(text[start])) && isWordRune(rune(text[start-1])) {
		start++
	}
	for end < len(text) && isWordRune(rune(text[end-1])) && isWordRune(rune(text[end])) {
		end--
	}
	return start, end, start > 0, end < len(text)
}

// cleanTokens strips FTS syntax (quotes, stars, parens) and drops
// operators, longest token first.
func cleanTokens(tokens []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tokens {
		t = strings.ToLower(strings.Trim(t, `"*()`))
		if t == "" || isFTSKeyword(t) || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// indexWord finds the first word-boundary occurrence of w.
func indexWord(text, w string) int {
	return indexWordFrom(text, w, 0)
}

func indexWordFrom(text, w string, from int) int {
	if w == "" || from >= len(text) {
		return -1
	}
	for {
		i := strings.Index(text[from:], w)
		if i < 0 {
			return -1
		}
		i += from
		before := i == 0 || !isWordRune(rune(text[i-1]))
		afterIdx := i + len(w)
		after := afterIdx >= len(text) || !isWordRune(rune(text[afterIdx]))
		if before && after {
			return i
		}
		from = i + 1
		if from >= len(text) {
			return -1
		}
	}
}
