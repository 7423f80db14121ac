// Package analyzer turns raw text into the case-folded Unicode tokens the
// index and the query planner share. Tokenization and stop-word tables come
// from bleve's analysis chain rather than hand-rolled rules so that query
// tokens segment exactly like the unicode61 tokenizer output they are
// matched against.
package analyzer

import (
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/lang/es"
	"github.com/blevesearch/bleve/v2/analysis/lang/fr"
	"github.com/blevesearch/bleve/v2/analysis/lang/it"
	"github.com/blevesearch/bleve/v2/analysis/lang/nl"
	"github.com/blevesearch/bleve/v2/analysis/lang/pt"
	"github.com/blevesearch/bleve/v2/analysis/lang/ru"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// Analyzer is the text-analysis boundary the core consumes.
type Analyzer interface {
	// Tokenize splits text into case-folded Unicode tokens.
	Tokenize(text string) []string

	// RemoveStopWords drops stop words for the given BCP-47 language.
	// Unknown languages pass tokens through unchanged.
	RemoveStopWords(tokens []string, language string) []string
}

// stopWordSources maps primary language subtags to bleve stop-word tables.
var stopWordSources = map[string][]byte{
	"en": en.EnglishStopWords,
	"fr": fr.FrenchStopWords,
	"de": de.GermanStopWords,
	"es": es.SpanishStopWords,
	"it": it.ItalianStopWords,
	"nl": nl.DutchStopWords,
	"pt": pt.PortugueseStopWords,
	"ru": ru.RussianStopWords,
}

// Default is the standard analyzer: bleve unicode tokenizer + lowercase
// filter, with per-language stop-word maps loaded lazily.
type Default struct {
	tokenizer analysis.Tokenizer
	lowercase *lowercase.LowerCaseFilter
	stopMaps  map[string]analysis.TokenMap
}

// New creates the default analyzer.
func New() *Default {
	return &Default{
		tokenizer: unicode.NewUnicodeTokenizer(),
		lowercase: lowercase.NewLowerCaseFilter(),
		stopMaps:  make(map[string]analysis.TokenMap),
	}
}

// Tokenize implements Analyzer.
func (a *Default) Tokenize(text string) []string {
	stream := a.tokenizer.Tokenize([]byte(text))
	stream = a.lowercase.Filter(stream)

	tokens := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) > 0 {
			tokens = append(tokens, string(tok.Term))
		}
	}
	return tokens
}

// RemoveStopWords implements Analyzer.
func (a *Default) RemoveStopWords(tokens []string, language string) []string {
	tm := a.stopMap(language)
	if tm == nil {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := tm[strings.ToLower(t)]; !stop {
			out = append(out, t)
		}
	}
	return out
}

// stopMap returns the stop-word map for a BCP-47 tag, loading it on first
// use. The primary subtag selects the table ("en-US" → "en").
func (a *Default) stopMap(language string) analysis.TokenMap {
	lang := strings.ToLower(language)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if lang == "" {
		lang = "en"
	}
	if tm, ok := a.stopMaps[lang]; ok {
		return tm
	}
	src, ok := stopWordSources[lang]
	if !ok {
		return nil
	}
	tm := analysis.NewTokenMap()
	if err := tm.LoadBytes(src); err != nil {
		return nil
	}
	a.stopMaps[lang] = tm
	return tm
}
