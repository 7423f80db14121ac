// Package yetisearch is an embedded full-text search library backed by
// SQLite FTS5 with an R-tree spatial index. It indexes structured
// documents and answers ranked queries mixing free text, metadata
// filters, geo constraints, facets and distance-blended scoring, with
// multi-algorithm fuzzy correction of misspelled query tokens.
package yetisearch

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yetidevworks/yetisearch-sub000/internal/analyzer"
	"github.com/yetidevworks/yetisearch-sub000/internal/fuzzy"
	"github.com/yetidevworks/yetisearch-sub000/internal/logging"
	"github.com/yetidevworks/yetisearch-sub000/internal/store"
)

// vocabStaleBatchSize is the batch size at or above which an insert batch
// invalidates the vocabulary cache for its index.
const vocabStaleBatchSize = 100

// Engine is the search engine facade: index lifecycle, document writes,
// query execution and suggestion generation. One engine owns one storage
// handle and runs its operations sequentially; run independent engines
// for read parallelism.
type Engine struct {
	mu sync.RWMutex

	cfg         Config
	storage     *store.Storage
	analyzer    *analyzer.Default
	synonyms    *synonymEngine
	planner     *planner
	processor   *processor
	highlighter *highlighter
	results     *resultCache
	vocab       *vocabCache
	log         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger supplies the engine's logger. Defaults to discarding.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine opens the storage and wires the search pipeline.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, log: logging.Discard()}
	for _, opt := range opts {
		opt(e)
	}

	e.analyzer = analyzer.New()
	storage, err := store.Connect(store.Config{
		Path:            cfg.Storage.Path,
		Driver:          cfg.Storage.Driver,
		ExternalContent: cfg.Storage.ExternalContent,
		ExclusiveLock:   cfg.Storage.ExclusiveLock,
		Tokenizer:       e.analyzer.Tokenize,
		Logger:          e.log,
	})
	if err != nil {
		return nil, err
	}
	e.storage = storage

	e.synonyms = newSynonymEngine(cfg.Search, e.log)
	e.planner = &planner{cfg: cfg.Search, analyzer: e.analyzer, synonyms: e.synonyms}
	e.processor = &processor{cfg: cfg.Search}
	e.highlighter = newHighlighter(cfg.Search)
	e.results = newResultCache(cfg.Search.cacheTTLDuration())
	e.vocab = newVocabCache(cfg.Search.vocabTTLDuration())

	storage.OnWrite(func(index string) {
		e.results.invalidate(index)
	})
	return e, nil
}

// Close releases the storage handle and background watchers.
func (e *Engine) Close() error {
	e.synonyms.close()
	return e.storage.Close()
}

// indexOptions derives the schema choices for new indexes from config.
func (e *Engine) indexOptions() store.IndexOptions {
	opts := store.DefaultIndexOptions()
	if len(e.cfg.Indexer.Fields) > 0 {
		cols := make([]string, 0, len(e.cfg.Indexer.Fields))
		for name := range e.cfg.Indexer.Fields {
			cols = append(cols, name)
		}
		sort.Strings(cols)
		opts.FTSColumns = cols
	}
	opts.MultiColumn = e.cfg.Indexer.FTS.MultiColumn
	opts.Prefix = e.cfg.Indexer.FTS.Prefix
	if e.cfg.Indexer.FTS.Detail != "" {
		opts.Detail = e.cfg.Indexer.FTS.Detail
	}
	opts.IndexTerms = e.cfg.Search.FuzzyAlgorithm == "levenshtein"
	return opts
}

// CreateIndex provisions a named index with the configured layout.
func (e *Engine) CreateIndex(ctx context.Context, name string) error {
	return e.storage.CreateIndex(ctx, name, e.indexOptions())
}

// DropIndex removes an index and all of its auxiliary tables.
func (e *Engine) DropIndex(ctx context.Context, name string) error {
	e.vocab.invalidate(name)
	return e.storage.DropIndex(ctx, name)
}

// IndexExists reports whether the named index has been created.
func (e *Engine) IndexExists(ctx context.Context, name string) (bool, error) {
	return e.storage.IndexExists(ctx, name)
}

// ListIndices returns all index names.
func (e *Engine) ListIndices(ctx context.Context) ([]string, error) {
	return e.storage.ListIndices(ctx)
}

// Clear removes every document from an index, keeping the schema.
func (e *Engine) Clear(ctx context.Context, name string) error {
	e.vocab.invalidate(name)
	return e.storage.Clear(ctx, name)
}

// Insert upserts one document.
func (e *Engine) Insert(ctx context.Context, index string, doc *Document) error {
	return e.storage.Insert(ctx, index, doc.toStore())
}

// InsertBatch upserts documents in one transaction. Large batches also
// invalidate the vocabulary cache for the index.
func (e *Engine) InsertBatch(ctx context.Context, index string, docs []*Document) error {
	lowered := make([]*store.Document, len(docs))
	for i, d := range docs {
		lowered[i] = d.toStore()
	}
	if err := e.storage.InsertBatch(ctx, index, lowered); err != nil {
		return err
	}
	if len(docs) >= vocabStaleBatchSize {
		e.vocab.invalidate(index)
	}
	return nil
}

// Update upserts an existing document; unknown ids fail.
func (e *Engine) Update(ctx context.Context, index string, doc *Document) error {
	return e.storage.Update(ctx, index, doc.toStore())
}

// Delete removes a document by id.
func (e *Engine) Delete(ctx context.Context, index, id string) error {
	return e.storage.Delete(ctx, index, id)
}

// GetDocument fetches one document, or nil when absent.
func (e *Engine) GetDocument(ctx context.Context, index, id string) (*Document, error) {
	sd, err := e.storage.GetDocument(ctx, index, id)
	if err != nil {
		return nil, err
	}
	return fromStore(sd), nil
}

// Optimize compacts the database and merges FTS segments.
func (e *Engine) Optimize(ctx context.Context) error {
	return e.storage.Optimize(ctx)
}

// GetIndexStats summarises one index.
func (e *Engine) GetIndexStats(ctx context.Context, index string) (*store.IndexStats, error) {
	return e.storage.GetIndexStats(ctx, index)
}

// vocabulary returns the index's cached term vocabulary, loading it from
// storage when missing or stale.
func (e *Engine) vocabulary(ctx context.Context, index string) (fuzzy.Vocabulary, error) {
	if vocab, ok := e.vocab.get(index); ok {
		return vocab, nil
	}
	e.mu.RLock()
	minFreq := e.cfg.Search.MinTermFrequency
	maxTerms := e.cfg.Search.MaxIndexedTerms
	e.mu.RUnlock()

	terms, err := e.storage.GetIndexedTerms(ctx, index, minFreq, maxTerms)
	if err != nil {
		return nil, err
	}
	vocab := make(fuzzy.Vocabulary, len(terms))
	for _, tf := range terms {
		vocab[tf.Term] = tf.Docs
	}
	e.vocab.put(index, vocab)
	return vocab, nil
}

// corrector binds a fuzzy corrector to the index vocabulary, or returns
// nil when fuzzy matching is off for this query.
func (e *Engine) corrector(ctx context.Context, index string, q *Query) (*fuzzy.Corrector, error) {
	e.mu.RLock()
	sc := e.cfg.Search
	e.mu.RUnlock()

	enabled := sc.EnableFuzzy
	if q.Fuzzy != nil {
		enabled = *q.Fuzzy
	}
	if !enabled || strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}
	vocab, err := e.vocabulary(ctx, index)
	if err != nil {
		return nil, err
	}
	return fuzzy.NewCorrector(vocab, fuzzy.Config{
		TrigramSize:            sc.TrigramSize,
		TrigramThreshold:       sc.TrigramThreshold,
		JaroWinklerThreshold:   sc.JaroWinklerThreshold,
		LevenshteinMaxDistance: sc.LevenshteinThreshold,
		CorrectionThreshold:    sc.CorrectionThreshold,
		MaxVariations:          sc.MaxFuzzyVariations,
		MinTermFrequency:       sc.MinTermFrequency,
	}), nil
}

// effectiveWeights resolves field weights: query-supplied first, then the
// configured indexer boosts.
func (e *Engine) effectiveWeights(q *Query) map[string]float64 {
	if len(q.FieldWeights) > 0 {
		return q.FieldWeights
	}
	if len(e.cfg.Indexer.Fields) == 0 {
		return nil
	}
	weights := make(map[string]float64)
	for name, fc := range e.cfg.Indexer.Fields {
		if fc.Boost > 0 {
			weights[name] = fc.Boost
		}
	}
	if len(weights) == 0 {
		return nil
	}
	return weights
}

// Search executes one query against one index.
func (e *Engine) Search(ctx context.Context, index string, q *Query) (*SearchResults, error) {
	started := time.Now()

	canonical := q.canonical()
	if !q.BypassCache {
		if cached, ok := e.results.get(index, canonical); ok {
			return cached, nil
		}
	}

	weighted := *q
	weighted.FieldWeights = e.effectiveWeights(q)

	corrector, err := e.corrector(ctx, index, &weighted)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	sc := e.cfg.Search
	multiColumn := e.cfg.Indexer.FTS.MultiColumn
	hasPrefix := len(e.cfg.Indexer.FTS.Prefix) > 0
	e.mu.RUnlock()

	ps, err := e.planner.plan(&weighted, planContext{
		corrector:   corrector,
		multiColumn: multiColumn,
		hasPrefix:   hasPrefix,
	})
	if err != nil {
		return nil, err
	}

	rows, err := e.executeRows(ctx, index, ps, sc, multiColumn)
	if err != nil {
		return nil, err
	}

	results := e.processor.process(rows, ps, &weighted, multiColumn)
	if q.UniqueByRoute {
		results = dedupeByRoute(results)
	}
	if sc.EnableHighlighting && ps.pq.Match != "" {
		tokens := ps.allMatchTokens()
		for i := range results {
			fields := flattenFields(results[i].Content)
			results[i].Highlights = e.highlighter.highlightFields(fields, tokens)
		}
	}

	out := &SearchResults{Results: results}
	if q.UniqueByRoute {
		out.Total = len(results)
	} else {
		total, err := e.storage.Count(ctx, index, ps.pq)
		if err != nil {
			return nil, err
		}
		out.Total = total
	}
	if len(q.Facets) > 0 {
		out.Facets = e.computeFacets(ctx, index, &weighted, ps)
	}
	if len(results) == 0 && sc.EnableSuggestions && strings.TrimSpace(q.Text) != "" {
		if suggestions := e.GenerateSuggestions(ctx, index, q.Text, 1); len(suggestions) > 0 {
			out.Suggestion = suggestions[0].Text
		}
	}
	out.Took = time.Since(started)

	if !q.BypassCache {
		e.results.put(index, canonical, out)
	}
	return out, nil
}

// executeRows runs the planned query, optionally in two passes: primary
// fields first, backfilled from the full-field pass.
func (e *Engine) executeRows(ctx context.Context, index string, ps *plannedSearch, sc SearchConfig, multiColumn bool) ([]store.Row, error) {
	if !sc.TwoPassSearch || !multiColumn || len(sc.PrimaryFields) == 0 || ps.pq.Match == "" || len(ps.pq.Fields) > 0 {
		return e.storage.Search(ctx, index, ps.pq)
	}

	first := *ps.pq
	first.Fields = sc.PrimaryFields
	first.Limit = sc.PrimaryFieldLimit
	if first.Limit <= 0 {
		first.Limit = 5
	}
	first.Offset = 0
	primary, err := e.storage.Search(ctx, index, &first)
	if err != nil {
		return nil, err
	}

	rest, err := e.storage.Search(ctx, index, ps.pq)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(primary))
	out := make([]store.Row, 0, len(primary)+len(rest))
	for _, row := range primary {
		seen[row.ID] = true
		out = append(out, row)
	}
	limit := ps.pq.Limit
	if limit <= 0 {
		limit = 20
	}
	for _, row := range rest {
		if len(out) >= limit {
			break
		}
		if !seen[row.ID] {
			out = append(out, row)
		}
	}
	return out, nil
}

// Count returns how many documents match the query, ignoring pagination.
func (e *Engine) Count(ctx context.Context, index string, q *Query) (int, error) {
	weighted := *q
	weighted.FieldWeights = e.effectiveWeights(q)
	corrector, err := e.corrector(ctx, index, &weighted)
	if err != nil {
		return 0, err
	}
	e.mu.RLock()
	multiColumn := e.cfg.Indexer.FTS.MultiColumn
	hasPrefix := len(e.cfg.Indexer.FTS.Prefix) > 0
	e.mu.RUnlock()

	ps, err := e.planner.plan(&weighted, planContext{
		corrector:   corrector,
		multiColumn: multiColumn,
		hasPrefix:   hasPrefix,
	})
	if err != nil {
		return 0, err
	}
	return e.storage.Count(ctx, index, ps.pq)
}

// SearchMultiple fans one query out over several indexes in parallel and
// merges the results by score. Each hit is attributed to its index.
func (e *Engine) SearchMultiple(ctx context.Context, indexes []string, q *Query) (*SearchResults, error) {
	started := time.Now()
	results := make([]*SearchResults, len(indexes))

	g, gctx := errgroup.WithContext(ctx)
	for i, index := range indexes {
		g.Go(func() error {
			r, err := e.Search(gctx, index, q)
			if err != nil {
				return err
			}
			for j := range r.Results {
				r.Results[j].Index = index
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &SearchResults{}
	for _, r := range results {
		merged.Results = append(merged.Results, r.Results...)
		merged.Total += r.Total
	}
	sort.SliceStable(merged.Results, func(i, j int) bool {
		return merged.Results[i].Score > merged.Results[j].Score
	})
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(merged.Results) > limit {
		merged.Results = merged.Results[:limit]
	}
	merged.Took = time.Since(started)
	return merged, nil
}

// UpdateConfig applies dotted-key overrides (e.g. "search.min_score") and
// invalidates the vocabulary and result caches.
func (e *Engine) UpdateConfig(overrides map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, value := range overrides {
		if err := applyOverride(&e.cfg, key, value); err != nil {
			return err
		}
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	// Rebuild the pieces that bake config in.
	e.synonyms.close()
	e.synonyms = newSynonymEngine(e.cfg.Search, e.log)
	e.planner = &planner{cfg: e.cfg.Search, analyzer: e.analyzer, synonyms: e.synonyms}
	e.processor = &processor{cfg: e.cfg.Search}
	e.highlighter = newHighlighter(e.cfg.Search)
	e.results = newResultCache(e.cfg.Search.cacheTTLDuration())
	e.vocab.clear()
	return nil
}
