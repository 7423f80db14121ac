package yetisearch

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yetidevworks/yetisearch-sub000/internal/fuzzy"
)

// resultCacheSize bounds the per-engine query result cache.
const resultCacheSize = 100

// cachedResults is one result-cache entry with its expiry.
type cachedResults struct {
	results *SearchResults
	expires time.Time
}

// resultCache caches final SearchResults by (index, canonical query).
// Any write to an index invalidates that index's entries.
type resultCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, cachedResults]
	ttl   time.Duration
}

func newResultCache(ttl time.Duration) *resultCache {
	cache, _ := lru.New[string, cachedResults](resultCacheSize)
	return &resultCache{cache: cache, ttl: ttl}
}

func cacheKey(index, canonical string) string {
	return index + "\x00" + canonical
}

func (c *resultCache) get(index, canonical string) (*SearchResults, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache.Get(cacheKey(index, canonical))
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		c.cache.Remove(cacheKey(index, canonical))
		return nil, false
	}
	return entry.results, true
}

func (c *resultCache) put(index, canonical string, results *SearchResults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(cacheKey(index, canonical), cachedResults{
		results: results,
		expires: time.Now().Add(c.ttl),
	})
}

// invalidate drops every cached entry belonging to one index.
func (c *resultCache) invalidate(index string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := index + "\x00"
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
		}
	}
}

// vocabEntry is one cached vocabulary snapshot.
type vocabEntry struct {
	vocab    fuzzy.Vocabulary
	loadedAt time.Time
}

// vocabCache holds per-index vocabulary snapshots with a TTL. Writes past
// the staleness threshold and UpdateConfig both clear it.
type vocabCache struct {
	mu      sync.Mutex
	entries map[string]vocabEntry
	ttl     time.Duration
}

func newVocabCache(ttl time.Duration) *vocabCache {
	return &vocabCache{entries: make(map[string]vocabEntry), ttl: ttl}
}

func (c *vocabCache) get(index string) (fuzzy.Vocabulary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[index]
	if !ok || time.Since(entry.loadedAt) > c.ttl {
		delete(c.entries, index)
		return nil, false
	}
	return entry.vocab, true
}

func (c *vocabCache) put(index string, vocab fuzzy.Vocabulary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[index] = vocabEntry{vocab: vocab, loadedAt: time.Now()}
}

func (c *vocabCache) invalidate(index string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, index)
}

func (c *vocabCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]vocabEntry)
}
