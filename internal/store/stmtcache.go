package store

import (
	"context"
	"database/sql"

	lru "github.com/hashicorp/golang-lru/v2"
)

// stmtCache is a bounded LRU of prepared statements keyed by SQL text.
// Owned by one storage handle; never shared.
type stmtCache struct {
	db    *sql.DB
	cache *lru.Cache[string, *sql.Stmt]
}

func newStmtCache(db *sql.DB, size int) *stmtCache {
	cache, _ := lru.NewWithEvict[string, *sql.Stmt](size, func(_ string, stmt *sql.Stmt) {
		_ = stmt.Close()
	})
	return &stmtCache{db: db, cache: cache}
}

// get returns a prepared statement for the SQL, preparing and caching it
// on first use. Least-recently-used statements are closed on eviction.
func (c *stmtCache) get(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := c.cache.Get(query); ok {
		return stmt, nil
	}
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(query, stmt)
	return stmt, nil
}

// purge closes every cached statement.
func (c *stmtCache) purge() {
	c.cache.Purge()
}
