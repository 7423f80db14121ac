package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"

	yserrors "github.com/yetidevworks/yetisearch-sub000/internal/errors"
)

// metaKeyPrefix registers index names in the global metadata table.
const metaKeyPrefix = "index:"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateIndexName rejects names that cannot be safely embedded in DDL.
func validateIndexName(name string) error {
	if !identPattern.MatchString(name) {
		return yserrors.Newf(yserrors.ErrCodeInvalidInput, "invalid index name %q", name)
	}
	return nil
}

// CreateIndex provisions every table for a named index and persists its
// schema choices. Creating an existing index is a no-op.
func (s *Storage) CreateIndex(ctx context.Context, name string, options IndexOptions) error {
	if err := validateIndexName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return yserrors.ErrClosed
	}
	if _, err := s.getIndex(ctx, name); err == nil {
		return nil
	}

	if len(options.FTSColumns) == 0 {
		options.FTSColumns = []string{"content"}
	}
	for _, col := range options.FTSColumns {
		if !identPattern.MatchString(col) {
			return yserrors.Newf(yserrors.ErrCodeInvalidInput, "invalid content field name %q", col)
		}
	}

	mode := SchemaLegacy
	if s.cfg.ExternalContent {
		mode = SchemaExternal
		// External content mirrors one table column; multi-column FTS is a
		// legacy-mode feature.
		options.MultiColumn = false
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "begin create index", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range s.schemaDDL(name, mode, options) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageSchema, "create index tables", err)
		}
	}

	meta := &indexMeta{name: name, mode: mode, options: options}
	if err := saveIndexMeta(ctx, tx, meta); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "commit create index", err)
	}

	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO yetisearch_metadata(key, value, updated_at)
		VALUES (?, ?, strftime('%s','now'))`, metaKeyPrefix+name, string(mode)); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "register index", err)
	}

	s.indexes[name] = meta
	return nil
}

// schemaDDL builds the CREATE statements for one index in dependency order.
func (s *Storage) schemaDDL(name string, mode SchemaMode, options IndexOptions) []string {
	var ddl []string

	if mode == SchemaExternal {
		ddl = append(ddl, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			doc_id INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			metadata TEXT,
			language TEXT,
			type TEXT NOT NULL DEFAULT 'default',
			timestamp INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL DEFAULT ''
		)`, quoteIdent(name)))
	} else {
		ddl = append(ddl, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT,
			language TEXT,
			type TEXT NOT NULL DEFAULT 'default',
			timestamp INTEGER NOT NULL DEFAULT 0
		)`, quoteIdent(name)))
		ddl = append(ddl, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			string_id TEXT PRIMARY KEY,
			numeric_id INTEGER NOT NULL UNIQUE
		)`, quoteIdent(name+"_id_map")))
	}

	ddl = append(ddl, s.ftsDDL(name, mode, options))

	ddl = append(ddl, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value TEXT
	)`, quoteIdent(name+"_meta")))

	if options.EnableSpatial {
		if s.caps.rtree {
			ddl = append(ddl, fmt.Sprintf(
				`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING rtree(id, minLat, maxLat, minLng, maxLng)`,
				quoteIdent(name+"_spatial")))
		} else {
			// R-tree unavailable: same row shape in an ordinary table,
			// intersection by inequality predicates.
			ddl = append(ddl, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY,
				minLat REAL NOT NULL, maxLat REAL NOT NULL,
				minLng REAL NOT NULL, maxLng REAL NOT NULL
			)`, quoteIdent(name+"_spatial")))
			ddl = append(ddl, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (minLat, maxLat)`,
				quoteIdent(name+"_spatial_lat"), quoteIdent(name+"_spatial")))
		}
	}

	if options.IndexTerms {
		ddl = append(ddl, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			term TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			field TEXT NOT NULL,
			frequency INTEGER NOT NULL,
			positions TEXT,
			PRIMARY KEY (term, doc_id, field)
		)`, quoteIdent(name+"_terms")))
		ddl = append(ddl, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (term)`,
			quoteIdent(name+"_terms_term"), quoteIdent(name+"_terms")))
	}

	return ddl
}

// ftsDDL builds the FTS5 virtual-table statement for the chosen layout.
func (s *Storage) ftsDDL(name string, mode SchemaMode, options IndexOptions) string {
	var parts []string
	if mode == SchemaExternal {
		parts = append(parts, "body")
		parts = append(parts, fmt.Sprintf("content=%s", quoteIdent(name)))
		parts = append(parts, "content_rowid='doc_id'")
	} else {
		parts = append(parts, "id UNINDEXED")
		if options.MultiColumn {
			parts = append(parts, options.FTSColumns...)
		} else {
			parts = append(parts, "content")
		}
	}
	parts = append(parts, `tokenize='unicode61 remove_diacritics 2'`)
	if len(options.Prefix) > 0 {
		sizes := make([]string, len(options.Prefix))
		for i, p := range options.Prefix {
			sizes[i] = fmt.Sprintf("%d", p)
		}
		parts = append(parts, fmt.Sprintf("prefix='%s'", strings.Join(sizes, " ")))
	}
	if options.Detail != "" && options.Detail != "full" {
		parts = append(parts, "detail="+options.Detail)
	}
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s)`,
		quoteIdent(name+"_fts"), strings.Join(parts, ", "))
}

// saveIndexMeta persists the schema choices into X_meta.
func saveIndexMeta(ctx context.Context, tx *sql.Tx, meta *indexMeta) error {
	optJSON, err := json.Marshal(meta.options)
	if err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "encode index options", err)
	}
	table := quoteIdent(meta.name + "_meta")
	for key, value := range map[string]string{
		"mode":    string(meta.mode),
		"options": string(optJSON),
	} {
		stmt := fmt.Sprintf(`INSERT OR REPLACE INTO %s (key, value) VALUES (?, ?)`, table)
		if _, err := tx.ExecContext(ctx, stmt, key, value); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "save index metadata", err)
		}
	}
	return nil
}

// getIndex loads (and caches) an index's persisted schema choices.
func (s *Storage) getIndex(ctx context.Context, name string) (*indexMeta, error) {
	if meta, ok := s.indexes[name]; ok {
		return meta, nil
	}
	if err := validateIndexName(name); err != nil {
		return nil, err
	}

	table := quoteIdent(name + "_meta")
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT key, value FROM %s`, table))
	if err != nil {
		return nil, yserrors.ErrIndexNotFound
	}
	defer rows.Close()

	meta := &indexMeta{name: name, mode: SchemaLegacy, options: DefaultIndexOptions()}
	found := false
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "read index metadata", err)
		}
		found = true
		switch key {
		case "mode":
			meta.mode = SchemaMode(value)
		case "options":
			if err := json.Unmarshal([]byte(value), &meta.options); err != nil {
				return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "decode index options", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "read index metadata", err)
	}
	if !found {
		return nil, yserrors.ErrIndexNotFound
	}
	s.indexes[name] = meta
	return meta, nil
}

// IndexExists reports whether the named index has been created.
func (s *Storage) IndexExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, yserrors.ErrClosed
	}
	_, err := s.getIndex(ctx, name)
	if err == nil {
		return true, nil
	}
	if yserrors.IsCategory(err, yserrors.CategoryInput) || err == yserrors.ErrIndexNotFound {
		return false, nil
	}
	return false, err
}

// ListIndices returns the names of all registered indexes, sorted.
func (s *Storage) ListIndices(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, yserrors.ErrClosed
	}
	return s.listIndicesLocked(ctx)
}

func (s *Storage) listIndicesLocked(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM yetisearch_metadata WHERE key LIKE ?`, metaKeyPrefix+"%")
	if err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "list indices", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "list indices", err)
		}
		names = append(names, strings.TrimPrefix(key, metaKeyPrefix))
	}
	if err := rows.Err(); err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "list indices", err)
	}
	sort.Strings(names)
	return names, nil
}

// auxiliarySuffixes are every table suffix an index may own.
var auxiliarySuffixes = []string{"_fts", "_spatial", "_terms", "_id_map", "_vocab", "_meta"}

// DropIndex removes the index and all auxiliary tables together.
func (s *Storage) DropIndex(ctx context.Context, name string) error {
	if err := validateIndexName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return yserrors.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "begin drop index", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, suffix := range auxiliarySuffixes {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(name+suffix)); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "drop index tables", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(name)); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "drop index table", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM yetisearch_metadata WHERE key = ?`, metaKeyPrefix+name); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "unregister index", err)
	}
	if err := tx.Commit(); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "commit drop index", err)
	}

	delete(s.indexes, name)
	s.stmts.purge()
	s.notifyWrite(name)
	return nil
}

// Clear removes every document from an index but keeps its schema.
func (s *Storage) Clear(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return yserrors.ErrClosed
	}
	meta, err := s.getIndex(ctx, name)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "begin clear", err)
	}
	defer func() { _ = tx.Rollback() }()

	tables := []string{name}
	if meta.mode == SchemaLegacy {
		tables = append(tables, name+"_id_map")
	}
	if meta.options.EnableSpatial {
		tables = append(tables, name+"_spatial")
	}
	if meta.options.IndexTerms {
		tables = append(tables, name+"_terms")
	}
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+quoteIdent(t)); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "clear "+t, err)
		}
	}
	// External-content FTS tables want the special delete-all command;
	// ordinary FTS5 tables take plain DML.
	ftsTable := quoteIdent(name + "_fts")
	var clearFTS string
	if meta.mode == SchemaExternal {
		clearFTS = fmt.Sprintf(`INSERT INTO %s(%s) VALUES('delete-all')`, ftsTable, ftsTable)
	} else {
		clearFTS = `DELETE FROM ` + ftsTable
	}
	if _, err := tx.ExecContext(ctx, clearFTS); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "clear fts", err)
	}
	if err := tx.Commit(); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "commit clear", err)
	}
	s.notifyWrite(name)
	return nil
}

// numericID derives the stable 63-bit spatial key for a string document id
// in legacy mode. FNV-1a keeps it collision-resistant within one index.
func numericID(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
