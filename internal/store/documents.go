package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yetidevworks/yetisearch-sub000/geo"
	yserrors "github.com/yetidevworks/yetisearch-sub000/internal/errors"
)

// Insert upserts one document and all of its auxiliary rows atomically.
func (s *Storage) Insert(ctx context.Context, index string, doc *Document) error {
	return s.InsertBatch(ctx, index, []*Document{doc})
}

// InsertBatch upserts documents in one transaction. A failing document
// rolls the whole batch back.
func (s *Storage) InsertBatch(ctx context.Context, index string, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return yserrors.ErrClosed
	}
	meta, err := s.getIndex(ctx, index)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "begin insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		if doc.ID == "" {
			return yserrors.New(yserrors.ErrCodeInvalidInput, "document id is required")
		}
		if err := s.upsertOne(ctx, tx, meta, doc); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "commit insert", err)
	}
	s.notifyWrite(index)
	return nil
}

// Update is upsert by id; the document must already exist.
func (s *Storage) Update(ctx context.Context, index string, doc *Document) error {
	s.mu.Lock()
	existing, err := s.documentExists(ctx, index, doc.ID)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !existing {
		return yserrors.ErrDocumentNotFound
	}
	return s.Insert(ctx, index, doc)
}

func (s *Storage) documentExists(ctx context.Context, index, id string) (bool, error) {
	meta, err := s.getIndex(ctx, index)
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, quoteIdent(meta.name)), id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "check document", err)
}

// upsertOne writes the document row, FTS row, spatial row, term rows and
// id mapping inside the caller's transaction.
func (s *Storage) upsertOne(ctx context.Context, tx *sql.Tx, meta *indexMeta, doc *Document) error {
	docType := doc.Type
	if docType == "" {
		docType = "default"
	}

	fields := flattenContent(doc.Content)
	concatenated := concatFields(fields, meta.options.FTSColumns)

	contentJSON, err := json.Marshal(doc.Content)
	if err != nil {
		return yserrors.Wrap(yserrors.ErrCodeInvalidInput, "encode content", err)
	}
	metadataJSON, err := s.encodeMetadata(doc, meta.options.EnableSpatial)
	if err != nil {
		return err
	}

	table := quoteIdent(meta.name)
	ftsTable := quoteIdent(meta.name + "_fts")

	if meta.mode == SchemaExternal {
		// Remove the stale FTS row first; external content tables need the
		// old row text to unindex it.
		var oldID int64
		var oldBody string
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT doc_id, body FROM %s WHERE id = ?`, table), doc.ID).
			Scan(&oldID, &oldBody)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return yserrors.Wrap(yserrors.ErrCodeStorageRead, "load existing document", err)
		default:
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s(%s, rowid, body) VALUES('delete', ?, ?)`, ftsTable, ftsTable),
				oldID, oldBody); err != nil {
				return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "unindex document", err)
			}
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, content, metadata, language, type, timestamp, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content, metadata = excluded.metadata,
				language = excluded.language, type = excluded.type,
				timestamp = excluded.timestamp, body = excluded.body`, table),
			doc.ID, string(contentJSON), metadataJSON, doc.Language, docType, doc.Timestamp, concatenated); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "upsert document", err)
		}

		var docID int64
		if err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT doc_id FROM %s WHERE id = ?`, table), doc.ID).Scan(&docID); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageRead, "resolve document pk", err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s(rowid, body) VALUES (?, ?)`, ftsTable),
			docID, concatenated); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "index document", err)
		}
		return s.upsertAuxiliary(ctx, tx, meta, doc, fields, docID)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, content, metadata, language, type, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content, metadata = excluded.metadata,
			language = excluded.language, type = excluded.type,
			timestamp = excluded.timestamp`, table),
		doc.ID, string(contentJSON), metadataJSON, doc.Language, docType, doc.Timestamp); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "upsert document", err)
	}

	// FTS5 has no REPLACE; delete then insert.
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, ftsTable), doc.ID); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "unindex document", err)
	}
	if meta.options.MultiColumn {
		cols := []string{"id"}
		placeholders := []string{"?"}
		args := []any{doc.ID}
		for _, col := range meta.options.FTSColumns {
			cols = append(cols, quoteIdent(col))
			placeholders = append(placeholders, "?")
			args = append(args, fields[col])
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			ftsTable, strings.Join(cols, ", "), strings.Join(placeholders, ", ")), args...); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "index document", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, content) VALUES (?, ?)`, ftsTable),
			doc.ID, concatenated); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "index document", err)
		}
	}

	numID := numericID(doc.ID)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR REPLACE INTO %s (string_id, numeric_id) VALUES (?, ?)`,
			quoteIdent(meta.name+"_id_map")), doc.ID, numID); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "map document id", err)
	}
	return s.upsertAuxiliary(ctx, tx, meta, doc, fields, numID)
}

// upsertAuxiliary maintains the spatial row and term vocabulary for one
// document. spatialKey is the numeric id (legacy hash or external pk).
func (s *Storage) upsertAuxiliary(ctx context.Context, tx *sql.Tx, meta *indexMeta, doc *Document, fields map[string]string, spatialKey int64) error {
	if meta.options.EnableSpatial {
		spatialTable := quoteIdent(meta.name + "_spatial")
		bounds, hasGeo := documentBounds(doc)
		if hasGeo {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(
				`INSERT OR REPLACE INTO %s (id, minLat, maxLat, minLng, maxLng) VALUES (?, ?, ?, ?, ?)`,
				spatialTable), spatialKey, bounds.South, bounds.North, bounds.West, bounds.East); err != nil {
				return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "upsert spatial row", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, spatialTable), spatialKey); err != nil {
				return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "delete spatial row", err)
			}
		}
	}

	if meta.options.IndexTerms {
		if err := s.reindexTerms(ctx, tx, meta, doc.ID, fields); err != nil {
			return err
		}
	}
	return nil
}

// documentBounds resolves the stored bbox: explicit bounds win, a point
// degenerates to min = max.
func documentBounds(doc *Document) (geo.Bounds, bool) {
	if doc.GeoBounds != nil {
		return *doc.GeoBounds, true
	}
	if doc.Geo != nil {
		return geo.PointBounds(*doc.Geo), true
	}
	return geo.Bounds{}, false
}

// encodeMetadata serialises metadata, embedding the coordinates as JSON
// fields when the index has no spatial table or the runtime lacks R-tree or
// math support, so that JSON-path expressions can stand in for the spatial
// columns.
func (s *Storage) encodeMetadata(doc *Document, spatialTable bool) (string, error) {
	md := doc.Metadata
	if (!spatialTable || !s.caps.rtree || !s.caps.mathFuncs) && (doc.Geo != nil || doc.GeoBounds != nil) {
		md = make(map[string]any, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			md[k] = v
		}
		if bounds, ok := documentBounds(doc); ok {
			center := bounds.Center()
			md["_lat"] = center.Lat
			md["_lng"] = center.Lng
		}
	}
	if md == nil {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", yserrors.Wrap(yserrors.ErrCodeInvalidInput, "encode metadata", err)
	}
	return string(b), nil
}

// Delete removes a document and every auxiliary row atomically. Deleting
// an unknown id is a no-op.
func (s *Storage) Delete(ctx context.Context, index, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return yserrors.ErrClosed
	}
	meta, err := s.getIndex(ctx, index)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "begin delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	table := quoteIdent(meta.name)
	ftsTable := quoteIdent(meta.name + "_fts")
	var spatialKey int64
	exists := true

	if meta.mode == SchemaExternal {
		var body string
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT doc_id, body FROM %s WHERE id = ?`, table), id).
			Scan(&spatialKey, &body)
		switch {
		case err == sql.ErrNoRows:
			exists = false
		case err != nil:
			return yserrors.Wrap(yserrors.ErrCodeStorageRead, "load document", err)
		default:
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s(%s, rowid, body) VALUES('delete', ?, ?)`, ftsTable, ftsTable),
				spatialKey, body); err != nil {
				return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "unindex document", err)
			}
		}
	} else {
		spatialKey = numericID(id)
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, ftsTable), id); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "unindex document", err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE string_id = ?`, quoteIdent(meta.name+"_id_map")), id); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "unmap document id", err)
		}
	}

	if exists {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
			return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "delete document", err)
		}
		if meta.options.EnableSpatial {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, quoteIdent(meta.name+"_spatial")), spatialKey); err != nil {
				return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "delete spatial row", err)
			}
		}
		if meta.options.IndexTerms {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE doc_id = ?`, quoteIdent(meta.name+"_terms")), id); err != nil {
				return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "delete term rows", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "commit delete", err)
	}
	s.notifyWrite(index)
	return nil
}

// GetDocument fetches one document by id, or nil when absent.
func (s *Storage) GetDocument(ctx context.Context, index, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, yserrors.ErrClosed
	}
	meta, err := s.getIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	var contentJSON, metadataJSON string
	var language, docType sql.NullString
	var timestamp int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT content, metadata, language, type, timestamp FROM %s WHERE id = ?`,
		quoteIdent(meta.name)), id).
		Scan(&contentJSON, &metadataJSON, &language, &docType, &timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "read document", err)
	}

	doc := &Document{
		ID:        id,
		Language:  language.String,
		Type:      docType.String,
		Timestamp: timestamp,
	}
	if err := json.Unmarshal([]byte(contentJSON), &doc.Content); err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "decode content", err)
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "decode metadata", err)
		}
	}
	return doc, nil
}

// flattenContent lowers the nested content mapping into field → text.
// Nested mappings flatten depth-first with values joined by spaces.
func flattenContent(content map[string]any) map[string]string {
	out := make(map[string]string, len(content))
	for field, value := range content {
		out[field] = flattenValue(value)
	}
	return out
}

func flattenValue(value any) string {
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
			if s := flattenValue(v[k]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := flattenValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// concatFields joins field text for single-column storage: configured
// columns first in order, then any remaining fields sorted by name.
func concatFields(fields map[string]string, configured []string) string {
	var parts []string
	seen := make(map[string]bool, len(configured))
	for _, col := range configured {
		seen[col] = true
		if text := fields[col]; text != "" {
			parts = append(parts, text)
		}
	}
	rest := make([]string, 0, len(fields))
	for field := range fields {
		if !seen[field] {
			rest = append(rest, field)
		}
	}
	sort.Strings(rest)
	for _, field := range rest {
		if text := fields[field]; text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
