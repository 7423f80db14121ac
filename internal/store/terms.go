package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	yserrors "github.com/yetidevworks/yetisearch-sub000/internal/errors"
)

// tokenize applies the configured tokenizer, falling back to a lowercase
// whitespace split.
func (s *Storage) tokenize(text string) []string {
	if s.cfg.Tokenizer != nil {
		return s.cfg.Tokenizer(text)
	}
	return strings.Fields(strings.ToLower(text))
}

// reindexTerms rewrites the X_terms rows for one document: per term and
// field, its frequency and token positions.
func (s *Storage) reindexTerms(ctx context.Context, tx *sql.Tx, meta *indexMeta, docID string, fields map[string]string) error {
	table := quoteIdent(meta.name + "_terms")
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE doc_id = ?`, table), docID); err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "clear term rows", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (term, doc_id, field, frequency, positions) VALUES (?, ?, ?, ?, ?)`, table))
	if err != nil {
		return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "prepare term insert", err)
	}
	defer stmt.Close()

	for field, text := range fields {
		type termStat struct {
			freq      int
			positions []int
		}
		stats := make(map[string]*termStat)
		for pos, term := range s.tokenize(text) {
			st := stats[term]
			if st == nil {
				st = &termStat{}
				stats[term] = st
			}
			st.freq++
			st.positions = append(st.positions, pos)
		}
		for term, st := range stats {
			positions, _ := json.Marshal(st.positions)
			if _, err := stmt.ExecContext(ctx, term, docID, field, st.freq, string(positions)); err != nil {
				return yserrors.Wrap(yserrors.ErrCodeStorageWrite, "insert term row", err)
			}
		}
	}
	return nil
}

// GetIndexedTerms returns the vocabulary of an index: distinct terms with
// their document frequency, most frequent first. It prefers the X_terms
// table and falls back to the fts5vocab row view.
func (s *Storage) GetIndexedTerms(ctx context.Context, index string, minFrequency, limit int) ([]TermFrequency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, yserrors.ErrClosed
	}
	meta, err := s.getIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	if minFrequency < 1 {
		minFrequency = 1
	}
	if limit <= 0 {
		limit = 10000
	}

	var query string
	if meta.options.IndexTerms {
		query = fmt.Sprintf(`SELECT term, COUNT(DISTINCT doc_id) AS docs FROM %s
			GROUP BY term HAVING docs >= ? ORDER BY docs DESC, term LIMIT ?`,
			quoteIdent(meta.name+"_terms"))
	} else {
		vocab := quoteIdent(meta.name + "_vocab")
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5vocab(%s, 'row')`,
			vocab, quoteIdent(meta.name+"_fts"))); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeStorageSchema, "create vocab view", err)
		}
		query = fmt.Sprintf(`SELECT term, doc FROM %s WHERE doc >= ? ORDER BY doc DESC, term LIMIT ?`, vocab)
	}

	stmt, err := s.stmts.get(ctx, query)
	if err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "prepare vocabulary query", err)
	}
	rows, err := stmt.QueryContext(ctx, minFrequency, limit)
	if err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "read vocabulary", err)
	}
	defer rows.Close()

	var out []TermFrequency
	for rows.Next() {
		var tf TermFrequency
		if err := rows.Scan(&tf.Term, &tf.Docs); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "scan vocabulary", err)
		}
		out = append(out, tf)
	}
	return out, yserrors.Wrap(yserrors.ErrCodeStorageRead, "read vocabulary", rows.Err())
}
