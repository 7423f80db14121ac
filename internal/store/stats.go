package store

import (
	"context"
	"fmt"
	"os"

	yserrors "github.com/yetidevworks/yetisearch-sub000/internal/errors"
)

// GetIndexStats summarises one index: row counts across the document,
// spatial and vocabulary tables plus the database size on disk.
func (s *Storage) GetIndexStats(ctx context.Context, index string) (*IndexStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, yserrors.ErrClosed
	}
	meta, err := s.getIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	stats := &IndexStats{Name: index, Mode: meta.mode}

	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(meta.name))).
		Scan(&stats.DocumentCount); err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "count documents", err)
	}

	if meta.options.EnableSpatial {
		if err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(meta.name+"_spatial"))).
			Scan(&stats.SpatialCount); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "count spatial rows", err)
		}
	}

	if meta.options.IndexTerms {
		if err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(DISTINCT term) FROM %s`, quoteIdent(meta.name+"_terms"))).
			Scan(&stats.TermCount); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeStorageRead, "count terms", err)
		}
	} else {
		vocab := quoteIdent(meta.name + "_vocab")
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5vocab(%s, 'row')`,
			vocab, quoteIdent(meta.name+"_fts"))); err == nil {
			_ = s.db.QueryRowContext(ctx,
				fmt.Sprintf(`SELECT COUNT(*) FROM %s`, vocab)).Scan(&stats.TermCount)
		}
	}

	if s.cfg.Path != "" {
		if info, err := os.Stat(s.cfg.Path); err == nil {
			stats.SizeBytes = info.Size()
		}
	}
	return stats, nil
}
