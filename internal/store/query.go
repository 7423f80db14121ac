package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yetidevworks/yetisearch-sub000/geo"
	yserrors "github.com/yetidevworks/yetisearch-sub000/internal/errors"
)

// directColumns are document-table fields filters may reference directly.
var directColumns = map[string]bool{
	"id":        true,
	"type":      true,
	"language":  true,
	"timestamp": true,
}

var jsonPathPattern = regexp.MustCompile(`^[A-Za-z0-9_.\[\]]+$`)

// compiledQuery is one planned query lowered to SQL plus the work that
// must finish in Go.
type compiledQuery struct {
	sql           string
	args          []any
	selectArgsLen int // leading args bound inside the SELECT list
	plan          *spatialPlan
	hasRank       bool
	// resort re-orders the fetched candidate set by distance in memory and
	// applies limit/offset afterwards.
	resort bool
	limit  int
	offset int
}

// defaultCandidateCap sizes the enlarged candidate set fetched before an
// in-memory distance re-sort.
func defaultCandidateCap(limit int) int {
	cap := 20 * limit
	if cap < 200 {
		cap = 200
	}
	if cap > 1000 {
		cap = 1000
	}
	return cap
}

// Search executes a planned query and returns raw scored rows.
func (s *Storage) Search(ctx context.Context, index string, pq *PlannedQuery) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, yserrors.ErrClosed
	}
	meta, err := s.getIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	cq, err := s.compile(meta, pq, false)
	if err != nil {
		return nil, err
	}
	rows, err := s.execute(ctx, cq)
	if err != nil {
		return nil, err
	}
	return s.finish(cq, rows), nil
}

// Count returns the number of rows the planned query matches, ignoring
// pagination. It shares the spatial clause builder with Search so that
// distance clamps behave identically on both paths.
func (s *Storage) Count(ctx context.Context, index string, pq *PlannedQuery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, yserrors.ErrClosed
	}
	meta, err := s.getIndex(ctx, index)
	if err != nil {
		return 0, err
	}

	counted := *pq
	counted.Limit = 0
	counted.Offset = 0
	cq, err := s.compile(meta, &counted, true)
	if err != nil {
		return 0, err
	}

	// Distance predicates that only Go can evaluate force a row scan.
	if cq.plan.goDistance && (cq.plan.radiusM > 0 || cq.plan.maxDistM > 0) {
		rows, err := s.execute(ctx, cq)
		if err != nil {
			return 0, err
		}
		return len(s.finish(cq, rows)), nil
	}

	countSQL := cq.sql
	args := cq.args
	if pq.Match != "" {
		countSQL = fmt.Sprintf(`SELECT COUNT(*) FROM (%s)`, cq.sql)
	} else {
		// Replacing the select list drops any parameters bound inside it.
		countSQL = strings.Replace(cq.sql, selectList(cq), "COUNT(*)", 1)
		args = cq.args[cq.selectArgsLen:]
	}
	stmt, err := s.stmts.get(ctx, countSQL)
	if err != nil {
		return 0, yserrors.Wrap(yserrors.ErrCodeSearchMatch, "prepare count", err)
	}
	var n int
	if err := stmt.QueryRowContext(ctx, args...).Scan(&n); err != nil {
		return 0, yserrors.Wrap(yserrors.ErrCodeSearchMatch, "count", err)
	}
	return n, nil
}

// selectList reproduces the SELECT expression list of a compiled query so
// Count can substitute COUNT(*).
func selectList(cq *compiledQuery) string {
	start := len("SELECT ")
	from := strings.Index(cq.sql, " FROM ")
	return cq.sql[start:from]
}

// compile lowers a planned query into SQL. When counting, pagination and
// ordering are omitted.
func (s *Storage) compile(meta *indexMeta, pq *PlannedQuery, counting bool) (*compiledQuery, error) {
	plan, err := s.buildSpatialPlan(meta, pq.Geo)
	if err != nil {
		return nil, err
	}

	table := quoteIdent(meta.name)
	ftsTable := quoteIdent(meta.name + "_fts")
	hasMatch := pq.Match != ""

	selects := []string{"d.id", "d.content", "d.metadata", "d.language", "d.type", "d.timestamp"}
	var selectArgs []any
	if hasMatch {
		selects = append(selects, s.rankExpr(meta, pq))
	}
	selects = append(selects, plan.selects...)
	selectArgs = append(selectArgs, plan.selectArgs...)

	from := fmt.Sprintf("FROM %s d", table)
	if hasMatch {
		// The FTS table keeps its own name (no alias): MATCH resolves the
		// target by table name.
		if meta.mode == SchemaExternal {
			from += fmt.Sprintf(" JOIN %s ON %s.rowid = d.doc_id", ftsTable, ftsTable)
		} else {
			from += fmt.Sprintf(" JOIN %s ON %s.id = d.id", ftsTable, ftsTable)
		}
	}
	if plan.join != "" {
		from += " " + plan.join
	}

	var where []string
	var whereArgs []any
	if hasMatch {
		where = append(where, fmt.Sprintf("%s MATCH ?", ftsTable))
		whereArgs = append(whereArgs, s.matchExpr(meta, pq))
	}
	if pq.Language != "" {
		where = append(where, "d.language = ?")
		whereArgs = append(whereArgs, pq.Language)
	}
	for _, f := range pq.Filters {
		frag, args, err := filterSQL(f)
		if err != nil {
			return nil, err
		}
		where = append(where, frag)
		whereArgs = append(whereArgs, args...)
	}
	where = append(where, plan.where...)
	whereArgs = append(whereArgs, plan.whereArgs...)

	cq := &compiledQuery{
		plan:    plan,
		hasRank: hasMatch,
		limit:   pq.Limit,
		offset:  pq.Offset,
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selects, ", "))
	b.WriteString(" ")
	b.WriteString(from)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	if counting {
		cq.sql = b.String()
		cq.selectArgsLen = len(selectArgs)
		cq.args = append(selectArgs, whereArgs...)
		return cq, nil
	}

	// k-NN fast path: no text query, order candidates by distance, top k.
	if plan.nearest > 0 && !hasMatch {
		cq.limit = plan.nearest
		cq.offset = 0
		if plan.sqlDistance {
			b.WriteString(" ORDER BY distance ASC")
			b.WriteString(fmt.Sprintf(" LIMIT %d", plan.nearest))
		} else {
			cq.resort = true
			if plan.sortDir == "" {
				plan.sortDir = "asc"
			}
			cap := plan.candidateCap
			if cap <= 0 {
				cap = defaultCandidateCap(plan.nearest)
			}
			b.WriteString(fmt.Sprintf(" LIMIT %d", cap))
		}
		cq.sql = b.String()
		cq.selectArgsLen = len(selectArgs)
		cq.args = append(selectArgs, whereArgs...)
		return cq, nil
	}

	limit := pq.Limit
	if limit <= 0 {
		limit = 20
		cq.limit = limit
	}

	// Distance sort over a text query: fetch an enlarged candidate set by
	// rank and re-sort by distance in memory. The same applies when the
	// distance itself is only computable in Go.
	needResort := plan.sortDir != "" && (hasMatch || plan.goDistance)
	if !needResort && plan.goDistance && (plan.radiusM > 0 || plan.maxDistM > 0) {
		// Radius filtering in Go also needs headroom.
		needResort = true
	}
	if needResort {
		cq.resort = true
		cap := plan.candidateCap
		if cap <= 0 {
			cap = defaultCandidateCap(limit)
		}
		if hasMatch {
			b.WriteString(" ORDER BY rank ASC")
		}
		b.WriteString(fmt.Sprintf(" LIMIT %d", cap))
		cq.sql = b.String()
		cq.selectArgsLen = len(selectArgs)
		cq.args = append(selectArgs, whereArgs...)
		return cq, nil
	}

	orderBy := s.orderBy(pq, plan, hasMatch)
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	b.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	if pq.Offset > 0 {
		b.WriteString(fmt.Sprintf(" OFFSET %d", pq.Offset))
	}
	cq.sql = b.String()
	cq.selectArgsLen = len(selectArgs)
	cq.args = append(selectArgs, whereArgs...)
	return cq, nil
}

// rankExpr selects bm25() with per-column weights in multi-column mode.
// The UNINDEXED id column gets weight zero; unconfigured columns weight 1.
func (s *Storage) rankExpr(meta *indexMeta, pq *PlannedQuery) string {
	ftsTable := quoteIdent(meta.name + "_fts")
	if meta.mode != SchemaLegacy || !meta.options.MultiColumn {
		return fmt.Sprintf("bm25(%s) AS rank", ftsTable)
	}
	weights := []string{"0.0"}
	for _, col := range meta.options.FTSColumns {
		w := 1.0
		if pq.FieldWeights != nil {
			if fw, ok := pq.FieldWeights[col]; ok {
				w = fw
			}
		}
		weights = append(weights, fmt.Sprintf("%g", w))
	}
	return fmt.Sprintf("bm25(%s, %s) AS rank", ftsTable, strings.Join(weights, ", "))
}

// matchExpr applies the optional column restriction to the MATCH string.
func (s *Storage) matchExpr(meta *indexMeta, pq *PlannedQuery) string {
	if len(pq.Fields) == 0 || !meta.options.MultiColumn {
		return pq.Match
	}
	cols := make([]string, 0, len(pq.Fields))
	for _, f := range pq.Fields {
		if identPattern.MatchString(f) {
			cols = append(cols, f)
		}
	}
	if len(cols) == 0 {
		return pq.Match
	}
	return fmt.Sprintf("{%s} : (%s)", strings.Join(cols, " "), pq.Match)
}

// orderBy resolves the effective ordering for the SQL path.
func (s *Storage) orderBy(pq *PlannedQuery, plan *spatialPlan, hasMatch bool) string {
	if len(pq.Sort) > 0 {
		var keys []string
		for _, spec := range pq.Sort {
			keys = append(keys, sortKeySQL(spec, hasMatch))
		}
		return strings.Join(keys, ", ")
	}
	if plan.sortDir != "" && plan.sqlDistance {
		return "distance " + strings.ToUpper(plan.sortDir)
	}
	if hasMatch {
		// bm25 is negative, lower is better.
		return "rank ASC"
	}
	return "d.timestamp DESC, d.id ASC"
}

// sortKeySQL lowers one sort key. "rank" orders by text relevance (desc
// means most relevant first), "distance" by the distance alias; metadata
// paths go through json_extract.
func sortKeySQL(spec SortSpec, hasMatch bool) string {
	dir := strings.ToUpper(spec.Direction)
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	switch {
	case spec.Field == "rank" && hasMatch:
		// Relevance: bm25 values are negative, so "desc" (best first)
		// means ascending bm25.
		if dir == "DESC" {
			return "rank ASC"
		}
		return "rank DESC"
	case spec.Field == "distance":
		return "distance " + dir
	case directColumns[spec.Field]:
		return "d." + spec.Field + " " + dir
	case strings.HasPrefix(spec.Field, "metadata."):
		path := strings.TrimPrefix(spec.Field, "metadata.")
		if jsonPathPattern.MatchString(path) {
			return fmt.Sprintf("json_extract(d.metadata, '$.%s') %s", path, dir)
		}
	}
	return "d.id " + dir
}

// filterSQL lowers one structured filter into a predicate. The operator
// table defines which value shapes each operator accepts.
func filterSQL(f Filter) (string, []any, error) {
	expr, numericCast, err := fieldExpr(f.Field)
	if err != nil {
		return "", nil, err
	}

	switch f.Operator {
	case "=", "!=":
		return fmt.Sprintf("%s %s ?", expr, f.Operator), []any{f.Value}, nil
	case ">", "<", ">=", "<=":
		if numericCast && isNumeric(f.Value) {
			expr = fmt.Sprintf("CAST(%s AS REAL)", expr)
		}
		return fmt.Sprintf("%s %s ?", expr, f.Operator), []any{f.Value}, nil
	case "in":
		values, ok := valueList(f.Value)
		if !ok || len(values) == 0 {
			return "", nil, yserrors.Newf(yserrors.ErrCodeInvalidOperator, "operator in requires a non-empty list for %s", f.Field)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		return fmt.Sprintf("%s IN (%s)", expr, placeholders), values, nil
	case "contains":
		return fmt.Sprintf("%s LIKE ?", expr), []any{fmt.Sprintf("%%%v%%", f.Value)}, nil
	case "exists":
		return fmt.Sprintf("%s IS NOT NULL", expr), nil, nil
	default:
		return "", nil, yserrors.Newf(yserrors.ErrCodeInvalidOperator, "unknown operator %q", f.Operator)
	}
}

// fieldExpr resolves a filter field to a column or json_extract expression.
func fieldExpr(field string) (expr string, numericCast bool, err error) {
	if directColumns[field] {
		return "d." + field, false, nil
	}
	if path, ok := strings.CutPrefix(field, "metadata."); ok {
		if !jsonPathPattern.MatchString(path) {
			return "", false, yserrors.Newf(yserrors.ErrCodeInvalidInput, "invalid metadata path %q", path)
		}
		return fmt.Sprintf("json_extract(d.metadata, '$.%s')", path), true, nil
	}
	return "", false, yserrors.Newf(yserrors.ErrCodeInvalidInput, "unknown filter field %q", field)
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

func valueList(v any) ([]any, bool) {
	switch vs := v.(type) {
	case []any:
		return vs, true
	case []string:
		out := make([]any, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(vs))
		for i, n := range vs {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(vs))
		for i, n := range vs {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// execute runs the compiled SQL and scans rows in select order.
func (s *Storage) execute(ctx context.Context, cq *compiledQuery) ([]Row, error) {
	stmt, err := s.stmts.get(ctx, cq.sql)
	if err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeSearchMatch, "prepare query", err)
	}
	rows, err := stmt.QueryContext(ctx, cq.args...)
	if err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeSearchMatch, "execute query", err)
	}
	defer rows.Close()

	hasCoords := len(cq.plan.selects) > 0
	var out []Row
	for rows.Next() {
		var r Row
		var language, docType sql.NullString
		dest := []any{&r.ID, &r.Content, &r.Metadata, &language, &docType, &r.Timestamp}

		var rank sql.NullFloat64
		if cq.hasRank {
			dest = append(dest, &rank)
		}
		var lat, lng, dist sql.NullFloat64
		if hasCoords {
			dest = append(dest, &lat, &lng)
			if cq.plan.sqlDistance {
				dest = append(dest, &dist)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeSearchMatch, "scan row", err)
		}

		r.Language = language.String
		r.Type = docType.String
		if rank.Valid {
			r.Rank = -rank.Float64
		}
		if lat.Valid && lng.Valid {
			la, ln := lat.Float64, lng.Float64
			r.Lat, r.Lng = &la, &ln
		}
		if dist.Valid {
			d := dist.Float64
			r.Distance = &d
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeSearchMatch, "read rows", err)
	}
	return out, nil
}

// finish completes the Go-side work: planar distances when SQL could not
// compute them, radius filtering, distance re-sort and pagination.
func (s *Storage) finish(cq *compiledQuery, rows []Row) []Row {
	plan := cq.plan

	if plan.goDistance && plan.ref != nil {
		for i := range rows {
			if rows[i].Lat == nil || rows[i].Lng == nil {
				continue
			}
			d := geo.PlanarDistance(*plan.ref, geo.Point{Lat: *rows[i].Lat, Lng: *rows[i].Lng})
			rows[i].Distance = &d
		}
		if plan.radiusM > 0 || plan.maxDistM > 0 {
			cap := plan.radiusM
			if plan.maxDistM > 0 && (cap == 0 || plan.maxDistM < cap) {
				cap = plan.maxDistM
			}
			filtered := rows[:0]
			for _, r := range rows {
				if r.Distance != nil && *r.Distance <= cap {
					filtered = append(filtered, r)
				}
			}
			rows = filtered
		}
	}

	if !cq.resort {
		return rows
	}

	desc := plan.sortDir == "desc"
	sort.SliceStable(rows, func(i, j int) bool {
		di, dj := rows[i].Distance, rows[j].Distance
		switch {
		case di == nil && dj == nil:
			return rows[i].Rank > rows[j].Rank
		case di == nil:
			return false
		case dj == nil:
			return true
		case *di == *dj:
			return rows[i].Rank > rows[j].Rank
		case desc:
			return *di > *dj
		default:
			return *di < *dj
		}
	})

	start := cq.offset
	if start > len(rows) {
		start = len(rows)
	}
	end := len(rows)
	if cq.limit > 0 && start+cq.limit < end {
		end = start + cq.limit
	}
	return rows[start:end]
}
