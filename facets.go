package yetisearch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yetidevworks/yetisearch-sub000/geo"
	"github.com/yetidevworks/yetisearch-sub000/internal/store"
)

// facetScanLimit caps the row scan behind a facet computation.
const facetScanLimit = 10000

// computeFacets builds every requested histogram by re-issuing the
// filtered query. A failing facet is logged and skipped; it never fails
// the search (soft failure).
func (e *Engine) computeFacets(ctx context.Context, index string, q *Query, ps *plannedSearch) map[string][]FacetValue {
	out := make(map[string][]FacetValue, len(q.Facets))
	for _, req := range q.Facets {
		var values []FacetValue
		var err error
		if req.Field == "distance" {
			values, err = e.distanceFacet(ctx, index, req, ps)
		} else {
			values, err = e.valueFacet(ctx, index, req, ps)
		}
		if err != nil {
			e.log.Warn("facet computation failed", "index", index, "field", req.Field, "error", err)
			continue
		}
		out[req.Field] = values
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// valueFacet histograms a metadata path or direct column over the full
// filtered result set.
func (e *Engine) valueFacet(ctx context.Context, index string, req FacetRequest, ps *plannedSearch) ([]FacetValue, error) {
	scan := *ps.pq
	scan.Limit = facetScanLimit
	scan.Offset = 0
	scan.Sort = nil
	rows, err := e.storage.Search(ctx, index, &scan)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	path := strings.TrimPrefix(req.Field, "metadata.")
	direct := !strings.HasPrefix(req.Field, "metadata.")
	for _, row := range rows {
		switch {
		case direct && req.Field == "type":
			counts[row.Type]++
		case direct && req.Field == "language":
			counts[row.Language]++
		default:
			var md map[string]any
			if row.Metadata == "" {
				continue
			}
			if err := json.Unmarshal([]byte(row.Metadata), &md); err != nil {
				continue
			}
			for _, v := range facetValues(lookupPath(md, path)) {
				counts[v]++
			}
		}
	}

	values := make([]FacetValue, 0, len(counts))
	minCount := req.MinCount
	if minCount < 1 {
		minCount = 1
	}
	for v, n := range counts {
		if v == "" || n < minCount {
			continue
		}
		values = append(values, FacetValue{Value: v, Count: n})
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Value < values[j].Value
	})
	if req.Limit > 0 && len(values) > req.Limit {
		values = values[:req.Limit]
	}
	return values, nil
}

// distanceFacet bins documents by distance thresholds in the requested
// units, using the same query with a distance-sort geo block.
func (e *Engine) distanceFacet(ctx context.Context, index string, req FacetRequest, ps *plannedSearch) ([]FacetValue, error) {
	if len(req.Ranges) == 0 {
		return nil, fmt.Errorf("distance facet requires ranges")
	}
	if ps.pq.Geo == nil {
		return nil, fmt.Errorf("distance facet requires a geo reference point")
	}

	scan := *ps.pq
	scan.Limit = facetScanLimit
	scan.Offset = 0
	scan.Sort = nil
	geoBlock := *ps.pq.Geo
	if geoBlock.DistanceSort == nil {
		var from *geo.Point
		if geoBlock.Near != nil {
			from = &geoBlock.Near.Point
		}
		if from == nil {
			return nil, fmt.Errorf("distance facet requires a geo reference point")
		}
		geoBlock.DistanceSort = &store.DistanceSort{From: *from, Direction: "asc"}
	}
	scan.Geo = &geoBlock

	rows, err := e.storage.Search(ctx, index, &scan)
	if err != nil {
		return nil, err
	}

	unit, err := geo.ParseUnit(req.Units)
	if err != nil {
		return nil, err
	}
	thresholds := append([]float64(nil), req.Ranges...)
	sort.Float64s(thresholds)

	counts := make([]int, len(thresholds)+1)
	for _, row := range rows {
		if row.Distance == nil {
			continue
		}
		d := unit.FromMeters(*row.Distance)
		placed := false
		for i, th := range thresholds {
			if d <= th {
				counts[i]++
				placed = true
				break
			}
		}
		if !placed {
			counts[len(thresholds)]++
		}
	}

	minCount := req.MinCount
	if minCount < 1 {
		minCount = 1
	}
	var values []FacetValue
	prev := 0.0
	for i, th := range thresholds {
		if counts[i] >= minCount {
			values = append(values, FacetValue{
				Value: fmt.Sprintf("%g-%g", prev, th),
				Count: counts[i],
			})
		}
		prev = th
	}
	if counts[len(thresholds)] >= minCount {
		values = append(values, FacetValue{
			Value: fmt.Sprintf("%g+", prev),
			Count: counts[len(thresholds)],
		})
	}
	return values, nil
}

// facetValues flattens one metadata value into countable strings.
func facetValues(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case bool:
		return []string{fmt.Sprintf("%t", t)}
	case float64:
		return []string{fmt.Sprintf("%g", t)}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, facetValues(item)...)
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", t)}
	}
}

// lookupPath walks a dotted path through a JSON tree.
func lookupPath(tree map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = tree
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}
