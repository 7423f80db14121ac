package yetisearch

import "sort"

// dedupeByRoute aggregates results sharing the same non-empty
// metadata.route into one representative: the highest-scoring document
// carries the summed score of all its chunks and exposes the chunk count.
// Results without a route pass through untouched.
func dedupeByRoute(results []SearchResult) []SearchResult {
	type group struct {
		best  SearchResult
		total float64
		count int
	}

	groups := make(map[string]*group)
	var routes []string
	var passthrough []SearchResult

	for _, res := range results {
		route, _ := res.Metadata["route"].(string)
		if route == "" {
			passthrough = append(passthrough, res)
			continue
		}
		g, ok := groups[route]
		if !ok {
			g = &group{best: res}
			groups[route] = g
			routes = append(routes, route)
		}
		g.total += res.Score
		g.count++
		if res.Score > g.best.Score {
			g.best = res
		}
	}

	out := passthrough
	for _, route := range routes {
		g := groups[route]
		rep := g.best
		rep.Score = g.total
		md := make(map[string]any, len(rep.Metadata)+1)
		for k, v := range rep.Metadata {
			md[k] = v
		}
		md["chunk_count"] = g.count
		rep.Metadata = md
		out = append(out, rep)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
