package store

import (
	"fmt"
	"strings"

	"github.com/yetidevworks/yetisearch-sub000/geo"
	yserrors "github.com/yetidevworks/yetisearch-sub000/internal/errors"
)

// spatialPlan is the compiled form of a geo filter block: SQL fragments
// plus whatever work has to finish in Go when the runtime cannot do it.
type spatialPlan struct {
	join         string   // join fragment, empty when no spatial access
	selects      []string // extra SELECT expressions
	selectArgs   []any
	where        []string // WHERE fragments
	whereArgs    []any
	ref          *geo.Point // reference point for distance work
	radiusM      float64    // near radius in metres (0 = none)
	maxDistM     float64    // max_distance in metres (0 = none)
	sqlDistance  bool       // distance computed by SQL expression
	goDistance   bool       // distance computed in Go from centroid columns
	sortDir      string     // distance sort direction ("" = none)
	nearest      int        // k-NN fast path
	candidateCap int        // override for the re-sort candidate set
}

// buildSpatialPlan translates the geo filter block for one index into SQL
// fragments. Missing capabilities select fallbacks, never errors.
func (s *Storage) buildSpatialPlan(meta *indexMeta, gf *GeoFilters) (*spatialPlan, error) {
	plan := &spatialPlan{}
	if gf == nil {
		return plan, nil
	}

	unit, err := geo.ParseUnit(gf.Units)
	if err != nil {
		return nil, yserrors.Wrap(yserrors.ErrCodeInvalidInput, "geo filters", err)
	}
	plan.nearest = gf.Nearest
	plan.candidateCap = gf.CandidateCap
	if gf.MaxDistance > 0 {
		plan.maxDistM = unit.ToMeters(gf.MaxDistance)
	}

	hasSpatialTable := meta.options.EnableSpatial
	useJSONCoords := !hasSpatialTable

	// Reference point and filter box.
	var filterBounds *geo.Bounds
	switch {
	case gf.Near != nil:
		if err := gf.Near.Point.Validate(); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeInvalidInput, "near point", err)
		}
		plan.ref = &gf.Near.Point
		plan.radiusM = unit.ToMeters(gf.Near.Radius)
		b := geo.BoundsAroundPoint(gf.Near.Point, plan.radiusM)
		filterBounds = &b
	case gf.Within != nil:
		if err := gf.Within.Validate(); err != nil {
			return nil, yserrors.Wrap(yserrors.ErrCodeInvalidInput, "within bounds", err)
		}
		filterBounds = gf.Within
	}
	if gf.DistanceSort != nil {
		if plan.ref == nil {
			plan.ref = &gf.DistanceSort.From
		}
		plan.sortDir = strings.ToLower(gf.DistanceSort.Direction)
		if plan.sortDir != "desc" {
			plan.sortDir = "asc"
		}
	}
	if gf.Nearest > 0 && plan.ref == nil && gf.DistanceSort == nil && gf.Near == nil {
		return nil, yserrors.New(yserrors.ErrCodeInvalidInput, "nearest requires a reference point")
	}
	// A max_distance clamp without near narrows the candidate box too.
	if plan.maxDistM > 0 && plan.ref != nil && filterBounds == nil {
		b := geo.BoundsAroundPoint(*plan.ref, plan.maxDistM)
		filterBounds = &b
	}

	if useJSONCoords {
		s.buildJSONCoordPlan(plan, filterBounds)
		return plan, nil
	}

	// Join the spatial table. Pure distance sorts keep documents without
	// geo (LEFT JOIN, null distance); filters demand a row.
	filtering := gf.Near != nil || gf.Within != nil || gf.Nearest > 0 || plan.maxDistM > 0
	joinKind := "LEFT JOIN"
	if filtering {
		joinKind = "JOIN"
	}
	spatialTable := quoteIdent(meta.name + "_spatial")
	if meta.mode == SchemaExternal {
		plan.join = fmt.Sprintf(`%s %s s ON s.id = d.doc_id`, joinKind, spatialTable)
	} else {
		plan.join = fmt.Sprintf(`%s %s m ON m.string_id = d.id %s %s s ON s.id = m.numeric_id`,
			joinKind, quoteIdent(meta.name+"_id_map"), joinKind, spatialTable)
	}

	if filterBounds != nil {
		frag, args := bboxPredicate(*filterBounds)
		plan.where = append(plan.where, frag)
		plan.whereArgs = append(plan.whereArgs, args...)
	}

	if plan.ref != nil {
		plan.selects = append(plan.selects,
			"(s.minLat + s.maxLat) / 2.0 AS _lat",
			"(s.minLng + s.maxLng) / 2.0 AS _lng")
		if s.caps.mathFuncs {
			plan.sqlDistance = true
			expr, args := haversineExpr(*plan.ref)
			plan.selects = append(plan.selects, expr+" AS distance")
			plan.selectArgs = append(plan.selectArgs, args...)
			if plan.radiusM > 0 {
				expr, args := haversineExpr(*plan.ref)
				plan.where = append(plan.where, expr+" <= ?")
				plan.whereArgs = append(plan.whereArgs, append(args, plan.radiusM)...)
			}
			if plan.maxDistM > 0 {
				expr, args := haversineExpr(*plan.ref)
				plan.where = append(plan.where, expr+" <= ?")
				plan.whereArgs = append(plan.whereArgs, append(args, plan.maxDistM)...)
			}
		} else {
			// No SQL trigonometry: select the centroid and finish the
			// distance work in Go with the planar approximation.
			plan.goDistance = true
		}
	}
	return plan, nil
}

// buildJSONCoordPlan substitutes JSON-path expressions for the missing
// spatial table; coordinates were embedded into metadata at insert time.
func (s *Storage) buildJSONCoordPlan(plan *spatialPlan, filterBounds *geo.Bounds) {
	latExpr := `CAST(json_extract(d.metadata, '$._lat') AS REAL)`
	lngExpr := `CAST(json_extract(d.metadata, '$._lng') AS REAL)`
	plan.selects = append(plan.selects, latExpr+" AS _lat", lngExpr+" AS _lng")

	if filterBounds != nil {
		b := *filterBounds
		plan.where = append(plan.where, latExpr+" >= ? AND "+latExpr+" <= ?")
		plan.whereArgs = append(plan.whereArgs, b.South, b.North)
		if b.CrossesAntimeridian() {
			plan.where = append(plan.where, "("+lngExpr+" >= ? OR "+lngExpr+" <= ?)")
			plan.whereArgs = append(plan.whereArgs, b.West, b.East)
		} else {
			plan.where = append(plan.where, lngExpr+" >= ? AND "+lngExpr+" <= ?")
			plan.whereArgs = append(plan.whereArgs, b.West, b.East)
		}
	}
	if plan.ref != nil {
		plan.goDistance = true
	}
}

// bboxPredicate builds the R-tree intersection predicate, splitting boxes
// that cross the antimeridian into two longitude ranges OR'd together.
func bboxPredicate(b geo.Bounds) (string, []any) {
	lat := "s.minLat <= ? AND s.maxLat >= ?"
	args := []any{b.North, b.South}
	if b.CrossesAntimeridian() {
		lng := "((s.minLng <= 180.0 AND s.maxLng >= ?) OR (s.minLng <= ? AND s.maxLng >= -180.0))"
		args = append(args, b.West, b.East)
		return "(" + lat + " AND " + lng + ")", args
	}
	lng := "s.minLng <= ? AND s.maxLng >= ?"
	args = append(args, b.East, b.West)
	return "(" + lat + " AND " + lng + ")", args
}

// haversineExpr builds the SQL great-circle distance (metres) from the
// query point to the stored bbox centroid. Binds three parameters:
// lat, lat, lng.
func haversineExpr(ref geo.Point) (string, []any) {
	const expr = `(2.0 * 6371000.0 * asin(min(1.0, sqrt(` +
		`pow(sin(radians(? - ((s.minLat + s.maxLat) / 2.0)) / 2.0), 2) + ` +
		`cos(radians(?)) * cos(radians((s.minLat + s.maxLat) / 2.0)) * ` +
		`pow(sin(radians(? - ((s.minLng + s.maxLng) / 2.0)) / 2.0), 2)))))`
	return expr, []any{ref.Lat, ref.Lat, ref.Lng}
}
