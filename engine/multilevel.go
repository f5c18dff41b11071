package engine

import (
	"github.com/samber/lo"
)

// ============================================================================
// INTELLIGENT BUILDER — Multi-Level Records, One Representative per Cell
// ============================================================================
// Used when no single aggregation level is authoritative. Records of every
// level arrive together; each display cell picks one representation:
//   1. selected top-level segment → its own aggregated record, else the group
//   2. regional scheme with region names selected → sum of the group
//   3. leaves
//   4. aggregated records at the level the plain selection implies
//   5. records at the smallest aggregation level
//   6. the whole group
// Global-only geography-mode data is spread with the shared distributor.
// ============================================================================

// PrepareIntelligentData shapes multi-level records into one row per year.
func PrepareIntelligentData(records []DataRecord, filters FilterState, opts ...Option) []ChartDataPoint {
	ctx := newShapeContext(records, filters, applyOptions(opts))
	return buildIntelligent(ctx).points(ctx.years)
}

func buildIntelligent(ctx *shapeContext) *seriesSet {
	return ctx.cells(pickRepresentative).project(ctx.flatAxis())
}

func pickRepresentative(ctx *shapeContext, key cellKey, sources []source) []source {
	// A geography described directly beats one rolled up from its countries.
	if direct := lo.Filter(sources, func(s source, _ int) bool { return s.class <= 1 }); len(direct) > 0 {
		sources = direct
	}

	if ctx.isSelectedTopSegment(key.seg) {
		own := lo.Filter(sources, func(s source, _ int) bool {
			return s.rec.IsAggregated && s.rec.Segment == key.seg
		})
		if len(own) > 0 {
			return own
		}
		return sources
	}

	if ctx.regional && ctx.selectsRegions() {
		return sources
	}

	if leaves := lo.Reject(sources, func(s source, _ int) bool { return s.rec.IsAggregated }); len(leaves) > 0 {
		return leaves
	}

	if implied, ok := impliedLevel(ctx.records, cleanList(ctx.filters.Segments)); ok {
		atImplied := lo.Filter(sources, func(s source, _ int) bool {
			return s.rec.IsAggregated && s.rec.HasLevel(implied)
		})
		if len(atImplied) > 0 {
			return atImplied
		}
	}

	if lowest, ok := smallestLevel(sources); ok {
		return lo.Filter(sources, func(s source, _ int) bool { return s.rec.HasLevel(lowest) })
	}
	return sources
}

// isSelectedTopSegment: the user picked seg and seg heads a hierarchy.
func (c *shapeContext) isSelectedTopSegment(seg string) bool {
	if !lo.Contains(c.selections, seg) {
		return false
	}
	return lo.ContainsBy(c.records, func(r DataRecord) bool {
		return r.SegmentHierarchy.Level1 == seg || (r.Segment == seg && r.IsAggregated && r.HasLevel(DefaultAggregationLevel))
	})
}

// selectsRegions reports whether any selection names a region.
func (c *shapeContext) selectsRegions() bool {
	return lo.ContainsBy(c.selections, func(s string) bool {
		if c.cfg.Geographies.IsRegion(s) {
			return true
		}
		return lo.ContainsBy(c.records, func(r DataRecord) bool { return r.Geography == s })
	})
}

func smallestLevel(sources []source) (int, bool) {
	best, found := 0, false
	for _, s := range sources {
		if l, ok := s.rec.Level(); ok && (!found || l < best) {
			best, found = l, true
		}
	}
	return best, found
}
