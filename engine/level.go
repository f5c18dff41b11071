package engine

import (
	"strings"

	"github.com/samber/lo"
)

// ============================================================================
// AGGREGATION-LEVEL RESOLVER
// ============================================================================
// Decides which rollup depth is authoritative when the user has not picked
// one. Filter and every shaper call the same resolver value, so they can
// never disagree about the level of a single request.
// ============================================================================

// DefaultAggregationLevel is the first rollup tier (e.g. "Parenteral").
const DefaultAggregationLevel = 2

// LevelResolver returns the authoritative level; ok=false means "all levels".
type LevelResolver func(records []DataRecord, filters FilterState) (level int, ok bool)

// IsRegionalSegmentType reports whether segments of the scheme are
// themselves geography names.
func IsRegionalSegmentType(segmentType string) bool {
	switch segmentType {
	case SegmentTypeRegion, SegmentTypeState, SegmentTypeCountry:
		return true
	}
	return false
}

// ResolveLevel applies, in order: explicit user level, regional scheme
// (all levels), segments selected for this scheme (all levels), default 2.
func ResolveLevel(records []DataRecord, filters FilterState) (int, bool) {
	if filters.AggregationLevel != nil {
		return *filters.AggregationLevel, true
	}
	if IsRegionalSegmentType(filters.SegmentType) {
		return 0, false
	}
	if len(activeSelections(records, filters)) > 0 {
		return 0, false
	}
	return DefaultAggregationLevel, true
}

// activeSelections lists the segment picks that apply to the current
// scheme. Typed advanced selections always count. A plain segment counts
// only when some record of the scheme carries it, so a stale pick left over
// from another scheme does not switch the view to "all levels". With no
// records of the scheme at hand every pick counts.
func activeSelections(records []DataRecord, filters FilterState) []string {
	typed := make([]string, 0, len(filters.AdvancedSegments))
	for _, s := range filters.AdvancedSegments {
		if s.Type == filters.SegmentType && strings.TrimSpace(s.Segment) != "" {
			typed = append(typed, strings.TrimSpace(s.Segment))
		}
	}

	plain := lo.Compact(lo.Map(filters.Segments, func(s string, _ int) string { return strings.TrimSpace(s) }))
	for _, s := range filters.AdvancedSegments {
		if s.Type == "" && strings.TrimSpace(s.Segment) != "" {
			plain = append(plain, strings.TrimSpace(s.Segment))
		}
	}
	if len(plain) == 0 {
		return lo.Uniq(typed)
	}

	scheme := lo.Filter(records, func(r DataRecord, _ int) bool {
		return filters.SegmentType == "" || r.SegmentType == filters.SegmentType
	})
	if len(scheme) == 0 {
		return lo.Uniq(append(typed, plain...))
	}

	present := make(map[string]struct{}, len(scheme))
	for _, r := range scheme {
		present[r.Segment] = struct{}{}
		if IsRegionalSegmentType(r.SegmentType) {
			present[r.Geography] = struct{}{}
		}
		for d := 1; d <= MaxHierarchyDepth; d++ {
			if v := r.SegmentHierarchy.At(d); v != "" {
				present[v] = struct{}{}
			}
		}
	}
	for _, s := range plain {
		if _, ok := present[s]; ok {
			typed = append(typed, s)
		}
	}
	return lo.Uniq(typed)
}

// impliedLevel is the level carried by the aggregated records of the plain
// Segments selection: the shallowest level among them.
func impliedLevel(records []DataRecord, segments []string) (int, bool) {
	if len(segments) == 0 {
		return 0, false
	}
	set := lo.SliceToMap(segments, func(s string) (string, struct{}) { return s, struct{}{} })
	best, found := 0, false
	for _, r := range records {
		if !r.IsAggregated {
			continue
		}
		if _, ok := set[r.Segment]; !ok {
			continue
		}
		if l, ok := r.Level(); ok && (!found || l < best) {
			best, found = l, true
		}
	}
	return best, found
}
