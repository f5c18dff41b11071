package engine

import (
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// ============================================================================
// RECORD FILTER — Predicate Engine with Double-Counting Avoidance
// ============================================================================
// Two passes over a RecordView:
//   1. candidacy — geography, aggregation level, segment type, business type
//      and segment predicates, all AND-combined
//   2. representation — among candidates of one geography × segment type,
//      an entity is represented either by its aggregated record or by its
//      leaves, never both
// Returns a SubView (index list into parent) — zero data copy.
// ============================================================================

// Filter returns the records that are "the truth" for filters.
func Filter(records []DataRecord, filters FilterState, opts ...Option) []DataRecord {
	return Materialize(FilterView(NewSliceView(records), filters, opts...))
}

// FilterView is Filter over a RecordView.
func FilterView(view RecordView, filters FilterState, opts ...Option) RecordView {
	return filterView(view, filters, applyOptions(opts))
}

func filterView(view RecordView, filters FilterState, cfg *config) RecordView {
	all := Materialize(view)
	p := newPredicates(all, filters, cfg)

	candidates := make([]int, 0, len(all))
	for i, r := range all {
		if p.match(r) {
			candidates = append(candidates, i)
		}
	}
	indices := p.dedupe(all, candidates)

	cfg.Log.WithFields(logrus.Fields{
		"records":      len(all),
		"candidates":   len(candidates),
		"kept":         len(indices),
		"segment_type": filters.SegmentType,
		"level":        levelField(p.level, p.hasLevel),
		"selections":   len(p.selections),
	}).Debug("engine: filter")

	return newSubView(view, indices)
}

// predicates holds everything the filter derives once per call.
type predicates struct {
	filters  FilterState
	regions  GeographyCountries
	regional bool

	level    int
	hasLevel bool

	selections   []string
	selectionSet map[string]struct{}

	geoSet       map[string]struct{}
	wantsRegions bool // some selected geography is not Global
}

func newPredicates(records []DataRecord, filters FilterState, cfg *config) *predicates {
	level, ok := cfg.Resolver(records, filters)
	selections := activeSelections(records, filters)
	geos := cleanList(filters.Geographies)

	return &predicates{
		filters:      filters,
		regions:      cfg.Geographies,
		regional:     IsRegionalSegmentType(filters.SegmentType),
		level:        level,
		hasLevel:     ok,
		selections:   selections,
		selectionSet: toSet(selections),
		geoSet:       toSet(geos),
		wantsRegions: lo.ContainsBy(geos, func(g string) bool { return g != GlobalGeography }),
	}
}

func (p *predicates) match(r DataRecord) bool {
	return p.matchGeography(r) &&
		p.matchLevel(r) &&
		p.matchSegmentType(r) &&
		p.matchBusinessType(r) &&
		p.matchSegment(r)
}

// matchGeography also admits Global records as a fallback source whenever
// a non-Global geography is wanted. Shapers decide whether to use them.
func (p *predicates) matchGeography(r DataRecord) bool {
	if len(p.geoSet) == 0 || p.regional {
		return true
	}
	if _, ok := p.geoSet[r.Geography]; ok {
		return true
	}
	if _, ok := p.geoSet[r.ParentGeography]; ok && r.ParentGeography != "" {
		return true
	}
	for g := range p.geoSet {
		if lo.Contains(p.regions[g], r.Geography) {
			return true
		}
	}
	return r.IsGlobal() && p.wantsRegions
}

func (p *predicates) matchLevel(r DataRecord) bool {
	if !p.hasLevel {
		return p.matchNullLevel(r)
	}
	if r.HasLevel(p.level) {
		return true
	}
	// Leaves are rollup candidates for the anchor at the requested depth.
	return !r.IsAggregated && (p.level <= 1 || rollupAnchor(r, p.level) != "")
}

// matchNullLevel prefers leaves. Aggregated records come in when selected by
// name, or for regional schemes with nothing selected.
func (p *predicates) matchNullLevel(r DataRecord) bool {
	if r.IsAggregated {
		if _, ok := p.selectionSet[r.Segment]; ok {
			return true
		}
		return len(p.selections) == 0 && p.regional
	}
	if len(p.selections) == 0 {
		return true
	}
	return p.belongsToSelection(r)
}

func (p *predicates) matchSegmentType(r DataRecord) bool {
	return p.filters.SegmentType == "" || r.SegmentType == p.filters.SegmentType
}

// matchBusinessType only constrains records tagged B2B/B2C at level_1; a
// tagged record must equal the selected business type, so none pass while
// it is unset.
func (p *predicates) matchBusinessType(r DataRecord) bool {
	tag := BusinessType(r.SegmentHierarchy.Level1)
	if tag != BusinessB2B && tag != BusinessB2C {
		return true
	}
	return tag == p.filters.BusinessType
}

func (p *predicates) matchSegment(r DataRecord) bool {
	if len(p.selections) == 0 || (p.hasLevel && p.level == 1) {
		return true
	}
	return p.belongsToSelection(r)
}

// belongsToSelection: direct segment match, the geography itself for
// regional schemes, or the selection anywhere in the ancestor chain.
func (p *predicates) belongsToSelection(r DataRecord) bool {
	return selectedAncestor(r, p.selections, p.regional) != ""
}

// dedupe enforces one representation per entity among candidates.
func (p *predicates) dedupe(all []DataRecord, candidates []int) []int {
	type anchor struct{ geo, segmentType, segment string }

	atLevel := make(map[anchor]bool)    // aggregated candidates at the filter level
	aggregated := make(map[anchor]bool) // every aggregated candidate
	hasLeafUnder := make(map[anchor]bool)
	for _, i := range candidates {
		r := all[i]
		if r.IsAggregated {
			aggregated[anchor{r.Geography, r.SegmentType, r.Segment}] = true
			if p.hasLevel && r.HasLevel(p.level) {
				atLevel[anchor{r.Geography, r.SegmentType, levelAnchor(r, p.level)}] = true
			}
			continue
		}
		for _, a := range r.SegmentHierarchy.Ancestors(r.Segment) {
			hasLeafUnder[anchor{r.Geography, r.SegmentType, a}] = true
		}
	}

	preferAggregated := !p.hasLevel && p.regional && len(p.selections) == 0

	kept := make([]int, 0, len(candidates))
	for _, i := range candidates {
		r := all[i]
		switch {
		case p.hasLevel:
			if !r.IsAggregated && !r.HasLevel(p.level) &&
				atLevel[anchor{r.Geography, r.SegmentType, rollupAnchor(r, p.level)}] {
				continue
			}
		case preferAggregated:
			if !r.IsAggregated && lo.ContainsBy(r.SegmentHierarchy.Ancestors(r.Segment), func(a string) bool {
				return aggregated[anchor{r.Geography, r.SegmentType, a}]
			}) {
				continue
			}
		default:
			if r.IsAggregated && hasLeafUnder[anchor{r.Geography, r.SegmentType, r.Segment}] {
				continue
			}
		}
		kept = append(kept, i)
	}
	return kept
}

// levelAnchor is the name an aggregated record at level answers for: its
// own segment, or "" for a level-1 geography total.
func levelAnchor(r DataRecord, level int) string {
	if level <= 1 {
		return ""
	}
	return r.Segment
}

// rollupAnchor is the ancestor a leaf rolls up into at level: the hierarchy
// entry one above it (level 2 ↔ level_1). Level 1 is the geography total,
// reported as "".
func rollupAnchor(r DataRecord, level int) string {
	if level <= 1 {
		return ""
	}
	return r.SegmentHierarchy.At(level - 1)
}

// selectedAncestor returns the first selection r belongs to, or "".
func selectedAncestor(r DataRecord, selections []string, regional bool) string {
	for _, s := range selections {
		if r.Segment == s || (regional && r.Geography == s) || r.SegmentHierarchy.Contains(s) {
			return s
		}
	}
	return ""
}

func levelField(level int, ok bool) any {
	if !ok {
		return "all"
	}
	return level
}

// cleanList trims, drops empties and dedupes, keeping first-seen order.
func cleanList(items []string) []string {
	out := lo.Compact(lo.Map(items, func(s string, _ int) string { return strings.TrimSpace(s) }))
	return lo.Uniq(out)
}

func toSet(items []string) map[string]struct{} {
	return lo.SliceToMap(items, func(s string) (string, struct{}) { return s, struct{}{} })
}
