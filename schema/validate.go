package schema

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/spektr-org/marketlens/engine"
)

// ============================================================================
// VALIDATION — Double-counting checks over a loaded dataset
// ============================================================================
// Flags the shapes that make charts lie:
//   - an aggregated record whose direct children do not add up to it
//   - the same geography × segment type × segment present more than once
//   - Global top-level totals that disagree with the Global By Region total
// Published figures are rounded, so sums are compared with a tolerance.
// ============================================================================

// IssueKind classifies a validation finding.
type IssueKind string

const (
	IssueSumMismatch    IssueKind = "sum_mismatch"
	IssueDuplicate      IssueKind = "duplicate"
	IssueRegionMismatch IssueKind = "region_total_mismatch"
)

// Issue is one validation finding.
type Issue struct {
	Kind        IssueKind `json:"kind"`
	Geography   string    `json:"geography"`
	SegmentType string    `json:"segmentType"`
	Segment     string    `json:"segment,omitempty"`
	Year        int       `json:"year,omitempty"`
	Expected    float64   `json:"expected,omitempty"`
	Actual      float64   `json:"actual,omitempty"`
}

func (i Issue) String() string {
	switch i.Kind {
	case IssueDuplicate:
		return fmt.Sprintf("%s: %s / %s / %s appears more than once", i.Kind, i.Geography, i.SegmentType, i.Segment)
	case IssueSumMismatch:
		return fmt.Sprintf("%s: %s / %s / %s is %.2f in %d but its children sum to %.2f",
			i.Kind, i.Geography, i.SegmentType, i.Segment, i.Expected, i.Year, i.Actual)
	}
	return fmt.Sprintf("%s: %s / %s totals %.2f in %d, By Region totals %.2f",
		i.Kind, i.Geography, i.SegmentType, i.Actual, i.Year, i.Expected)
}

// Validate checks records at year and returns every finding in record order.
func Validate(records []engine.DataRecord, year int) []Issue {
	var issues []Issue
	issues = append(issues, duplicates(records)...)
	issues = append(issues, childSums(records, year)...)
	issues = append(issues, regionTotals(records, year)...)
	return issues
}

type entity struct{ geo, segmentType, segment string }

func duplicates(records []engine.DataRecord) []Issue {
	counts := lo.CountValuesBy(records, func(r engine.DataRecord) entity {
		return entity{r.Geography, r.SegmentType, r.Segment}
	})

	var issues []Issue
	reported := make(map[entity]bool)
	for _, r := range records {
		e := entity{r.Geography, r.SegmentType, r.Segment}
		if counts[e] > 1 && !reported[e] {
			reported[e] = true
			issues = append(issues, Issue{Kind: IssueDuplicate, Geography: e.geo, SegmentType: e.segmentType, Segment: e.segment})
		}
	}
	return issues
}

// childSums compares each aggregated record with the records one level
// below it that name it as their ancestor at its depth.
func childSums(records []engine.DataRecord, year int) []Issue {
	var issues []Issue
	for _, parent := range records {
		level, ok := parent.Level()
		if !parent.IsAggregated || !ok || level < 2 {
			continue
		}
		children := lo.Filter(records, func(r engine.DataRecord, _ int) bool {
			return r.Geography == parent.Geography &&
				r.SegmentType == parent.SegmentType &&
				r.HasLevel(level+1) &&
				r.SegmentHierarchy.At(level-1) == parent.Segment
		})
		if len(children) == 0 {
			continue
		}
		sum := lo.SumBy(children, func(r engine.DataRecord) float64 { return r.ValueAt(year) })
		if !withinTolerance(parent.ValueAt(year), sum) {
			issues = append(issues, Issue{
				Kind:        IssueSumMismatch,
				Geography:   parent.Geography,
				SegmentType: parent.SegmentType,
				Segment:     parent.Segment,
				Year:        year,
				Expected:    parent.ValueAt(year),
				Actual:      engine.RoundTo2(sum),
			})
		}
	}
	return issues
}

// regionTotals compares each Global scheme's top-level total, as the engine
// would show it, against the sum of the Global By Region records.
func regionTotals(records []engine.DataRecord, year int) []Issue {
	byRegion := engine.Filter(records, engine.FilterState{
		Geographies: []string{engine.GlobalGeography},
		SegmentType: engine.SegmentTypeRegion,
		YearRange:   [2]int{year, year},
	})
	byRegion = lo.Filter(byRegion, func(r engine.DataRecord, _ int) bool { return r.IsGlobal() })
	if len(byRegion) == 0 {
		return nil
	}
	regionTotal := lo.SumBy(byRegion, func(r engine.DataRecord) float64 { return r.ValueAt(year) })

	var issues []Issue
	for _, segmentType := range engine.UniqueSegmentTypes(records) {
		if engine.IsRegionalSegmentType(segmentType) {
			continue
		}
		total, ok := schemeTotal(records, segmentType, year)
		if !ok {
			continue
		}
		if !withinTolerance(regionTotal, total) {
			issues = append(issues, Issue{
				Kind:        IssueRegionMismatch,
				Geography:   engine.GlobalGeography,
				SegmentType: segmentType,
				Year:        year,
				Expected:    engine.RoundTo2(regionTotal),
				Actual:      engine.RoundTo2(total),
			})
		}
	}
	return issues
}

// schemeTotal sums a scheme's Global top tier at year. A scheme split into
// B2B and B2C contributes each business type once.
func schemeTotal(records []engine.DataRecord, segmentType string, year int) (float64, bool) {
	var total float64
	var found bool
	for _, bt := range []engine.BusinessType{"", engine.BusinessB2B, engine.BusinessB2C} {
		top := engine.Filter(records, engine.FilterState{
			Geographies:  []string{engine.GlobalGeography},
			SegmentType:  segmentType,
			YearRange:    [2]int{year, year},
			BusinessType: bt,
		})
		if bt != "" {
			top = lo.Filter(top, func(r engine.DataRecord, _ int) bool {
				return engine.BusinessType(r.SegmentHierarchy.Level1) == bt
			})
		}
		found = found || len(top) > 0
		total += lo.SumBy(top, func(r engine.DataRecord) float64 { return r.ValueAt(year) })
	}
	return total, found
}

// withinTolerance allows 0.5% or 0.1 absolute, whichever is larger.
func withinTolerance(want, got float64) bool {
	return math.Abs(want-got) <= math.Max(0.1, math.Abs(want)*0.005)
}
