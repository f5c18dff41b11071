package engine

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

// ============================================================================
// AGGREGATORS — Summary Reductions over the Filtered Set
// ============================================================================
// Dimension listings work on RecordView; the reductions take the filtered
// slice. None of them re-applies level logic: feed them Filter output.
// ============================================================================

// UniqueValues returns distinct values for a dimension across a view,
// in first-seen order.
func UniqueValues(view RecordView, dimension string) []string {
	seen := make(map[string]bool)
	var result []string
	for i := 0; i < view.Len(); i++ {
		val := view.Dimension(i, dimension)
		if val != "" && !seen[val] {
			seen[val] = true
			result = append(result, val)
		}
	}
	return result
}

// UniqueGeographies lists the geographies present.
func UniqueGeographies(records []DataRecord) []string {
	return UniqueValues(NewSliceView(records), DimGeography)
}

// UniqueSegmentTypes lists the segment types present.
func UniqueSegmentTypes(records []DataRecord) []string {
	return UniqueValues(NewSliceView(records), DimSegmentType)
}

// UniqueSegments lists the segments of segmentType ("" = any type), keeping
// only those tagged with level when level is non-empty.
func UniqueSegments(records []DataRecord, segmentType string, level SegmentLevel) []string {
	matching := lo.Filter(records, func(r DataRecord, _ int) bool {
		if segmentType != "" && r.SegmentType != segmentType {
			return false
		}
		return level == "" || r.SegmentLevel == level
	})
	return UniqueValues(NewSliceView(matching), DimSegment)
}

// CalculateTotals sums the records at year.
func CalculateTotals(records []DataRecord, year int) Totals {
	if len(records) == 0 {
		return Totals{}
	}
	total := lo.SumBy(records, func(r DataRecord) float64 { return r.ValueAt(year) })
	return Totals{
		Total:   RoundTo2(total),
		Count:   len(records),
		Average: RoundTo2(total / float64(len(records))),
	}
}

// TopPerformers ranks segments by their summed value at year, largest first.
// limit <= 0 returns every segment.
func TopPerformers(records []DataRecord, year, limit int) []Performer {
	sums := make(map[string]float64)
	var order []string
	for _, r := range records {
		if _, ok := sums[r.Segment]; !ok {
			order = append(order, r.Segment)
		}
		sums[r.Segment] += r.ValueAt(year)
	}

	out := lo.Map(order, func(name string, _ int) Performer {
		return Performer{Name: name, Value: RoundTo2(sums[name])}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return limitTo(out, limit)
}

// FastestGrowing ranks segments by mean record CAGR, fastest first.
func FastestGrowing(records []DataRecord, limit int) []GrowthLeader {
	grouped := lo.GroupBy(records, func(r DataRecord) string { return r.Segment })
	order := lo.Uniq(lo.Map(records, func(r DataRecord, _ int) string { return r.Segment }))

	out := lo.Map(order, func(name string, _ int) GrowthLeader {
		g := grouped[name]
		mean := lo.SumBy(g, func(r DataRecord) float64 { return r.CAGR }) / float64(len(g))
		return GrowthLeader{Name: name, CAGR: RoundTo2(mean)}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CAGR > out[j].CAGR })
	return limitTo(out, limit)
}

func limitTo[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// RoundTo2 rounds to 2 decimal places.
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
