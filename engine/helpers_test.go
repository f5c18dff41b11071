package engine

import (
	"math"
	"testing"
)

// ============================================================================
// TEST FIXTURES & HELPERS
// ============================================================================

const routeType = "By Route of Administration"

func rec(geo, segment string, aggregated bool, level int, h SegmentHierarchy, ts map[int]float64) DataRecord {
	r := DataRecord{
		Geography:        geo,
		SegmentType:      routeType,
		Segment:          segment,
		SegmentHierarchy: h,
		IsAggregated:     aggregated,
		TimeSeries:       ts,
	}
	if level > 0 {
		r.AggregationLevel = LevelPtr(level)
	}
	return r
}

func y2025(v float64) map[int]float64 {
	return map[int]float64{2025: v}
}

// parenteralRecords: Parenteral (aggregated, 100) and its two leaves 60 + 40.
func parenteralRecords() []DataRecord {
	return []DataRecord{
		rec("Global", "Parenteral", true, 2, SegmentHierarchy{}, y2025(100)),
		rec("Global", "Intravenous", false, 3, SegmentHierarchy{Level1: "Parenteral"}, y2025(60)),
		rec("Global", "Intramuscular", false, 3, SegmentHierarchy{Level1: "Parenteral"}, y2025(40)),
	}
}

// routeTree adds Oral (aggregated, 50) with leaves 30 + 20. Leaf total 150.
func routeTree() []DataRecord {
	return append(parenteralRecords(),
		rec("Global", "Oral", true, 2, SegmentHierarchy{}, y2025(50)),
		rec("Global", "Tablet", false, 3, SegmentHierarchy{Level1: "Oral"}, y2025(30)),
		rec("Global", "Capsule", false, 3, SegmentHierarchy{Level1: "Oral"}, y2025(20)),
	)
}

func baseFilters() FilterState {
	return FilterState{
		SegmentType: routeType,
		YearRange:   [2]int{2025, 2025},
		DataType:    DataTypeValue,
	}
}

func segmentNames(records []DataRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Segment)
	}
	return out
}

func sumAt(records []DataRecord, year int) float64 {
	var total float64
	for _, r := range records {
		total += r.ValueAt(year)
	}
	return total
}

func assertFloat(t *testing.T, got, want float64, msg string) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}

func assertEqual[T comparable](t *testing.T, got, want T, msg string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}

func assertStrings(t *testing.T, got, want []string, msg string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s: got %v, want %v", msg, got, want)
		return
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("%s: got %v, want %v", msg, got, want)
			return
		}
	}
}

func assertContains(t *testing.T, slice []string, item string, msg string) {
	t.Helper()
	for _, s := range slice {
		if s == item {
			return
		}
	}
	t.Errorf("%s: %q not found in %v", msg, item, slice)
}
