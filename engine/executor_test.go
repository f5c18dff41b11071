package engine

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
)

// ============================================================================
// EXECUTE
// ============================================================================

func TestExecuteAutoPicksIntelligentForSelection(t *testing.T) {
	f := baseFilters()
	f.Segments = []string{"Parenteral"}

	res, err := Execute(Query{Filters: f}, parenteralRecords())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	assertEqual(t, res.Chart, ChartIntelligent, "auto dispatch")
	assertEqual(t, res.Level == nil, true, "all levels")
	assertEqual(t, res.RecordCount, 2, "filtered records")
	assertStrings(t, res.Series, []string{"Parenteral"}, "series")
	assertFloat(t, res.Data[0].Values["Parenteral"], 100, "Parenteral")
	assertFloat(t, res.Totals.Total, 100, "totals")
}

func TestExecuteAutoPicksBarAtDefaultLevel(t *testing.T) {
	res, err := Execute(Query{Filters: baseFilters(), Chart: ChartAuto}, routeTree())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	assertEqual(t, res.Chart, ChartBar, "auto dispatch")
	if res.Level == nil || *res.Level != 2 {
		t.Fatalf("expected level 2, got %v", res.Level)
	}
	assertStrings(t, res.Series, []string{"Parenteral", "Oral"}, "series order")
	assertEqual(t, res.TopPerformers[0].Name, "Parenteral", "top performer")
	assertEqual(t, res.Empty, false, "not empty")
}

func TestExecuteTableAndWaterfall(t *testing.T) {
	res, err := Execute(Query{Filters: baseFilters(), Chart: ChartTable}, routeTree())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	assertEqual(t, len(res.Table), 2, "table rows")
	assertEqual(t, len(res.Data), 0, "no chart rows for a table")

	res, err = Execute(Query{Filters: baseFilters(), Chart: ChartWaterfall}, routeTree())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	assertEqual(t, res.Waterfall[0].Type, WaterfallStart, "waterfall start")
	assertEqual(t, res.Waterfall[len(res.Waterfall)-1].Type, WaterfallEnd, "waterfall end")
}

func TestExecuteEmptyResult(t *testing.T) {
	f := baseFilters()
	f.SegmentType = "By Dosage Form"

	res, err := Execute(Query{Filters: f, Chart: ChartBar}, routeTree())
	if err != nil {
		t.Fatalf("empty result must not be an error: %v", err)
	}
	assertEqual(t, res.Empty, true, "empty")
	assertEqual(t, res.RecordCount, 0, "record count")
	assertEqual(t, res.Reply, "No records match the selected filters.", "reply")
}

func TestExecuteAbsurdYearRange(t *testing.T) {
	f := baseFilters()
	f.YearRange = [2]int{2025, math.MaxInt / 2}

	res, err := Execute(Query{Filters: f, Chart: ChartBar}, parenteralRecords())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Data) != 1 {
		t.Fatalf("expected one row, got %d", len(res.Data))
	}
	assertEqual(t, res.Data[0].Year, 2025, "year")
	assertFloat(t, res.Data[0].Values["Parenteral"], 100, "value")
}

func TestNormalizeFilterStateClampsYears(t *testing.T) {
	got := NormalizeFilterState(FilterState{YearRange: [2]int{1, 1_000_000_000}})
	assertEqual(t, got.YearRange, [2]int{MinYear, MaxYear}, "clamped")

	got = NormalizeFilterState(FilterState{YearRange: [2]int{0, 2025}})
	assertEqual(t, got.YearRange, [2]int{0, 2025}, "unset bound kept")
}

func TestExecuteUnknownChart(t *testing.T) {
	_, err := Execute(Query{Filters: baseFilters(), Chart: "pie"}, routeTree())
	if err == nil {
		t.Fatal("expected an error for an unknown chart kind")
	}
}

func TestExecuteIsDeterministic(t *testing.T) {
	records := append(routeTree(),
		rec("North America", "Oral", true, 2, SegmentHierarchy{}, map[int]float64{2024: 3.3, 2025: 12.1}),
		rec("Europe", "Parenteral", true, 2, SegmentHierarchy{}, map[int]float64{2024: 7.7, 2025: 8.9}),
	)
	q := Query{
		Filters: FilterState{
			Geographies: []string{"North America", "Europe"},
			SegmentType: routeType,
			YearRange:   [2]int{2024, 2025},
		},
		Chart:   ChartBar,
		Stacked: true,
	}

	first, err := Execute(q, records)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	second, err := Execute(q, records)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Errorf("outputs differ:\n%s\n%s", a, b)
	}
}

// ============================================================================
// NORMALIZATION
// ============================================================================

func TestNormalizeFilterState(t *testing.T) {
	f := FilterState{
		Geographies: []string{" Europe", "Europe", "", "Global "},
		Segments:    []string{"Oral", " Oral ", "Tablet"},
		AdvancedSegments: []SegmentSelection{
			{Type: "By Dosage Form", Segment: "Tablet"},
			{Type: routeType, Segment: " Oral"},
			{Type: routeType, Segment: "Oral"},
			{Type: routeType, Segment: ""},
		},
		SegmentType:      routeType,
		AggregationLevel: LevelPtr(0),
		YearRange:        [2]int{2033, 2021},
		DataType:         "Volume",
		BusinessType:     "b2c",
	}
	got := NormalizeFilterState(f)

	assertStrings(t, got.Geographies, []string{"Europe", "Global"}, "geographies")
	assertStrings(t, got.Segments, []string{"Oral"}, "foreign advanced pick removed from segments")
	assertEqual(t, len(got.AdvancedSegments), 2, "advanced selections deduplicated")
	assertEqual(t, got.AggregationLevel == nil, true, "level 0 means unspecified")
	assertEqual(t, got.YearRange, [2]int{2021, 2033}, "year range swapped")
	assertEqual(t, got.DataType, DataTypeVolume, "data type")
	assertEqual(t, got.BusinessType, BusinessB2C, "business type")

	// The input is untouched.
	assertEqual(t, f.Geographies[0], " Europe", "input geographies")
}

func TestViewModeText(t *testing.T) {
	var f FilterState
	if err := json.Unmarshal([]byte(`{"viewMode":"geography-mode","aggregationLevel":null}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	assertEqual(t, f.ViewMode, GeographyMode, "view mode")
	assertEqual(t, f.AggregationLevel == nil, true, "null level")

	if _, err := ParseViewMode("sideways"); err == nil {
		t.Error("expected error for unknown view mode")
	}
}
