package ingest

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/spektr-org/marketlens/engine"
)

const nestedJSON = `{
  "Global": {
    "By Route": {
      "Parenteral": {
        "2024": 80, "2025": 100,
        "Intravenous": {"2024": 50, "2025": 60},
        "Intramuscular": {"2024": 30, "2025": 40}
      },
      "Oral": {"2025": 50}
    },
    "By Region": {
      "North America": {"2025": 40},
      "Middle East and Africa": {"2025": 60}
    }
  },
  "North America": {
    "By Country": {"U.S.": {"2025": 30}, "Canada": {"2025": 10}}
  },
  "U.S.": {
    "By Route": {"Oral": {"2025": 5}}
  }
}`

// ============================================================================
// JSON
// ============================================================================

func TestParseJSONFlattensTree(t *testing.T) {
	ds, err := ParseJSON(strings.NewReader(nestedJSON))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if len(ds.Value) != 9 {
		t.Fatalf("expected 9 records, got %d", len(ds.Value))
	}

	wantOrder := []string{"Parenteral", "Intravenous", "Intramuscular", "Oral", "North America", "Middle East & Africa", "U.S.", "Canada", "Oral"}
	for i, r := range ds.Value {
		if r.Segment != wantOrder[i] {
			t.Errorf("record %d: got %q, want %q", i, r.Segment, wantOrder[i])
		}
	}

	parenteral := ds.Value[0]
	if !parenteral.IsAggregated || parenteral.SegmentLevel != engine.SegmentLevelParent {
		t.Error("Parenteral should be an aggregated parent")
	}
	assertLevel(t, parenteral, 2)
	assertClose(t, parenteral.CAGR, 25, "Parenteral CAGR")

	iv := ds.Value[1]
	if iv.IsAggregated || iv.SegmentLevel != engine.SegmentLevelLeaf {
		t.Error("Intravenous should be a leaf")
	}
	assertLevel(t, iv, 3)
	if iv.SegmentHierarchy.Level1 != "Parenteral" || iv.SegmentHierarchy.Level2 != "Intravenous" {
		t.Errorf("Intravenous hierarchy: %+v", iv.SegmentHierarchy)
	}

	oral := ds.Value[3]
	assertLevel(t, oral, 2)
	if oral.SegmentHierarchy.Level1 != "Oral" {
		t.Errorf("flat leaf should reference itself, got %+v", oral.SegmentHierarchy)
	}
	assertClose(t, oral.CAGR, 0, "single-year CAGR")
}

func TestParseJSONGeographies(t *testing.T) {
	ds, err := ParseJSON(strings.NewReader(nestedJSON))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}

	countries := ds.Geographies["North America"]
	if len(countries) != 2 || countries[0] != "U.S." || countries[1] != "Canada" {
		t.Errorf("North America countries: %v", countries)
	}
	if _, ok := ds.Geographies["Europe"]; ok {
		t.Error("legacy table must not leak in when the dataset has its own")
	}

	us := ds.Value[8]
	if us.Geography != "U.S." || us.ParentGeography != "North America" {
		t.Errorf("U.S. parent geography: %+v", us)
	}

	ref := ds.Reference(engine.DataTypeValue)
	if len(ref) != 2 || ref[1].Segment != "Middle East & Africa" {
		t.Errorf("reference records: %v", ref)
	}
}

func TestParseJSONFeedsEngine(t *testing.T) {
	ds, err := ParseJSON(strings.NewReader(nestedJSON))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	f := engine.FilterState{
		Geographies: []string{engine.GlobalGeography},
		SegmentType: "By Route",
		YearRange:   [2]int{2025, 2025},
	}
	got := engine.Filter(ds.Value, f, ds.EngineOptions(engine.DataTypeValue)...)

	var total float64
	for _, r := range got {
		total += r.ValueAt(2025)
	}
	assertClose(t, total, 150, "Parenteral aggregate plus Oral")
}

func TestParseJSONEnvelope(t *testing.T) {
	doc := `{"value": {"Global": {"By Route": {"Oral": {"2025": 50}}}},
	         "volume": {"Global": {"By Route": {"Oral": {"2025": 7}}}}}`
	ds, err := ParseJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if len(ds.Value) != 1 || len(ds.Volume) != 1 {
		t.Fatalf("expected one record per section, got %d/%d", len(ds.Value), len(ds.Volume))
	}
	assertClose(t, ds.Records(engine.DataTypeVolume)[0].ValueAt(2025), 7, "volume figure")
	assertClose(t, ds.Records(engine.DataTypeValue)[0].ValueAt(2025), 50, "value figure")
}

func TestParseJSONRejectsNonObject(t *testing.T) {
	if _, err := ParseJSON(strings.NewReader(`[1, 2]`)); err == nil {
		t.Error("expected error for a JSON array")
	}
	if _, err := ParseJSON(strings.NewReader(`{}`)); err == nil {
		t.Error("expected error for an empty document")
	}
}

// ============================================================================
// CSV
// ============================================================================

const tabularCSV = `Region,Segment,Sub-segment,2024,2025
Global,By Technology,Micro,"1,000.04",1200
Global,By Region,Middle East and Africa,10,12
North America,By Country,U.S.,5,6
Volume,,,,
Region,Segment,Sub-segment,2024,2025
Global,By Technology,Micro,10,12
`

func TestParseCSVSections(t *testing.T) {
	ds, err := ParseCSV(strings.NewReader(tabularCSV))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(ds.Value) != 3 {
		t.Fatalf("expected 3 value records, got %d", len(ds.Value))
	}
	if len(ds.Volume) != 1 {
		t.Fatalf("expected 1 volume record, got %d", len(ds.Volume))
	}

	assertClose(t, ds.Value[0].ValueAt(2024), 1000.0, "rounded to one decimal")
	if ds.Value[1].Segment != "Middle East & Africa" {
		t.Errorf("region not normalised: %q", ds.Value[1].Segment)
	}
	assertClose(t, ds.Volume[0].ValueAt(2025), 12, "volume figure")

	if got := ds.Geographies["North America"]; len(got) != 1 || got[0] != "U.S." {
		t.Errorf("geographies: %v", ds.Geographies)
	}
}

func TestParseCSVDeeperTiers(t *testing.T) {
	data := `Region,Segment,Sub-segment,Leaf,2025
Global,By Route,Parenteral,,100
Global,By Route,Parenteral,Intravenous,60
Global,By Route,Parenteral,Intramuscular,40
`
	ds, err := ParseCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(ds.Value) != 3 {
		t.Fatalf("expected 3 records, got %d", len(ds.Value))
	}
	if !ds.Value[0].IsAggregated {
		t.Error("Parenteral row with children should be aggregated")
	}
	assertLevel(t, ds.Value[2], 3)
}

func TestParseCSVNoHeader(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("a,b,c\n1,2,3\n"))
	if !errors.Is(err, ErrNoHeader) {
		t.Errorf("expected ErrNoHeader, got %v", err)
	}
}

func TestParseCSVSkipsMalformedRows(t *testing.T) {
	data := `Region,Segment,Sub-segment,2025
Global,By Route,Or"al,5
Global,By Route,Parenteral,100
`
	ds, err := ParseCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(ds.Value) != 1 || ds.Value[0].Segment != "Parenteral" {
		t.Errorf("expected only the well-formed row, got %+v", ds.Value)
	}
}

// brokenReader serves head once, then fails every read.
type brokenReader struct {
	head string
	err  error
	done bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		return copy(p, r.head), nil
	}
	return 0, r.err
}

func TestParseCSVReadError(t *testing.T) {
	diskErr := errors.New("disk read failed")
	_, err := ParseCSV(&brokenReader{head: "Region,Segment,Sub-segment,2025\n", err: diskErr})
	if !errors.Is(err, diskErr) {
		t.Errorf("expected the read error, got %v", err)
	}
}

// ============================================================================
// WORKBOOK
// ============================================================================

func TestLoadWorkbookIndented(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "Value"); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}

	rows := []struct {
		label  string
		indent int
		values []any
	}{
		{"Global", 0, nil},
		{"By Route", 1, []any{120.0, 150.0}},
		{"Parenteral", 2, []any{80.0, 100.0}},
		{"Intravenous", 3, []any{50.0, 60.04}},
		{"Intramuscular", 3, []any{30.0, 40.0}},
		{"Oral", 2, []any{40.0, 50.0}},
	}
	mustRow(t, f, "Value", 1, []any{"Segment", 2024, 2025})
	for i, r := range rows {
		row := i + 2
		mustRow(t, f, "Value", row, append([]any{r.label}, r.values...))
		if r.indent == 0 {
			continue
		}
		style, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Horizontal: "left", Indent: r.indent}})
		if err != nil {
			t.Fatalf("new style: %v", err)
		}
		ref, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetCellStyle("Value", ref, ref, style); err != nil {
			t.Fatalf("set style: %v", err)
		}
	}

	ds, err := LoadWorkbook(workbookBytes(t, f))
	if err != nil {
		t.Fatalf("LoadWorkbook failed: %v", err)
	}
	if len(ds.Value) != 4 {
		t.Fatalf("expected 4 records, got %d: %v", len(ds.Value), ds.Value)
	}

	p := ds.Value[0]
	if p.Segment != "Parenteral" || !p.IsAggregated || p.SegmentType != "By Route" {
		t.Errorf("first record: %+v", p)
	}
	iv := ds.Value[1]
	assertLevel(t, iv, 3)
	assertClose(t, iv.ValueAt(2025), 60, "rounded figure")
	if ds.Value[3].Segment != "Oral" || ds.Value[3].IsAggregated {
		t.Errorf("Oral should be a flat leaf: %+v", ds.Value[3])
	}
}

func TestLoadWorkbookTabular(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	mustRow(t, f, "Sheet1", 1, []any{"Region", "Segment", "Sub-segment", 2024, 2025})
	mustRow(t, f, "Sheet1", 2, []any{"Global", "By Technology", "Micro", 10.0, 12.0})
	mustRow(t, f, "Sheet1", 3, []any{"Volume"})
	mustRow(t, f, "Sheet1", 4, []any{"Region", "Segment", "Sub-segment", 2024, 2025})
	mustRow(t, f, "Sheet1", 5, []any{"Global", "By Technology", "Micro", 1.0, 2.0})

	ds, err := LoadWorkbook(workbookBytes(t, f))
	if err != nil {
		t.Fatalf("LoadWorkbook failed: %v", err)
	}
	if len(ds.Value) != 1 || len(ds.Volume) != 1 {
		t.Fatalf("expected one record per section, got %d/%d", len(ds.Value), len(ds.Volume))
	}
	assertClose(t, ds.Volume[0].ValueAt(2025), 2, "volume figure")
}

func TestLoadWorkbookUnrecognised(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	mustRow(t, f, "Sheet1", 1, []any{"Name", "Score"})

	_, err := LoadWorkbook(workbookBytes(t, f))
	if !errors.Is(err, ErrNoHeader) {
		t.Errorf("expected ErrNoHeader, got %v", err)
	}
}

// ============================================================================
// FILES & NAMES
// ============================================================================

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "value.json")
	if err := os.WriteFile(path, []byte(nestedJSON), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(ds.Value) != 9 {
		t.Errorf("expected 9 records, got %d", len(ds.Value))
	}

	_, err = LoadFile(filepath.Join(dir, "data.parquet"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestNormalizeRegion(t *testing.T) {
	cases := map[string]string{
		"Middle East and Africa":       "Middle East & Africa",
		" Middle East & Africa ":       "Middle East & Africa",
		"Rest of Middle East & Africa": "Rest of Middle East & Africa",
		"Europe":                       "Europe",
	}
	for in, want := range cases {
		if got := NormalizeRegion(in); got != want {
			t.Errorf("NormalizeRegion(%q) = %q, want %q", in, got, want)
		}
	}
}

// ============================================================================
// HELPERS
// ============================================================================

func assertClose(t *testing.T, got, want float64, msg string) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}

func assertLevel(t *testing.T, r engine.DataRecord, want int) {
	t.Helper()
	if l, ok := r.Level(); !ok || l != want {
		t.Errorf("%s: level %v, want %d", r.Segment, r.AggregationLevel, want)
	}
}

func mustRow(t *testing.T, f *excelize.File, sheet string, row int, values []any) {
	t.Helper()
	ref, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		t.Fatalf("cell name: %v", err)
	}
	if err := f.SetSheetRow(sheet, ref, &values); err != nil {
		t.Fatalf("set row %d: %v", row, err)
	}
}

func workbookBytes(t *testing.T, f *excelize.File) *bytes.Reader {
	t.Helper()
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}
