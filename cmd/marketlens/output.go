package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spektr-org/marketlens/engine"
	"github.com/spektr-org/marketlens/schema"
)

// ============================================================================
// OUTPUT TYPES
// ============================================================================

type cliOutput struct {
	Filters engine.FilterState `json:"filters"`
	Result  *engine.Result     `json:"result"`
}

// ============================================================================
// FILTER STATE INPUT
// ============================================================================

// loadFilters reads a filter state from JSON or YAML. Without a file the
// schema's default view is used: first product scheme, full year span.
func loadFilters(path string, sch *schema.Config) (engine.FilterState, error) {
	var f engine.FilterState
	if path == "" {
		if sch != nil {
			f.SegmentType = sch.DefaultSegmentType()
			f.YearRange = [2]int{sch.Years.First, sch.Years.Last}
		}
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read filters: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return f, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// ============================================================================
// CSV OUTPUT — Result → Sheets-ready CSV
// ============================================================================

func writeCSV(w io.Writer, result *engine.Result) error {
	cw := csv.NewWriter(w)

	switch {
	case result == nil || result.Empty:
		reply := "No data"
		if result != nil {
			reply = result.Reply
		}
		cw.Write([]string{"Summary"})
		cw.Write([]string{reply})
	case len(result.Table) > 0:
		writeTableCSV(cw, result.Table)
	case len(result.Waterfall) > 0:
		writeWaterfallCSV(cw, result.Waterfall)
	case len(result.Data) > 0:
		writeChartCSV(cw, result.Series, result.Data)
	default:
		cw.Write([]string{"Summary"})
		cw.Write([]string{result.Reply})
	}

	cw.Flush()
	return cw.Error()
}

// writeChartCSV: year + one column per series, in series order.
func writeChartCSV(cw *csv.Writer, series []string, data []engine.ChartDataPoint) {
	cw.Write(append([]string{"Year"}, series...))
	for _, p := range data {
		row := []string{strconv.Itoa(p.Year)}
		for _, s := range series {
			row = append(row, fmtNum(p.Values[s]))
		}
		cw.Write(row)
	}
}

func writeTableCSV(cw *csv.Writer, rows []engine.TableRow) {
	cw.Write([]string{"Geography", "Segment", "Base Year", "Base Value", "Forecast Year", "Forecast Value", "Growth %", "CAGR %"})
	for _, r := range rows {
		cw.Write([]string{
			r.Geography, r.Segment,
			strconv.Itoa(r.BaseYear), fmtNum(r.BaseValue),
			strconv.Itoa(r.ForecastYear), fmtNum(r.ForecastValue),
			fmtNum(r.Growth), fmtNum(r.CAGR),
		})
	}
}

func writeWaterfallCSV(cw *csv.Writer, items []engine.WaterfallItem) {
	cw.Write([]string{"Name", "Value", "Type"})
	for _, it := range items {
		cw.Write([]string{it.Name, fmtNum(it.Value), string(it.Type)})
	}
}

// ============================================================================
// JSON / TEXT OUTPUT
// ============================================================================

func writeJSON(w io.Writer, v interface{}, format string) {
	var out []byte
	var err error

	if format == "pretty" {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}

	if err != nil {
		fatalf("Failed to marshal output: %v", err)
	}
	fmt.Fprintln(w, string(out))
}

func writeIssues(w io.Writer, issues []schema.Issue, format string) {
	if format != "text" {
		if issues == nil {
			issues = []schema.Issue{}
		}
		writeJSON(w, issues, format)
		return
	}
	if len(issues) == 0 {
		fmt.Fprintln(w, "No double counting found.")
		return
	}
	for _, is := range issues {
		fmt.Fprintln(w, is.String())
	}
}

func fmtNum(v float64) string {
	// Whole numbers → no decimals, fractional → 2 decimals
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
