package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ============================================================================
// TABULAR — Region | Segment | Sub-segment [| deeper tiers] | years...
// ============================================================================
// One row per (region, segment type, segment chain). A row whose first cell
// is "Volume" ends the value section; the next header row starts the volume
// section. A second header without the marker also starts it.
// ============================================================================

// columns maps one header row.
type columns struct {
	tiers []int
	years map[int]int // column → year
	order []int
}

// ParseCSV parses a tabular CSV export.
func ParseCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			continue // skip malformed rows
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		rows = append(rows, row)
	}

	value, volume := newSheet(), newSheet()
	if err := parseTabular(rows, value, volume); err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return newDataset(value, volume), nil
}

func parseTabular(rows [][]string, value, volume *sheet) error {
	if findHeader(rows, 0) < 0 {
		return ErrNoHeader
	}

	var (
		cols    *columns
		target  = value
		headers int
	)
	for i, row := range rows {
		if isHeaderRow(row) {
			cols = readColumns(row)
			headers++
			if headers > 1 {
				target = volume
			}
			continue
		}
		if strings.EqualFold(cell(row, 0), "volume") && cell(row, 1) == "" {
			target = volume
			cols = nil // wait for the volume header
			if findHeader(rows, i+1) < 0 {
				return fmt.Errorf("volume section: %w", ErrNoHeader)
			}
			headers = 1
			continue
		}
		if cols == nil {
			continue
		}
		addRow(target, row, cols)
	}
	return nil
}

func addRow(s *sheet, row []string, cols *columns) {
	region, segmentType := cell(row, 0), cell(row, 1)
	if region == "" || segmentType == "" {
		return
	}
	var chain []string
	for _, c := range cols.tiers {
		if v := cell(row, c); v != "" {
			chain = append(chain, v)
		}
	}
	if len(chain) == 0 {
		return
	}

	figures := make(map[int]float64, len(cols.order))
	for _, c := range cols.order {
		if v, ok := parseNumber(cell(row, c)); ok {
			figures[cols.years[c]] = round1(v)
		}
	}
	if len(figures) == 0 {
		return
	}

	n := s.node(region, segmentType, chain)
	for y, v := range figures {
		n.set(y, v)
	}
}

// isHeaderRow matches "Region | Segment | ..." case-insensitively.
func isHeaderRow(row []string) bool {
	return strings.EqualFold(cell(row, 0), "region") && strings.EqualFold(cell(row, 1), "segment")
}

func findHeader(rows [][]string, from int) int {
	for i := from; i < len(rows); i++ {
		if isHeaderRow(rows[i]) {
			return i
		}
	}
	return -1
}

// readColumns: text columns after Segment up to the first year are tiers.
func readColumns(header []string) *columns {
	cols := &columns{years: make(map[int]int)}
	for c := 2; c < len(header); c++ {
		if y, ok := parseYear(header[c]); ok {
			cols.years[c] = y
			cols.order = append(cols.order, c)
			continue
		}
		if len(cols.order) == 0 && strings.TrimSpace(header[c]) != "" {
			cols.tiers = append(cols.tiers, c)
		}
	}
	return cols
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}
