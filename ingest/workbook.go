package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ============================================================================
// WORKBOOK — Excel sources via excelize
// ============================================================================
// Two layouts are recognised per sheet:
//   - tabular: a "Region | Segment | ..." header (see tabular.go)
//   - indented: a sheet named Value or Volume whose column A labels carry
//     the hierarchy as cell indent. Indent 0 is a geography, 1 a segment
//     type, 2 and deeper are segment tiers. Row 1 holds the years.
// ============================================================================

// LoadWorkbook reads every recognised sheet of an .xlsx workbook.
func LoadWorkbook(r io.Reader) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	value, volume := newSheet(), newSheet()
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}

		if findHeader(rows, 0) >= 0 {
			target := value
			if strings.EqualFold(name, "volume") {
				target = volume
			}
			if err := parseTabular(rows, target, volume); err != nil {
				return nil, fmt.Errorf("sheet %q: %w", name, err)
			}
			continue
		}

		switch {
		case strings.EqualFold(name, "value"):
			err = parseIndented(f, name, rows, value)
		case strings.EqualFold(name, "volume"):
			err = parseIndented(f, name, rows, volume)
		}
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
	}

	if value.empty() && volume.empty() {
		return nil, ErrNoHeader
	}
	return newDataset(value, volume), nil
}

func parseIndented(f *excelize.File, name string, rows [][]string, into *sheet) error {
	if len(rows) == 0 {
		return ErrNoHeader
	}
	years := make(map[int]int)
	for c := 1; c < len(rows[0]); c++ {
		if y, ok := parseYear(rows[0][c]); ok {
			years[c] = y
		}
	}
	if len(years) == 0 {
		return ErrNoHeader
	}

	indents := indentReader{f: f, sheet: name, cache: make(map[int]int)}

	var (
		geo, segmentType string
		stack            []string
	)
	for i := 1; i < len(rows); i++ {
		label := cell(rows[i], 0)
		if label == "" {
			continue
		}
		indent, err := indents.at(i + 1)
		if err != nil {
			return err
		}

		switch indent {
		case 0:
			geo, segmentType, stack = label, "", nil
			continue
		case 1:
			segmentType, stack = label, nil
			continue
		}
		if geo == "" || segmentType == "" {
			continue
		}

		depth := min(indent-2, len(stack))
		stack = append(stack[:depth], label)
		n := into.node(geo, segmentType, stack)

		for c, y := range years {
			if v, ok := parseNumber(cell(rows[i], c)); ok {
				n.set(y, round1(v))
			}
		}
	}
	return nil
}

// indentReader resolves the column A indent of a row, caching per style.
type indentReader struct {
	f     *excelize.File
	sheet string
	cache map[int]int
}

func (r indentReader) at(row int) (int, error) {
	ref, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return 0, err
	}
	styleID, err := r.f.GetCellStyle(r.sheet, ref)
	if err != nil {
		return 0, fmt.Errorf("style of %s: %w", ref, err)
	}
	if indent, ok := r.cache[styleID]; ok {
		return indent, nil
	}

	indent := 0
	style, err := r.f.GetStyle(styleID)
	if err == nil && style != nil && style.Alignment != nil {
		indent = style.Alignment.Indent
	}
	r.cache[styleID] = indent
	return indent, nil
}
