package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/spektr-org/marketlens/engine"
)

// ============================================================================
// INGESTION — Spreadsheet / JSON sources → []engine.DataRecord
// ============================================================================
// Consumer reads the file from wherever it lives (disk, upload, bucket).
// Every format is first read into an ordered segment tree, then flattened
// into records carrying hierarchy chains, aggregation levels and CAGR.
// The engine assumes the shape guaranteed here and never re-validates it.
// ============================================================================

var (
	// ErrNoHeader is returned when no recognisable header row exists.
	ErrNoHeader = errors.New("no header row found")
	// ErrUnsupportedFormat is returned for file types with no reader.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Dataset is one loaded market dataset.
type Dataset struct {
	Value       []engine.DataRecord       `json:"value"`
	Volume      []engine.DataRecord       `json:"volume,omitempty"`
	Geographies engine.GeographyCountries `json:"geographies"`
}

// Records returns the records for dataType. Anything but volume reads value.
func (d *Dataset) Records(dataType engine.DataType) []engine.DataRecord {
	if dataType == engine.DataTypeVolume {
		return d.Volume
	}
	return d.Value
}

// Reference returns the Global "By Region" records of dataType, the
// reference the engine distributes Global-only figures with.
func (d *Dataset) Reference(dataType engine.DataType) []engine.DataRecord {
	return lo.Filter(d.Records(dataType), func(r engine.DataRecord, _ int) bool {
		return r.IsGlobal() && r.SegmentType == engine.SegmentTypeRegion
	})
}

// EngineOptions returns the options that hand this dataset's geography
// table and regional reference to the engine.
func (d *Dataset) EngineOptions(dataType engine.DataType) []engine.Option {
	return []engine.Option{
		engine.WithGeographyCountries(d.Geographies),
		engine.WithReference(d.Reference(dataType)),
	}
}

// LoadFile reads path, picking the reader by extension.
func LoadFile(path string) (*Dataset, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".xlsx", ".xlsm", ".csv":
	default:
		return nil, fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var ds *Dataset
	switch ext {
	case ".json":
		ds, err = ParseJSON(f)
	case ".csv":
		ds, err = ParseCSV(f)
	default:
		ds, err = LoadWorkbook(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

// newDataset flattens both trees and wires geographies. The region table
// comes from the data itself; the legacy table only fills in when the
// dataset publishes no "By Country" breakdown at all.
func newDataset(value, volume *sheet) *Dataset {
	ds := &Dataset{
		Value:  value.records(),
		Volume: volume.records(),
	}
	ds.Geographies = engine.ResolveGeographyCountries(
		engine.DeriveGeographyCountries(append(append([]engine.DataRecord(nil), ds.Value...), ds.Volume...)),
	)
	linkParents(ds.Value, ds.Geographies)
	linkParents(ds.Volume, ds.Geographies)
	return ds
}

func linkParents(records []engine.DataRecord, regions engine.GeographyCountries) {
	for i := range records {
		if records[i].ParentGeography != "" || regions.IsRegion(records[i].Geography) {
			continue
		}
		if region, ok := regions.RegionOf(records[i].Geography); ok {
			records[i].ParentGeography = region
		}
	}
}

// NormalizeRegion maps spelling variants of region names onto one form.
func NormalizeRegion(name string) string {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "middle east") && strings.HasSuffix(lower, "africa") {
		return "Middle East & Africa"
	}
	return name
}
