package schema

import (
	"errors"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/spektr-org/marketlens/engine"
)

// ============================================================================
// AUTO-DISCOVERY — Dataset shape from loaded records
// ============================================================================
// Walks the records once per concern:
//   1. years → first/last year present
//   2. geographies → first-seen order, parent from parent_geography or the
//      region table
//   3. segment types → segments with parent, level and aggregated flag
//   4. cardinality hints for selector rendering
// ============================================================================

// ErrNoRecords is returned when there is nothing to discover from.
var ErrNoRecords = errors.New("no records to discover from")

// DiscoverOptions controls discovery behavior.
type DiscoverOptions struct {
	Name    string                    // Dataset name override
	Source  string                    // Recorded as DiscoveredFrom
	Regions engine.GeographyCountries // Region table; derived from the records when nil
	Volume  bool                      // A volume dataset is available too
}

// Discover generates a Config by inspecting records.
func Discover(records []engine.DataRecord, opts ...DiscoverOptions) (*Config, error) {
	var opt DiscoverOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	regions := opt.Regions
	if len(regions) == 0 {
		regions = engine.ResolveGeographyCountries(engine.DeriveGeographyCountries(records))
	}

	config := &Config{
		Name:           opt.Name,
		Version:        "1.0",
		Years:          discoverYears(records),
		DataTypes:      []engine.DataType{engine.DataTypeValue},
		Geographies:    discoverGeographies(records, regions),
		SegmentTypes:   discoverSegmentTypes(records),
		Regions:        regions,
		DiscoveredFrom: opt.Source,
		DiscoveredAt:   time.Now().Format(time.RFC3339),
	}
	if config.Name == "" {
		config.Name = "Auto-discovered Dataset"
	}
	if opt.Volume {
		config.DataTypes = append(config.DataTypes, engine.DataTypeVolume)
	}
	return config, nil
}

func discoverYears(records []engine.DataRecord) YearSpan {
	var span YearSpan
	for _, r := range records {
		for y := range r.TimeSeries {
			if span.First == 0 || y < span.First {
				span.First = y
			}
			if y > span.Last {
				span.Last = y
			}
		}
	}
	return span
}

func discoverGeographies(records []engine.DataRecord, regions engine.GeographyCountries) []GeographyMeta {
	names := engine.UniqueGeographies(records)
	parents := make(map[string]string)
	for _, r := range records {
		if r.ParentGeography != "" {
			parents[r.Geography] = r.ParentGeography
		}
	}

	out := make([]GeographyMeta, 0, len(names))
	for _, name := range names {
		g := GeographyMeta{Name: name, IsRegion: regions.IsRegion(name), Parent: parents[name]}
		if g.Parent == "" && !g.IsRegion {
			g.Parent, _ = regions.RegionOf(name)
		}
		out = append(out, g)
	}
	return out
}

func discoverSegmentTypes(records []engine.DataRecord) []SegmentTypeMeta {
	byType := lo.GroupBy(records, func(r engine.DataRecord) string { return r.SegmentType })

	out := make([]SegmentTypeMeta, 0, len(byType))
	for _, name := range engine.UniqueSegmentTypes(records) {
		t := SegmentTypeMeta{
			Name:     name,
			Regional: engine.IsRegionalSegmentType(name),
		}

		seen := make(map[string]int) // segment → index in t.Segments
		levels := make(map[int]bool)
		for _, r := range byType[name] {
			level, _ := r.Level()
			if level > 0 {
				levels[level] = true
			}
			if i, ok := seen[r.Segment]; ok {
				t.Segments[i].Aggregated = t.Segments[i].Aggregated || r.IsAggregated
				continue
			}
			seen[r.Segment] = len(t.Segments)
			t.Segments = append(t.Segments, SegmentMeta{
				Name:       r.Segment,
				Parent:     directParent(r),
				Level:      level,
				Aggregated: r.IsAggregated,
			})
		}

		t.Levels = lo.Keys(levels)
		sort.Ints(t.Levels)
		t.CardinalityHint = cardinalityHint(len(t.Segments))
		out = append(out, t)
	}
	return out
}

// directParent is the nearest real ancestor of the record's segment.
func directParent(r engine.DataRecord) string {
	ancestors := r.SegmentHierarchy.Ancestors(r.Segment)
	if len(ancestors) == 0 {
		return ""
	}
	return ancestors[len(ancestors)-1]
}

func cardinalityHint(n int) string {
	switch {
	case n <= 10:
		return "low"
	case n <= 50:
		return "medium"
	default:
		return "high"
	}
}
