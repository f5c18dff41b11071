package engine

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// ============================================================================
// EXECUTOR — Filter, Dispatch, Summarise
// ============================================================================
// Entry point: Execute(query, records, opts...)
//
// Pipeline:
//   1. Normalise the filter state
//   2. Filter records (shared level resolver)
//   3. Dispatch to builder (bar / line / table / waterfall / intelligent)
//   4. Attach totals, top performers, fastest growing, headline text
//   5. Return Result
//
// Every call is a pure function of (records, query, options).
// ============================================================================

// DefaultTopN bounds the top-performer and fastest-growing listings.
const DefaultTopN = 5

// Execute runs a Query against records and returns a render-ready Result.
// The only error is an unknown chart kind; no match is an Empty result.
func Execute(query Query, records []DataRecord, opts ...Option) (*Result, error) {
	cfg := applyOptions(opts)
	filters := NormalizeFilterState(query.Filters)

	kind := query.Chart
	if kind == "" {
		kind = ChartAuto
	}
	if !validChartKind(kind) {
		return nil, fmt.Errorf("unknown chart kind %q", query.Chart)
	}

	log := cfg.Log.WithFields(logrus.Fields{
		"chart":        kind,
		"segment_type": filters.SegmentType,
		"view_mode":    filters.ViewMode.String(),
	})
	log.WithField("records", len(records)).Debug("engine: execute")

	filtered := Materialize(filterView(NewSliceView(records), filters, cfg))
	result := &Result{Chart: kind, RecordCount: len(filtered)}
	if level, ok := cfg.Resolver(records, filters); ok {
		result.Level = LevelPtr(level)
	}

	if len(filtered) == 0 {
		result.Empty = true
		result.Reply = BuildReply(nil)
		log.Debug("engine: no records after filtering")
		return result, nil
	}

	ctx := newShapeContext(filtered, filters, cfg)
	if kind == ChartAuto {
		kind = ChartBar
		if !ctx.hasLevel {
			kind = ChartIntelligent
		}
		result.Chart = kind
	}

	var headline *seriesSet
	switch kind {
	case ChartBar:
		headline = buildSeries(ctx, query.Stacked)
	case ChartLine:
		headline = buildSeries(ctx, false)
	case ChartTable:
		result.Table = buildTable(ctx)
		headline = buildSeries(ctx, false)
	case ChartWaterfall:
		result.Waterfall = buildWaterfall(ctx)
		headline = buildSeries(ctx, false)
	case ChartIntelligent:
		headline = buildIntelligent(ctx)
	}
	if kind == ChartBar || kind == ChartLine || kind == ChartIntelligent {
		result.Series = headline.names()
		result.Data = headline.points(ctx.years)
	}

	topN := query.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	if len(ctx.years) > 0 {
		last := ctx.years[len(ctx.years)-1]
		result.Totals = CalculateTotals(ctx.records, last)
		result.TopPerformers = TopPerformers(ctx.records, last, topN)
	}
	result.FastestGrowing = FastestGrowing(ctx.records, topN)
	result.Text = BuildText(headline.points(ctx.years), len(filtered))
	result.Reply = BuildReply(result.Text)

	log.WithFields(logrus.Fields{
		"filtered": len(filtered),
		"series":   len(headline.keys),
	}).Debug("engine: execute done")
	return result, nil
}

func validChartKind(k ChartKind) bool {
	switch k {
	case ChartBar, ChartLine, ChartTable, ChartWaterfall, ChartIntelligent, ChartAuto:
		return true
	}
	return false
}

// ============================================================================
// FILTER STATE NORMALIZATION
// ============================================================================

// NormalizeFilterState applies deterministic cleanup to a FilterState:
//   - geographies and segments trimmed, empties dropped, duplicates removed
//   - advanced selections trimmed and deduplicated
//   - a plain segment that is an advanced pick of another scheme is dropped
//   - an inverted year range is swapped
//   - a non-positive aggregation level means "unspecified"
//   - data type defaults to value; business type is upper-cased, unknown → ""
func NormalizeFilterState(f FilterState) FilterState {
	out := f
	out.SegmentType = strings.TrimSpace(f.SegmentType)
	out.Geographies = cleanList(f.Geographies)

	adv := make([]SegmentSelection, 0, len(f.AdvancedSegments))
	for _, s := range f.AdvancedSegments {
		s.Type, s.Segment = strings.TrimSpace(s.Type), strings.TrimSpace(s.Segment)
		if s.Segment != "" {
			adv = append(adv, s)
		}
	}
	out.AdvancedSegments = lo.Uniq(adv)

	foreign := make(map[string]struct{})
	for _, s := range out.AdvancedSegments {
		if s.Type != "" && s.Type != out.SegmentType {
			foreign[s.Segment] = struct{}{}
		}
	}
	out.Segments = lo.Reject(cleanList(f.Segments), func(s string, _ int) bool {
		_, ok := foreign[s]
		return ok
	})

	for i, y := range out.YearRange {
		if y != 0 {
			out.YearRange[i] = min(max(y, MinYear), MaxYear)
		}
	}
	if out.YearRange[0] > out.YearRange[1] && out.YearRange[1] != 0 {
		out.YearRange[0], out.YearRange[1] = out.YearRange[1], out.YearRange[0]
	}
	if f.AggregationLevel != nil {
		if *f.AggregationLevel > 0 {
			out.AggregationLevel = LevelPtr(*f.AggregationLevel)
		} else {
			out.AggregationLevel = nil
		}
	}

	out.DataType = DataType(strings.ToLower(strings.TrimSpace(string(f.DataType))))
	if out.DataType != DataTypeVolume {
		out.DataType = DataTypeValue
	}
	switch BusinessType(strings.ToUpper(strings.TrimSpace(string(f.BusinessType)))) {
	case BusinessB2B:
		out.BusinessType = BusinessB2B
	case BusinessB2C:
		out.BusinessType = BusinessB2C
	default:
		out.BusinessType = ""
	}
	return out
}
