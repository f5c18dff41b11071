package engine

import (
	"math"

	"github.com/samber/lo"
)

// ============================================================================
// TABLE BUILDER — One Row per (Geography, Segment)
// ============================================================================
// Same cells as the chart builder, so a table and a chart of one filter
// never disagree. Each row carries both endpoint values, growth, CAGR and
// the full per-year sequence for sparklines.
// ============================================================================

// PrepareTableData shapes filtered records into table rows.
func PrepareTableData(records []DataRecord, filters FilterState, opts ...Option) []TableRow {
	ctx := newShapeContext(records, filters, applyOptions(opts))
	return buildTable(ctx)
}

func buildTable(ctx *shapeContext) []TableRow {
	if len(ctx.years) == 0 {
		return []TableRow{}
	}
	base, forecast := ctx.years[0], ctx.years[len(ctx.years)-1]

	t := ctx.cells(pickByClass)
	rows := make([]TableRow, 0, len(t.order))
	for _, k := range t.order {
		vals := t.values[k]
		row := TableRow{
			Geography:     k.geo,
			Segment:       k.seg,
			BaseYear:      base,
			ForecastYear:  forecast,
			BaseValue:     RoundTo2(vals[base]),
			ForecastValue: RoundTo2(vals[forecast]),
			Growth:        RoundTo2(growthPercent(vals[base], vals[forecast])),
			CAGR:          RoundTo2(rowCAGR(t.sources[k], vals[base], vals[forecast], forecast-base)),
			Sparkline:     make([]YearValue, 0, len(ctx.years)),
		}
		for _, y := range ctx.years {
			row.Sparkline = append(row.Sparkline, YearValue{Year: y, Value: RoundTo2(vals[y])})
		}
		rows = append(rows, row)
	}
	return rows
}

// growthPercent is (forecast-base)/base*100, 0 when base is 0.
func growthPercent(base, forecast float64) float64 {
	if base == 0 {
		return 0
	}
	return (forecast - base) / base * 100
}

// rowCAGR is the mean precomputed CAGR of the aggregated sources. Rows built
// only from leaves fall back to the growth rate between the endpoints.
func rowCAGR(sources []source, base, forecast float64, years int) float64 {
	aggregated := lo.Filter(sources, func(s source, _ int) bool { return s.rec.IsAggregated })
	if len(aggregated) > 0 {
		return lo.SumBy(aggregated, func(s source) float64 { return s.rec.CAGR }) / float64(len(aggregated))
	}
	return CAGR(base, forecast, years)
}

// CAGR is the compound annual growth rate in percent over years periods.
// Non-positive endpoints or spans yield 0.
func CAGR(first, last float64, years int) float64 {
	if first <= 0 || last <= 0 || years <= 0 {
		return 0
	}
	return (math.Pow(last/first, 1/float64(years)) - 1) * 100
}
