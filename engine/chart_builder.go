package engine

// ============================================================================
// CHART BUILDER — Grouped-Bar and Line Series per Year
// ============================================================================
// Series axis by view mode:
//   segment-mode   → segment (child → parent at level 2, selection otherwise)
//   geography-mode → geography (country → selected region)
//   matrix         → geography::segment
// Level 1 collapses every mode to one series per geography.
// ============================================================================

// PrepareGroupedBarData shapes filtered records into one row per year.
// With stacked set, segment-mode over several geographies and geography-mode
// over several selected segments emit "primary::secondary" series.
func PrepareGroupedBarData(records []DataRecord, filters FilterState, stacked bool, opts ...Option) []ChartDataPoint {
	ctx := newShapeContext(records, filters, applyOptions(opts))
	return buildSeries(ctx, stacked).points(ctx.years)
}

// PrepareLineData shapes filtered records into unstacked series per year.
func PrepareLineData(records []DataRecord, filters FilterState, opts ...Option) []ChartDataPoint {
	return PrepareGroupedBarData(records, filters, false, opts...)
}

func buildSeries(ctx *shapeContext, stacked bool) *seriesSet {
	a := ctx.flatAxis()
	if stacked {
		if sa, ok := ctx.stackedAxis(); ok {
			a = sa
		}
	}
	return ctx.cells(pickByClass).project(a)
}
