package engine

import (
	"math"
	"sort"
	"strconv"
)

// ============================================================================
// WATERFALL BUILDER — Start, Per-Group Deltas, End
// ============================================================================

// PrepareWaterfallData emits the start total, positive deltas by descending
// magnitude, negative deltas by descending magnitude, then the end total.
// Groups whose delta is exactly zero are left out.
func PrepareWaterfallData(records []DataRecord, filters FilterState, opts ...Option) []WaterfallItem {
	ctx := newShapeContext(records, filters, applyOptions(opts))
	return buildWaterfall(ctx)
}

type delta struct {
	name  string
	value float64
}

func buildWaterfall(ctx *shapeContext) []WaterfallItem {
	if len(ctx.years) == 0 || len(ctx.records) == 0 {
		return []WaterfallItem{}
	}
	start, end := ctx.years[0], ctx.years[len(ctx.years)-1]

	series := ctx.cells(pickByClass).project(ctx.flatAxis())

	var startTotal, endTotal float64
	var positive, negative []delta
	for _, k := range series.keys {
		s, e := series.values[k][start], series.values[k][end]
		startTotal += s
		endTotal += e
		switch d := e - s; {
		case d > 0:
			positive = append(positive, delta{k.String(), d})
		case d < 0:
			negative = append(negative, delta{k.String(), d})
		}
	}

	byMagnitude := func(ds []delta) {
		sort.SliceStable(ds, func(i, j int) bool { return math.Abs(ds[i].value) > math.Abs(ds[j].value) })
	}
	byMagnitude(positive)
	byMagnitude(negative)

	items := make([]WaterfallItem, 0, len(positive)+len(negative)+2)
	items = append(items, WaterfallItem{Name: strconv.Itoa(start), Value: RoundTo2(startTotal), Type: WaterfallStart})
	for _, d := range positive {
		items = append(items, WaterfallItem{Name: d.name, Value: RoundTo2(d.value), Type: WaterfallPositive})
	}
	for _, d := range negative {
		items = append(items, WaterfallItem{Name: d.name, Value: RoundTo2(math.Abs(d.value)), Type: WaterfallNegative})
	}
	items = append(items, WaterfallItem{Name: strconv.Itoa(end), Value: RoundTo2(endTotal), Type: WaterfallEnd})
	return items
}
