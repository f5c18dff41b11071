package engine

import (
	"fmt"
	"math"
	"strconv"
)

// ============================================================================
// TEXT BUILDER — Headline Figure and Growth Narrative
// ============================================================================

// BuildText summarises series into the headline total at the last year
// and its growth since the first.
func BuildText(series []ChartDataPoint, count int) *TextData {
	if len(series) == 0 {
		return &TextData{Value: "0", Period: "No data", Count: count}
	}

	first, last := series[0], series[len(series)-1]
	start, end := sumValues(first.Values), sumValues(last.Values)

	period := strconv.Itoa(first.Year)
	if last.Year != first.Year {
		period = fmt.Sprintf("%d – %d", first.Year, last.Year)
	}

	text := &TextData{
		Value:    strconv.FormatFloat(RoundTo2(end), 'f', 2, 64),
		RawValue: RoundTo2(end),
		Period:   period,
		Count:    count,
	}
	if last.Year == first.Year {
		return text
	}

	change := end - start
	percent := growthPercent(start, end)
	direction := "unchanged"
	if percent > 0.5 {
		direction = "increased"
	} else if percent < -0.5 {
		direction = "decreased"
	}

	text.Growth = &GrowthData{
		EarliestValue:  RoundTo2(start),
		LatestValue:    RoundTo2(end),
		EarliestPeriod: strconv.Itoa(first.Year),
		LatestPeriod:   strconv.Itoa(last.Year),
		ChangeAmount:   RoundTo2(change),
		ChangePercent:  RoundTo2(percent),
		CAGR:           RoundTo2(CAGR(start, end, last.Year-first.Year)),
		Direction:      direction,
	}
	return text
}

// BuildReply renders a one-line description of text.
func BuildReply(text *TextData) string {
	if text == nil || text.Count == 0 {
		return "No records match the selected filters."
	}
	g := text.Growth
	if g == nil {
		return fmt.Sprintf("Total %s in %s across %d records.", text.Value, text.Period, text.Count)
	}

	var move string
	switch g.Direction {
	case "increased":
		move = fmt.Sprintf("↑ %.1f%%", g.ChangePercent)
	case "decreased":
		move = fmt.Sprintf("↓ %.1f%%", math.Abs(g.ChangePercent))
	default:
		move = "→ No change"
	}
	return fmt.Sprintf("Total %s from %.2f in %s to %.2f in %s (%s, CAGR %.2f%%).",
		g.Direction, g.EarliestValue, g.EarliestPeriod, g.LatestValue, g.LatestPeriod, move, g.CAGR)
}

func sumValues(values map[string]float64) float64 {
	var total float64
	for _, k := range sortedKeys(values) {
		total += values[k]
	}
	return total
}
