package ingest

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/spektr-org/marketlens/engine"
)

// ============================================================================
// SEGMENT TREE — Ordered geography → segment type → segment tiers
// ============================================================================
// Insertion order is kept everywhere so records come out in source order.
// A node with figures AND children becomes an aggregated record; a node
// without figures only names its children's ancestor.
// ============================================================================

// topLevel is the aggregation level of first-tier segments. Level 1 is
// reserved for geography totals.
const topLevel = 2

type node struct {
	name     string
	series   map[int]float64
	children []*node
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	c := &node{name: name}
	n.children = append(n.children, c)
	return c
}

func (n *node) set(year int, value float64) {
	if n.series == nil {
		n.series = make(map[int]float64)
	}
	n.series[year] = value
}

type typeKey struct{ geo, segmentType string }

type sheet struct {
	geos  []string
	types map[string][]string
	tops  map[typeKey]*node // root holder; its children are the top tier
}

func newSheet() *sheet {
	return &sheet{
		types: make(map[string][]string),
		tops:  make(map[typeKey]*node),
	}
}

// node returns the node at chain under geo × segmentType, creating it and
// every missing ancestor on the way.
func (s *sheet) node(geo, segmentType string, chain []string) *node {
	geo = NormalizeRegion(geo)
	segmentType = strings.TrimSpace(segmentType)
	key := typeKey{geo, segmentType}

	root, ok := s.tops[key]
	if !ok {
		if _, seen := s.types[geo]; !seen {
			s.geos = append(s.geos, geo)
		}
		s.types[geo] = append(s.types[geo], segmentType)
		root = &node{}
		s.tops[key] = root
	}

	regional := engine.IsRegionalSegmentType(segmentType)
	n := root
	for _, name := range chain {
		name = strings.TrimSpace(name)
		if regional {
			name = NormalizeRegion(name)
		}
		n = n.child(name)
	}
	return n
}

func (s *sheet) empty() bool {
	return len(s.geos) == 0
}

// records flattens the tree in insertion order.
func (s *sheet) records() []engine.DataRecord {
	var out []engine.DataRecord
	for _, geo := range s.geos {
		for _, segmentType := range s.types[geo] {
			root := s.tops[typeKey{geo, segmentType}]
			out = flatten(out, geo, segmentType, root.children, nil)
		}
	}
	return out
}

func flatten(out []engine.DataRecord, geo, segmentType string, nodes []*node, chain []string) []engine.DataRecord {
	for _, n := range nodes {
		path := append(append(make([]string, 0, len(chain)+1), chain...), n.name)
		switch {
		case len(n.children) == 0:
			out = append(out, newRecord(geo, segmentType, path, n.series, false))
		case n.series != nil:
			out = append(out, newRecord(geo, segmentType, path, n.series, true))
			out = flatten(out, geo, segmentType, n.children, path)
		default:
			out = flatten(out, geo, segmentType, n.children, path)
		}
	}
	return out
}

// newRecord builds one record. The hierarchy runs level_1 = top tier down
// to the segment itself; a flat leaf therefore references itself.
func newRecord(geo, segmentType string, path []string, series map[int]float64, aggregated bool) engine.DataRecord {
	var h engine.SegmentHierarchy
	for i, name := range path {
		h.Set(i+1, name)
	}

	ts := make(map[int]float64, len(series))
	for y, v := range series {
		ts[y] = v
	}

	level := engine.SegmentLevelLeaf
	if aggregated {
		level = engine.SegmentLevelParent
	}

	return engine.DataRecord{
		Geography:        geo,
		SegmentType:      segmentType,
		Segment:          path[len(path)-1],
		SegmentHierarchy: h,
		AggregationLevel: engine.LevelPtr(topLevel + len(path) - 1),
		IsAggregated:     aggregated,
		SegmentLevel:     level,
		TimeSeries:       ts,
		CAGR:             seriesCAGR(ts),
	}
}

// seriesCAGR is the growth rate between the first and last year present.
func seriesCAGR(ts map[int]float64) float64 {
	if len(ts) < 2 {
		return 0
	}
	years := lo.Keys(ts)
	sort.Ints(years)
	first, last := years[0], years[len(years)-1]
	return engine.RoundTo2(engine.CAGR(ts[first], ts[last], last-first))
}

// parseYear accepts "2025" and spreadsheet renderings like "2025.0".
func parseYear(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f != math.Trunc(f) || f < engine.MinYear || f > engine.MaxYear {
		return 0, false
	}
	return int(f), true
}

// parseNumber reads a cell value, tolerating thousands separators.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// round1 keeps one decimal, the precision spreadsheets are published at.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
