package engine

import (
	"sort"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// ============================================================================
// SHAPER PREAMBLE — State Shared by Every Chart Shaper
// ============================================================================
// Shapers may be handed records the filter already narrowed, so the level is
// re-resolved here with the same resolver the filter used. The preamble also
// settles the year span, the Global fallback, and whether Global-only data
// has to be spread across the selected geographies.
// ============================================================================

type shapeContext struct {
	cfg     *config
	filters FilterState
	mode    ViewMode

	regional bool
	level    int
	hasLevel bool

	selections []string
	geos       []string
	geoSet     map[string]struct{}

	years   []int
	records []DataRecord

	distribute bool
	shares     map[int]map[string]float64
}

func newShapeContext(records []DataRecord, filters FilterState, cfg *config) *shapeContext {
	level, ok := cfg.Resolver(records, filters)
	geos := cleanList(filters.Geographies)
	c := &shapeContext{
		cfg:        cfg,
		filters:    filters,
		mode:       filters.ViewMode,
		regional:   IsRegionalSegmentType(filters.SegmentType),
		level:      level,
		hasLevel:   ok,
		selections: activeSelections(records, filters),
		geos:       geos,
		geoSet:     toSet(geos),
		years:      yearSpan(filters.YearRange, records),
	}
	c.records = c.pruneGeographies(records)
	c.distribute = c.needsDistribution()
	if c.distribute {
		c.shares = make(map[int]map[string]float64, len(c.years))
		for _, y := range c.years {
			c.shares[y] = cfg.Distributor.Shares(cfg.Reference, geos, y, cfg.Geographies)
		}
	}

	cfg.Log.WithFields(logrus.Fields{
		"records":    len(c.records),
		"view_mode":  c.mode.String(),
		"level":      levelField(c.level, c.hasLevel),
		"years":      len(c.years),
		"distribute": c.distribute,
	}).Debug("engine: shape")
	return c
}

// levelOne reports whether every segment is already totalled per geography.
func (c *shapeContext) levelOne() bool {
	return c.hasLevel && c.level == 1
}

// pruneGeographies keeps one geographic representation of the data.
// With a selection, Global fallback records go once real regional records
// exist. Without one, Global wins, then the roots of the geography forest.
func (c *shapeContext) pruneGeographies(records []DataRecord) []DataRecord {
	hasGlobal := lo.ContainsBy(records, func(r DataRecord) bool { return r.IsGlobal() })
	hasOther := lo.ContainsBy(records, func(r DataRecord) bool { return !r.IsGlobal() })

	if len(c.geos) > 0 {
		if _, ok := c.geoSet[GlobalGeography]; ok || !hasGlobal || !hasOther {
			return records
		}
		return lo.Reject(records, func(r DataRecord, _ int) bool { return r.IsGlobal() })
	}

	if hasGlobal {
		return lo.Filter(records, func(r DataRecord, _ int) bool { return r.IsGlobal() })
	}
	present := toSet(lo.Map(records, func(r DataRecord, _ int) string { return r.Geography }))
	return lo.Reject(records, func(r DataRecord, _ int) bool {
		if _, ok := present[r.ParentGeography]; ok && r.ParentGeography != r.Geography {
			return true
		}
		if region, ok := c.cfg.Geographies.RegionOf(r.Geography); ok && region != r.Geography {
			_, ok := present[region]
			return ok
		}
		return false
	})
}

// needsDistribution: geography-mode, a non-Global pick, Global-only data,
// and Global itself not picked.
func (c *shapeContext) needsDistribution() bool {
	if c.mode != GeographyMode || len(c.records) == 0 {
		return false
	}
	if _, ok := c.geoSet[GlobalGeography]; ok {
		return false
	}
	if !lo.ContainsBy(c.geos, func(g string) bool { return g != GlobalGeography }) {
		return false
	}
	return lo.EveryBy(c.records, func(r DataRecord) bool { return r.IsGlobal() })
}

// displayGeography maps a record's geography onto the axis the user sees:
// itself when selected, else its selected parent or region.
func (c *shapeContext) displayGeography(r DataRecord) string {
	geo := r.Geography
	if len(c.geoSet) == 0 {
		return geo
	}
	if _, ok := c.geoSet[geo]; ok {
		return geo
	}
	if _, ok := c.geoSet[r.ParentGeography]; ok && r.ParentGeography != "" {
		return r.ParentGeography
	}
	for _, g := range c.geos {
		if lo.Contains(c.cfg.Geographies[g], geo) {
			return g
		}
	}
	return geo
}

// displaySegment maps a record onto the segment axis: the selection it
// belongs to, else its ancestor at the resolved level, else itself.
func (c *shapeContext) displaySegment(r DataRecord) string {
	if c.levelOne() {
		return totalLabel
	}
	if len(c.selections) > 0 {
		if s := selectedAncestor(r, c.selections, c.regional); s != "" {
			return s
		}
	}
	if c.hasLevel && c.level >= 2 && !r.HasLevel(c.level) {
		if a := rollupAnchor(r, c.level); a != "" {
			return a
		}
	}
	return r.Segment
}

// totalLabel names the segment of a level-1 geography total.
const totalLabel = "Total"

// ============================================================================
// CELL TABLE — one source class per (geography, segment) cell
// ============================================================================

type cellKey struct {
	geo, seg string
}

type source struct {
	rec      DataRecord
	class    int
	shareGeo string // non-empty when the value is a distributed Global share
}

type cellTable struct {
	order   []cellKey
	sources map[cellKey][]source
	values  map[cellKey]map[int]float64
}

// pickFunc narrows a cell's sources to the ones that represent it.
type pickFunc func(c *shapeContext, key cellKey, sources []source) []source

// cells groups the context's records into display cells, picks one
// representation per cell, and sums the picked sources per year.
func (c *shapeContext) cells(pick pickFunc) *cellTable {
	t := &cellTable{
		sources: make(map[cellKey][]source),
		values:  make(map[cellKey]map[int]float64),
	}
	add := func(k cellKey, s source) {
		if _, ok := t.sources[k]; !ok {
			t.order = append(t.order, k)
		}
		t.sources[k] = append(t.sources[k], s)
	}

	for _, r := range c.records {
		seg := c.displaySegment(r)
		if seg == "" {
			continue
		}
		if c.distribute {
			for _, g := range c.geos {
				if g != GlobalGeography {
					add(cellKey{g, seg}, source{rec: r, class: sourceClass(r, r.Geography == g, seg), shareGeo: g})
				}
			}
			continue
		}
		geo := c.displayGeography(r)
		add(cellKey{geo, seg}, source{rec: r, class: sourceClass(r, r.Geography == geo, seg)})
	}

	for _, k := range t.order {
		picked := pick(c, k, t.sources[k])
		t.sources[k] = picked
		vals := make(map[int]float64, len(c.years))
		for _, y := range c.years {
			for _, s := range picked {
				vals[y] += c.valueOf(s, y)
			}
		}
		t.values[k] = vals
	}
	return t
}

func (c *shapeContext) valueOf(s source, year int) float64 {
	v := s.rec.ValueAt(year)
	if s.shareGeo != "" {
		v *= c.shares[year][s.shareGeo]
	}
	return v
}

// sourceClass ranks how directly a record describes its cell: 0 both axes
// direct, 1 geography direct, 2 segment direct, 3 both rolled up.
func sourceClass(r DataRecord, geoDirect bool, seg string) int {
	segDirect := r.Segment == seg
	switch {
	case geoDirect && segDirect:
		return 0
	case geoDirect:
		return 1
	case segDirect:
		return 2
	}
	return 3
}

// pickByClass keeps the most direct class present. Within it a leaf whose
// aggregated ancestor (same raw geography) is also present is dropped.
func pickByClass(_ *shapeContext, _ cellKey, sources []source) []source {
	best := lo.MinBy(sources, func(a, b source) bool { return a.class < b.class }).class
	inClass := lo.Filter(sources, func(s source, _ int) bool { return s.class == best })

	type owner struct{ geo, seg string }
	aggregated := make(map[owner]bool)
	for _, s := range inClass {
		if s.rec.IsAggregated {
			aggregated[owner{s.rec.Geography, s.rec.Segment}] = true
		}
	}
	return lo.Reject(inClass, func(s source, _ int) bool {
		if s.rec.IsAggregated {
			return false
		}
		return lo.ContainsBy(s.rec.SegmentHierarchy.Ancestors(s.rec.Segment), func(a string) bool {
			return aggregated[owner{s.rec.Geography, a}]
		})
	})
}

// ============================================================================
// SERIES PROJECTION
// ============================================================================

// axis picks which part of a cell names the series.
type axis int

const (
	axisSegment axis = iota
	axisGeography
	axisGeoSegment // matrix: geography::segment
	axisSegmentGeo // stacked segment-mode: segment::geography
)

func (c *shapeContext) flatAxis() axis {
	switch {
	case c.levelOne():
		return axisGeography
	case c.mode == GeographyMode:
		return axisGeography
	case c.mode == MatrixMode:
		return axisGeoSegment
	}
	return axisSegment
}

// stackedAxis is the composite axis when stacking applies, ok=false otherwise.
func (c *shapeContext) stackedAxis() (axis, bool) {
	switch {
	case c.levelOne():
		return 0, false
	case c.mode == SegmentMode && len(c.geos) > 1:
		return axisSegmentGeo, true
	case c.mode == GeographyMode && len(c.selections) > 1:
		return axisGeoSegment, true
	case c.mode == MatrixMode:
		return axisGeoSegment, true
	}
	return 0, false
}

func (a axis) key(k cellKey) SeriesKey {
	switch a {
	case axisGeography:
		return SeriesKey{Primary: k.geo}
	case axisGeoSegment:
		return SeriesKey{Primary: k.geo, Secondary: k.seg}
	case axisSegmentGeo:
		return SeriesKey{Primary: k.seg, Secondary: k.geo}
	}
	return SeriesKey{Primary: k.seg}
}

// seriesSet holds projected series in first-appearance order.
type seriesSet struct {
	keys   []SeriesKey
	values map[SeriesKey]map[int]float64
}

// project sums cells onto the axis.
func (t *cellTable) project(a axis) *seriesSet {
	s := &seriesSet{values: make(map[SeriesKey]map[int]float64)}
	for _, k := range t.order {
		sk := a.key(k)
		vals, ok := s.values[sk]
		if !ok {
			vals = make(map[int]float64)
			s.values[sk] = vals
			s.keys = append(s.keys, sk)
		}
		for y, v := range t.values[k] {
			vals[y] += v
		}
	}
	return s
}

// points flattens the set into chart rows, one per year.
func (s *seriesSet) points(years []int) []ChartDataPoint {
	out := make([]ChartDataPoint, 0, len(years))
	for _, y := range years {
		p := ChartDataPoint{Year: y, Values: make(map[string]float64, len(s.keys))}
		for _, k := range s.keys {
			p.Values[k.Label()] = RoundTo2(s.values[k][y])
		}
		out = append(out, p)
	}
	return out
}

func (s *seriesSet) names() []string {
	return lo.Map(s.keys, func(k SeriesKey, _ int) string { return k.Label() })
}

// ============================================================================
// YEARS
// ============================================================================

// yearSpan is the inclusive span of yr clamped to the years present in
// records; a zero bound is taken from the data. Without data both bounds
// must be set and the span is kept within [MinYear, MaxYear].
func yearSpan(yr [2]int, records []DataRecord) []int {
	start, end := yr[0], yr[1]
	if start > end && end != 0 {
		start, end = end, start
	}
	first, last := dataYears(records)
	if first != 0 {
		if start == 0 || start < first {
			start = first
		}
		if end == 0 || end > last {
			end = last
		}
	} else {
		if start == 0 || end == 0 {
			return nil
		}
		start, end = max(start, MinYear), min(end, MaxYear)
	}
	if start > end || end-start >= MaxYear-MinYear+1 {
		return nil
	}
	years := make([]int, 0, end-start+1)
	for y := start; y <= end; y++ {
		years = append(years, y)
	}
	return years
}

// dataYears returns the smallest and largest year present in any record.
func dataYears(records []DataRecord) (int, int) {
	var all []int
	for _, r := range records {
		for y := range r.TimeSeries {
			all = append(all, y)
		}
	}
	if len(all) == 0 {
		return 0, 0
	}
	sort.Ints(all)
	return all[0], all[len(all)-1]
}
