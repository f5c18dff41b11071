package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ============================================================================
// MARKETLENS ENGINE TYPES — Hierarchical Market Time Series
// ============================================================================
// Records arrive already normalised by an ingestion collaborator. The engine
// never mutates them: every call reads a snapshot and builds fresh maps.
// ============================================================================

// GlobalGeography is the literal geography used for worldwide totals.
const GlobalGeography = "Global"

// Regional segment type names. Segments under these schemes are geography names.
const (
	SegmentTypeRegion  = "By Region"
	SegmentTypeState   = "By State"
	SegmentTypeCountry = "By Country"
)

// SeriesSeparator joins primary and secondary names in composite series keys.
const SeriesSeparator = "::"

// ============================================================================
// DATA RECORD
// ============================================================================

// SegmentHierarchy is the ancestor chain of a segment within its scheme.
// Level1 is the top ancestor. Empty string means no entry at that depth.
type SegmentHierarchy struct {
	Level1 string `json:"level_1,omitempty" yaml:"level_1,omitempty"`
	Level2 string `json:"level_2,omitempty" yaml:"level_2,omitempty"`
	Level3 string `json:"level_3,omitempty" yaml:"level_3,omitempty"`
	Level4 string `json:"level_4,omitempty" yaml:"level_4,omitempty"`
	Level5 string `json:"level_5,omitempty" yaml:"level_5,omitempty"`
}

// MaxHierarchyDepth is the deepest supported hierarchy level.
const MaxHierarchyDepth = 5

// At returns the entry at depth 1..5, or "" when out of range.
func (h SegmentHierarchy) At(depth int) string {
	switch depth {
	case 1:
		return h.Level1
	case 2:
		return h.Level2
	case 3:
		return h.Level3
	case 4:
		return h.Level4
	case 5:
		return h.Level5
	}
	return ""
}

// Set stores name at depth 1..5. Out-of-range depths are ignored.
func (h *SegmentHierarchy) Set(depth int, name string) {
	switch depth {
	case 1:
		h.Level1 = name
	case 2:
		h.Level2 = name
	case 3:
		h.Level3 = name
	case 4:
		h.Level4 = name
	case 5:
		h.Level5 = name
	}
}

// Contains reports whether name appears at any depth.
func (h SegmentHierarchy) Contains(name string) bool {
	if name == "" {
		return false
	}
	for d := 1; d <= MaxHierarchyDepth; d++ {
		if h.At(d) == name {
			return true
		}
	}
	return false
}

// Ancestors returns the non-empty entries top-down, excluding self.
// A self-referencing entry (the record's own segment) is not an ancestor.
func (h SegmentHierarchy) Ancestors(self string) []string {
	out := make([]string, 0, MaxHierarchyDepth)
	for d := 1; d <= MaxHierarchyDepth; d++ {
		v := h.At(d)
		if v == "" || v == self {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Depth is the number of real ancestors of self.
func (h SegmentHierarchy) Depth(self string) int {
	return len(h.Ancestors(self))
}

// IsEmpty reports whether no level is populated.
func (h SegmentHierarchy) IsEmpty() bool {
	return h == SegmentHierarchy{}
}

// SegmentLevel is a coarse parent/leaf tag used by dimension listings.
type SegmentLevel string

const (
	SegmentLevelParent SegmentLevel = "parent"
	SegmentLevelLeaf   SegmentLevel = "leaf"
)

// DataRecord is one observed or derived time series for a
// geography × segment type × segment combination.
type DataRecord struct {
	Geography        string           `json:"geography"`
	ParentGeography  string           `json:"parent_geography,omitempty"`
	SegmentType      string           `json:"segment_type"`
	Segment          string           `json:"segment"`
	SegmentHierarchy SegmentHierarchy `json:"segment_hierarchy"`
	AggregationLevel *int             `json:"aggregation_level,omitempty"`
	IsAggregated     bool             `json:"is_aggregated"`
	SegmentLevel     SegmentLevel     `json:"segment_level,omitempty"`
	TimeSeries       map[int]float64  `json:"time_series"`
	CAGR             float64          `json:"cagr"`
}

// ValueAt returns the value for year. Missing years read as 0.
func (r DataRecord) ValueAt(year int) float64 {
	return r.TimeSeries[year]
}

// Level returns the aggregation level, ok=false when unspecified.
func (r DataRecord) Level() (int, bool) {
	if r.AggregationLevel == nil {
		return 0, false
	}
	return *r.AggregationLevel, true
}

// HasLevel reports whether the record sits exactly at level n.
func (r DataRecord) HasLevel(n int) bool {
	l, ok := r.Level()
	return ok && l == n
}

// IsGlobal reports whether the record is a worldwide total.
func (r DataRecord) IsGlobal() bool {
	return r.Geography == GlobalGeography
}

// LevelPtr returns a pointer to n, for building records and filters.
func LevelPtr(n int) *int {
	return &n
}

// ============================================================================
// FILTER STATE
// ============================================================================

// ViewMode selects the primary grouping axis for display.
type ViewMode int

const (
	SegmentMode ViewMode = iota
	GeographyMode
	MatrixMode
)

var viewModeNames = map[ViewMode]string{
	SegmentMode:   "segment-mode",
	GeographyMode: "geography-mode",
	MatrixMode:    "matrix",
}

func (m ViewMode) String() string {
	if s, ok := viewModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ViewMode(%d)", int(m))
}

// ParseViewMode accepts the wire names; anything else is an error.
func ParseViewMode(s string) (ViewMode, error) {
	for m, name := range viewModeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return m, nil
		}
	}
	return SegmentMode, fmt.Errorf("unknown view mode %q", s)
}

func (m ViewMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ViewMode) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = SegmentMode
		return nil
	}
	v, err := ParseViewMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// DataType picks the value or the volume dataset.
type DataType string

const (
	DataTypeValue  DataType = "value"
	DataTypeVolume DataType = "volume"
)

// BusinessType narrows records tagged B2B/B2C at hierarchy level 1.
type BusinessType string

const (
	BusinessB2B BusinessType = "B2B"
	BusinessB2C BusinessType = "B2C"
)

// SegmentSelection is one (segment type, segment) pick.
type SegmentSelection struct {
	Type    string `json:"type" yaml:"type"`
	Segment string `json:"segment" yaml:"segment"`
}

// Years outside [MinYear, MaxYear] are not forecast data.
const (
	MinYear = 1900
	MaxYear = 2200
)

// FilterState is the user's view parameters. Read-only per computation.
type FilterState struct {
	Geographies      []string           `json:"geographies" yaml:"geographies"`
	Segments         []string           `json:"segments" yaml:"segments"`
	AdvancedSegments []SegmentSelection `json:"advancedSegments,omitempty" yaml:"advancedSegments,omitempty"`
	SegmentType      string             `json:"segmentType" yaml:"segmentType"`
	AggregationLevel *int               `json:"aggregationLevel" yaml:"aggregationLevel"`
	ViewMode         ViewMode           `json:"viewMode" yaml:"viewMode"`
	YearRange        [2]int             `json:"yearRange" yaml:"yearRange"`
	DataType         DataType           `json:"dataType" yaml:"dataType"`
	BusinessType     BusinessType       `json:"businessType,omitempty" yaml:"businessType,omitempty"`
}

// GeographyCountries maps a region to its ordered constituent countries.
type GeographyCountries map[string][]string

// RegionOf returns the region listing country, searching regions in sorted order.
func (g GeographyCountries) RegionOf(country string) (string, bool) {
	for _, region := range sortedKeys(g) {
		for _, c := range g[region] {
			if c == country {
				return region, true
			}
		}
	}
	return "", false
}

// IsRegion reports whether name is a key of the table.
func (g GeographyCountries) IsRegion(name string) bool {
	_, ok := g[name]
	return ok
}

// ============================================================================
// OUTPUT TYPES
// ============================================================================

// SeriesKey identifies a series. Secondary is empty for flat series.
type SeriesKey struct {
	Primary   string
	Secondary string
}

// String flattens the key to its wire form, "A" or "A::B".
func (k SeriesKey) String() string {
	if k.Secondary == "" {
		return k.Primary
	}
	return k.Primary + SeriesSeparator + k.Secondary
}

// Label is the series name used in ChartDataPoint rows. A series that
// would flatten to the reserved "year" column is written as "Year".
func (k SeriesKey) Label() string {
	if s := k.String(); s != YearField {
		return s
	}
	return "Year"
}

// SplitSeriesKey recovers primary and secondary names from a wire key.
func SplitSeriesKey(s string) SeriesKey {
	if p, sec, ok := strings.Cut(s, SeriesSeparator); ok {
		return SeriesKey{Primary: p, Secondary: sec}
	}
	return SeriesKey{Primary: s}
}

// YearField is the ChartDataPoint column holding the year.
const YearField = "year"

// ChartDataPoint is one chart row: a year plus one value per series.
// It marshals flat: {"year": 2025, "North America": 400}.
type ChartDataPoint struct {
	Year   int
	Values map[string]float64
}

func (p ChartDataPoint) MarshalJSON() ([]byte, error) {
	if _, ok := p.Values[YearField]; ok {
		return nil, fmt.Errorf("series %q collides with the year column", YearField)
	}
	flat := make(map[string]any, len(p.Values)+1)
	for k, v := range p.Values {
		flat[k] = v
	}
	flat[YearField] = p.Year
	return json.Marshal(flat)
}

func (p *ChartDataPoint) UnmarshalJSON(b []byte) error {
	var flat map[string]float64
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	p.Year = int(flat[YearField])
	delete(flat, YearField)
	p.Values = flat
	return nil
}

// WaterfallType tags a waterfall bar.
type WaterfallType string

const (
	WaterfallStart    WaterfallType = "start"
	WaterfallPositive WaterfallType = "positive"
	WaterfallNegative WaterfallType = "negative"
	WaterfallEnd      WaterfallType = "end"
)

// WaterfallItem is one bar. Negative deltas carry their absolute magnitude.
type WaterfallItem struct {
	Name  string        `json:"name"`
	Value float64       `json:"value"`
	Type  WaterfallType `json:"type"`
}

// TableRow is one (geography, segment) line of the table view.
type TableRow struct {
	Geography     string      `json:"geography"`
	Segment       string      `json:"segment"`
	BaseYear      int         `json:"baseYear"`
	ForecastYear  int         `json:"forecastYear"`
	BaseValue     float64     `json:"baseValue"`
	ForecastValue float64     `json:"forecastValue"`
	Growth        float64     `json:"growth"`
	CAGR          float64     `json:"cagr"`
	Sparkline     []YearValue `json:"sparkline"`
}

// YearValue is one point of a per-year sequence.
type YearValue struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// Totals is the summary of a filtered set at one year.
type Totals struct {
	Total   float64 `json:"total"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// Performer is a named value, used by top-N listings.
type Performer struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// GrowthLeader is a named growth rate.
type GrowthLeader struct {
	Name string  `json:"name"`
	CAGR float64 `json:"cagr"`
}

// TextData is the headline figure of a result: the total at the last year
// plus its movement since the first.
type TextData struct {
	Value    string      `json:"value"`
	RawValue float64     `json:"rawValue"`
	Period   string      `json:"period"`
	Count    int         `json:"count"`
	Growth   *GrowthData `json:"growth,omitempty"`
}

// GrowthData describes the change between the endpoint years.
type GrowthData struct {
	EarliestValue  float64 `json:"earliestValue"`
	LatestValue    float64 `json:"latestValue"`
	EarliestPeriod string  `json:"earliestPeriod"`
	LatestPeriod   string  `json:"latestPeriod"`
	ChangeAmount   float64 `json:"changeAmount"`
	ChangePercent  float64 `json:"changePercent"`
	CAGR           float64 `json:"cagr"`
	Direction      string  `json:"direction"` // "increased", "decreased", "unchanged"
}

// ============================================================================
// RESULT — Render-ready output of Execute
// ============================================================================

// ChartKind selects the shaper Execute dispatches to.
type ChartKind string

const (
	ChartBar         ChartKind = "bar"
	ChartLine        ChartKind = "line"
	ChartTable       ChartKind = "table"
	ChartWaterfall   ChartKind = "waterfall"
	ChartIntelligent ChartKind = "intelligent"
	ChartAuto        ChartKind = "auto"
)

// Query is the Execute input beyond the records themselves.
type Query struct {
	Filters FilterState `json:"filters" yaml:"filters"`
	Chart   ChartKind   `json:"chart" yaml:"chart"`
	Stacked bool        `json:"stacked" yaml:"stacked"`
	TopN    int         `json:"topN" yaml:"topN"`
}

// Result is the engine's render-ready output.
type Result struct {
	Chart       ChartKind        `json:"chart"`
	Level       *int             `json:"aggregationLevel"`
	RecordCount int              `json:"recordCount"`
	Series      []string         `json:"series,omitempty"`
	Data        []ChartDataPoint `json:"data,omitempty"`
	Table       []TableRow       `json:"table,omitempty"`
	Waterfall   []WaterfallItem  `json:"waterfall,omitempty"`

	Text  *TextData `json:"text,omitempty"`
	Reply string    `json:"reply"`

	Totals         Totals         `json:"totals"`
	TopPerformers  []Performer    `json:"topPerformers,omitempty"`
	FastestGrowing []GrowthLeader `json:"fastestGrowing,omitempty"`

	// Empty is true when no record survived filtering.
	Empty bool `json:"empty"`
}
