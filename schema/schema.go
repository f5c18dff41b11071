package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spektr-org/marketlens/engine"
)

// ============================================================================
// SCHEMA — Describes the shape of a market dataset
// ============================================================================
// Auto-discovered from loaded records, or hand-maintained as YAML next to
// the dataset. Selectors (geographies, segment types, segments per level)
// are built from it; the region table it carries is the one the engine
// distributes with.
// ============================================================================

// Config describes the complete shape of a dataset.
type Config struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Years     YearSpan          `json:"years" yaml:"years"`
	DataTypes []engine.DataType `json:"dataTypes" yaml:"dataTypes"`

	Geographies  []GeographyMeta   `json:"geographies" yaml:"geographies"`
	SegmentTypes []SegmentTypeMeta `json:"segmentTypes" yaml:"segmentTypes"`

	// Regions is region → countries. Consolidated here and passed down,
	// never redefined per consumer.
	Regions engine.GeographyCountries `json:"regions,omitempty" yaml:"regions,omitempty"`

	// Auto-discovery metadata
	DiscoveredFrom string `json:"discoveredFrom,omitempty" yaml:"discoveredFrom,omitempty"`
	DiscoveredAt   string `json:"discoveredAt,omitempty" yaml:"discoveredAt,omitempty"`
}

// YearSpan is the inclusive range of years present.
type YearSpan struct {
	First int `json:"first" yaml:"first"`
	Last  int `json:"last" yaml:"last"`
}

// GeographyMeta describes one geography of the dataset.
type GeographyMeta struct {
	Name     string `json:"name" yaml:"name"`
	Parent   string `json:"parent,omitempty" yaml:"parent,omitempty"`
	IsRegion bool   `json:"isRegion,omitempty" yaml:"isRegion,omitempty"`
}

// SegmentTypeMeta describes one segmentation scheme.
type SegmentTypeMeta struct {
	Name            string        `json:"name" yaml:"name"`
	Regional        bool          `json:"regional,omitempty" yaml:"regional,omitempty"`
	Levels          []int         `json:"levels" yaml:"levels"`
	Segments        []SegmentMeta `json:"segments" yaml:"segments"`
	CardinalityHint string        `json:"cardinalityHint,omitempty" yaml:"cardinalityHint,omitempty"` // "low", "medium", "high"
}

// SegmentMeta describes one segment within a scheme.
type SegmentMeta struct {
	Name       string `json:"name" yaml:"name"`
	Parent     string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Level      int    `json:"level,omitempty" yaml:"level,omitempty"`
	Aggregated bool   `json:"aggregated,omitempty" yaml:"aggregated,omitempty"`
}

// SegmentTypeNames returns all segment type names in dataset order.
func (c Config) SegmentTypeNames() []string {
	names := make([]string, len(c.SegmentTypes))
	for i, t := range c.SegmentTypes {
		names[i] = t.Name
	}
	return names
}

// GeographyNames returns all geography names in dataset order.
func (c Config) GeographyNames() []string {
	names := make([]string, len(c.Geographies))
	for i, g := range c.Geographies {
		names[i] = g.Name
	}
	return names
}

// SegmentType looks a scheme up by name.
func (c Config) SegmentType(name string) (SegmentTypeMeta, bool) {
	for _, t := range c.SegmentTypes {
		if t.Name == name {
			return t, true
		}
	}
	return SegmentTypeMeta{}, false
}

// SegmentsAt returns the segment names of a scheme at level.
func (t SegmentTypeMeta) SegmentsAt(level int) []string {
	var out []string
	for _, s := range t.Segments {
		if s.Level == level {
			out = append(out, s.Name)
		}
	}
	return out
}

// DefaultSegmentType is the first non-regional scheme, the one a fresh
// view opens on. Falls back to the first scheme.
func (c Config) DefaultSegmentType() string {
	for _, t := range c.SegmentTypes {
		if !t.Regional {
			return t.Name
		}
	}
	if len(c.SegmentTypes) > 0 {
		return c.SegmentTypes[0].Name
	}
	return ""
}

// ============================================================================
// YAML
// ============================================================================

// Load parses the YAML schema file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", path, err)
	}
	return &c, nil
}

// WriteYAML encodes c as YAML.
func (c Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return enc.Close()
}
