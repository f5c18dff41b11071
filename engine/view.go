package engine

import "strings"

// ============================================================================
// RECORD VIEW — Zero-Copy Data Access Interface
// ============================================================================
// The engine never owns consumer data. It reads through this interface.
//
// Implementations:
//   SliceView — wraps []DataRecord
//   SubView   — filtered subset (indices into parent, zero-copy)
// ============================================================================

// Dimension keys understood by RecordView.Dimension.
const (
	DimGeography       = "geography"
	DimParentGeography = "parent_geography"
	DimSegmentType     = "segment_type"
	DimSegment         = "segment"
	DimSegmentLevel    = "segment_level"
)

// RecordView provides indexed access to a dataset.
type RecordView interface {
	Len() int
	Record(index int) DataRecord
	Dimension(index int, key string) string
}

// ============================================================================
// SLICE VIEW
// ============================================================================

// SliceView wraps a []DataRecord slice as a RecordView.
type SliceView struct {
	records []DataRecord
}

// NewSliceView creates a RecordView from a []DataRecord slice.
func NewSliceView(records []DataRecord) RecordView {
	return &SliceView{records: records}
}

func (v *SliceView) Len() int { return len(v.records) }

func (v *SliceView) Record(i int) DataRecord {
	if i < 0 || i >= len(v.records) {
		return DataRecord{}
	}
	return v.records[i]
}

func (v *SliceView) Dimension(i int, key string) string {
	if i < 0 || i >= len(v.records) {
		return ""
	}
	return recordDimension(v.records[i], key)
}

// ============================================================================
// SUB VIEW — filtered subset (zero-copy)
// ============================================================================

// SubView is a filtered subset of a parent RecordView.
// Holds indices into the parent — no data copy.
type SubView struct {
	parent  RecordView
	indices []int
}

func newSubView(parent RecordView, indices []int) RecordView {
	return &SubView{parent: parent, indices: indices}
}

func (v *SubView) Len() int { return len(v.indices) }

func (v *SubView) Record(i int) DataRecord {
	if i < 0 || i >= len(v.indices) {
		return DataRecord{}
	}
	return v.parent.Record(v.indices[i])
}

func (v *SubView) Dimension(i int, key string) string {
	if i < 0 || i >= len(v.indices) {
		return ""
	}
	return v.parent.Dimension(v.indices[i], key)
}

// Materialize copies the records a view exposes into a fresh slice.
func Materialize(view RecordView) []DataRecord {
	out := make([]DataRecord, 0, view.Len())
	for i := 0; i < view.Len(); i++ {
		out = append(out, view.Record(i))
	}
	return out
}

// recordDimension reads a named dimension. "level_N" reads the hierarchy.
func recordDimension(r DataRecord, key string) string {
	switch key {
	case DimGeography:
		return r.Geography
	case DimParentGeography:
		return r.ParentGeography
	case DimSegmentType:
		return r.SegmentType
	case DimSegment:
		return r.Segment
	case DimSegmentLevel:
		return string(r.SegmentLevel)
	}
	if rest, ok := strings.CutPrefix(key, "level_"); ok && len(rest) == 1 {
		return r.SegmentHierarchy.At(int(rest[0] - '0'))
	}
	return ""
}
