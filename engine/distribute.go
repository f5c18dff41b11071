package engine

import (
	"github.com/samber/lo"
)

// ============================================================================
// PROPORTIONAL DISTRIBUTOR
// ============================================================================
// Spreads a Global-only value across the geographies the user selected,
// weighted by a regional reference dataset for one year.
// ============================================================================

// SharePolicy derives a value for a country that has no reference value of
// its own from the value of the region listing it.
type SharePolicy interface {
	CountryValue(country string, regionValue float64, countries []string, known map[string]float64) float64
}

// EvenSplit gives every country of a region the same slice of the region's
// value, ignoring any sibling data in known.
type EvenSplit struct{}

func (EvenSplit) CountryValue(_ string, regionValue float64, countries []string, _ map[string]float64) float64 {
	if len(countries) == 0 {
		return 0
	}
	return regionValue / float64(len(countries))
}

// Distributor computes normalised shares under a SharePolicy.
type Distributor struct {
	Policy SharePolicy
}

// ComputeShares returns share-of-total for the non-Global targets at year
// using the even-split country policy. Shares sum to 1.
func ComputeShares(reference []DataRecord, targets []string, year int, regions GeographyCountries) map[string]float64 {
	return Distributor{Policy: EvenSplit{}}.Shares(reference, targets, year, regions)
}

// Shares returns share-of-total for the non-Global targets at year.
// An empty target list yields an empty map; a missing or all-zero reference
// falls back to a uniform split.
func (d Distributor) Shares(reference []DataRecord, targets []string, year int, regions GeographyCountries) map[string]float64 {
	targets = lo.Uniq(lo.Filter(targets, func(g string, _ int) bool { return g != "" && g != GlobalGeography }))
	shares := make(map[string]float64, len(targets))
	if len(targets) == 0 {
		return shares
	}
	if len(reference) == 0 {
		return uniformShares(targets)
	}

	known := referenceValues(reference, year)

	values := make(map[string]float64, len(targets))
	for _, g := range targets {
		if v, ok := known[g]; ok {
			values[g] = v
			continue
		}
		region, ok := regions.RegionOf(g)
		if !ok {
			continue
		}
		if rv, ok := known[region]; ok {
			policy := d.Policy
			if policy == nil {
				policy = EvenSplit{}
			}
			values[g] = policy.CountryValue(g, rv, regions[region], known)
		}
	}

	var sum float64
	for _, g := range targets {
		sum += values[g]
	}
	if sum <= 0 {
		return uniformShares(targets)
	}
	for _, g := range targets {
		shares[g] = values[g] / sum
	}
	return shares
}

// referenceValues builds geography → value at year. For regional schemes the
// geography is the segment name. The first aggregated record of a geography
// wins; a leaf is used only when no aggregated record was seen.
func referenceValues(reference []DataRecord, year int) map[string]float64 {
	values := make(map[string]float64)
	fromAggregate := make(map[string]bool)
	for _, r := range reference {
		geo := r.Geography
		if IsRegionalSegmentType(r.SegmentType) {
			geo = r.Segment
		}
		if geo == "" {
			continue
		}
		_, seen := values[geo]
		switch {
		case r.IsAggregated && !fromAggregate[geo]:
			values[geo] = r.ValueAt(year)
			fromAggregate[geo] = true
		case !r.IsAggregated && !seen:
			values[geo] = r.ValueAt(year)
		}
	}
	return values
}

func uniformShares(targets []string) map[string]float64 {
	shares := make(map[string]float64, len(targets))
	for _, g := range targets {
		shares[g] = 1 / float64(len(targets))
	}
	return shares
}
