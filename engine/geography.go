package engine

import (
	"sort"

	"github.com/samber/lo"
)

// legacyRegions backs regions that older datasets never published
// "By Country" breakdowns for. Only consulted when nothing dynamic exists.
var legacyRegions = GeographyCountries{
	"North America":        {"U.S.", "Canada"},
	"Europe":               {"U.K.", "Germany", "Italy", "France", "Spain", "Russia", "Rest of Europe"},
	"Asia Pacific":         {"China", "India", "Japan", "South Korea", "ASEAN", "Australia", "Rest of Asia Pacific"},
	"Latin America":        {"Brazil", "Argentina", "Mexico", "Rest of Latin America"},
	"Middle East":          {"GCC", "Israel", "Turkey", "Rest of Middle East"},
	"Middle East & Africa": {"GCC", "South Africa", "Rest of Middle East & Africa"},
	"Africa":               {"South Africa", "Egypt", "Nigeria", "Rest of Africa"},
}

// DefaultGeographyCountries returns a copy of the legacy fallback table.
func DefaultGeographyCountries() GeographyCountries {
	out := make(GeographyCountries, len(legacyRegions))
	for region, countries := range legacyRegions {
		out[region] = append([]string(nil), countries...)
	}
	return out
}

// ResolveGeographyCountries returns g when it holds anything, the legacy
// table otherwise.
func ResolveGeographyCountries(g GeographyCountries) GeographyCountries {
	if len(g) > 0 {
		return g
	}
	return DefaultGeographyCountries()
}

// DeriveGeographyCountries builds region → countries from the dataset itself:
// "By Country" records (geography = region, segment = country) and
// parent_geography back-references. Order is first-seen.
func DeriveGeographyCountries(records []DataRecord) GeographyCountries {
	out := GeographyCountries{}
	add := func(region, country string) {
		if region == "" || country == "" || region == country || region == GlobalGeography {
			return
		}
		if !lo.Contains(out[region], country) {
			out[region] = append(out[region], country)
		}
	}
	for _, r := range records {
		if r.SegmentType == SegmentTypeCountry {
			add(r.Geography, r.Segment)
		}
	}
	for _, r := range records {
		add(r.ParentGeography, r.Geography)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
