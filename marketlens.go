// Package marketlens turns market-research forecast datasets into
// dashboard-ready views.
//
// Usage:
//
//	import (
//	    "github.com/spektr-org/marketlens/engine"
//	    "github.com/spektr-org/marketlens/ingest"
//	)
//
//	ds, _ := ingest.LoadFile("value.json")
//	result, err := engine.Execute(engine.Query{
//	    Filters: filters,
//	    Chart:   engine.ChartBar,
//	}, ds.Records(filters.DataType), ds.EngineOptions(filters.DataType)...)
//
// The engine takes a FilterState and an in-memory snapshot of records and
// returns render-ready output (grouped chart rows, table rows, waterfall
// steps, a headline sentence). It never performs I/O; loading is the
// ingest package's job and schema describes what was loaded.
package marketlens
