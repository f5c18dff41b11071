package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/spektr-org/marketlens/engine"
	"github.com/spektr-org/marketlens/ingest"
	"github.com/spektr-org/marketlens/logger"
	"github.com/spektr-org/marketlens/schema"
	"github.com/spektr-org/marketlens/server"
)

// ============================================================================
// MARKETLENS CLI — Market-research dashboards from the command line
// ============================================================================

const version = "0.3.0"

func main() {
	_ = godotenv.Load() // loads .env

	// ── Flags ─────────────────────────────────────────────────────────────
	filePath := flag.String("file", os.Getenv("DATASET_PATH"), "Path to dataset (.json, .xlsx, .csv)")
	configPath := flag.String("config", os.Getenv("MARKETLENS_CONFIG"), "Path to schema YAML (regions, segment types)")
	discover := flag.Bool("discover", false, "Print the dataset schema and exit")
	validate := flag.Bool("validate", false, "Check for double counting and exit")
	year := flag.Int("year", 0, "Year checked by --validate (default: last year)")
	filtersPath := flag.String("filters", "", "Path to filter state (.json or .yaml)")
	chart := flag.String("chart", "auto", "Chart: auto, bar, line, table, waterfall, intelligent")
	stacked := flag.Bool("stacked", false, "Stack bar series by the secondary dimension")
	dataType := flag.String("data-type", "", "Dataset: value or volume (overrides the filter state)")
	topN := flag.Int("top", engine.DefaultTopN, "Length of the top-performer listings")
	format := flag.String("format", "json", "Output format: json, pretty, text, csv, yaml (schema only)")
	outFile := flag.String("out", "", "Write output to file instead of stdout")
	serve := flag.Bool("serve", false, "Serve the HTTP API instead of printing a result")
	addr := flag.String("addr", ":"+envOr("PORT", "8080"), "HTTP listen address for --serve")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `MarketLens — analytical views over market-research datasets

Usage:
  marketlens --file value.json --filters view.yaml --chart bar --format csv
  marketlens --file market.xlsx --discover --format yaml --out schema.yaml
  marketlens --file market.xlsx --validate --year 2025 --format text
  marketlens --file market.xlsx --config schema.yaml --serve --addr :8080

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  DATASET_PATH       Default for --file
  MARKETLENS_CONFIG  Default for --config
  PORT               Default port for --addr
  ENVIRONMENT        local (pretty logs) or anything else (JSON logs)
  LOG_LEVEL          debug, info, warn, error

Formats:
  json      Full JSON output (default)
  pretty    Pretty-printed JSON
  text      Headline sentence only
  csv       Chart/table data as CSV (ready for Sheets/Excel)
  yaml      Schema as YAML (with --discover)
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("marketlens %s\n", version)
		os.Exit(0)
	}

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Error: --file (or DATASET_PATH) is required")
		flag.Usage()
		os.Exit(1)
	}

	log := logger.New()

	// ── Output writer ─────────────────────────────────────────────────────
	var writer io.Writer = os.Stdout
	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		writer = f
	}

	// ── Dataset ───────────────────────────────────────────────────────────
	ds, err := ingest.LoadFile(*filePath)
	if err != nil {
		log.WithError(err).Fatal("failed to load dataset")
	}
	log.WithField("value", len(ds.Value)).WithField("volume", len(ds.Volume)).Info("dataset loaded")

	// ── Schema ────────────────────────────────────────────────────────────
	var sch *schema.Config
	if *configPath != "" {
		sch, err = schema.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load schema")
		}
		if len(sch.Regions) > 0 {
			ds.Geographies = sch.Regions
		}
		log.WithField("schema", sch.Name).Info("schema loaded")
	} else {
		sch, err = schema.Discover(ds.Value, schema.DiscoverOptions{
			Source:  *filePath,
			Regions: ds.Geographies,
			Volume:  len(ds.Volume) > 0,
		})
		if err != nil {
			log.WithError(err).Fatal("auto-discovery failed")
		}
	}

	// ── Discover mode ─────────────────────────────────────────────────────
	if *discover {
		if *format == "yaml" {
			if err := sch.WriteYAML(writer); err != nil {
				fatalf("%v", err)
			}
			return
		}
		writeJSON(writer, sch, *format)
		return
	}

	// ── Validate mode ─────────────────────────────────────────────────────
	if *validate {
		y := *year
		if y == 0 {
			y = sch.Years.Last
		}
		issues := schema.Validate(ds.Value, y)
		log.WithField("year", y).WithField("issues", len(issues)).Info("validation finished")
		writeIssues(writer, issues, *format)
		if len(issues) > 0 {
			os.Exit(2)
		}
		return
	}

	// ── Serve mode ────────────────────────────────────────────────────────
	if *serve {
		srv := server.New(log)
		srv.Load(ds, sch)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("shutdown failed")
			}
		}()
		if err := srv.Start(*addr); err != nil {
			log.WithError(err).Fatal("server stopped")
		}
		return
	}

	// ── Query mode ────────────────────────────────────────────────────────
	filters, err := loadFilters(*filtersPath, sch)
	if err != nil {
		fatalf("Failed to load filters: %v", err)
	}
	if *dataType != "" {
		filters.DataType = engine.DataType(*dataType)
	}
	filters = engine.NormalizeFilterState(filters)

	opts := append(ds.EngineOptions(filters.DataType), engine.WithLogger(log))
	result, err := engine.Execute(engine.Query{
		Filters: filters,
		Chart:   engine.ChartKind(*chart),
		Stacked: *stacked,
		TopN:    *topN,
	}, ds.Records(filters.DataType), opts...)
	if err != nil {
		fatalf("Execution failed: %v", err)
	}
	log.WithField("chart", result.Chart).WithField("records", result.RecordCount).Info("query executed")

	// ── Render output ─────────────────────────────────────────────────────
	switch *format {
	case "csv":
		if err := writeCSV(writer, result); err != nil {
			fatalf("Failed to write CSV: %v", err)
		}
	case "text":
		fmt.Fprintln(writer, result.Reply)
	default:
		writeJSON(writer, cliOutput{Filters: filters, Result: result}, *format)
	}
	if *outFile != "" {
		log.WithField("path", *outFile).Info("output written")
	}
}

// ============================================================================
// HELPERS
// ============================================================================

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
