package engine

import (
	"io"

	"github.com/sirupsen/logrus"
)

// ============================================================================
// ENGINE OPTIONS — Functional options shared by Filter, shapers and Execute
// ============================================================================

// Option configures engine behavior via functional options pattern.
type Option func(*config)

type config struct {
	Geographies GeographyCountries // region → countries, owned by ingestion
	Reference   []DataRecord       // "By Region" dataset used for distribution
	Resolver    LevelResolver
	Distributor Distributor
	Log         logrus.FieldLogger
}

// WithGeographyCountries supplies the region → countries table derived by
// the ingestion stage. When absent the legacy fallback table is used.
func WithGeographyCountries(g GeographyCountries) Option {
	return func(c *config) {
		c.Geographies = g
	}
}

// WithReference supplies the regional reference dataset whose shares are
// used to spread Global-only values across selected geographies.
func WithReference(records []DataRecord) Option {
	return func(c *config) {
		c.Reference = records
	}
}

// WithSharePolicy swaps the country-under-region weighting policy.
func WithSharePolicy(p SharePolicy) Option {
	return func(c *config) {
		c.Distributor = Distributor{Policy: p}
	}
}

// WithLevelResolver replaces the aggregation-level inference. The same
// resolver drives filtering and every shaper of a call.
func WithLevelResolver(r LevelResolver) Option {
	return func(c *config) {
		if r != nil {
			c.Resolver = r
		}
	}
}

// WithLogger routes engine diagnostics to l. Default is silent.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		if l != nil {
			c.Log = l
		}
	}
}

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}()

// applyOptions creates a config from functional options.
func applyOptions(opts []Option) *config {
	cfg := &config{
		Resolver:    ResolveLevel,
		Distributor: Distributor{Policy: EvenSplit{}},
		Log:         discardLogger,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.Geographies = ResolveGeographyCountries(cfg.Geographies)
	return cfg
}
