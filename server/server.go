package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/spektr-org/marketlens/ingest"
	"github.com/spektr-org/marketlens/logger"
	"github.com/spektr-org/marketlens/schema"
)

// ============================================================================
// SERVER — HTTP surface over a loaded dataset
// ============================================================================
// A thin consumer: every request reads the current snapshot and calls the
// engine. Snapshots are immutable and swapped whole, so a reload never
// mixes datasets within one request.
//
//   GET  /healthz
//   GET  /api/schema
//   POST /api/filter         body: FilterState
//   POST /api/chart/:kind    body: {"filters": FilterState, "stacked": bool, "topN": int}
// ============================================================================

// Snapshot is one loaded dataset plus its schema.
type Snapshot struct {
	ID       string
	Dataset  *ingest.Dataset
	Schema   *schema.Config
	LoadedAt time.Time
}

type Server struct {
	echo *echo.Echo
	log  *logger.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

// New builds a server. The dataset may be nil and set later with Load.
func New(log *logger.Logger) *Server {
	s := &Server{echo: echo.New(), log: log}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestLogger)
	s.RegisterRoutes(s.echo)
	return s
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Health)

	api := e.Group("/api")
	api.GET("/schema", s.GetSchema)
	api.POST("/filter", s.PostFilter)
	api.POST("/chart/:kind", s.PostChart)
}

// Load swaps in a new dataset and returns its snapshot id.
func (s *Server) Load(ds *ingest.Dataset, cfg *schema.Config) string {
	snap := &Snapshot{
		ID:       uuid.New().String(),
		Dataset:  ds,
		Schema:   cfg,
		LoadedAt: time.Now(),
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"snapshot": snap.ID,
		"value":    len(ds.Value),
		"volume":   len(ds.Volume),
	}).Info("dataset loaded")
	return snap.ID
}

func (s *Server) current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		id := logger.RequestID(req)
		req.Header.Set(logger.RequestIDHeader, id)
		c.Response().Header().Set(logger.RequestIDHeader, id)

		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		entry := s.log.WithRequest(req).WithFields(logrus.Fields{
			"status":  c.Response().Status,
			"latency": time.Since(start).String(),
		})
		if err != nil {
			entry.WithField("error", err.Error()).Warn("request failed")
		} else {
			entry.Debug("request")
		}
		return nil
	}
}
