package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/spektr-org/marketlens/engine"
)

// --- HANDLERS ---

type chartRequest struct {
	Filters engine.FilterState `json:"filters"`
	Stacked bool               `json:"stacked"`
	TopN    int                `json:"topN"`
}

type filterResponse struct {
	Snapshot string              `json:"snapshot"`
	Level    *int                `json:"aggregationLevel"`
	Count    int                 `json:"count"`
	Records  []engine.DataRecord `json:"records"`
}

type chartResponse struct {
	Snapshot string `json:"snapshot"`
	*engine.Result
}

func errorBody(message string, err error) map[string]any {
	body := map[string]any{"message": message}
	if err != nil {
		body["error"] = err.Error()
	}
	return body
}

func (s *Server) Health(c echo.Context) error {
	body := map[string]any{"status": "ok"}
	if snap := s.current(); snap != nil {
		body["snapshot"] = snap.ID
		body["loadedAt"] = snap.LoadedAt
	} else {
		body["status"] = "loading"
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) GetSchema(c echo.Context) error {
	snap := s.current()
	if snap == nil || snap.Schema == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody("dataset not loaded", nil))
	}
	return c.JSON(http.StatusOK, snap.Schema)
}

func (s *Server) PostFilter(c echo.Context) error {
	snap := s.current()
	if snap == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody("dataset not loaded", nil))
	}

	var f engine.FilterState
	if err := c.Bind(&f); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid filter state", err))
	}
	f = engine.NormalizeFilterState(f)

	records := snap.Dataset.Records(f.DataType)
	opts := append(snap.Dataset.EngineOptions(f.DataType), engine.WithLogger(s.log))
	filtered := engine.Filter(records, f, opts...)

	resp := filterResponse{Snapshot: snap.ID, Count: len(filtered), Records: filtered}
	if level, ok := engine.ResolveLevel(records, f); ok {
		resp.Level = engine.LevelPtr(level)
	}
	if resp.Records == nil {
		resp.Records = []engine.DataRecord{}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) PostChart(c echo.Context) error {
	snap := s.current()
	if snap == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody("dataset not loaded", nil))
	}

	var req chartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid chart request", err))
	}
	f := engine.NormalizeFilterState(req.Filters)

	query := engine.Query{
		Filters: f,
		Chart:   engine.ChartKind(c.Param("kind")),
		Stacked: req.Stacked,
		TopN:    req.TopN,
	}
	opts := append(snap.Dataset.EngineOptions(f.DataType), engine.WithLogger(s.log))
	result, err := engine.Execute(query, snap.Dataset.Records(f.DataType), opts...)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid chart kind", err))
	}
	return c.JSON(http.StatusOK, chartResponse{Snapshot: snap.ID, Result: result})
}
