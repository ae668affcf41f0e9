package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"PerpScope/internal/domain/models"
	"PerpScope/internal/relevance"
	"PerpScope/internal/usecase"
	applogger "PerpScope/pkg/logger"
)

type stubLevels struct {
	contexts []models.StructuralContext
	err      error
}

func (s *stubLevels) WeeklyContexts(context.Context) ([]models.StructuralContext, error) {
	return s.contexts, s.err
}
func (s *stubLevels) Health(context.Context) error { return s.err }

type stubMarket struct {
	prices map[string]float64
	err    error
}

func (s *stubMarket) Prices(context.Context) (map[string]float64, error) {
	return s.prices, s.err
}
func (s *stubMarket) Klines(context.Context, string, int) ([]models.Bar, error) {
	return nil, errors.New("no klines in this test")
}

type stubMetrics struct{}

func (stubMetrics) RecordRefresh(string, float64)      {}
func (stubMetrics) RecordBandCount(string, int)        {}
func (stubMetrics) RecordSignal(string)                {}
func (stubMetrics) RecordError(string)                 {}
func (stubMetrics) RecordFetchLatency(string, float64) {}

func testServer(t *testing.T, levels *stubLevels, market *stubMarket) *echo.Echo {
	t.Helper()
	wf := usecase.NewWorkflow(
		usecase.NewSession(),
		levels,
		market,
		nil,
		stubMetrics{},
		usecase.Config{
			Classifier: relevance.Config{TolerancePct: 0.2, CompressionThreshold: 1.5, ExtendedThreshold: 3.0},
			MaxInflight: 2,
		},
		applogger.Nop(),
	)
	h := NewWorkflowHandler(applogger.Nop(), wf, levels)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func fixtureLevels() *stubLevels {
	return &stubLevels{contexts: []models.StructuralContext{{
		Symbol:     "BTCUSDT",
		W1:         models.LevelSet{High: 103, Low: 98, POC: 100.5, VAH: 101, VAL: 100},
		VAWidthPct: 1.0,
		HTF:        models.HTFNeutral,
	}}}
}

func do(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSnapshotBeforeFirstRefresh(t *testing.T) {
	e := testServer(t, fixtureLevels(), &stubMarket{})

	rec := do(e, http.MethodGet, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code) // envelope carries the status
	require.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestRefreshThenSnapshot(t *testing.T) {
	e := testServer(t, fixtureLevels(), &stubMarket{prices: map[string]float64{"BTCUSDT": 100.05}})

	rec := do(e, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"markets":1`)

	rec = do(e, http.MethodGet, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "BTCUSDT")
	require.Contains(t, rec.Body.String(), `"band":"trade_ready"`)
}

func TestRefreshUpstreamFailureYields502Envelope(t *testing.T) {
	e := testServer(t, fixtureLevels(), &stubMarket{err: errors.New("exchange down")})

	rec := do(e, http.MethodPost, "/api/refresh")
	var body struct {
		Status int `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, http.StatusBadGateway, body.Status)
	require.Contains(t, rec.Body.String(), "ERR_BAD_GATEWAY")
}

func TestSnapshotFilterValidation(t *testing.T) {
	e := testServer(t, fixtureLevels(), &stubMarket{prices: map[string]float64{"BTCUSDT": 100.05}})
	do(e, http.MethodPost, "/api/refresh")

	rec := do(e, http.MethodGet, "/api/snapshot?band=nonsense")
	require.Contains(t, rec.Body.String(), "ERR_ONEOF")

	rec = do(e, http.MethodGet, "/api/snapshot?band=watch")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "BTCUSDT")
}

func TestSessionEndpoint(t *testing.T) {
	e := testServer(t, fixtureLevels(), &stubMarket{prices: map[string]float64{"BTCUSDT": 100.05}})

	rec := do(e, http.MethodGet, "/api/session")
	require.Contains(t, rec.Body.String(), `"state":"stale"`)

	do(e, http.MethodPost, "/api/refresh")
	rec = do(e, http.MethodGet, "/api/session")
	require.Contains(t, rec.Body.String(), `"state":"current"`)
}

func TestExportTickets(t *testing.T) {
	e := testServer(t, fixtureLevels(), &stubMarket{prices: map[string]float64{"BTCUSDT": 100.05}})
	do(e, http.MethodPost, "/api/refresh")

	rec := do(e, http.MethodGet, "/api/export/tickets")
	require.Equal(t, http.StatusOK, rec.Code)
	// kline fetches fail in this fixture, so no signals and no tickets
	require.Empty(t, strings.TrimSpace(rec.Body.String()))
}

func TestExportMarketsCSV(t *testing.T) {
	e := testServer(t, fixtureLevels(), &stubMarket{prices: map[string]float64{"BTCUSDT": 100.05}})
	do(e, http.MethodPost, "/api/refresh")

	rec := do(e, http.MethodGet, "/api/export/markets.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "markets.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "symbol,band"))
	require.True(t, strings.HasPrefix(lines[1], "BTCUSDT,trade_ready"))
}

func TestHealthEndpoint(t *testing.T) {
	e := testServer(t, fixtureLevels(), &stubMarket{})
	rec := do(e, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"structural":"ok"`)
}
