package api

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "PerpScope/internal/domain/models"
	drepo "PerpScope/internal/domain/repository"
	"PerpScope/internal/usecase"
	xhttp "PerpScope/pkg/http"
	xlogger "PerpScope/pkg/logger"
)

// WorkflowHandler exposes the refresh workflow and snapshot read paths over
// Echo.
type WorkflowHandler struct {
	logger   *xlogger.Logger
	workflow *usecase.Workflow
	levels   drepo.StructuralSource
}

func NewWorkflowHandler(logger *xlogger.Logger, workflow *usecase.Workflow, levels drepo.StructuralSource) *WorkflowHandler {
	return &WorkflowHandler{logger: logger, workflow: workflow, levels: levels}
}

func (h *WorkflowHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/refresh", h.Refresh)
	g.GET("/session", h.Session)
	g.GET("/snapshot", h.Snapshot)
	g.GET("/signals", h.Signals)
	g.GET("/export/markets.csv", h.ExportMarkets)
	g.GET("/export/signals.csv", h.ExportSignals)
	g.GET("/export/tickets", h.ExportTickets)
	e.GET("/healthz", h.Health)
}

// refreshResponse summarizes one completed cycle.
type refreshResponse struct {
	TakenAt    time.Time      `json:"taken_at"`
	Markets    int            `json:"markets"`
	BandCounts map[string]int `json:"band_counts"`
	Signals    int            `json:"signals"`
}

// Refresh triggers one evaluation cycle. A cycle already in flight yields
// 409; a failed upstream fetch yields 502 with the prior snapshot intact.
func (h *WorkflowHandler) Refresh(c echo.Context) error {
	snap, err := h.workflow.Refresh(c.Request().Context())
	if err != nil {
		if errors.Is(err, usecase.ErrRefreshInProgress) {
			return xhttp.AppErrorResponse(c, xhttp.ConflictError("refresh already in progress").WithError(err))
		}
		var ue *usecase.UpstreamError
		if errors.As(err, &ue) {
			h.logger.Error("refresh upstream failure", xlogger.String("op", ue.Op), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.BadGatewayError("upstream fetch failed").WithParam("op", ue.Op).WithError(err))
		}
		h.logger.Error("refresh error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	resp := refreshResponse{
		TakenAt:    snap.TakenAt(),
		Markets:    snap.Len(),
		BandCounts: bandCounts(snap),
		Signals:    len(snap.Signals()),
	}
	return xhttp.SuccessResponse(c, resp)
}

type sessionResponse struct {
	State         string     `json:"state"`
	Refreshing    bool       `json:"refreshing"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty"`
	Markets       int        `json:"markets"`
}

// Session reports whether the published snapshot is current and when it was
// taken.
func (h *WorkflowHandler) Session(c echo.Context) error {
	s := h.workflow.Session()
	resp := sessionResponse{
		State:      string(s.State()),
		Refreshing: s.Refreshing(),
	}
	if snap, err := s.Snapshot(); err == nil {
		t := snap.TakenAt()
		resp.LastRefreshed = &t
		resp.Markets = snap.Len()
	}
	return xhttp.SuccessResponse(c, resp)
}

type snapshotResponse struct {
	TakenAt    time.Time              `json:"taken_at"`
	BandCounts map[string]int         `json:"band_counts"`
	Markets    []models.SnapshotEntry `json:"markets"`
}

// Snapshot returns the published snapshot, optionally filtered. The response
// is assembled from one atomic snapshot reference, so rows are always
// mutually consistent even if a refresh lands mid-request.
func (h *WorkflowHandler) Snapshot(c echo.Context) error {
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snap, err := h.workflow.Session().Snapshot()
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no snapshot yet, trigger a refresh").WithError(err))
	}
	return xhttp.SuccessResponse(c, snapshotResponse{
		TakenAt:    snap.TakenAt(),
		BandCounts: bandCounts(snap),
		Markets:    usecase.FilterEntries(snap, *req),
	})
}

// Signals returns the current snapshot's signals, optionally filtered.
func (h *WorkflowHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snap, err := h.workflow.Session().Snapshot()
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no snapshot yet, trigger a refresh").WithError(err))
	}
	return xhttp.ListResponse(c, usecase.FilterSignals(snap, *req), int64(len(snap.Signals())))
}

// ExportMarkets streams the snapshot as CSV.
func (h *WorkflowHandler) ExportMarkets(c echo.Context) error {
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.workflow.Session().Snapshot()
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no snapshot yet, trigger a refresh").WithError(err))
	}

	var buf bytes.Buffer
	if err := usecase.WriteMarketsCSV(&buf, usecase.FilterEntries(snap, *req)); err != nil {
		h.logger.Error("markets csv export error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="markets.csv"`)
	return c.Blob(http.StatusOK, "text/csv", buf.Bytes())
}

// ExportSignals streams the snapshot's signals as CSV.
func (h *WorkflowHandler) ExportSignals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.workflow.Session().Snapshot()
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no snapshot yet, trigger a refresh").WithError(err))
	}

	var buf bytes.Buffer
	if err := usecase.WriteSignalsCSV(&buf, usecase.FilterSignals(snap, *req)); err != nil {
		h.logger.Error("signals csv export error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="signals.csv"`)
	return c.Blob(http.StatusOK, "text/csv", buf.Bytes())
}

// ExportTickets returns the journal one-liners as plain text.
func (h *WorkflowHandler) ExportTickets(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.workflow.Session().Snapshot()
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no snapshot yet, trigger a refresh").WithError(err))
	}
	return c.String(http.StatusOK, usecase.Tickets(usecase.FilterSignals(snap, *req)))
}

type healthResponse struct {
	Status     string `json:"status"`
	Session    string `json:"session"`
	Structural string `json:"structural"`
}

// Health reports process liveness plus structural-store reachability.
func (h *WorkflowHandler) Health(c echo.Context) error {
	resp := healthResponse{
		Status:     "ok",
		Session:    string(h.workflow.Session().State()),
		Structural: "ok",
	}
	if h.levels != nil {
		if err := h.levels.Health(c.Request().Context()); err != nil {
			resp.Structural = "unreachable"
		}
	}
	return xhttp.SuccessResponse(c, resp)
}

func bandCounts(snap *models.Snapshot) map[string]int {
	out := make(map[string]int, 3)
	for band, n := range snap.BandCounts() {
		out[string(band)] = n
	}
	return out
}
