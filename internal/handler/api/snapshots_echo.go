package api

import (
	"net/http"
	"time"

	"FieldPulse/internal/domain/models"
	domrepo "FieldPulse/internal/domain/repository"
	"FieldPulse/internal/usecase"
	xhttp "FieldPulse/pkg/http"
	xlogger "FieldPulse/pkg/logger"
	"FieldPulse/pkg/ratelimit"
	"FieldPulse/pkg/util"

	"github.com/labstack/echo/v4"
)

// Intake throttle: per-symbol token bucket, sized for one record per bucket
// plus replays and corrections.
const (
	intakeBurst  = 10
	intakeRefill = 2 // tokens per second
)

// SnapshotsEchoHandler serves the read API over persisted snapshots plus a
// record intake endpoint for deployments without Kafka.
type SnapshotsEchoHandler struct {
	logger  *xlogger.Logger
	store   domrepo.SnapshotStore
	pipe    *usecase.Pipeline
	limiter *ratelimit.Limiter
}

func NewSnapshotsEchoHandler(logger *xlogger.Logger, store domrepo.SnapshotStore, pipe *usecase.Pipeline) *SnapshotsEchoHandler {
	return &SnapshotsEchoHandler{logger: logger, store: store, pipe: pipe, limiter: ratelimit.New()}
}

func (h *SnapshotsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/state/latest", h.LatestState)
	g.GET("/geometry/latest", h.LatestGeometry)
	g.GET("/swarm/latest", h.LatestSwarm)
	g.GET("/swarm/range", h.SwarmRange)
	g.GET("/weights", h.Weights)
	g.POST("/records", h.IngestRecord)
}

type symbolRequest struct {
	Symbol string `query:"symbol" validate:"required"`
}

type rangeRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	From   string `query:"from" validate:"required"`
	To     string `query:"to" validate:"required"`
}

type recordRequest struct {
	Symbol    string         `json:"symbol" validate:"required"`
	Timestamp string         `json:"timestamp" validate:"required"`
	Fields    map[string]any `json:"fields" validate:"required"`
}

func (h *SnapshotsEchoHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("storage unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *SnapshotsEchoHandler) LatestState(c echo.Context) error {
	req := &symbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.store.GetLatestState(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Error("latest state query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if v == nil {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("no state for %s", req.Symbol))
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *SnapshotsEchoHandler) LatestGeometry(c echo.Context) error {
	req := &symbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	g, err := h.store.GetLatestGeometry(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Error("latest geometry query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if g == nil {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("no geometry for %s", req.Symbol))
	}
	return xhttp.SuccessResponse(c, g)
}

func (h *SnapshotsEchoHandler) LatestSwarm(c echo.Context) error {
	req := &symbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.store.GetLatestSwarm(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Error("latest swarm query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if s == nil {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("no swarm snapshot for %s", req.Symbol))
	}
	return xhttp.SuccessResponse(c, s)
}

func (h *SnapshotsEchoHandler) SwarmRange(c echo.Context) error {
	req := &rangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, ok := util.ParseTime(req.From)
	if !ok {
		return xhttp.BadRequestResponse(c, xhttp.BadRequestErrorf("bad from time %q", req.From))
	}
	to, ok := util.ParseTime(req.To)
	if !ok {
		return xhttp.BadRequestResponse(c, xhttp.BadRequestErrorf("bad to time %q", req.To))
	}
	rows, err := h.store.GetSwarmRange(c.Request().Context(), req.Symbol, from, to)
	if err != nil {
		h.logger.Error("swarm range query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SnapshotsEchoHandler) Weights(c echo.Context) error {
	req := &symbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ws, err := h.store.GetWeightState(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Error("weight state query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if ws == nil {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("no weight state for %s", req.Symbol))
	}
	return xhttp.SuccessResponse(c, ws)
}

// IngestRecord runs one raw record through the pipeline synchronously.
func (h *SnapshotsEchoHandler) IngestRecord(c echo.Context) error {
	req := &recordRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ts, ok := util.ParseTime(req.Timestamp)
	if !ok {
		return xhttp.BadRequestResponse(c, xhttp.BadRequestErrorf("bad timestamp %q", req.Timestamp))
	}
	if !h.limiter.Allow(req.Symbol, intakeBurst, intakeRefill) {
		return c.NoContent(http.StatusTooManyRequests)
	}

	raw := models.RawMarketRecord{
		Timestamp: ts.UTC(),
		Symbol:    req.Symbol,
		Fields:    req.Fields,
	}
	if err := h.pipe.RunBucket(c.Request().Context(), raw); err != nil {
		h.logger.Error("record ingest error",
			xlogger.String("symbol", req.Symbol),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("record rejected").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{
		"symbol": raw.Symbol,
		"ts":     raw.Timestamp.Format(time.RFC3339),
	})
}
