package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"
	"EduX/internal/service/ratelimit"
	"EduX/internal/usecase"
	xhttp "EduX/pkg/http"
	xlogger "EduX/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MarketService is the session surface the HTTP API reads and drives.
type MarketService interface {
	SelectSymbol(ctx context.Context, symbol string) error
	SetTimeframe(ctx context.Context, tf domrepo.Timeframe) error
	Candles(ctx context.Context, tf domrepo.Timeframe, limit int) (*usecase.CandleSeries, error)
	OrderBook(ctx context.Context, depth int) (models.OrderBookSnapshot, error)
	RecentTrades(ctx context.Context) ([]models.Trade, error)
	State(ctx context.Context) (usecase.SessionState, error)
	Symbols() []string
}

// HealthCheck probes one dependency for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type candlesRequest struct {
	Timeframe string `query:"tf" validate:"omitempty,timeframe"`
	Limit     int    `query:"limit" default:"500" validate:"gte=1,lte=5000"`
	From      string `query:"from"`
}

type orderBookRequest struct {
	Depth int `query:"depth" default:"20" validate:"gte=1,lte=500"`
}

type timeframeRequest struct {
	Timeframe string `json:"timeframe" validate:"required,timeframe"`
}

type symbolRequest struct {
	Symbol string `json:"symbol" validate:"required,min=1,max=16"`
}

var registerOnce sync.Once

// MarketHandler serves the market session over HTTP.
type MarketHandler struct {
	logger *xlogger.Logger
	market MarketService
	rl     *ratelimit.Limiter
	checks []HealthCheck
}

// NewMarketHandler creates the handler. rl limits symbol switches per client; nil disables it.
func NewMarketHandler(logger *xlogger.Logger, market MarketService, rl *ratelimit.Limiter, checks ...HealthCheck) *MarketHandler {
	registerOnce.Do(func() {
		_ = xhttp.RegisterValidation("timeframe", func(v string) bool {
			return domrepo.IsValidTimeframe(domrepo.Timeframe(v))
		})
	})
	return &MarketHandler{logger: logger, market: market, rl: rl, checks: checks}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/symbols", h.Symbols)
	g.GET("/candles", h.Candles)
	g.GET("/orderbook", h.OrderBook)
	g.GET("/trades", h.Trades)
	g.GET("/state", h.State)
	g.PUT("/timeframe", h.SetTimeframe)
	g.PUT("/symbol", h.SelectSymbol)
}

func (h *MarketHandler) Symbols(c echo.Context) error {
	syms := h.market.Symbols()
	return xhttp.ListResponse(c, syms, int64(len(syms)))
}

func (h *MarketHandler) Candles(c echo.Context) error {
	req := &candlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var from time.Time
	if req.From != "" {
		t, ok := xhttp.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", "from must be RFC3339 or unix time"))
		}
		from = t
	}

	series, err := h.market.Candles(c.Request().Context(), domrepo.Timeframe(req.Timeframe), req.Limit)
	if err != nil {
		return h.fail(c, "candles", err)
	}
	if !from.IsZero() {
		series = sinceTime(series, from.Unix())
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, series)
}

func (h *MarketHandler) OrderBook(c echo.Context) error {
	req := &orderBookRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	book, err := h.market.OrderBook(c.Request().Context(), req.Depth)
	if err != nil {
		return h.fail(c, "orderbook", err)
	}
	return xhttp.SuccessResponse(c, book)
}

func (h *MarketHandler) Trades(c echo.Context) error {
	trades, err := h.market.RecentTrades(c.Request().Context())
	if err != nil {
		return h.fail(c, "trades", err)
	}
	return xhttp.ListResponse(c, trades, int64(len(trades)))
}

func (h *MarketHandler) State(c echo.Context) error {
	st, err := h.market.State(c.Request().Context())
	if err != nil {
		return h.fail(c, "state", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *MarketHandler) SetTimeframe(c echo.Context) error {
	req := &timeframeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.market.SetTimeframe(c.Request().Context(), domrepo.Timeframe(req.Timeframe)); err != nil {
		return h.fail(c, "timeframe", err)
	}
	return h.State(c)
}

func (h *MarketHandler) SelectSymbol(c echo.Context) error {
	if h.rl != nil && !h.rl.Allow(c.RealIP()) {
		h.logger.Warn("symbol switch rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many symbol switches"))
	}
	req := &symbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.market.SelectSymbol(c.Request().Context(), req.Symbol); err != nil {
		return h.fail(c, "symbol", err)
	}
	return h.State(c)
}

func (h *MarketHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(h.checks)+1)
	if _, err := h.market.State(ctx); err != nil {
		status = http.StatusServiceUnavailable
		report["session"] = err.Error()
	} else {
		report["session"] = "ok"
	}
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			report[hc.Name] = err.Error()
			continue
		}
		report[hc.Name] = "ok"
	}
	return xhttp.DataResponse(c, status, report)
}

// fail maps session errors onto HTTP errors.
func (h *MarketHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, domrepo.ErrInvalidTimeframe):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("timeframe", err.Error()))
	case errors.Is(err, usecase.ErrUnknownSymbol):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()).WithParam("symbols", h.market.Symbols()))
	case errors.Is(err, usecase.ErrSessionClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(err.Error()))
	}
	h.logger.Error("market api error", xlogger.String("op", op), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func sinceTime(s *usecase.CandleSeries, fromSec int64) *usecase.CandleSeries {
	i := 0
	for i < len(s.Candles) && s.Candles[i].Time < fromSec {
		i++
	}
	out := *s
	out.Candles = s.Candles[i:]
	out.Volumes = s.Volumes[i:]
	return &out
}
