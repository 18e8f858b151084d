package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"SigPulse/internal/domain/models"
	icache "SigPulse/internal/service/cache"
	"SigPulse/internal/service/metrics"
	"SigPulse/internal/service/ratelimit"
	"SigPulse/internal/usecase"
	xhttp "SigPulse/pkg/http"
	applogger "SigPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SignalsHandler exposes the engine's active-signal view over HTTP.
type SignalsHandler struct {
	engine    *usecase.Engine
	cache     icache.BytesCache
	rl        *ratelimit.Limiter
	logger    *applogger.Logger
	collector *applogger.LogCollector
}

func NewSignalsHandler(logger *applogger.Logger, engine *usecase.Engine) *SignalsHandler {
	metrics.Register()
	return &SignalsHandler{engine: engine, rl: ratelimit.New(), logger: logger}
}

func (h *SignalsHandler) SetCache(c icache.BytesCache) { h.cache = c }

// SetCollector injects the log aggregator backing the /api/logs endpoint.
func (h *SignalsHandler) SetCollector(c *applogger.LogCollector) { h.collector = c }

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/signals/a0", h.SignalsA0)
	g.GET("/signals/a1", h.SignalsA1)
	g.GET("/signals/symbol", h.Symbol)
	g.GET("/status", h.Status)
	g.GET("/logs", h.Logs)
}

// signalsResponse is the wire shape of an active-signal listing.
type signalsResponse struct {
	Signals []*models.Signal `json:"signals"`
	Count   int              `json:"count"`
	AsOf    time.Time        `json:"as_of"`
}

func (h *SignalsHandler) Signals(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("signals").Observe(time.Since(start).Seconds()) }()

	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":signals", 10, 5) {
		h.logger.Warn("api.signals rate_limited", applogger.String("remote", c.RealIP()))
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	cacheKey := "signals:" + req.Level + ":" + req.Direction
	if h.cache != nil && req.Limit == 100 {
		if b, ok, err := h.cache.GetBytes(cacheKey); err != nil {
			h.logger.Warn("api.signals cache_get_error", applogger.Error(err))
		} else if ok {
			return c.JSONBlob(http.StatusOK, b)
		}
	}

	signals := h.engine.GetActiveSignals()
	if req.Level != "" {
		lvl := models.ParseLevel(req.Level)
		if lvl == models.LevelNone {
			metrics.APIErrors.WithLabelValues("signals").Inc()
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown level %q", req.Level).WithParam("level", req.Level))
		}
		signals = filterSignals(signals, func(s *models.Signal) bool { return s.Level == lvl })
	}
	if req.Direction != "" {
		dir := models.Direction(req.Direction)
		signals = filterSignals(signals, func(s *models.Signal) bool { return s.Direction == dir })
	}
	if req.Limit > 0 && len(signals) > req.Limit {
		signals = signals[:req.Limit]
	}

	res := signalsResponse{Signals: signals, Count: len(signals), AsOf: time.Now()}
	if h.cache != nil && req.Limit == 100 {
		if b, err := json.Marshal(xhttp.APIResponse{Status: http.StatusOK, Message: http.StatusText(http.StatusOK), Data: res}); err == nil {
			if err := h.cache.SetBytes(cacheKey, b, 2*time.Second); err != nil {
				h.logger.Warn("api.signals cache_set_error", applogger.Error(err))
			}
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsHandler) SignalsA0(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("signals_a0").Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":a0", 10, 5) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	signals := h.engine.GetA0Signals()
	return xhttp.SuccessResponse(c, signalsResponse{Signals: signals, Count: len(signals), AsOf: time.Now()})
}

func (h *SignalsHandler) SignalsA1(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("signals_a1").Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":a1", 10, 5) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	signals := h.engine.GetA1Signals()
	return xhttp.SuccessResponse(c, signalsResponse{Signals: signals, Count: len(signals), AsOf: time.Now()})
}

// Symbol returns the active signal for one symbol, or 404 when none exists.
func (h *SignalsHandler) Symbol(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("signals_symbol").Observe(time.Since(start).Seconds()) }()

	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	for _, sig := range h.engine.GetActiveSignals() {
		if sig.Symbol == req.Symbol {
			return xhttp.SuccessResponse(c, sig)
		}
	}
	return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no active signal for %s", req.Symbol))
}

// Status reports the last completed cycle and engine health.
func (h *SignalsHandler) Status(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("status").Observe(time.Since(start).Seconds()) }()

	return xhttp.SuccessResponse(c, h.engine.Stats())
}

// Logs returns recent aggregated log entries, most recent first.
func (h *SignalsHandler) Logs(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("logs").Observe(time.Since(start).Seconds()) }()

	req := &models.LogsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.collector == nil {
		return xhttp.SuccessResponse(c, []applogger.AggregatedLogEntry{})
	}
	logs := h.collector.Pending()
	sort.Slice(logs, func(i, j int) bool { return logs[i].LastSeen.After(logs[j].LastSeen) })
	if len(logs) > req.Limit {
		logs = logs[:req.Limit]
	}
	return xhttp.SuccessResponse(c, logs)
}

func filterSignals(in []*models.Signal, keep func(*models.Signal) bool) []*models.Signal {
	out := in[:0:0]
	for _, s := range in {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
