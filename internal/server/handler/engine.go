package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/strategy"
)

// EngineHandler exposes engine lifecycle and configuration over HTTP.
type EngineHandler struct {
	engine *strategy.Engine
	logger *slog.Logger
}

// NewEngineHandler creates an EngineHandler controlling the given engine.
func NewEngineHandler(engine *strategy.Engine, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{
		engine: engine,
		logger: logHandler(logger, "engine"),
	}
}

// Start transitions the engine to running.
// POST /api/engine/start
func (h *EngineHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Start(r.Context()); err != nil {
		if errors.Is(err, domain.ErrEngineRunning) {
			writeError(w, http.StatusConflict, "engine already running")
			return
		}
		h.logger.Error("start failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Stop halts the engine, force-closing any open position.
// POST /api/engine/stop
func (h *EngineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Stop(); err != nil {
		if errors.Is(err, domain.ErrEngineStopped) {
			writeError(w, http.StatusConflict, "engine not running")
			return
		}
		h.logger.Error("stop failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// GetStatus reports the engine's point-in-time state.
// GET /api/engine/status
func (h *EngineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// SetLeverage applies a new leverage multiplier.
// PUT /api/engine/leverage
func (h *EngineHandler) SetLeverage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Leverage int `json:"leverage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.SetLeverage(r.Context(), req.Leverage); err != nil {
		if errors.Is(err, domain.ErrInvalidLeverage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("set leverage failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// configRequest is a partial update: absent fields keep their current value.
type configRequest struct {
	Symbol                *string  `json:"symbol"`
	TradeAmount           *string  `json:"trade_amount"`
	Leverage              *int     `json:"leverage"`
	TrailingStopPercent   *float64 `json:"trailing_stop_percent"`
	SignalTimeframe       *string  `json:"signal_timeframe"`
	ConfirmationTimeframe *string  `json:"confirmation_timeframe"`
	RSILookback           *int     `json:"rsi_lookback"`
	RSIOversold           *float64 `json:"rsi_oversold"`
	RSIOverbought         *float64 `json:"rsi_overbought"`
	MACDFast              *int     `json:"macd_fast"`
	MACDSlow              *int     `json:"macd_slow"`
	MACDSignalPeriod      *int     `json:"macd_signal_period"`
	BollingerPeriod       *int     `json:"bollinger_period"`
	BollingerStdDev       *float64 `json:"bollinger_std_dev"`
	CheckIntervalSecs     *int     `json:"check_interval_secs"`
}

func (req configRequest) apply(cfg domain.TradingConfig) (domain.TradingConfig, error) {
	if req.Symbol != nil {
		cfg.Symbol = *req.Symbol
	}
	if req.TradeAmount != nil {
		amount, err := decimal.NewFromString(*req.TradeAmount)
		if err != nil {
			return cfg, errors.New("trade_amount is not a valid decimal")
		}
		cfg.TradeAmount = amount
	}
	if req.Leverage != nil {
		cfg.Leverage = *req.Leverage
	}
	if req.TrailingStopPercent != nil {
		cfg.TrailingStopPercent = *req.TrailingStopPercent
	}
	if req.SignalTimeframe != nil {
		cfg.SignalTimeframe = *req.SignalTimeframe
	}
	if req.ConfirmationTimeframe != nil {
		cfg.ConfirmationTimeframe = *req.ConfirmationTimeframe
	}
	if req.RSILookback != nil {
		cfg.RSILookback = *req.RSILookback
	}
	if req.RSIOversold != nil {
		cfg.RSIOversold = *req.RSIOversold
	}
	if req.RSIOverbought != nil {
		cfg.RSIOverbought = *req.RSIOverbought
	}
	if req.MACDFast != nil {
		cfg.MACDFast = *req.MACDFast
	}
	if req.MACDSlow != nil {
		cfg.MACDSlow = *req.MACDSlow
	}
	if req.MACDSignalPeriod != nil {
		cfg.MACDSignalPeriod = *req.MACDSignalPeriod
	}
	if req.BollingerPeriod != nil {
		cfg.BollingerPeriod = *req.BollingerPeriod
	}
	if req.BollingerStdDev != nil {
		cfg.BollingerStdDev = *req.BollingerStdDev
	}
	if req.CheckIntervalSecs != nil {
		cfg.CheckInterval = time.Duration(*req.CheckIntervalSecs) * time.Second
	}
	return cfg, nil
}

// UpdateConfig applies a partial trading-config update. Validation failures
// are reported synchronously with 400 and the running config is unchanged.
// PUT /api/engine/config
func (h *EngineHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := req.apply(h.engine.Config())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.UpdateConfig(r.Context(), cfg); err != nil {
		if errors.Is(err, domain.ErrInvalidLeverage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Validation errors and symbol-change conflicts are client errors;
		// everything else is a gateway problem.
		h.logger.Warn("config update rejected", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// SetSentiment toggles the sentiment gate.
// PUT /api/engine/sentiment
func (h *EngineHandler) SetSentiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.engine.SetSentimentGate(req.Enabled)
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// ClosePosition closes the open position at market.
// POST /api/engine/close
func (h *EngineHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClosePosition(r.Context()); err != nil {
		switch {
		case errors.Is(err, domain.ErrNoPosition):
			writeError(w, http.StatusConflict, "no open position")
		case errors.Is(err, domain.ErrEngineStopped):
			writeError(w, http.StatusConflict, "engine not running")
		default:
			h.logger.Error("manual close failed", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}
