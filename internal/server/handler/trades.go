package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// TradeHandler serves recent fill history.
type TradeHandler struct {
	trades        domain.TradeStore
	defaultSymbol string
	logger        *slog.Logger
}

// NewTradeHandler creates a TradeHandler. defaultSymbol is used when the
// request does not name one.
func NewTradeHandler(trades domain.TradeStore, defaultSymbol string, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades:        trades,
		defaultSymbol: defaultSymbol,
		logger:        logHandler(logger, "trades"),
	}
}

// ListRecent returns the newest fills for a symbol, newest first.
// GET /api/trades?symbol=BTCUSDT&limit=50
func (h *TradeHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade history not configured")
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = h.defaultSymbol
	}

	opts := parseListOpts(r)
	trades, err := h.trades.ListRecent(r.Context(), symbol, opts.Limit)
	if err != nil {
		h.logger.Error("list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "trades": trades})
}
