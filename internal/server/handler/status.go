package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/strategy"
)

// StatusHandler serves a combined view of the engine, the latest cached
// price, and the published indicator snapshots.
type StatusHandler struct {
	mode      string
	engine    *strategy.Engine
	prices    domain.PriceCache
	snapshots domain.SnapshotCache
	startedAt time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler. prices and snapshots may be nil;
// the corresponding fields are then omitted from the response.
func NewStatusHandler(mode string, engine *strategy.Engine, prices domain.PriceCache, snapshots domain.SnapshotCache, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		engine:    engine,
		prices:    prices,
		snapshots: snapshots,
		startedAt: time.Now().UTC(),
		logger:    logHandler(logger, "status"),
	}
}

// GetStatus responds with the backend mode, uptime, engine status, and the
// most recent market data.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status()
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"engine":         st,
	}

	if h.prices != nil {
		price, ts, err := h.prices.GetPrice(r.Context(), st.Symbol)
		switch {
		case err == nil:
			resp["last_price"] = price
			resp["last_price_at"] = ts.UTC().Format(time.RFC3339)
		case !errors.Is(err, domain.ErrNotFound):
			h.logger.Warn("price lookup failed", slog.String("error", err.Error()))
		}
	}

	if h.snapshots != nil {
		cfg := h.engine.Config()
		snapshots := map[string]domain.IndicatorSnapshot{}
		for _, tf := range []string{cfg.SignalTimeframe, cfg.ConfirmationTimeframe} {
			snap, err := h.snapshots.GetSnapshot(r.Context(), st.Symbol, tf)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					h.logger.Warn("snapshot lookup failed", slog.String("error", err.Error()))
				}
				continue
			}
			snapshots[tf] = snap
		}
		if len(snapshots) > 0 {
			resp["indicators"] = snapshots
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
