package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// BacktestService replays historical candles through the engine and returns
// the run result. The app layer provides the implementation.
type BacktestService interface {
	RunFromCSV(ctx context.Context, csvPath string) (domain.BacktestResult, error)
}

// BacktestHandler exposes backtest execution, run history, and archived
// reports over HTTP.
type BacktestHandler struct {
	service BacktestService
	runs    domain.BacktestRunStore
	trades  domain.TradeStore
	archive domain.BlobReader
	logger  *slog.Logger
}

// NewBacktestHandler creates a BacktestHandler. runs and trades may be nil
// when no database is configured; history endpoints then return 503. archive
// may be nil when report archiving is disabled; the report endpoint then
// returns 503.
func NewBacktestHandler(service BacktestService, runs domain.BacktestRunStore, trades domain.TradeStore, archive domain.BlobReader, logger *slog.Logger) *BacktestHandler {
	return &BacktestHandler{
		service: service,
		runs:    runs,
		trades:  trades,
		archive: archive,
		logger:  logHandler(logger, "backtest"),
	}
}

// RunBacktest executes a backtest over a CSV candle file and returns the run
// summary. The replay runs synchronously; clients should use a generous
// request timeout for long histories.
// POST /api/backtest/run
func (h *BacktestHandler) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CSVPath string `json:"csv_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CSVPath == "" {
		writeError(w, http.StatusBadRequest, "csv_path is required")
		return
	}

	result, err := h.service.RunFromCSV(r.Context(), req.CSVPath)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientHistory) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("backtest failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The trade log can be large; return the summary and let clients pull
	// fills from the trades endpoint.
	summary := result
	summary.Trades = nil
	writeJSON(w, http.StatusOK, summary)
}

// ListRuns returns recent run summaries, newest first.
// GET /api/backtest/runs
func (h *BacktestHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}

	opts := parseListOpts(r)
	results, err := h.runs.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.Error("list runs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": results})
}

// GetRun returns one run summary.
// GET /api/backtest/runs/{id}
func (h *BacktestHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}

	id := pathParam(r, "id")
	result, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetRunReport streams one run's archived trade log (trades.jsonl) from
// object storage. Unlike the trades endpoint this returns the full log in one
// response, which suits offline analysis of long replays.
// GET /api/backtest/runs/{id}/report
func (h *BacktestHandler) GetRunReport(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "report archive not configured")
		return
	}

	id := pathParam(r, "id")
	path := "backtests/" + id + "/trades.jsonl"

	body, err := h.archive.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		h.logger.Error("fetch report failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to fetch report")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error("stream report failed", slog.String("error", err.Error()))
	}
}

// ListRunTrades returns the fills of one run in execution order.
// GET /api/backtest/runs/{id}/trades
func (h *BacktestHandler) ListRunTrades(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade history not configured")
		return
	}

	id := pathParam(r, "id")
	trades, err := h.trades.ListByRun(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.Error("list run trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}
