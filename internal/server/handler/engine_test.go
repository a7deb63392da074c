package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/indicator"
	"github.com/alanyoungcy/futuresbot/internal/strategy"
)

type nopGateway struct {
	leverage int
}

func (g *nopGateway) FetchOHLCV(context.Context, string, string, int) ([]domain.Candle, error) {
	return nil, nil
}

func (g *nopGateway) CurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(50000), nil
}

func (g *nopGateway) MarginBalance(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(10000), nil
}

func (g *nopGateway) SetLeverage(_ context.Context, _ string, leverage int) error {
	g.leverage = leverage
	return nil
}

func (g *nopGateway) EnterLong(context.Context, string, decimal.Decimal) error  { return nil }
func (g *nopGateway) EnterShort(context.Context, string, decimal.Decimal) error { return nil }
func (g *nopGateway) ExitLong(context.Context, string, decimal.Decimal) error   { return nil }
func (g *nopGateway) ExitShort(context.Context, string, decimal.Decimal) error  { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig() domain.TradingConfig {
	return domain.TradingConfig{
		Symbol:                "BTCUSDT",
		TradeAmount:           decimal.RequireFromString("0.5"),
		Leverage:              3,
		TrailingStopPercent:   1.5,
		SignalTimeframe:       "15m",
		ConfirmationTimeframe: "1h",
		RSILookback:           14,
		RSIOversold:           30,
		RSIOverbought:         70,
		MACDFast:              12,
		MACDSlow:              26,
		MACDSignalPeriod:      9,
		BollingerPeriod:       20,
		BollingerStdDev:       2,
		CheckInterval:         time.Minute,
	}
}

func newTestHandler(t *testing.T) (*EngineHandler, *nopGateway) {
	t.Helper()
	gw := &nopGateway{}
	cfg := testConfig()
	calc := indicator.NewCalculator(indicator.ParamsFrom(cfg), testLogger())
	eng := strategy.NewEngine(gw, calc, domain.DirectionLong, cfg, testLogger())
	return NewEngineHandler(eng, testLogger()), gw
}

func TestStartStopEndpoints(t *testing.T) {
	h, gw := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/engine/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	if gw.leverage != 3 {
		t.Fatalf("leverage applied = %d, want 3", gw.leverage)
	}

	rec = httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/engine/start", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("double start status = %d, want 409", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/api/engine/stop", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/api/engine/stop", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("double stop status = %d, want 409", rec.Code)
	}
}

func TestSetLeverageValidation(t *testing.T) {
	h, gw := newTestHandler(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/engine/leverage", strings.NewReader(`{"leverage":500}`))
	h.SetLeverage(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid leverage status = %d, want 400", rec.Code)
	}
	if gw.leverage != 0 {
		t.Fatal("gateway must not be called for invalid leverage")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/engine/leverage", strings.NewReader(`{"leverage":10}`))
	h.SetLeverage(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid leverage status = %d", rec.Code)
	}
	if gw.leverage != 10 {
		t.Fatalf("leverage applied = %d, want 10", gw.leverage)
	}
}

func TestUpdateConfigPartial(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	body := `{"trailing_stop_percent": 2.5, "check_interval_secs": 30}`
	req := httptest.NewRequest(http.MethodPut, "/api/engine/config", strings.NewReader(body))
	h.UpdateConfig(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("config update status = %d: %s", rec.Code, rec.Body.String())
	}

	var st strategy.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Symbol != "BTCUSDT" {
		t.Fatalf("symbol = %q", st.Symbol)
	}
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/engine/config", strings.NewReader(`{"leverage":500}`))
	h.UpdateConfig(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid config status = %d, want 400", rec.Code)
	}
}

func TestClosePositionWithoutPosition(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/engine/start", nil))

	rec = httptest.NewRecorder()
	h.ClosePosition(rec, httptest.NewRequest(http.MethodPost, "/api/engine/close", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("close without position status = %d, want 409", rec.Code)
	}
}
