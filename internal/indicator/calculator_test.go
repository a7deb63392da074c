package indicator

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func testParams() Params {
	return Params{
		RSILookback:      14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignalPeriod: 9,
		BollingerPeriod:  20,
		BollingerStdDev:  2.0,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeCandles builds n 15-minute candles with a gently oscillating close so
// every indicator produces finite values.
func makeCandles(n int) []domain.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, 0, n)
	price := 50_000.0
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			price += 40
		} else {
			price -= 25
		}
		open := decimal.NewFromFloat(price - 10)
		close := decimal.NewFromFloat(price)
		out = append(out, domain.Candle{
			OpenTime:  start.Add(time.Duration(i) * 15 * time.Minute),
			CloseTime: start.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      open,
			High:      close.Add(decimal.NewFromInt(20)),
			Low:       open.Sub(decimal.NewFromInt(20)),
			Close:     close,
			Volume:    decimal.NewFromInt(100),
		})
	}
	return out
}

func TestSnapshotInsufficientHistory(t *testing.T) {
	c := NewCalculator(testParams(), testLogger())

	snap := c.Snapshot("BTCUSDT", "15m", makeCandles(10))
	if !snap.Empty() {
		t.Fatalf("expected empty snapshot for short history, got %+v", snap)
	}
	if c.Recomputes() != 0 {
		t.Fatalf("short history must not count as a recompute, got %d", c.Recomputes())
	}
}

func TestSnapshotComputesValues(t *testing.T) {
	c := NewCalculator(testParams(), testLogger())
	candles := makeCandles(120)

	snap := c.Snapshot("BTCUSDT", "15m", candles)
	if snap.Empty() {
		t.Fatal("expected non-empty snapshot")
	}
	if snap.RSI <= 0 || snap.RSI >= 100 {
		t.Fatalf("RSI out of range: %f", snap.RSI)
	}
	if snap.BollingerLower >= snap.BollingerUpper {
		t.Fatalf("lower band %f must be below upper band %f", snap.BollingerLower, snap.BollingerUpper)
	}
	if !snap.CandleCloseTime.Equal(candles[len(candles)-1].CloseTime) {
		t.Fatalf("snapshot close time %v does not match latest candle", snap.CandleCloseTime)
	}
}

func TestSnapshotMemoizedWithinBar(t *testing.T) {
	c := NewCalculator(testParams(), testLogger())
	candles := makeCandles(120)

	first := c.Snapshot("BTCUSDT", "15m", candles)
	second := c.Snapshot("BTCUSDT", "15m", candles)
	if first != second {
		t.Fatal("repeated snapshot within the same bar must be identical")
	}
	if got := c.Recomputes(); got != 1 {
		t.Fatalf("expected exactly 1 recompute, got %d", got)
	}
}

func TestSnapshotRecomputesOnNewBar(t *testing.T) {
	c := NewCalculator(testParams(), testLogger())
	candles := makeCandles(121)

	c.Snapshot("BTCUSDT", "15m", candles[:120])
	c.Snapshot("BTCUSDT", "15m", candles)
	if got := c.Recomputes(); got != 2 {
		t.Fatalf("expected recompute on new closed bar, got %d recomputes", got)
	}
}

func TestSnapshotCacheKeyedPerTimeframe(t *testing.T) {
	c := NewCalculator(testParams(), testLogger())
	candles := makeCandles(120)

	c.Snapshot("BTCUSDT", "15m", candles)
	c.Snapshot("BTCUSDT", "1h", candles)
	if got := c.Recomputes(); got != 2 {
		t.Fatalf("expected separate cache entries per timeframe, got %d recomputes", got)
	}
}

func TestSetParamsInvalidatesCache(t *testing.T) {
	c := NewCalculator(testParams(), testLogger())
	candles := makeCandles(120)

	c.Snapshot("BTCUSDT", "15m", candles)
	c.SetParams(testParams())
	c.Snapshot("BTCUSDT", "15m", candles)
	if got := c.Recomputes(); got != 2 {
		t.Fatalf("expected cache invalidation after SetParams, got %d recomputes", got)
	}
}
