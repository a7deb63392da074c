package backtest

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func simConfig() SimConfig {
	return SimConfig{
		InitialBalance:   d(10_000),
		Latency:          0,
		SlippageFraction: decimal.Zero,
		TakerFeeRate:     decimal.Zero,
		LotStep:          d(0.001),
	}
}

// flatCandles builds n 15-minute candles all at the given price.
func flatCandles(n int, price float64) []domain.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, n)
	p := d(price)
	for i := range out {
		out[i] = domain.Candle{
			OpenTime:  start.Add(time.Duration(i) * 15 * time.Minute),
			CloseTime: start.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      p, High: p, Low: p, Close: p,
			Volume: d(10),
		}
	}
	return out
}

func TestLiquidationScenario(t *testing.T) {
	ctx := context.Background()
	history := flatCandles(4, 50_000)
	// Candle 1 dips to 34000 (above the liquidation price), candle 2 to 33000.
	history[1].Low = d(34_000)
	history[2].Low = d(33_000)

	sim := NewSimulator(simConfig(), "15m", testLogger())
	if err := sim.SetLeverage(ctx, "BTCUSDT", 3); err != nil {
		t.Fatalf("set leverage: %v", err)
	}

	sim.SetMarketContext(history, 0)
	if err := sim.EnterLong(ctx, "BTCUSDT", d(0.3)); err != nil {
		t.Fatalf("enter: %v", err)
	}
	sim.ProcessPendingOrders()
	if sim.OpenPositions() != 1 {
		t.Fatal("expected open position after fill")
	}

	// Low 34000 is above 50000 × (1 − 1/3) ≈ 33333.33: no liquidation.
	sim.SetMarketContext(history, 1)
	if sim.Liquidations() != 0 {
		t.Fatal("low of 34000 must not liquidate a 3x long from 50000")
	}

	// Low 33000 crosses the liquidation price.
	sim.SetMarketContext(history, 2)
	if sim.Liquidations() != 1 {
		t.Fatal("low of 33000 must liquidate a 3x long from 50000")
	}
	if sim.OpenPositions() != 0 {
		t.Fatal("liquidated position must be removed")
	}

	trades := sim.Trades()
	last := trades[len(trades)-1]
	if last.Reason != domain.TradeReasonLiquidation {
		t.Fatalf("reason = %s, want liquidation", last.Reason)
	}
	// The margin is wiped: nothing was credited back.
	want := d(10_000).Sub(d(5_000)) // entry margin 0.3×50000/3
	if !sim.Balance().Equal(want) {
		t.Fatalf("balance = %s, want %s", sim.Balance(), want)
	}
}

func TestLiquidationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 300; i++ {
		entry := d(1_000 + rng.Float64()*90_000)
		leverage := 1 + rng.Intn(125)
		direction := domain.DirectionLong
		if rng.Intn(2) == 1 {
			direction = domain.DirectionShort
		}

		// Candle centered on the entry, ±60% span.
		low := entry.Mul(d(0.4 + rng.Float64()*0.6))
		high := entry.Mul(d(1 + rng.Float64()*0.6))
		candle := domain.Candle{
			OpenTime:  now,
			CloseTime: now.Add(15 * time.Minute),
			Open:      entry, Close: entry,
			High: high, Low: low,
			Volume: d(1),
		}

		sim := NewSimulator(simConfig(), "15m", testLogger())
		sim.positions[positionKey("BTCUSDT", direction)] = &openPosition{
			quantity:      d(1),
			entryPrice:    entry,
			leverage:      leverage,
			initialMargin: entry.Div(decimal.NewFromInt(int64(leverage))),
		}
		sim.now = candle.CloseTime
		sim.sweepLiquidations(candle)

		liq := domain.LiquidationPrice(entry, leverage, direction)
		var shouldLiquidate bool
		if direction == domain.DirectionLong {
			shouldLiquidate = low.LessThanOrEqual(liq)
		} else {
			shouldLiquidate = high.GreaterThanOrEqual(liq)
		}
		if got := sim.Liquidations() == 1; got != shouldLiquidate {
			t.Fatalf("case %d: entry=%s leverage=%d dir=%s low=%s high=%s liq=%s: liquidated=%v want %v",
				i, entry, leverage, direction, low, high, liq, got, shouldLiquidate)
		}
	}
}

func TestSlippageAppliedPerSide(t *testing.T) {
	ctx := context.Background()
	cfg := simConfig()
	cfg.SlippageFraction = d(0.001)
	history := flatCandles(3, 50_000)

	sim := NewSimulator(cfg, "15m", testLogger())
	if err := sim.SetLeverage(ctx, "BTCUSDT", 3); err != nil {
		t.Fatalf("set leverage: %v", err)
	}

	sim.SetMarketContext(history, 0)
	if err := sim.EnterLong(ctx, "BTCUSDT", d(0.1)); err != nil {
		t.Fatalf("enter: %v", err)
	}
	sim.ProcessPendingOrders()

	sim.SetMarketContext(history, 1)
	if err := sim.ExitLong(ctx, "BTCUSDT", d(0.1)); err != nil {
		t.Fatalf("exit: %v", err)
	}
	sim.ProcessPendingOrders()

	trades := sim.Trades()
	if len(trades) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(trades))
	}
	if !trades[0].Price.Equal(d(50_050)) {
		t.Fatalf("buy fill = %s, want 50050", trades[0].Price)
	}
	if !trades[1].Price.Equal(d(49_950)) {
		t.Fatalf("sell fill = %s, want 49950", trades[1].Price)
	}
}

func TestPendingOrdersFIFOAndLatency(t *testing.T) {
	ctx := context.Background()
	cfg := simConfig()
	cfg.Latency = 15 * time.Minute // one candle behind
	history := flatCandles(4, 50_000)

	sim := NewSimulator(cfg, "15m", testLogger())
	if err := sim.SetLeverage(ctx, "BTCUSDT", 10); err != nil {
		t.Fatalf("set leverage: %v", err)
	}
	if err := sim.SetLeverage(ctx, "ETHUSDT", 10); err != nil {
		t.Fatalf("set leverage: %v", err)
	}

	sim.SetMarketContext(history, 0)
	if err := sim.EnterLong(ctx, "BTCUSDT", d(0.1)); err != nil {
		t.Fatalf("enter btc: %v", err)
	}
	if err := sim.EnterLong(ctx, "ETHUSDT", d(0.2)); err != nil {
		t.Fatalf("enter eth: %v", err)
	}

	// Orders may never fill before enqueue time + latency.
	sim.ProcessPendingOrders()
	if len(sim.Trades()) != 0 {
		t.Fatal("orders filled before latency elapsed")
	}

	sim.SetMarketContext(history, 1)
	sim.ProcessPendingOrders()
	trades := sim.Trades()
	if len(trades) != 2 {
		t.Fatalf("expected both fills after latency, got %d", len(trades))
	}
	if trades[0].Symbol != "BTCUSDT" || trades[1].Symbol != "ETHUSDT" {
		t.Fatalf("fills out of FIFO order: %s, %s", trades[0].Symbol, trades[1].Symbol)
	}
}

func TestMarginConservation(t *testing.T) {
	ctx := context.Background()
	cfg := simConfig()
	cfg.SlippageFraction = d(0.0005)
	cfg.TakerFeeRate = d(0.0004)
	history := flatCandles(6, 50_000)
	history[2].Close = d(51_000)
	history[2].High = d(51_000)
	history[3].Close = d(52_000)
	history[3].High = d(52_000)

	sim := NewSimulator(cfg, "15m", testLogger())
	if err := sim.SetLeverage(ctx, "BTCUSDT", 5); err != nil {
		t.Fatalf("set leverage: %v", err)
	}

	sim.SetMarketContext(history, 0)
	if err := sim.EnterLong(ctx, "BTCUSDT", d(0.4)); err != nil {
		t.Fatalf("enter: %v", err)
	}
	sim.ProcessPendingOrders()

	sim.SetMarketContext(history, 3)
	if err := sim.ExitLong(ctx, "BTCUSDT", d(0.4)); err != nil {
		t.Fatalf("exit: %v", err)
	}
	sim.ProcessPendingOrders()

	if sim.OpenPositions() != 0 {
		t.Fatal("expected flat account")
	}

	var fees, pnl decimal.Decimal
	for _, tr := range sim.Trades() {
		fees = fees.Add(tr.Fee)
		pnl = pnl.Add(tr.PnL)
	}
	want := cfg.InitialBalance.Sub(fees).Add(pnl)
	if !sim.Balance().Equal(want) {
		t.Fatalf("balance = %s, want initial − fees + pnl = %s", sim.Balance(), want)
	}
	if !fees.Equal(sim.TotalFees()) {
		t.Fatalf("fee total mismatch: %s vs %s", fees, sim.TotalFees())
	}
}

func TestEntryRejectedOnInsufficientMargin(t *testing.T) {
	ctx := context.Background()
	cfg := simConfig()
	cfg.InitialBalance = d(100)
	history := flatCandles(2, 50_000)

	sim := NewSimulator(cfg, "15m", testLogger())
	if err := sim.SetLeverage(ctx, "BTCUSDT", 2); err != nil {
		t.Fatalf("set leverage: %v", err)
	}
	sim.SetMarketContext(history, 0)
	if err := sim.EnterLong(ctx, "BTCUSDT", d(0.5)); err != nil {
		t.Fatalf("enter: %v", err)
	}
	sim.ProcessPendingOrders()

	if sim.OpenPositions() != 0 {
		t.Fatal("underfunded entry must be dropped")
	}
	if !sim.Balance().Equal(d(100)) {
		t.Fatalf("balance = %s, must be untouched on rejection", sim.Balance())
	}
}

func TestLotStepQuantization(t *testing.T) {
	ctx := context.Background()
	history := flatCandles(2, 50_000)

	sim := NewSimulator(simConfig(), "15m", testLogger())
	if err := sim.SetLeverage(ctx, "BTCUSDT", 10); err != nil {
		t.Fatalf("set leverage: %v", err)
	}
	sim.SetMarketContext(history, 0)

	if err := sim.EnterLong(ctx, "BTCUSDT", d(0.0015)); err != nil {
		t.Fatalf("enter: %v", err)
	}
	sim.ProcessPendingOrders()
	trades := sim.Trades()
	if len(trades) != 1 || !trades[0].Quantity.Equal(d(0.001)) {
		t.Fatalf("quantity = %v, want floor-quantized 0.001", trades)
	}

	if err := sim.EnterLong(ctx, "ETHUSDT", d(0.0004)); err == nil {
		t.Fatal("quantity below lot step must be rejected")
	}
}

func TestSetLeverageRange(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator(simConfig(), "15m", testLogger())
	for _, bad := range []int{0, 126} {
		if err := sim.SetLeverage(ctx, "BTCUSDT", bad); err == nil {
			t.Fatalf("leverage %d must be rejected", bad)
		}
	}
	if err := sim.SetLeverage(ctx, "BTCUSDT", 125); err != nil {
		t.Fatalf("leverage 125: %v", err)
	}
}

func TestFetchOHLCVNoLookAhead(t *testing.T) {
	ctx := context.Background()
	history := flatCandles(50, 50_000)
	sim := NewSimulator(simConfig(), "15m", testLogger())
	sim.SetMarketContext(history, 9)

	candles, err := sim.FetchOHLCV(ctx, "BTCUSDT", "15m", 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(candles) != 10 {
		t.Fatalf("got %d candles, want the 10 up to the cursor", len(candles))
	}
	last := candles[len(candles)-1]
	if !last.CloseTime.Equal(history[9].CloseTime) {
		t.Fatal("window must end exactly at the cursor")
	}
}

func TestFetchOHLCVResamplesConfirmationTimeframe(t *testing.T) {
	ctx := context.Background()
	history := flatCandles(40, 50_000)
	sim := NewSimulator(simConfig(), "15m", testLogger())
	sim.SetMarketContext(history, 39)

	candles, err := sim.FetchOHLCV(ctx, "BTCUSDT", "1h", 100)
	if err != nil {
		t.Fatalf("fetch 1h: %v", err)
	}
	if len(candles) != 10 {
		t.Fatalf("40 quarter-hour candles must resample to 10 hourly, got %d", len(candles))
	}
	if !candles[len(candles)-1].CloseTime.Equal(history[39].CloseTime) {
		t.Fatal("resampled window must end at the cursor")
	}
}

func TestResampleAggregatesOHLCV(t *testing.T) {
	history := flatCandles(8, 100)
	history[5].High = d(140)
	history[6].Low = d(60)
	history[7].Close = d(120)
	history[7].High = d(140)

	out := Resample(history, 4)
	if len(out) != 2 {
		t.Fatalf("got %d bars, want 2", len(out))
	}
	last := out[1]
	if !last.High.Equal(d(140)) || !last.Low.Equal(d(60)) {
		t.Fatalf("high/low = %s/%s, want 140/60", last.High, last.Low)
	}
	if !last.Close.Equal(d(120)) {
		t.Fatalf("close = %s, want last chunk close 120", last.Close)
	}
	if !last.Volume.Equal(d(40)) {
		t.Fatalf("volume = %s, want summed 40", last.Volume)
	}
}
