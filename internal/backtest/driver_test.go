package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/indicator"
	"github.com/alanyoungcy/futuresbot/internal/strategy"
)

func driverTradingConfig() domain.TradingConfig {
	return domain.TradingConfig{
		Symbol:                "BTCUSDT",
		TradeAmount:           decimal.NewFromFloat(0.1),
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

// waveCandles builds a 15-minute series that trends down hard and then
// recovers, the shape most likely to cross oversold/band entry conditions.
func waveCandles(n int) []domain.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, n)
	for i := range out {
		price := 50_000 + 3_000*math.Sin(float64(i)/18) - 4*float64(i%7)
		p := decimal.NewFromFloat(price)
		out[i] = domain.Candle{
			OpenTime:  start.Add(time.Duration(i) * 15 * time.Minute),
			CloseTime: start.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      p,
			High:      p.Add(decimal.NewFromInt(30)),
			Low:       p.Sub(decimal.NewFromInt(30)),
			Close:     p,
			Volume:    decimal.NewFromInt(25),
		}
	}
	return out
}

func runOnce(t *testing.T, history []domain.Candle) domain.BacktestResult {
	t.Helper()
	cfg := driverTradingConfig()
	simCfg := SimConfig{
		InitialBalance:   d(10_000),
		Latency:          500 * time.Millisecond,
		SlippageFraction: d(0.0005),
		TakerFeeRate:     d(0.0004),
		LotStep:          d(0.001),
	}
	logger := testLogger()
	sim := NewSimulator(simCfg, cfg.SignalTimeframe, logger)
	calc := indicator.NewCalculator(indicator.ParamsFrom(cfg), logger)
	engine := strategy.NewEngine(sim, calc, domain.DirectionLong, cfg, logger)
	driver := NewDriver(engine, sim, cfg, domain.DirectionLong, logger)

	result, err := driver.Run(context.Background(), history)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	return result
}

func TestDriverDeterminism(t *testing.T) {
	history := waveCandles(600)

	first := runOnce(t, history)
	second := runOnce(t, history)

	if !first.FinalBalance.Equal(second.FinalBalance) {
		t.Fatalf("final balances differ: %s vs %s", first.FinalBalance, second.FinalBalance)
	}
	if !first.TotalProfit.Equal(second.TotalProfit) {
		t.Fatalf("profits differ: %s vs %s", first.TotalProfit, second.TotalProfit)
	}
	if !first.TotalFees.Equal(second.TotalFees) {
		t.Fatalf("fees differ: %s vs %s", first.TotalFees, second.TotalFees)
	}
	if first.TotalTrades != second.TotalTrades || first.Liquidations != second.Liquidations {
		t.Fatalf("trade counts differ: %d/%d vs %d/%d",
			first.TotalTrades, first.Liquidations, second.TotalTrades, second.Liquidations)
	}
	for i := range first.Trades {
		a, b := first.Trades[i], second.Trades[i]
		if !a.Price.Equal(b.Price) || !a.Quantity.Equal(b.Quantity) || !a.PnL.Equal(b.PnL) || a.Reason != b.Reason {
			t.Fatalf("trade %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestDriverResultAccounting(t *testing.T) {
	history := waveCandles(600)
	result := runOnce(t, history)

	if !result.TotalProfit.Equal(result.FinalBalance.Sub(result.InitialBalance)) {
		t.Fatalf("profit %s != final %s − initial %s",
			result.TotalProfit, result.FinalBalance, result.InitialBalance)
	}
	if result.TotalTrades != len(result.Trades) {
		t.Fatalf("trade count %d != recorded trades %d", result.TotalTrades, len(result.Trades))
	}
	if result.RunID == "" {
		t.Fatal("run must carry an ID")
	}
	for _, tr := range result.Trades {
		if tr.RunID != result.RunID {
			t.Fatalf("trade run ID %s != %s", tr.RunID, result.RunID)
		}
	}
	if !result.EndTime.Equal(history[len(history)-1].CloseTime) {
		t.Fatal("end time must be the last candle close")
	}
}

func TestDriverRejectsShortHistory(t *testing.T) {
	history := waveCandles(20) // far below the warm-up requirement

	cfg := driverTradingConfig()
	logger := testLogger()
	sim := NewSimulator(SimConfig{
		InitialBalance: d(10_000),
		LotStep:        d(0.001),
	}, cfg.SignalTimeframe, logger)
	calc := indicator.NewCalculator(indicator.ParamsFrom(cfg), logger)
	engine := strategy.NewEngine(sim, calc, domain.DirectionLong, cfg, logger)
	driver := NewDriver(engine, sim, cfg, domain.DirectionLong, logger)

	_, err := driver.Run(context.Background(), history)
	if !errors.Is(err, domain.ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}
