// Package indicator computes technical indicator snapshots from candle
// history using TA-Lib, with per-(symbol, timeframe) memoization so repeated
// reads within the same bar never recompute.
package indicator

import (
	"log/slog"
	"sync"

	"github.com/markcheno/go-talib"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Params holds the lookback settings for one calculator instance.
type Params struct {
	RSILookback      int
	MACDFast         int
	MACDSlow         int
	MACDSignalPeriod int
	BollingerPeriod  int
	BollingerStdDev  float64
}

// ParamsFrom extracts indicator lookbacks from a trading configuration.
func ParamsFrom(cfg domain.TradingConfig) Params {
	return Params{
		RSILookback:      cfg.RSILookback,
		MACDFast:         cfg.MACDFast,
		MACDSlow:         cfg.MACDSlow,
		MACDSignalPeriod: cfg.MACDSignalPeriod,
		BollingerPeriod:  cfg.BollingerPeriod,
		BollingerStdDev:  cfg.BollingerStdDev,
	}
}

// MinCandles returns the minimum history length required to produce a
// non-empty snapshot under these parameters.
func (p Params) MinCandles() int {
	n := p.RSILookback + 1
	if m := p.MACDSlow + p.MACDSignalPeriod; m > n {
		n = m
	}
	if p.BollingerPeriod > n {
		n = p.BollingerPeriod
	}
	return n
}

// Calculator produces IndicatorSnapshots from candle series. It is safe for
// concurrent use.
type Calculator struct {
	params Params
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]domain.IndicatorSnapshot

	recomputes int // total cache misses, exposed for status reporting
}

// NewCalculator creates a Calculator with the given lookback parameters.
func NewCalculator(params Params, logger *slog.Logger) *Calculator {
	return &Calculator{
		params: params,
		logger: logger.With(slog.String("component", "indicator")),
		cache:  make(map[string]domain.IndicatorSnapshot),
	}
}

// SetParams replaces the lookback parameters and invalidates all cached
// snapshots.
func (c *Calculator) SetParams(params Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = params
	c.cache = make(map[string]domain.IndicatorSnapshot)
}

// Recomputes returns how many times a snapshot was actually computed (cache
// misses) since the calculator was created.
func (c *Calculator) Recomputes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recomputes
}

// Snapshot returns the indicator values for the given candle series. The
// series must be sorted ascending by open time. When the cached snapshot for
// (symbol, timeframe) already reflects the latest closed candle it is returned
// without recomputation. An empty snapshot is returned when the series is too
// short for the configured lookbacks.
func (c *Calculator) Snapshot(symbol, timeframe string, candles []domain.Candle) domain.IndicatorSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(candles) < c.params.MinCandles() {
		c.logger.Debug("insufficient history for indicators",
			slog.String("symbol", symbol),
			slog.String("timeframe", timeframe),
			slog.Int("candles", len(candles)),
			slog.Int("required", c.params.MinCandles()))
		return domain.IndicatorSnapshot{}
	}

	key := symbol + "|" + timeframe
	latest := candles[len(candles)-1].CloseTime
	if cached, ok := c.cache[key]; ok && cached.CandleCloseTime.Equal(latest) {
		return cached
	}

	snap := c.compute(candles)
	snap.CandleCloseTime = latest
	c.cache[key] = snap
	c.recomputes++
	return snap
}

// compute runs the TA-Lib calculations over the close series and returns the
// most recent value of each indicator.
func (c *Calculator) compute(candles []domain.Candle) domain.IndicatorSnapshot {
	closes := domain.Closes(candles)

	rsi := talib.Rsi(closes, c.params.RSILookback)
	macd, signal, _ := talib.Macd(closes, c.params.MACDFast, c.params.MACDSlow, c.params.MACDSignalPeriod)
	upper, _, lower := talib.BBands(closes, c.params.BollingerPeriod, c.params.BollingerStdDev, c.params.BollingerStdDev, 0)

	last := len(closes) - 1
	return domain.IndicatorSnapshot{
		RSI:            rsi[last],
		MACD:           macd[last],
		MACDSignal:     signal[last],
		BollingerLower: lower[last],
		BollingerUpper: upper[last],
	}
}
