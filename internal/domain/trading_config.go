package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Leverage bounds accepted by the venue.
const (
	MinLeverage = 1
	MaxLeverage = 125
)

// TradingConfig is the immutable per-engine trading parameter set. It is
// read-only within a cycle and hot-swappable between cycles via
// Engine.UpdateConfig.
type TradingConfig struct {
	Symbol              string
	TradeAmount         decimal.Decimal // base-asset quantity per entry
	Leverage            int
	TrailingStopPercent float64 // retracement from the extreme, in percent

	SignalTimeframe       string
	ConfirmationTimeframe string

	RSILookback   int
	RSIOversold   float64
	RSIOverbought float64

	MACDFast         int
	MACDSlow         int
	MACDSignalPeriod int

	BollingerPeriod int
	BollingerStdDev float64

	CheckInterval time.Duration
}

// Validate checks the configuration and returns a combined error describing
// every problem found. Invalid values are never silently clamped.
func (c TradingConfig) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Symbol) == "" {
		errs = append(errs, "symbol must not be empty")
	}
	if !c.TradeAmount.IsPositive() {
		errs = append(errs, "trade_amount must be > 0")
	}
	if c.Leverage < MinLeverage || c.Leverage > MaxLeverage {
		errs = append(errs, fmt.Sprintf("leverage must be %d-%d, got %d: %s",
			MinLeverage, MaxLeverage, c.Leverage, ErrInvalidLeverage))
	}
	if c.TrailingStopPercent <= 0 || c.TrailingStopPercent >= 100 {
		errs = append(errs, fmt.Sprintf("trailing_stop_percent must be in (0, 100), got %g", c.TrailingStopPercent))
	}
	if !ValidTimeframe(c.SignalTimeframe) {
		errs = append(errs, fmt.Sprintf("signal_timeframe %q is not a valid timeframe", c.SignalTimeframe))
	}
	if !ValidTimeframe(c.ConfirmationTimeframe) {
		errs = append(errs, fmt.Sprintf("confirmation_timeframe %q is not a valid timeframe", c.ConfirmationTimeframe))
	}
	if c.RSILookback < 2 {
		errs = append(errs, "rsi_lookback must be >= 2")
	}
	if c.RSIOversold <= 0 || c.RSIOverbought >= 100 || c.RSIOversold >= c.RSIOverbought {
		errs = append(errs, fmt.Sprintf("rsi thresholds must satisfy 0 < oversold < overbought < 100, got %g/%g",
			c.RSIOversold, c.RSIOverbought))
	}
	if c.MACDFast < 1 || c.MACDSlow <= c.MACDFast || c.MACDSignalPeriod < 1 {
		errs = append(errs, "macd periods must satisfy fast >= 1, slow > fast, signal >= 1")
	}
	if c.BollingerPeriod < 2 {
		errs = append(errs, "bollinger_period must be >= 2")
	}
	if c.BollingerStdDev <= 0 {
		errs = append(errs, "bollinger_std_dev must be > 0")
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, "check_interval must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("trading config invalid:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LongestLookback returns the number of candles required before every
// indicator in the set can be computed.
func (c TradingConfig) LongestLookback() int {
	longest := c.RSILookback + 1
	if n := c.MACDSlow + c.MACDSignalPeriod; n > longest {
		longest = n
	}
	if c.BollingerPeriod > longest {
		longest = c.BollingerPeriod
	}
	return longest
}
