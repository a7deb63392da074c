package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar for a fixed time bucket. Candles are treated as
// immutable once constructed; every consumer relies on sequences being
// ordered ascending by OpenTime.
type Candle struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Validate checks basic OHLC consistency.
func (c Candle) Validate() error {
	if !c.OpenTime.Before(c.CloseTime) {
		return fmt.Errorf("candle: open time %s not before close time %s", c.OpenTime, c.CloseTime)
	}
	if c.High.LessThan(c.Low) {
		return fmt.Errorf("candle: high %s below low %s", c.High, c.Low)
	}
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) ||
		c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) {
		return fmt.Errorf("candle: open/close outside high/low range")
	}
	return nil
}

// SortCandles orders candles ascending by OpenTime in place.
func SortCandles(candles []Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})
}

// Closes extracts the close prices as float64 for indicator math.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}

// Highs extracts the high prices as float64.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High.InexactFloat64()
	}
	return out
}

// Lows extracts the low prices as float64.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low.InexactFloat64()
	}
	return out
}
