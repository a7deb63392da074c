package domain

import "time"

// IndicatorSnapshot holds the latest computed technical indicator values for
// one (symbol, timeframe). Snapshots are replaced wholesale on recompute,
// never mutated.
type IndicatorSnapshot struct {
	RSI            float64
	MACD           float64
	MACDSignal     float64
	BollingerLower float64
	BollingerUpper float64

	// CandleCloseTime is the close time of the newest candle the snapshot was
	// computed from. The zero value marks an empty snapshot (insufficient
	// history).
	CandleCloseTime time.Time
}

// Empty reports whether the snapshot carries no computed values.
func (s IndicatorSnapshot) Empty() bool {
	return s.CandleCloseTime.IsZero()
}
