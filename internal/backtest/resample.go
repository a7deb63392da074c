package backtest

import (
	"fmt"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// resampleFactor returns how many base-timeframe candles aggregate into one
// target-timeframe candle. The target must be a whole multiple of the base.
func resampleFactor(base, target string) (int, error) {
	baseDur, err := domain.ParseTimeframe(base)
	if err != nil {
		return 0, fmt.Errorf("backtest: base timeframe: %w", err)
	}
	targetDur, err := domain.ParseTimeframe(target)
	if err != nil {
		return 0, fmt.Errorf("backtest: target timeframe: %w", err)
	}
	if targetDur <= baseDur || targetDur%baseDur != 0 {
		return 0, fmt.Errorf("backtest: timeframe %s is not a multiple of %s", target, base)
	}
	return int(targetDur / baseDur), nil
}

// Resample aggregates consecutive groups of factor candles into coarser bars.
// Groups are aligned to the end of the series so the newest bar is always
// complete and closes exactly at the input's last close time; a leftover
// partial group at the old end is dropped.
func Resample(candles []domain.Candle, factor int) []domain.Candle {
	if factor <= 1 {
		out := make([]domain.Candle, len(candles))
		copy(out, candles)
		return out
	}
	n := len(candles) / factor
	if n == 0 {
		return nil
	}

	out := make([]domain.Candle, 0, n)
	start := len(candles) - n*factor
	for i := start; i+factor <= len(candles); i += factor {
		chunk := candles[i : i+factor]
		agg := domain.Candle{
			OpenTime:  chunk[0].OpenTime,
			CloseTime: chunk[len(chunk)-1].CloseTime,
			Open:      chunk[0].Open,
			High:      chunk[0].High,
			Low:       chunk[0].Low,
			Close:     chunk[len(chunk)-1].Close,
			Volume:    chunk[0].Volume,
		}
		for _, c := range chunk[1:] {
			if c.High.GreaterThan(agg.High) {
				agg.High = c.High
			}
			if c.Low.LessThan(agg.Low) {
				agg.Low = c.Low
			}
			agg.Volume = agg.Volume.Add(c.Volume)
		}
		out = append(out, agg)
	}
	return out
}
