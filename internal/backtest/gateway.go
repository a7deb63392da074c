package backtest

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// ExchangeGateway implementation. The decision engine trades through these
// exactly as it would through the live adapter; fills happen later, when the
// driver processes pending orders.

var _ domain.ExchangeGateway = (*Simulator)(nil)

// FetchOHLCV returns the trailing window of up to limit candles ending at the
// current cursor, never beyond it (no look-ahead). Coarser timeframes than the
// backing history are served by resampling the same window.
func (s *Simulator) FetchOHLCV(_ context.Context, _ string, timeframe string, limit int) ([]domain.Candle, error) {
	if len(s.history) == 0 {
		return nil, domain.ErrInsufficientHistory
	}
	window := s.history[:s.idx+1]

	if timeframe == s.timeframe {
		if len(window) > limit {
			window = window[len(window)-limit:]
		}
		out := make([]domain.Candle, len(window))
		copy(out, window)
		return out, nil
	}

	factor, err := resampleFactor(s.timeframe, timeframe)
	if err != nil {
		return nil, err
	}
	resampled := Resample(window, factor)
	if len(resampled) > limit {
		resampled = resampled[len(resampled)-limit:]
	}
	return resampled, nil
}

// CurrentPrice returns the close of the candle at the cursor.
func (s *Simulator) CurrentPrice(context.Context, string) (decimal.Decimal, error) {
	if len(s.history) == 0 {
		return decimal.Zero, domain.ErrInsufficientHistory
	}
	return s.history[s.idx].Close, nil
}

// MarginBalance returns the simulated free margin balance.
func (s *Simulator) MarginBalance(context.Context) (decimal.Decimal, error) {
	return s.balance, nil
}

// SetLeverage stores the leverage used for margin math on subsequent entries.
func (s *Simulator) SetLeverage(_ context.Context, symbol string, leverage int) error {
	if leverage < domain.MinLeverage || leverage > domain.MaxLeverage {
		return fmt.Errorf("backtest: leverage %d: %w", leverage, domain.ErrInvalidLeverage)
	}
	s.leverages[symbol] = leverage
	return nil
}

// EnterLong enqueues a latency-delayed long entry.
func (s *Simulator) EnterLong(_ context.Context, symbol string, qty decimal.Decimal) error {
	return s.enqueue(symbol, domain.DirectionLong, domain.SideBuy, qty, true)
}

// EnterShort enqueues a latency-delayed short entry.
func (s *Simulator) EnterShort(_ context.Context, symbol string, qty decimal.Decimal) error {
	return s.enqueue(symbol, domain.DirectionShort, domain.SideSell, qty, true)
}

// ExitLong enqueues a latency-delayed close of the long position.
func (s *Simulator) ExitLong(_ context.Context, symbol string, qty decimal.Decimal) error {
	return s.enqueue(symbol, domain.DirectionLong, domain.SideSell, qty, false)
}

// ExitShort enqueues a latency-delayed close of the short position.
func (s *Simulator) ExitShort(_ context.Context, symbol string, qty decimal.Decimal) error {
	return s.enqueue(symbol, domain.DirectionShort, domain.SideBuy, qty, false)
}

// Balance returns the current margin balance.
func (s *Simulator) Balance() decimal.Decimal { return s.balance }

// Trades returns every recorded fill in execution order.
func (s *Simulator) Trades() []domain.TradeRecord { return s.trades }

// TotalFees returns the cumulative fees charged on fills.
func (s *Simulator) TotalFees() decimal.Decimal { return s.totalFees }

// Liquidations returns how many positions were force-closed.
func (s *Simulator) Liquidations() int { return s.liquidations }

// OpenPositions returns how many positions are currently open.
func (s *Simulator) OpenPositions() int { return len(s.positions) }

// PendingCount returns how many orders await execution.
func (s *Simulator) PendingCount() int { return len(s.pending) }
