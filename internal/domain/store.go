package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// CandleStore persists OHLCV history.
type CandleStore interface {
	// UpsertBatch inserts candles, silently skipping duplicates
	// (same symbol, timeframe, open time).
	UpsertBatch(ctx context.Context, symbol, timeframe string, candles []Candle) error
	// Latest returns the most recent limit candles, ordered ascending.
	Latest(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	// Range returns candles with open time in [from, to), ordered ascending.
	Range(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]Candle, error)
}

// TradeStore persists executed fills.
type TradeStore interface {
	Insert(ctx context.Context, trade TradeRecord) error
	InsertBatch(ctx context.Context, trades []TradeRecord) error
	ListByRun(ctx context.Context, runID string, opts ListOpts) ([]TradeRecord, error)
	ListRecent(ctx context.Context, symbol string, limit int) ([]TradeRecord, error)
}

// BacktestRunStore persists backtest run summaries.
type BacktestRunStore interface {
	Create(ctx context.Context, result BacktestResult) error
	GetByID(ctx context.Context, runID string) (BacktestResult, error)
	ListRecent(ctx context.Context, limit int) ([]BacktestResult, error)
}
