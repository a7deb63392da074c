package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExchangeGateway is the single execution contract the decision engine trades
// through. The live Binance adapter, the resilience decorator, and the replay
// simulator all implement it, so the engine cannot tell whether it is trading
// live or replaying history.
//
// Mutating calls are fire-and-forget from the engine's point of view: fills
// are asynchronous in live mode and enqueued behind simulated latency in
// replay mode. The engine never observes a fill confirmation.
type ExchangeGateway interface {
	// FetchOHLCV returns up to limit candles for the symbol and timeframe,
	// ordered ascending by open time, newest last.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)

	// CurrentPrice returns the latest traded/mark price.
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// MarginBalance returns the free margin balance of the account.
	MarginBalance(ctx context.Context) (decimal.Decimal, error)

	// SetLeverage applies the leverage multiplier for the symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	EnterLong(ctx context.Context, symbol string, quantity decimal.Decimal) error
	EnterShort(ctx context.Context, symbol string, quantity decimal.Decimal) error
	ExitLong(ctx context.Context, symbol string, quantity decimal.Decimal) error
	ExitShort(ctx context.Context, symbol string, quantity decimal.Decimal) error
}

// EnterPosition opens a position in the given direction through gw.
func EnterPosition(ctx context.Context, gw ExchangeGateway, direction Direction, symbol string, qty decimal.Decimal) error {
	if direction == DirectionLong {
		return gw.EnterLong(ctx, symbol, qty)
	}
	return gw.EnterShort(ctx, symbol, qty)
}

// ExitPosition closes a position in the given direction through gw.
func ExitPosition(ctx context.Context, gw ExchangeGateway, direction Direction, symbol string, qty decimal.Decimal) error {
	if direction == DirectionLong {
		return gw.ExitLong(ctx, symbol, qty)
	}
	return gw.ExitShort(ctx, symbol, qty)
}
