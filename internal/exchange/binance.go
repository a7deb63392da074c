// Package exchange provides the live Binance USDⓈ-M futures implementation of
// the ExchangeGateway contract, plus the resilience decorator and the paper
// gateway that trades a simulated account against live market data.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/config"
	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Binance is the live futures adapter. It carries no resilience policy of its
// own; wrap it in a Resilience decorator for rate limiting, retries, and
// circuit breaking.
type Binance struct {
	client *futures.Client
	logger *slog.Logger
}

// NewBinance creates a futures client from credentials. The apiSecret is
// passed explicitly so callers can source it from the encrypted key store
// instead of plain config.
func NewBinance(cfg config.BinanceConfig, apiSecret string, logger *slog.Logger) *Binance {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	client := futures.NewClient(cfg.ApiKey, apiSecret)
	return &Binance{
		client: client,
		logger: logger.With(slog.String("component", "binance")),
	}
}

var _ domain.ExchangeGateway = (*Binance)(nil)

// FetchOHLCV returns up to limit closed candles, ordered ascending.
func (b *Binance) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(timeframe).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: fetch klines: %w", err)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := klineToCandle(k)
		if err != nil {
			return nil, fmt.Errorf("binance: kline at %d: %w", k.OpenTime, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func klineToCandle(k *futures.Kline) (domain.Candle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("open: %w", err)
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("high: %w", err)
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("low: %w", err)
	}
	close, err := decimal.NewFromString(k.Close)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("close: %w", err)
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("volume: %w", err)
	}
	return domain.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		CloseTime: time.UnixMilli(k.CloseTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}, nil
}

// CurrentPrice returns the latest traded price for the symbol.
func (b *Binance) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: price: %w", err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("binance: no price for %s: %w", symbol, domain.ErrNotFound)
	}
	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: parse price %q: %w", prices[0].Price, err)
	}
	return price, nil
}

// MarginBalance returns the account's available margin balance.
func (b *Binance) MarginBalance(ctx context.Context) (decimal.Decimal, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: account: %w", err)
	}
	balance, err := decimal.NewFromString(account.AvailableBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: parse balance %q: %w", account.AvailableBalance, err)
	}
	return balance, nil
}

// SetLeverage applies the leverage multiplier for the symbol.
func (b *Binance) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage < domain.MinLeverage || leverage > domain.MaxLeverage {
		return fmt.Errorf("binance: leverage %d: %w", leverage, domain.ErrInvalidLeverage)
	}
	_, err := b.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: change leverage: %w", err)
	}
	b.logger.Info("leverage applied", slog.String("symbol", symbol), slog.Int("leverage", leverage))
	return nil
}

// EnterLong submits a market buy.
func (b *Binance) EnterLong(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return b.marketOrder(ctx, symbol, futures.SideTypeBuy, qty, false)
}

// EnterShort submits a market sell.
func (b *Binance) EnterShort(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return b.marketOrder(ctx, symbol, futures.SideTypeSell, qty, false)
}

// ExitLong submits a reduce-only market sell.
func (b *Binance) ExitLong(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return b.marketOrder(ctx, symbol, futures.SideTypeSell, qty, true)
}

// ExitShort submits a reduce-only market buy.
func (b *Binance) ExitShort(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return b.marketOrder(ctx, symbol, futures.SideTypeBuy, qty, true)
}

func (b *Binance) marketOrder(ctx context.Context, symbol string, side futures.SideType, qty decimal.Decimal, reduceOnly bool) error {
	svc := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String())
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: %s %s %s: %w", side, qty, symbol, err)
	}
	b.logger.Info("order submitted",
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.String("quantity", qty.String()),
		slog.Bool("reduce_only", reduceOnly),
		slog.Int64("order_id", order.OrderID))
	return nil
}

// FundingRate returns the symbol's last funding rate.
func (b *Binance) FundingRate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	indexes, err := b.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: premium index: %w", err)
	}
	if len(indexes) == 0 {
		return decimal.Zero, fmt.Errorf("binance: no premium index for %s: %w", symbol, domain.ErrNotFound)
	}
	rate, err := decimal.NewFromString(indexes[0].LastFundingRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: parse funding rate %q: %w", indexes[0].LastFundingRate, err)
	}
	return rate, nil
}
