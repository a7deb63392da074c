package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Paper is the paper-trading gateway: market data comes from a real gateway,
// but orders settle instantly against an in-memory account at the live price.
// No latency or slippage is modeled; paper mode validates signal quality, not
// execution quality.
type Paper struct {
	market domain.ExchangeGateway // live adapter used for reads
	logger *slog.Logger

	mu        sync.Mutex
	balance   decimal.Decimal
	leverages map[string]int
	positions map[string]paperPosition // keyed symbol|direction
}

type paperPosition struct {
	quantity   decimal.Decimal
	entryPrice decimal.Decimal
	margin     decimal.Decimal
}

// NewPaper creates a paper gateway with the given starting balance.
func NewPaper(market domain.ExchangeGateway, initialBalance decimal.Decimal, logger *slog.Logger) *Paper {
	return &Paper{
		market:    market,
		logger:    logger.With(slog.String("component", "paper")),
		balance:   initialBalance,
		leverages: make(map[string]int),
		positions: make(map[string]paperPosition),
	}
}

var _ domain.ExchangeGateway = (*Paper)(nil)

func (p *Paper) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	return p.market.FetchOHLCV(ctx, symbol, timeframe, limit)
}

func (p *Paper) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return p.market.CurrentPrice(ctx, symbol)
}

func (p *Paper) MarginBalance(context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *Paper) SetLeverage(_ context.Context, symbol string, leverage int) error {
	if leverage < domain.MinLeverage || leverage > domain.MaxLeverage {
		return fmt.Errorf("paper: leverage %d: %w", leverage, domain.ErrInvalidLeverage)
	}
	p.mu.Lock()
	p.leverages[symbol] = leverage
	p.mu.Unlock()
	return nil
}

func (p *Paper) EnterLong(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return p.enter(ctx, symbol, domain.DirectionLong, qty)
}

func (p *Paper) EnterShort(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return p.enter(ctx, symbol, domain.DirectionShort, qty)
}

func (p *Paper) ExitLong(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return p.exit(ctx, symbol, domain.DirectionLong)
}

func (p *Paper) ExitShort(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return p.exit(ctx, symbol, domain.DirectionShort)
}

func (p *Paper) enter(ctx context.Context, symbol string, direction domain.Direction, qty decimal.Decimal) error {
	price, err := p.market.CurrentPrice(ctx, symbol)
	if err != nil {
		return fmt.Errorf("paper: entry price: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	key := symbol + "|" + string(direction)
	if _, exists := p.positions[key]; exists {
		return fmt.Errorf("paper: position already open for %s %s", symbol, direction)
	}
	leverage := p.leverages[symbol]
	if leverage < domain.MinLeverage {
		leverage = domain.MinLeverage
	}
	margin := price.Mul(qty).Div(decimal.NewFromInt(int64(leverage)))
	if p.balance.LessThan(margin) {
		return fmt.Errorf("paper: %w: need %s, have %s", domain.ErrInsufficientMargin, margin, p.balance)
	}

	p.balance = p.balance.Sub(margin)
	p.positions[key] = paperPosition{quantity: qty, entryPrice: price, margin: margin}
	p.logger.Info("paper entry",
		slog.String("symbol", symbol),
		slog.String("direction", string(direction)),
		slog.String("price", price.String()),
		slog.String("quantity", qty.String()))
	return nil
}

func (p *Paper) exit(ctx context.Context, symbol string, direction domain.Direction) error {
	price, err := p.market.CurrentPrice(ctx, symbol)
	if err != nil {
		return fmt.Errorf("paper: exit price: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	key := symbol + "|" + string(direction)
	pos, ok := p.positions[key]
	if !ok {
		return fmt.Errorf("paper: %s %s: %w", symbol, direction, domain.ErrNoPosition)
	}

	var pnl decimal.Decimal
	if direction == domain.DirectionLong {
		pnl = price.Sub(pos.entryPrice).Mul(pos.quantity)
	} else {
		pnl = pos.entryPrice.Sub(price).Mul(pos.quantity)
	}
	p.balance = p.balance.Add(pos.margin).Add(pnl)
	delete(p.positions, key)
	p.logger.Info("paper exit",
		slog.String("symbol", symbol),
		slog.String("direction", string(direction)),
		slog.String("price", price.String()),
		slog.String("pnl", pnl.String()))
	return nil
}
