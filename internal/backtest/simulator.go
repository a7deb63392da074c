// Package backtest replays candle history through the decision engine with a
// deterministic execution simulator: latency-delayed fills, slippage, taker
// fees, margin accounting, and liquidation sweeps.
package backtest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// SimConfig holds the execution-model parameters of one simulator instance.
type SimConfig struct {
	InitialBalance   decimal.Decimal
	Latency          time.Duration   // exchange round-trip before an order fills
	SlippageFraction decimal.Decimal // adverse price deviation on fill
	TakerFeeRate     decimal.Decimal // fee per fill, on notional
	LotStep          decimal.Decimal // quantities are floor-quantized to this step
}

// PendingOrder is an enqueued simulated order, consumed once simulated time
// reaches ExecuteAt.
type PendingOrder struct {
	Symbol    string
	Direction domain.Direction
	Side      domain.Side
	Quantity  decimal.Decimal
	IsEntry   bool
	ExecuteAt time.Time
}

// openPosition is the simulator's account-side view of one open position.
// InitialMargin is stored at entry so the exact amount is credited back on
// close, keeping margin conservation exact.
type openPosition struct {
	quantity      decimal.Decimal
	entryPrice    decimal.Decimal
	leverage      int
	initialMargin decimal.Decimal
}

// Simulator is the replay-mode ExchangeGateway. It advances only when the
// driver moves the candle cursor; there is no wall-clock dependency, so
// identical inputs produce byte-identical results. Strictly single-threaded.
type Simulator struct {
	cfg       SimConfig
	timeframe string // timeframe of the backing history
	logger    *slog.Logger

	history []domain.Candle
	idx     int
	now     time.Time

	balance   decimal.Decimal
	leverages map[string]int
	positions map[string]*openPosition // keyed symbol|direction
	pending   []PendingOrder

	trades       []domain.TradeRecord
	totalFees    decimal.Decimal
	liquidations int
}

// NewSimulator creates a simulator with the given execution model. timeframe
// is the timeframe of the history the driver will feed; requests for coarser
// timeframes are served by resampling.
func NewSimulator(cfg SimConfig, timeframe string, logger *slog.Logger) *Simulator {
	return &Simulator{
		cfg:       cfg,
		timeframe: timeframe,
		logger:    logger.With(slog.String("component", "simulator")),
		balance:   cfg.InitialBalance,
		leverages: make(map[string]int),
		positions: make(map[string]*openPosition),
	}
}

var one = decimal.NewFromInt(1)

func positionKey(symbol string, d domain.Direction) string {
	return symbol + "|" + string(d)
}

// SetMarketContext points the simulator at candle index within history and
// advances simulated time to that candle's close time, then sweeps all open
// positions for liquidation against the candle's extremes.
func (s *Simulator) SetMarketContext(history []domain.Candle, index int) {
	s.history = history
	s.idx = index
	s.now = history[index].CloseTime
	s.sweepLiquidations(history[index])
}

// sweepLiquidations force-closes every open position whose liquidation price
// was crossed by the candle: the low for longs, the high for shorts. The
// close credits exactly zero (the initial margin is wiped), charges no fee,
// and is recorded distinctly from voluntary exits.
func (s *Simulator) sweepLiquidations(candle domain.Candle) {
	for key, pos := range s.positions {
		symbol, direction := splitKey(key)
		liq := domain.LiquidationPrice(pos.entryPrice, pos.leverage, direction)

		crossed := false
		if direction == domain.DirectionLong {
			crossed = candle.Low.LessThanOrEqual(liq)
		} else {
			crossed = candle.High.GreaterThanOrEqual(liq)
		}
		if !crossed {
			continue
		}

		pnl := closePnL(direction, pos.entryPrice, liq, pos.quantity)
		delete(s.positions, key)
		s.liquidations++
		s.record(domain.TradeRecord{
			Symbol:     symbol,
			Direction:  direction,
			Side:       direction.ExitSide(),
			Quantity:   pos.quantity,
			Price:      liq,
			Fee:        decimal.Zero,
			PnL:        pnl,
			Reason:     domain.TradeReasonLiquidation,
			ExecutedAt: s.now,
		})
		s.logger.Warn("position liquidated",
			slog.String("symbol", symbol),
			slog.String("direction", string(direction)),
			slog.String("entry", pos.entryPrice.String()),
			slog.String("liquidation_price", liq.String()))
	}
}

// ProcessPendingOrders drains, in FIFO order, every pending order whose
// execution time has been reached, filling each against the current candle's
// close with adverse slippage per side.
func (s *Simulator) ProcessPendingOrders() {
	remaining := s.pending[:0]
	for _, ord := range s.pending {
		if ord.ExecuteAt.After(s.now) {
			remaining = append(remaining, ord)
			continue
		}
		s.fill(ord)
	}
	s.pending = remaining
}

// fill executes one order against the current close.
func (s *Simulator) fill(ord PendingOrder) {
	close := s.history[s.idx].Close
	slip := s.cfg.SlippageFraction
	var fillPrice decimal.Decimal
	if ord.Side == domain.SideBuy {
		fillPrice = close.Mul(one.Add(slip))
	} else {
		fillPrice = close.Mul(one.Sub(slip))
	}
	fee := fillPrice.Mul(ord.Quantity).Mul(s.cfg.TakerFeeRate)

	if ord.IsEntry {
		s.fillEntry(ord, fillPrice, fee)
		return
	}
	s.fillExit(ord, fillPrice, fee)
}

// fillEntry debits margin and fee and opens the position, or silently drops
// the order when the balance cannot cover it (margin-call rejection).
func (s *Simulator) fillEntry(ord PendingOrder, fillPrice, fee decimal.Decimal) {
	key := positionKey(ord.Symbol, ord.Direction)
	if _, exists := s.positions[key]; exists {
		s.logger.Warn("duplicate entry dropped",
			slog.String("symbol", ord.Symbol),
			slog.String("direction", string(ord.Direction)))
		return
	}

	leverage := s.leverages[ord.Symbol]
	if leverage < domain.MinLeverage {
		leverage = domain.MinLeverage
	}
	notional := fillPrice.Mul(ord.Quantity)
	requiredMargin := notional.Div(decimal.NewFromInt(int64(leverage)))

	if s.balance.LessThan(requiredMargin.Add(fee)) {
		s.logger.Warn("entry rejected, insufficient margin",
			slog.String("symbol", ord.Symbol),
			slog.String("required", requiredMargin.Add(fee).String()),
			slog.String("balance", s.balance.String()))
		return
	}

	s.balance = s.balance.Sub(requiredMargin).Sub(fee)
	s.positions[key] = &openPosition{
		quantity:      ord.Quantity,
		entryPrice:    fillPrice,
		leverage:      leverage,
		initialMargin: requiredMargin,
	}
	s.totalFees = s.totalFees.Add(fee)
	s.record(domain.TradeRecord{
		Symbol:     ord.Symbol,
		Direction:  ord.Direction,
		Side:       ord.Side,
		Quantity:   ord.Quantity,
		Price:      fillPrice,
		Fee:        fee,
		PnL:        decimal.Zero,
		Reason:     domain.TradeReasonEntry,
		ExecutedAt: s.now,
	})
}

// fillExit realizes P&L against the matching open position and credits the
// stored initial margin back. Exits with no matching position (e.g. after a
// liquidation the engine has not observed) are dropped.
func (s *Simulator) fillExit(ord PendingOrder, fillPrice, fee decimal.Decimal) {
	key := positionKey(ord.Symbol, ord.Direction)
	pos, ok := s.positions[key]
	if !ok {
		s.logger.Warn("exit dropped, no open position",
			slog.String("symbol", ord.Symbol),
			slog.String("direction", string(ord.Direction)))
		return
	}

	pnl := closePnL(ord.Direction, pos.entryPrice, fillPrice, pos.quantity)
	s.balance = s.balance.Add(pos.initialMargin).Add(pnl).Sub(fee)
	delete(s.positions, key)
	s.totalFees = s.totalFees.Add(fee)
	s.record(domain.TradeRecord{
		Symbol:     ord.Symbol,
		Direction:  ord.Direction,
		Side:       ord.Side,
		Quantity:   pos.quantity,
		Price:      fillPrice,
		Fee:        fee,
		PnL:        pnl,
		Reason:     domain.TradeReasonExitSignal,
		ExecutedAt: s.now,
	})
}

// closePnL is the realized profit of closing a position of qty at exit that
// was opened at entry.
func closePnL(direction domain.Direction, entry, exit, qty decimal.Decimal) decimal.Decimal {
	if direction == domain.DirectionLong {
		return exit.Sub(entry).Mul(qty)
	}
	return entry.Sub(exit).Mul(qty)
}

func (s *Simulator) record(trade domain.TradeRecord) {
	s.trades = append(s.trades, trade)
}

// enqueue floor-quantizes the quantity to the lot step and schedules the
// order one latency interval in the future. Orders never fill in the cycle
// that submits them.
func (s *Simulator) enqueue(symbol string, direction domain.Direction, side domain.Side, qty decimal.Decimal, isEntry bool) error {
	quantized := qty.Div(s.cfg.LotStep).Floor().Mul(s.cfg.LotStep)
	if !quantized.IsPositive() {
		return fmt.Errorf("backtest: quantity %s below lot step %s", qty, s.cfg.LotStep)
	}
	s.pending = append(s.pending, PendingOrder{
		Symbol:    symbol,
		Direction: direction,
		Side:      side,
		Quantity:  quantized,
		IsEntry:   isEntry,
		ExecuteAt: s.now.Add(s.cfg.Latency),
	})
	return nil
}

func splitKey(key string) (symbol string, direction domain.Direction) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[:i], domain.Direction(key[i+1:])
		}
	}
	return key, ""
}
