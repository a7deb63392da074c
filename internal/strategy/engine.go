package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/indicator"
)

// Notifier receives engine lifecycle events for fan-out to operators. The
// notify package's Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SnapshotSource produces memoized indicator snapshots from candle history.
// *indicator.Calculator is the production implementation.
type SnapshotSource interface {
	Snapshot(symbol, timeframe string, candles []domain.Candle) domain.IndicatorSnapshot
	SetParams(params indicator.Params)
}

// EngineState is the coarse engine lifecycle state exposed over the API.
type EngineState string

const (
	StateStopped    EngineState = "stopped"
	StateNoPosition EngineState = "running_no_position"
	StateInPosition EngineState = "running_in_position"
)

// Status is a point-in-time view of the engine for the status endpoint.
type Status struct {
	State         EngineState              `json:"state"`
	Direction     domain.Direction         `json:"direction"`
	Symbol        string                   `json:"symbol"`
	Leverage      int                      `json:"leverage"`
	SentimentGate bool                     `json:"sentiment_gate"`
	Position      domain.PositionState     `json:"position"`
	LastSnapshot  domain.IndicatorSnapshot `json:"last_snapshot"`
	CyclesRun     int                      `json:"cycles_run"`
}

// Engine is the trading decision engine. It trades exactly one symbol in
// exactly one direction through an ExchangeGateway; each cycle it pulls candle
// history, computes indicators (memoized per closed bar), evaluates the entry
// or exit predicate for its current position state, and issues orders back
// through the gateway. It never observes fill confirmations: position state is
// updated optimistically when an order is submitted.
//
// The same engine runs live (Run loop on a ticker) and in replay (the driver
// calls RunCycle directly), so decision logic exists exactly once.
type Engine struct {
	gateway   domain.ExchangeGateway
	calc      SnapshotSource
	sentiment domain.SentimentProvider // nil disables the gate entirely
	notifier  Notifier                 // nil: no notifications
	snapshots domain.SnapshotCache     // nil: snapshots not published
	logger    *slog.Logger

	direction domain.Direction
	exits     []ExitCondition

	mu            sync.Mutex
	cfg           domain.TradingConfig
	pos           domain.PositionState
	tracker       *TrailingStopTracker
	running       bool
	sentimentGate bool
	lastSnap      domain.IndicatorSnapshot
	cycles        int
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithSentiment enables the sentiment gate using the given provider.
func WithSentiment(p domain.SentimentProvider, enabled bool) Option {
	return func(e *Engine) {
		e.sentiment = p
		e.sentimentGate = enabled
	}
}

// WithNotifier routes engine lifecycle events to n.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithSnapshotCache publishes each computed indicator snapshot to cache.
func WithSnapshotCache(cache domain.SnapshotCache) Option {
	return func(e *Engine) { e.snapshots = cache }
}

// WithExitConditions adds pluggable exit predicates evaluated while a
// position is open; any one firing closes the position.
func WithExitConditions(conds ...ExitCondition) Option {
	return func(e *Engine) { e.exits = append(e.exits, conds...) }
}

// NewEngine creates a stopped engine trading cfg.Symbol in the given
// direction. cfg must already be validated.
func NewEngine(gateway domain.ExchangeGateway, calc SnapshotSource, direction domain.Direction, cfg domain.TradingConfig, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		gateway:   gateway,
		calc:      calc,
		logger:    logger.With(slog.String("component", "engine"), slog.String("direction", string(direction))),
		direction: direction,
		cfg:       cfg,
		pos: domain.PositionState{
			Direction: direction,
			Status:    domain.PositionStatusNone,
			Leverage:  cfg.Leverage,
		},
		tracker: NewTrailingStopTracker(direction, cfg.TrailingStopPercent),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start transitions the engine from stopped to running. It applies the
// configured leverage on the gateway before the first cycle.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return domain.ErrEngineRunning
	}
	cfg := e.cfg
	e.mu.Unlock()

	if err := e.gateway.SetLeverage(ctx, cfg.Symbol, cfg.Leverage); err != nil {
		return fmt.Errorf("engine: apply leverage: %w", err)
	}

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.logger.Info("engine started",
		slog.String("symbol", cfg.Symbol),
		slog.Int("leverage", cfg.Leverage))
	return nil
}

// Stop transitions the engine to stopped. An open position is closed
// best-effort first, with its own deadline so a slow exchange call cannot
// block the caller indefinitely.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return domain.ErrEngineStopped
	}
	e.running = false
	e.mu.Unlock()

	e.forceClose()
	e.logger.Info("engine stopped")
	return nil
}

// Running reports whether the engine is accepting cycles.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Status returns a point-in-time view of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := StateStopped
	if e.running {
		if e.pos.Open() {
			state = StateInPosition
		} else {
			state = StateNoPosition
		}
	}
	return Status{
		State:         state,
		Direction:     e.direction,
		Symbol:        e.cfg.Symbol,
		Leverage:      e.cfg.Leverage,
		SentimentGate: e.sentimentGate,
		Position:      e.pos,
		LastSnapshot:  e.lastSnap,
		CyclesRun:     e.cycles,
	}
}

// SetLeverage validates and applies a new leverage multiplier. Values outside
// the venue's accepted range are rejected with ErrInvalidLeverage and no
// gateway call is made.
func (e *Engine) SetLeverage(ctx context.Context, leverage int) error {
	if leverage < domain.MinLeverage || leverage > domain.MaxLeverage {
		return fmt.Errorf("engine: leverage %d outside %d-%d: %w",
			leverage, domain.MinLeverage, domain.MaxLeverage, domain.ErrInvalidLeverage)
	}

	e.mu.Lock()
	symbol := e.cfg.Symbol
	e.mu.Unlock()

	if err := e.gateway.SetLeverage(ctx, symbol, leverage); err != nil {
		return fmt.Errorf("engine: set leverage: %w", err)
	}

	e.mu.Lock()
	e.cfg.Leverage = leverage
	if !e.pos.Open() {
		e.pos.Leverage = leverage
	}
	e.mu.Unlock()

	e.logger.Info("leverage updated", slog.Int("leverage", leverage))
	return nil
}

// UpdateConfig swaps the trading parameters between cycles and re-applies the
// leverage on the gateway. The new config must validate and may not change the
// symbol while a position is open; an open position is never interrupted.
func (e *Engine) UpdateConfig(ctx context.Context, cfg domain.TradingConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("engine: update config: %w", err)
	}

	e.mu.Lock()
	if e.pos.Open() && cfg.Symbol != e.cfg.Symbol {
		e.mu.Unlock()
		return fmt.Errorf("engine: cannot change symbol with an open position")
	}
	e.mu.Unlock()

	if err := e.gateway.SetLeverage(ctx, cfg.Symbol, cfg.Leverage); err != nil {
		return fmt.Errorf("engine: re-apply leverage: %w", err)
	}

	e.mu.Lock()
	e.cfg = cfg
	if !e.pos.Open() {
		e.pos.Leverage = cfg.Leverage
		e.tracker = NewTrailingStopTracker(e.direction, cfg.TrailingStopPercent)
	}
	e.mu.Unlock()
	e.calc.SetParams(indicator.ParamsFrom(cfg))

	e.logger.Info("trading config updated", slog.String("symbol", cfg.Symbol))
	return nil
}

// SetSentimentGate toggles the sentiment gate at runtime.
func (e *Engine) SetSentimentGate(enabled bool) {
	e.mu.Lock()
	e.sentimentGate = enabled
	e.mu.Unlock()
	e.logger.Info("sentiment gate toggled", slog.Bool("enabled", enabled))
}

// Config returns a copy of the active trading parameters.
func (e *Engine) Config() domain.TradingConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Run executes cycles on the configured interval until ctx is cancelled. On
// shutdown a still-open position is closed best-effort so the account is flat.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	interval := e.cfg.CheckInterval
	e.mu.Unlock()

	e.logger.Info("engine loop started", slog.Duration("interval", interval))
	defer e.logger.Info("engine loop stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.forceClose()
			return ctx.Err()
		case <-ticker.C:
			if !e.Running() {
				continue
			}
			if err := e.RunCycle(ctx); err != nil {
				e.logger.Error("cycle failed", slog.String("error", err.Error()))
				e.notify(ctx, "error", "Cycle failed", err.Error())
			}
			// Pick up interval changes from UpdateConfig.
			e.mu.Lock()
			if e.cfg.CheckInterval != interval {
				interval = e.cfg.CheckInterval
				ticker.Reset(interval)
			}
			e.mu.Unlock()
		}
	}
}

// forceClose closes an open position with a fresh short-lived context, since
// the caller's context may already be cancelled.
func (e *Engine) forceClose() {
	e.mu.Lock()
	open := e.pos.Open()
	cfg := e.cfg
	qty := e.pos.Quantity
	e.mu.Unlock()
	if !open {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := domain.ExitPosition(ctx, e.gateway, e.direction, cfg.Symbol, qty); err != nil {
		e.logger.Error("shutdown close failed", slog.String("error", err.Error()))
		e.notify(ctx, "error", "Shutdown close failed", err.Error())
		return
	}
	e.clearPosition()
	e.logger.Warn("position closed on shutdown", slog.String("symbol", cfg.Symbol))
	e.notify(ctx, "position_closed", "Position closed",
		fmt.Sprintf("%s %s closed on shutdown", cfg.Symbol, e.direction))
}

// RunCycle executes one decision cycle: refresh indicators, then evaluate the
// entry predicate (no position) or the exit predicates (position open). The
// replay driver calls this directly with simulated time; the live loop calls
// it on a ticker.
func (e *Engine) RunCycle(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return domain.ErrEngineStopped
	}
	cfg := e.cfg
	e.cycles++
	e.mu.Unlock()

	snap, confRSI, err := e.refreshIndicators(ctx, cfg)
	if err != nil {
		return err
	}
	if snap.Empty() {
		e.logger.Debug("skipping cycle, indicators not ready")
		return nil
	}

	price, err := e.gateway.CurrentPrice(ctx, cfg.Symbol)
	if err != nil {
		return fmt.Errorf("engine: current price: %w", err)
	}

	e.mu.Lock()
	open := e.pos.Open()
	e.mu.Unlock()

	if open {
		return e.cycleInPosition(ctx, cfg, price, snap)
	}
	return e.cycleNoPosition(ctx, cfg, price, snap, confRSI)
}

// historyPad is extra candles fetched beyond the longest lookback so the
// warm-up region never truncates the series below the minimum.
const historyPad = 20

// refreshIndicators pulls signal- and confirmation-timeframe history and
// returns the signal snapshot plus the confirmation RSI. Both computations are
// memoized per closed bar. An empty snapshot is returned when either
// timeframe lacks history.
func (e *Engine) refreshIndicators(ctx context.Context, cfg domain.TradingConfig) (domain.IndicatorSnapshot, float64, error) {
	limit := cfg.LongestLookback() + historyPad

	signalCandles, err := e.gateway.FetchOHLCV(ctx, cfg.Symbol, cfg.SignalTimeframe, limit)
	if err != nil {
		return domain.IndicatorSnapshot{}, 0, fmt.Errorf("engine: fetch %s candles: %w", cfg.SignalTimeframe, err)
	}
	snap := e.calc.Snapshot(cfg.Symbol, cfg.SignalTimeframe, signalCandles)

	confCandles, err := e.gateway.FetchOHLCV(ctx, cfg.Symbol, cfg.ConfirmationTimeframe, limit)
	if err != nil {
		return domain.IndicatorSnapshot{}, 0, fmt.Errorf("engine: fetch %s candles: %w", cfg.ConfirmationTimeframe, err)
	}
	confSnap := e.calc.Snapshot(cfg.Symbol, cfg.ConfirmationTimeframe, confCandles)

	e.mu.Lock()
	e.lastSnap = snap
	e.mu.Unlock()

	if e.snapshots != nil && !snap.Empty() {
		if err := e.snapshots.SetSnapshot(ctx, cfg.Symbol, cfg.SignalTimeframe, snap); err != nil {
			e.logger.Warn("snapshot publish failed", slog.String("error", err.Error()))
		}
	}

	if confSnap.Empty() {
		return domain.IndicatorSnapshot{}, 0, nil
	}
	return snap, confSnap.RSI, nil
}

// cycleNoPosition evaluates the entry predicate and opens a position when all
// legs agree and margin suffices.
func (e *Engine) cycleNoPosition(ctx context.Context, cfg domain.TradingConfig, price decimal.Decimal, snap domain.IndicatorSnapshot, confRSI float64) error {
	if !entrySignal(e.direction, cfg, price, snap, confRSI) {
		return nil
	}

	e.mu.Lock()
	gated := e.sentimentGate
	e.mu.Unlock()
	if gated && e.sentiment != nil {
		verdict, err := e.sentiment.Verdict(ctx, cfg.Symbol)
		if err != nil {
			e.logger.Warn("sentiment unavailable, skipping entry", slog.String("error", err.Error()))
			return nil
		}
		if !verdict.Agrees(e.direction) {
			e.logger.Info("entry blocked by sentiment",
				slog.String("verdict", string(verdict)))
			return nil
		}
	}

	free, err := e.gateway.MarginBalance(ctx)
	if err != nil {
		return fmt.Errorf("engine: margin balance: %w", err)
	}
	required := cfg.TradeAmount.Mul(price).Div(decimal.NewFromInt(int64(cfg.Leverage)))
	if free.LessThan(required) {
		e.logger.Warn("insufficient margin for entry",
			slog.String("required", required.String()),
			slog.String("free", free.String()))
		return nil
	}

	if err := domain.EnterPosition(ctx, e.gateway, e.direction, cfg.Symbol, cfg.TradeAmount); err != nil {
		return fmt.Errorf("engine: enter %s: %w", e.direction, err)
	}

	e.mu.Lock()
	e.pos = domain.PositionState{
		Direction:  e.direction,
		Status:     domain.PositionStatusOpen,
		EntryPrice: price,
		Quantity:   cfg.TradeAmount,
		Leverage:   cfg.Leverage,
		OpenedAt:   snap.CandleCloseTime,
	}
	e.tracker.Initialize(price)
	e.mu.Unlock()

	e.logger.Info("position opened",
		slog.String("symbol", cfg.Symbol),
		slog.String("price", price.String()),
		slog.String("quantity", cfg.TradeAmount.String()),
		slog.Int("leverage", cfg.Leverage))
	e.notify(ctx, "position_opened", "Position opened",
		fmt.Sprintf("%s %s %s @ %s (%dx)", cfg.Symbol, e.direction, cfg.TradeAmount, price, cfg.Leverage))
	return nil
}

// cycleInPosition updates the trailing stop and closes the position when the
// stop or any exit condition fires.
func (e *Engine) cycleInPosition(ctx context.Context, cfg domain.TradingConfig, price decimal.Decimal, snap domain.IndicatorSnapshot) error {
	e.mu.Lock()
	e.tracker.Update(price)
	triggered := e.tracker.Triggered(price)
	pos := e.pos
	e.mu.Unlock()

	reason := domain.TradeReasonTrailingStop
	if !triggered {
		name := anyExit(e.exits, price, snap, pos)
		if name == "" {
			return nil
		}
		reason = domain.TradeReasonExitSignal
		e.logger.Info("exit condition fired", slog.String("condition", name))
	}

	if err := domain.ExitPosition(ctx, e.gateway, e.direction, cfg.Symbol, pos.Quantity); err != nil {
		return fmt.Errorf("engine: exit %s: %w", e.direction, err)
	}
	e.clearPosition()

	e.logger.Info("position closed",
		slog.String("symbol", cfg.Symbol),
		slog.String("price", price.String()),
		slog.String("reason", string(reason)))
	e.notify(ctx, "position_closed", "Position closed",
		fmt.Sprintf("%s %s closed @ %s (%s)", cfg.Symbol, e.direction, price, reason))
	return nil
}

// ClosePosition closes an open position immediately, outside the normal cycle
// evaluation (operator request).
func (e *Engine) ClosePosition(ctx context.Context) error {
	e.mu.Lock()
	if !e.pos.Open() {
		e.mu.Unlock()
		return domain.ErrNoPosition
	}
	cfg := e.cfg
	qty := e.pos.Quantity
	e.mu.Unlock()

	if err := domain.ExitPosition(ctx, e.gateway, e.direction, cfg.Symbol, qty); err != nil {
		return fmt.Errorf("engine: manual close: %w", err)
	}
	e.clearPosition()
	e.logger.Info("position closed manually", slog.String("symbol", cfg.Symbol))
	e.notify(ctx, "position_closed", "Position closed",
		fmt.Sprintf("%s %s closed manually", cfg.Symbol, e.direction))
	return nil
}

func (e *Engine) clearPosition() {
	e.mu.Lock()
	e.pos = domain.PositionState{
		Direction: e.direction,
		Status:    domain.PositionStatusNone,
		Leverage:  e.cfg.Leverage,
	}
	e.tracker.Reset()
	e.mu.Unlock()
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}

// entrySignal is the direction-parameterized entry predicate. A long requires
// oversold RSI, MACD above its signal line, price at or below 101% of the
// lower Bollinger band, and the confirmation-timeframe RSI still below the
// overbought threshold. A short mirrors each leg.
func entrySignal(direction domain.Direction, cfg domain.TradingConfig, price decimal.Decimal, snap domain.IndicatorSnapshot, confRSI float64) bool {
	if snap.Empty() {
		return false
	}
	if direction == domain.DirectionLong {
		band := decimal.NewFromFloat(snap.BollingerLower * 1.01)
		return snap.RSI <= cfg.RSIOversold &&
			snap.MACD > snap.MACDSignal &&
			price.LessThanOrEqual(band) &&
			confRSI < cfg.RSIOverbought
	}
	band := decimal.NewFromFloat(snap.BollingerUpper * 0.99)
	return snap.RSI >= cfg.RSIOverbought &&
		snap.MACD < snap.MACDSignal &&
		price.GreaterThanOrEqual(band) &&
		confRSI > cfg.RSIOversold
}
