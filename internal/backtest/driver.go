package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/strategy"
)

// Driver replays a candle history through a Simulator and a decision engine.
// Each step advances the market context, fills due orders, then runs exactly
// one decision cycle; nothing else advances time, so runs are deterministic.
type Driver struct {
	engine *strategy.Engine
	sim    *Simulator
	cfg    domain.TradingConfig
	dir    domain.Direction
	logger *slog.Logger

	runs     domain.BacktestRunStore // optional
	trades   domain.TradeStore       // optional
	archiver domain.ReportArchiver   // optional
}

// DriverOption wires optional persistence into the driver.
type DriverOption func(*Driver)

// WithRunStore persists the run summary after completion.
func WithRunStore(s domain.BacktestRunStore) DriverOption {
	return func(d *Driver) { d.runs = s }
}

// WithTradeStore persists every simulated fill after completion.
func WithTradeStore(s domain.TradeStore) DriverOption {
	return func(d *Driver) { d.trades = s }
}

// WithArchiver uploads the full report to object storage after completion.
func WithArchiver(a domain.ReportArchiver) DriverOption {
	return func(d *Driver) { d.archiver = a }
}

// NewDriver creates a replay driver for one engine/simulator pair.
func NewDriver(engine *strategy.Engine, sim *Simulator, cfg domain.TradingConfig, dir domain.Direction, logger *slog.Logger, opts ...DriverOption) *Driver {
	d := &Driver{
		engine: engine,
		sim:    sim,
		cfg:    cfg,
		dir:    dir,
		logger: logger.With(slog.String("component", "replay_driver")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// warmupOffset returns the first replayable index: enough base candles behind
// it that both the signal and the resampled confirmation timeframe satisfy
// the longest indicator lookback.
func (d *Driver) warmupOffset() (int, error) {
	if d.cfg.SignalTimeframe == d.cfg.ConfirmationTimeframe {
		return d.cfg.LongestLookback() + 1, nil
	}
	factor, err := resampleFactor(d.cfg.SignalTimeframe, d.cfg.ConfirmationTimeframe)
	if err != nil {
		return 0, err
	}
	return (d.cfg.LongestLookback() + 1) * factor, nil
}

// Run replays history from the warm-up offset to the end and returns the run
// summary. Persistence failures after a completed replay are logged, not
// fatal; the computed result is always returned.
func (d *Driver) Run(ctx context.Context, history []domain.Candle) (domain.BacktestResult, error) {
	warmup, err := d.warmupOffset()
	if err != nil {
		return domain.BacktestResult{}, err
	}
	if len(history) <= warmup {
		return domain.BacktestResult{}, fmt.Errorf("backtest: %d candles, need more than %d for warm-up: %w",
			len(history), warmup, domain.ErrInsufficientHistory)
	}

	d.logger.Info("replay started",
		slog.String("symbol", d.cfg.Symbol),
		slog.Int("candles", len(history)),
		slog.Int("warmup", warmup))

	// Leverage must be visible to the simulator before the first entry; the
	// engine applies it via the gateway on Start.
	d.sim.SetMarketContext(history, warmup)
	if err := d.engine.Start(ctx); err != nil {
		return domain.BacktestResult{}, err
	}

	for i := warmup; i < len(history); i++ {
		d.sim.SetMarketContext(history, i)
		d.sim.ProcessPendingOrders()
		if err := d.engine.RunCycle(ctx); err != nil {
			return domain.BacktestResult{}, fmt.Errorf("backtest: cycle at index %d: %w", i, err)
		}
	}

	if open := d.sim.OpenPositions(); open > 0 {
		d.logger.Warn("replay ended with open positions", slog.Int("open", open))
	}
	if pending := d.sim.PendingCount(); pending > 0 {
		d.logger.Warn("replay ended with unfilled orders", slog.Int("pending", pending))
	}

	result := d.buildResult(history, warmup)
	d.persist(ctx, result)

	d.logger.Info("replay finished",
		slog.String("run_id", result.RunID),
		slog.String("final_balance", result.FinalBalance.String()),
		slog.Int("trades", result.TotalTrades),
		slog.Int("liquidations", result.Liquidations))
	return result, nil
}

func (d *Driver) buildResult(history []domain.Candle, warmup int) domain.BacktestResult {
	runID := uuid.NewString()
	trades := d.sim.Trades()
	for i := range trades {
		trades[i].ID = uuid.NewString()
		trades[i].RunID = runID
	}

	return domain.BacktestResult{
		RunID:          runID,
		Symbol:         d.cfg.Symbol,
		Direction:      d.dir,
		StartTime:      history[warmup].OpenTime,
		EndTime:        history[len(history)-1].CloseTime,
		InitialBalance: d.sim.cfg.InitialBalance,
		FinalBalance:   d.sim.Balance(),
		TotalProfit:    d.sim.Balance().Sub(d.sim.cfg.InitialBalance),
		TotalFees:      d.sim.TotalFees(),
		TotalTrades:    len(trades),
		Liquidations:   d.sim.Liquidations(),
		Trades:         trades,
		CompletedAt:    time.Now().UTC(),
	}
}

func (d *Driver) persist(ctx context.Context, result domain.BacktestResult) {
	if d.runs != nil {
		if err := d.runs.Create(ctx, result); err != nil {
			d.logger.Error("persist run failed", slog.String("error", err.Error()))
		}
	}
	if d.trades != nil && len(result.Trades) > 0 {
		if err := d.trades.InsertBatch(ctx, result.Trades); err != nil {
			d.logger.Error("persist trades failed", slog.String("error", err.Error()))
		}
	}
	if d.archiver != nil {
		path, err := d.archiver.ArchiveRun(ctx, result)
		if err != nil {
			d.logger.Error("archive run failed", slog.String("error", err.Error()))
			return
		}
		d.logger.Info("run archived", slog.String("path", path))
	}
}
