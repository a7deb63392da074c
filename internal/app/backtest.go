package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/backtest"
	"github.com/alanyoungcy/futuresbot/internal/config"
	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/indicator"
	"github.com/alanyoungcy/futuresbot/internal/server/handler"
	"github.com/alanyoungcy/futuresbot/internal/strategy"
)

// backtestService replays candle histories through a fresh engine/simulator
// pair per run. It backs both backtest mode and POST /api/backtest/run.
type backtestService struct {
	cfg      *config.Config
	candles  domain.CandleStore
	runs     domain.BacktestRunStore
	trades   domain.TradeStore
	archiver domain.ReportArchiver
	logger   *slog.Logger
}

var _ handler.BacktestService = (*backtestService)(nil)

func (a *App) newBacktestService(deps *Dependencies) *backtestService {
	return &backtestService{
		cfg:      a.cfg,
		candles:  deps.CandleStore,
		runs:     deps.RunStore,
		trades:   deps.TradeStore,
		archiver: deps.Archiver,
		logger:   a.logger,
	}
}

// RunFromCSV loads candles from a CSV file and replays them.
func (s *backtestService) RunFromCSV(ctx context.Context, csvPath string) (domain.BacktestResult, error) {
	history, err := backtest.LoadCSV(csvPath)
	if err != nil {
		return domain.BacktestResult{}, err
	}
	return s.run(ctx, history)
}

// RunFromStore loads the trailing days of signal-timeframe candles from the
// candle store and replays them.
func (s *backtestService) RunFromStore(ctx context.Context, days int) (domain.BacktestResult, error) {
	tcfg := s.cfg.TradingDomain()
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)

	history, err := s.candles.Range(ctx, tcfg.Symbol, tcfg.SignalTimeframe, from, to)
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("app: load candle history: %w", err)
	}
	return s.run(ctx, history)
}

func (s *backtestService) run(ctx context.Context, history []domain.Candle) (domain.BacktestResult, error) {
	tcfg := s.cfg.TradingDomain()
	dir := s.cfg.Direction()

	sim := backtest.NewSimulator(backtest.SimConfig{
		InitialBalance:   decimal.NewFromFloat(s.cfg.Backtest.InitialBalance),
		Latency:          time.Duration(s.cfg.Backtest.LatencyMillis) * time.Millisecond,
		SlippageFraction: decimal.NewFromFloat(s.cfg.Backtest.SlippageFraction),
		TakerFeeRate:     decimal.NewFromFloat(s.cfg.Backtest.TakerFeeRate),
		LotStep:          decimal.NewFromFloat(s.cfg.Backtest.LotStep),
	}, tcfg.SignalTimeframe, s.logger)

	calc := indicator.NewCalculator(indicator.ParamsFrom(tcfg), s.logger)
	engine := strategy.NewEngine(sim, calc, dir, tcfg, s.logger,
		strategy.WithExitConditions(strategy.RSIReversalExit{
			Oversold:   tcfg.RSIOversold,
			Overbought: tcfg.RSIOverbought,
		}),
	)

	opts := []backtest.DriverOption{}
	if s.runs != nil {
		opts = append(opts, backtest.WithRunStore(s.runs))
	}
	if s.trades != nil {
		opts = append(opts, backtest.WithTradeStore(s.trades))
	}
	if s.archiver != nil {
		opts = append(opts, backtest.WithArchiver(s.archiver))
	}

	driver := backtest.NewDriver(engine, sim, tcfg, dir, s.logger, opts...)
	return driver.Run(ctx, history)
}
