package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/futuresbot/internal/crypto"
	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/exchange"
	"github.com/alanyoungcy/futuresbot/internal/feed"
	"github.com/alanyoungcy/futuresbot/internal/indicator"
	"github.com/alanyoungcy/futuresbot/internal/server"
	"github.com/alanyoungcy/futuresbot/internal/server/handler"
	"github.com/alanyoungcy/futuresbot/internal/strategy"
)

// LiveMode trades with real orders on Binance USD-M futures. A distributed
// lock guarantees at most one live engine per symbol across processes.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	tcfg := a.cfg.TradingDomain()

	// No TTL: the lock is held for the lifetime of the process and released
	// on shutdown. A crashed process leaves the key behind; remove it
	// manually before restarting.
	unlock, err := deps.Locks.Acquire(ctx, "engine:"+tcfg.Symbol, 0)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("live mode: another instance is already trading %s: %w", tcfg.Symbol, err)
		}
		return fmt.Errorf("live mode: acquire engine lock: %w", err)
	}
	a.closers = append(a.closers, unlock)

	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:     a.cfg.Binance.ApiSecret,
		EncryptedPath: a.cfg.Binance.EncryptedKeyPath,
		Password:      a.cfg.Binance.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("live mode: load api secret: %w", err)
	}

	binance := exchange.NewBinance(a.cfg.Binance, secret, a.logger)
	gw := exchange.NewResilience(binance, deps.RateLimiter, a.resiliencePolicy(), a.logger)
	engine := a.buildEngine(gw, binance, deps)

	g, ctx := errgroup.WithContext(ctx)

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("live mode: start engine: %w", err)
	}
	g.Go(func() error { return engine.Run(ctx) })

	a.startKlineFeed(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, engine, a.newBacktestService(deps))
	}

	return g.Wait()
}

// PaperMode runs the full decision loop against live market data, but fills
// orders in an in-memory simulated account. No real orders are placed.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	// Market data endpoints are public; no API secret needed.
	market := exchange.NewBinance(a.cfg.Binance, "", a.logger)
	gw := exchange.NewPaper(market, decimal.NewFromFloat(a.cfg.Backtest.InitialBalance), a.logger)
	engine := a.buildEngine(gw, market, deps)

	g, ctx := errgroup.WithContext(ctx)

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("paper mode: start engine: %w", err)
	}
	g.Go(func() error { return engine.Run(ctx) })

	a.startKlineFeed(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, engine, a.newBacktestService(deps))
	}

	return g.Wait()
}

// BacktestMode replays a candle history once and exits. The history comes
// from the configured CSV file, or from the candle store when no file is set.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backtest mode")

	svc := a.newBacktestService(deps)

	var (
		result domain.BacktestResult
		err    error
	)
	if a.cfg.Backtest.CandleCSV != "" {
		result, err = svc.RunFromCSV(ctx, a.cfg.Backtest.CandleCSV)
	} else {
		result, err = svc.RunFromStore(ctx, a.cfg.Backtest.HistoryDays)
	}
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	a.logger.InfoContext(ctx, "backtest complete",
		slog.String("run_id", result.RunID),
		slog.String("symbol", result.Symbol),
		slog.Int("trades", result.TotalTrades),
		slog.Int("liquidations", result.Liquidations),
		slog.String("final_balance", result.FinalBalance.String()),
		slog.String("total_profit", result.TotalProfit.String()),
	)
	return nil
}

// MonitorMode ingests market data and serves the API without running the
// decision loop. The engine is wired over a paper gateway but not started;
// POST /api/engine/start begins simulated trading.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	market := exchange.NewBinance(a.cfg.Binance, "", a.logger)
	gw := exchange.NewPaper(market, decimal.NewFromFloat(a.cfg.Backtest.InitialBalance), a.logger)
	engine := a.buildEngine(gw, market, deps)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return engine.Run(ctx) })

	a.startKlineFeed(ctx, g, deps)

	// The HTTP server is the point of monitor mode; start it regardless of
	// server.enabled.
	a.startHTTPServer(ctx, g, deps, engine, a.newBacktestService(deps))

	return g.Wait()
}

// buildEngine assembles the decision engine with its calculator, exit
// conditions, and optional sentiment gate and notifier.
func (a *App) buildEngine(gw domain.ExchangeGateway, funding exchange.FundingRateSource, deps *Dependencies) *strategy.Engine {
	tcfg := a.cfg.TradingDomain()
	calc := indicator.NewCalculator(indicator.ParamsFrom(tcfg), a.logger)

	opts := []strategy.Option{
		strategy.WithSnapshotCache(deps.SnapshotCache),
		strategy.WithNotifier(deps.Notifier),
		strategy.WithExitConditions(strategy.RSIReversalExit{
			Oversold:   tcfg.RSIOversold,
			Overbought: tcfg.RSIOverbought,
		}),
	}
	if funding != nil {
		sentiment := exchange.NewFundingSentiment(funding, exchange.DefaultNeutralBand, a.logger)
		opts = append(opts, strategy.WithSentiment(sentiment, a.cfg.Trading.SentimentGate))
	}

	return strategy.NewEngine(gw, calc, a.cfg.Direction(), tcfg, a.logger, opts...)
}

// startKlineFeed adds the websocket candle/price ingestion goroutine.
func (a *App) startKlineFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	tcfg := a.cfg.TradingDomain()

	wsURL := ""
	if host := strings.TrimSpace(a.cfg.Binance.WsHost); host != "" {
		wsURL = strings.TrimRight(host, "/") + "/stream"
	}

	timeframes := []string{tcfg.SignalTimeframe}
	if tcfg.ConfirmationTimeframe != tcfg.SignalTimeframe {
		timeframes = append(timeframes, tcfg.ConfirmationTimeframe)
	}

	klines := feed.NewKlineFeed(wsURL, tcfg.Symbol, timeframes, deps.CandleStore, deps.PriceCache, a.logger)
	g.Go(func() error {
		defer klines.Close()
		return klines.Run(ctx)
	})
}

// startHTTPServer adds the API server goroutine plus a shutdown goroutine
// that drains in-flight requests when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *strategy.Engine, backtests handler.BacktestService) {
	tcfg := a.cfg.TradingDomain()

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, deps.HealthChecks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, engine, deps.PriceCache, deps.SnapshotCache, a.logger),
		Engine:   handler.NewEngineHandler(engine, a.logger),
		Backtest: handler.NewBacktestHandler(backtests, deps.RunStore, deps.TradeStore, deps.BlobReader, a.logger),
		Trades:   handler.NewTradeHandler(deps.TradeStore, tcfg.Symbol, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimiter:     deps.RateLimiter,
		RateLimitPerMin: serverRateLimitPerMin,
	}, handlers, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// serverRateLimitPerMin bounds API requests per client IP.
const serverRateLimitPerMin = 240

// resiliencePolicy maps the Binance config section onto the gateway
// decorator's policy, keeping defaults for unset fields.
func (a *App) resiliencePolicy() exchange.ResiliencePolicy {
	p := exchange.DefaultPolicy()
	if v := a.cfg.Binance.RateLimitPerSecond; v > 0 {
		p.RateLimitPerSecond = v
	}
	if v := a.cfg.Binance.RetryMaxAttempts; v > 0 {
		p.MaxAttempts = v
	}
	if v := a.cfg.Binance.BreakerFailures; v > 0 {
		p.BreakerFailures = v
	}
	if v := a.cfg.Binance.BreakerCooldownSecs; v > 0 {
		p.BreakerCooldown = time.Duration(v) * time.Second
	}
	return p
}
