package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// ResiliencePolicy holds the outbound-call policy of one decorated gateway.
type ResiliencePolicy struct {
	RateLimitPerSecond int
	MaxAttempts        int
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	BreakerFailures    int
	BreakerCooldown    time.Duration
}

// DefaultPolicy returns conservative settings for the public Binance API.
func DefaultPolicy() ResiliencePolicy {
	return ResiliencePolicy{
		RateLimitPerSecond: 8,
		MaxAttempts:        3,
		BackoffMin:         200 * time.Millisecond,
		BackoffMax:         5 * time.Second,
		BreakerFailures:    5,
		BreakerCooldown:    30 * time.Second,
	}
}

// Resilience decorates an ExchangeGateway with rate limiting, bounded retry
// with exponential backoff, and a circuit breaker. It implements the same
// contract, so the decision engine composes with it unchanged; the engine and
// the simulator stay unaware of resilience policy.
type Resilience struct {
	inner   domain.ExchangeGateway
	limiter domain.RateLimiter // nil disables rate limiting
	breaker *Breaker
	policy  ResiliencePolicy
	logger  *slog.Logger
}

// NewResilience wraps inner with the given policy. limiter may be nil (e.g.
// in tests or single-instance deployments without Redis).
func NewResilience(inner domain.ExchangeGateway, limiter domain.RateLimiter, policy ResiliencePolicy, logger *slog.Logger) *Resilience {
	return &Resilience{
		inner:   inner,
		limiter: limiter,
		breaker: NewBreaker(policy.BreakerFailures, policy.BreakerCooldown),
		policy:  policy,
		logger:  logger.With(slog.String("component", "gateway_resilience")),
	}
}

var _ domain.ExchangeGateway = (*Resilience)(nil)

// do runs fn under the breaker, the rate limit, and the retry policy.
func (r *Resilience) do(ctx context.Context, op string, fn func() error) error {
	if !r.breaker.Allow() {
		return fmt.Errorf("exchange: %s: %w", op, domain.ErrCircuitOpen)
	}

	bo := &backoff.Backoff{
		Min:    r.policy.BackoffMin,
		Max:    r.policy.BackoffMax,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := r.waitForSlot(ctx, op); err != nil {
			lastErr = err
		} else if err := fn(); err != nil {
			if isPermanent(err) {
				// Caller mistakes, not venue failures: no retry, no breaker hit.
				return err
			}
			r.breaker.Failure()
			lastErr = err
			r.logger.Warn("call failed",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		} else {
			r.breaker.Success()
			return nil
		}

		if attempt == r.policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.Duration()):
		}
	}
	return fmt.Errorf("exchange: %s after %d attempts: %w", op, r.policy.MaxAttempts, lastErr)
}

// isPermanent reports whether err can never succeed on retry.
func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidLeverage) || errors.Is(err, domain.ErrNotFound)
}

// waitForSlot consumes a rate-limit slot, returning ErrRateLimited when the
// sliding window is full.
func (r *Resilience) waitForSlot(ctx context.Context, op string) error {
	if r.limiter == nil || r.policy.RateLimitPerSecond <= 0 {
		return nil
	}
	allowed, err := r.limiter.Allow(ctx, "exchange:binance", r.policy.RateLimitPerSecond, time.Second)
	if err != nil {
		// A broken limiter backend must not take trading down with it.
		r.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !allowed {
		return fmt.Errorf("exchange: %s: %w", op, domain.ErrRateLimited)
	}
	return nil
}

func (r *Resilience) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	var out []domain.Candle
	err := r.do(ctx, "fetch_ohlcv", func() error {
		var err error
		out, err = r.inner.FetchOHLCV(ctx, symbol, timeframe, limit)
		return err
	})
	return out, err
}

func (r *Resilience) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := r.do(ctx, "current_price", func() error {
		var err error
		out, err = r.inner.CurrentPrice(ctx, symbol)
		return err
	})
	return out, err
}

func (r *Resilience) MarginBalance(ctx context.Context) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := r.do(ctx, "margin_balance", func() error {
		var err error
		out, err = r.inner.MarginBalance(ctx)
		return err
	})
	return out, err
}

func (r *Resilience) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return r.do(ctx, "set_leverage", func() error {
		return r.inner.SetLeverage(ctx, symbol, leverage)
	})
}

func (r *Resilience) EnterLong(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return r.do(ctx, "enter_long", func() error {
		return r.inner.EnterLong(ctx, symbol, qty)
	})
}

func (r *Resilience) EnterShort(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return r.do(ctx, "enter_short", func() error {
		return r.inner.EnterShort(ctx, symbol, qty)
	})
}

func (r *Resilience) ExitLong(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return r.do(ctx, "exit_long", func() error {
		return r.inner.ExitLong(ctx, symbol, qty)
	})
}

func (r *Resilience) ExitShort(ctx context.Context, symbol string, qty decimal.Decimal) error {
	return r.do(ctx, "exit_short", func() error {
		return r.inner.ExitShort(ctx, symbol, qty)
	})
}
