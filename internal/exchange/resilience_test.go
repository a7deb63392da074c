package exchange

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyGateway fails the first failures calls to each method, then succeeds.
type flakyGateway struct {
	failures int
	calls    int
	err      error
}

func (f *flakyGateway) attempt() error {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return f.err
		}
		return errors.New("upstream unavailable")
	}
	return nil
}

func (f *flakyGateway) FetchOHLCV(context.Context, string, string, int) ([]domain.Candle, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	return []domain.Candle{}, nil
}

func (f *flakyGateway) CurrentPrice(context.Context, string) (decimal.Decimal, error) {
	if err := f.attempt(); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(50_000), nil
}

func (f *flakyGateway) MarginBalance(context.Context) (decimal.Decimal, error) {
	if err := f.attempt(); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(10_000), nil
}

func (f *flakyGateway) SetLeverage(context.Context, string, int) error {
	return f.attempt()
}

func (f *flakyGateway) EnterLong(context.Context, string, decimal.Decimal) error  { return f.attempt() }
func (f *flakyGateway) EnterShort(context.Context, string, decimal.Decimal) error { return f.attempt() }
func (f *flakyGateway) ExitLong(context.Context, string, decimal.Decimal) error   { return f.attempt() }
func (f *flakyGateway) ExitShort(context.Context, string, decimal.Decimal) error  { return f.attempt() }

var _ domain.ExchangeGateway = (*flakyGateway)(nil)

// denyLimiter rejects every request.
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}

func fastPolicy() ResiliencePolicy {
	return ResiliencePolicy{
		MaxAttempts:     3,
		BackoffMin:      time.Millisecond,
		BackoffMax:      2 * time.Millisecond,
		BreakerFailures: 5,
		BreakerCooldown: time.Minute,
	}
}

func TestResilienceRetriesTransientFailures(t *testing.T) {
	inner := &flakyGateway{failures: 2}
	r := NewResilience(inner, nil, fastPolicy(), testLogger())

	price, err := r.CurrentPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(50_000)) {
		t.Fatalf("price = %s, want 50000", price)
	}
	if inner.calls != 3 {
		t.Fatalf("inner calls = %d, want 3 (2 failures + 1 success)", inner.calls)
	}
}

func TestResilienceGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyGateway{failures: 100}
	r := NewResilience(inner, nil, fastPolicy(), testLogger())

	if _, err := r.MarginBalance(context.Background()); err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if inner.calls != 3 {
		t.Fatalf("inner calls = %d, want exactly MaxAttempts", inner.calls)
	}
}

func TestResilienceBreakerOpensAndRejects(t *testing.T) {
	inner := &flakyGateway{failures: 1_000}
	policy := fastPolicy()
	policy.BreakerFailures = 4
	r := NewResilience(inner, nil, policy, testLogger())
	ctx := context.Background()

	// Two exhausted operations (3 failures each) trip the 4-failure breaker.
	_, _ = r.CurrentPrice(ctx, "BTCUSDT")
	_, _ = r.CurrentPrice(ctx, "BTCUSDT")

	callsBefore := inner.calls
	_, err := r.CurrentPrice(ctx, "BTCUSDT")
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if inner.calls != callsBefore {
		t.Fatal("open circuit must not reach the inner gateway")
	}
}

func TestResilienceRateLimited(t *testing.T) {
	inner := &flakyGateway{}
	r := NewResilience(inner, denyLimiter{}, ResiliencePolicy{
		RateLimitPerSecond: 1,
		MaxAttempts:        2,
		BackoffMin:         time.Millisecond,
		BackoffMax:         time.Millisecond,
		BreakerFailures:    10,
		BreakerCooldown:    time.Minute,
	}, testLogger())

	err := r.EnterLong(context.Background(), "BTCUSDT", decimal.NewFromInt(1))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if inner.calls != 0 {
		t.Fatal("rate-limited calls must not reach the inner gateway")
	}
}

func TestResiliencePermanentErrorNotRetried(t *testing.T) {
	inner := &flakyGateway{failures: 100, err: domain.ErrInvalidLeverage}
	r := NewResilience(inner, nil, fastPolicy(), testLogger())

	err := r.SetLeverage(context.Background(), "BTCUSDT", 200)
	if !errors.Is(err, domain.ErrInvalidLeverage) {
		t.Fatalf("err = %v, want ErrInvalidLeverage", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, permanent errors must not retry", inner.calls)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker(2, 10*time.Millisecond)
	b.Failure()
	b.Failure()
	if b.Allow() {
		t.Fatal("breaker must reject while open")
	}

	time.Sleep(15 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("breaker must admit a probe after cooldown")
	}
	if b.Allow() {
		t.Fatal("only one probe may run at a time")
	}

	b.Success()
	if !b.Allow() {
		t.Fatal("breaker must close after a successful probe")
	}
}
