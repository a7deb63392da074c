package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestTrailingNotTriggeredBeforeInitialize(t *testing.T) {
	tr := NewTrailingStopTracker(domain.DirectionLong, 1.5)

	tr.Update(d(50_000))
	if tr.Triggered(d(1)) {
		t.Fatal("tracker must not trigger before Initialize")
	}
	if tr.Active() {
		t.Fatal("tracker must be inactive before Initialize")
	}
}

func TestTrailingLongRatchetsUpward(t *testing.T) {
	tr := NewTrailingStopTracker(domain.DirectionLong, 2)
	tr.Initialize(d(50_000))

	tr.Update(d(51_000))
	tr.Update(d(50_500)) // pullback must not lower the extreme
	if !tr.Extreme().Equal(d(51_000)) {
		t.Fatalf("extreme = %s, want 51000", tr.Extreme())
	}

	// 2% below 51000 is 49980; price above it stays open.
	if tr.Triggered(d(50_000)) {
		t.Fatal("retrace within threshold must not trigger")
	}
	if !tr.Triggered(d(49_900)) {
		t.Fatal("retrace beyond threshold must trigger")
	}
}

func TestTrailingShortRatchetsDownward(t *testing.T) {
	tr := NewTrailingStopTracker(domain.DirectionShort, 2)
	tr.Initialize(d(50_000))

	tr.Update(d(49_000))
	tr.Update(d(49_500)) // bounce must not raise the extreme
	if !tr.Extreme().Equal(d(49_000)) {
		t.Fatalf("extreme = %s, want 49000", tr.Extreme())
	}

	// 2% above 49000 is 49980.
	if tr.Triggered(d(49_900)) {
		t.Fatal("bounce within threshold must not trigger")
	}
	if !tr.Triggered(d(50_100)) {
		t.Fatal("bounce beyond threshold must trigger")
	}
}

func TestTrailingResetClearsState(t *testing.T) {
	tr := NewTrailingStopTracker(domain.DirectionLong, 1)
	tr.Initialize(d(50_000))
	tr.Update(d(55_000))
	tr.Reset()

	if tr.Active() {
		t.Fatal("tracker must be inactive after Reset")
	}
	if tr.Triggered(d(1)) {
		t.Fatal("tracker must not trigger after Reset")
	}
	if !tr.Extreme().IsZero() {
		t.Fatalf("extreme after reset = %s, want 0", tr.Extreme())
	}
}

func TestRSIReversalExit(t *testing.T) {
	cond := RSIReversalExit{Oversold: 30, Overbought: 70}
	longPos := domain.PositionState{Direction: domain.DirectionLong, Status: domain.PositionStatusOpen}
	shortPos := domain.PositionState{Direction: domain.DirectionShort, Status: domain.PositionStatusOpen}

	hot := domain.IndicatorSnapshot{RSI: 75, CandleCloseTime: someTime}
	cold := domain.IndicatorSnapshot{RSI: 25, CandleCloseTime: someTime}
	mid := domain.IndicatorSnapshot{RSI: 50, CandleCloseTime: someTime}

	if !cond.ShouldExit(d(1), hot, longPos) {
		t.Fatal("long must exit at overbought RSI")
	}
	if cond.ShouldExit(d(1), mid, longPos) {
		t.Fatal("long must hold at neutral RSI")
	}
	if !cond.ShouldExit(d(1), cold, shortPos) {
		t.Fatal("short must exit at oversold RSI")
	}
	if cond.ShouldExit(d(1), mid, shortPos) {
		t.Fatal("short must hold at neutral RSI")
	}
	if cond.ShouldExit(d(1), domain.IndicatorSnapshot{}, longPos) {
		t.Fatal("empty snapshot must never exit")
	}
}
