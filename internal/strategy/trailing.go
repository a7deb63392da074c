// Package strategy contains the trading decision engine: the position state
// machine, the entry predicate, the trailing-stop tracker, and pluggable exit
// conditions.
package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

var decimalHundred = decimal.NewFromInt(100)

// TrailingStopTracker ratchets an exit trigger behind favorable price
// movement. For a long position it records the highest price seen since entry
// and triggers once price retraces more than percent below it; for a short it
// mirrors (lowest price, upward retracement). The tracker is direction-aware
// so the two cases share one implementation.
//
// Not safe for concurrent use; the engine serializes access.
type TrailingStopTracker struct {
	direction domain.Direction
	percent   decimal.Decimal // retracement threshold, in percent

	extreme decimal.Decimal // best price seen since activation
	active  bool
}

// NewTrailingStopTracker creates an inactive tracker for the given direction.
func NewTrailingStopTracker(direction domain.Direction, percent float64) *TrailingStopTracker {
	return &TrailingStopTracker{
		direction: direction,
		percent:   decimal.NewFromFloat(percent),
	}
}

// Initialize sets the baseline extreme to the entry price and activates the
// tracker.
func (t *TrailingStopTracker) Initialize(entryPrice decimal.Decimal) {
	t.extreme = entryPrice
	t.active = true
}

// Active reports whether the tracker has been initialized since the last
// reset.
func (t *TrailingStopTracker) Active() bool {
	return t.active
}

// Update ratchets the recorded extreme toward the favorable direction. The
// extreme only ever improves: a long's high watermark never lowers, a short's
// low watermark never rises. Updates before Initialize are ignored.
func (t *TrailingStopTracker) Update(price decimal.Decimal) {
	if !t.active {
		return
	}
	if t.direction == domain.DirectionLong {
		if price.GreaterThan(t.extreme) {
			t.extreme = price
		}
		return
	}
	if price.LessThan(t.extreme) {
		t.extreme = price
	}
}

// Triggered reports whether price has retraced more than the configured
// percentage from the recorded extreme. Always false before Initialize.
func (t *TrailingStopTracker) Triggered(price decimal.Decimal) bool {
	if !t.active || t.extreme.IsZero() {
		return false
	}
	frac := t.percent.Div(decimalHundred)
	if t.direction == domain.DirectionLong {
		threshold := t.extreme.Mul(one.Sub(frac))
		return price.LessThan(threshold)
	}
	threshold := t.extreme.Mul(one.Add(frac))
	return price.GreaterThan(threshold)
}

// Extreme returns the best price recorded since activation. Zero when
// inactive.
func (t *TrailingStopTracker) Extreme() decimal.Decimal {
	if !t.active {
		return decimal.Zero
	}
	return t.extreme
}

// Reset deactivates the tracker and clears the recorded extreme.
func (t *TrailingStopTracker) Reset() {
	t.extreme = decimal.Zero
	t.active = false
}

var one = decimal.NewFromInt(1)
