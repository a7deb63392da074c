package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// ExitCondition is a pluggable predicate evaluated each cycle while a position
// is open. Conditions are combined by logical OR: any single condition
// returning true closes the position.
type ExitCondition interface {
	// Name identifies the condition in logs and trade records.
	Name() string
	// ShouldExit reports whether the open position should be closed now.
	ShouldExit(price decimal.Decimal, snap domain.IndicatorSnapshot, pos domain.PositionState) bool
}

// RSIReversalExit closes a position once RSI crosses into the opposite
// extreme: a long exits at or above the overbought threshold, a short at or
// below the oversold threshold.
type RSIReversalExit struct {
	Oversold   float64
	Overbought float64
}

// Name implements ExitCondition.
func (RSIReversalExit) Name() string { return "rsi_reversal" }

// ShouldExit implements ExitCondition.
func (e RSIReversalExit) ShouldExit(_ decimal.Decimal, snap domain.IndicatorSnapshot, pos domain.PositionState) bool {
	if snap.Empty() {
		return false
	}
	if pos.Direction == domain.DirectionLong {
		return snap.RSI >= e.Overbought
	}
	return snap.RSI <= e.Oversold
}

var _ ExitCondition = RSIReversalExit{}

// anyExit evaluates conditions in order and returns the name of the first one
// that fires, or "" when none do.
func anyExit(conds []ExitCondition, price decimal.Decimal, snap domain.IndicatorSnapshot, pos domain.PositionState) string {
	for _, c := range conds {
		if c.ShouldExit(price, snap, pos) {
			return c.Name()
		}
	}
	return ""
}
