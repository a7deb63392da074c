package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether the engine currently holds a position.
type PositionStatus string

const (
	PositionStatusNone PositionStatus = "none"
	PositionStatusOpen PositionStatus = "open"
)

// PositionState is the decision engine's view of its own position. The
// direction is fixed at engine construction; status flips between none and
// open as entries and exits are issued. The engine updates this optimistically
// and never observes fill confirmations.
type PositionState struct {
	Direction  Direction
	Status     PositionStatus
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal
	Leverage   int
	OpenedAt   time.Time
}

// Open reports whether a position is currently held.
func (p PositionState) Open() bool {
	return p.Status == PositionStatusOpen
}

var decimalOne = decimal.NewFromInt(1)

// LiquidationPrice returns the price at which a position opened at entry with
// the given leverage is forcibly closed: entry × (1 − 1/L) for longs,
// entry × (1 + 1/L) for shorts.
func LiquidationPrice(entry decimal.Decimal, leverage int, direction Direction) decimal.Decimal {
	inv := decimalOne.Div(decimal.NewFromInt(int64(leverage)))
	if direction == DirectionLong {
		return entry.Mul(decimalOne.Sub(inv))
	}
	return entry.Mul(decimalOne.Add(inv))
}
