package domain

// Direction is the side of the market a position is exposed to. A decision
// engine instance trades exactly one direction; all entry/exit predicates and
// trailing-stop math are parameterized by it rather than duplicated.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Opposite returns the mirrored direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Side indicates whether an order buys or sells.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// EntrySide returns the order side that opens a position in this direction.
func (d Direction) EntrySide() Side {
	if d == DirectionLong {
		return SideBuy
	}
	return SideSell
}

// ExitSide returns the order side that closes a position in this direction.
func (d Direction) ExitSide() Side {
	if d == DirectionLong {
		return SideSell
	}
	return SideBuy
}
