package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeReason explains why a fill happened. Liquidations are modeled, expected
// transitions and are recorded distinctly from voluntary exits.
type TradeReason string

const (
	TradeReasonEntry        TradeReason = "entry"
	TradeReasonTrailingStop TradeReason = "trailing_stop"
	TradeReasonExitSignal   TradeReason = "exit_signal"
	TradeReasonLiquidation  TradeReason = "liquidation"
	TradeReasonManualClose  TradeReason = "manual_close"
)

// TradeRecord is one executed fill, live or simulated.
type TradeRecord struct {
	ID         string
	RunID      string // backtest run ID, empty for live fills
	Symbol     string
	Direction  Direction
	Side       Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fee        decimal.Decimal
	PnL        decimal.Decimal // realized, zero for entries
	Reason     TradeReason
	ExecutedAt time.Time
}
