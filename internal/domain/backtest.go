package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestResult summarizes one completed historical replay.
type BacktestResult struct {
	RunID          string
	Symbol         string
	Direction      Direction
	StartTime      time.Time // open time of the first replayed candle
	EndTime        time.Time // close time of the last replayed candle
	InitialBalance decimal.Decimal
	FinalBalance   decimal.Decimal
	TotalProfit    decimal.Decimal
	TotalFees      decimal.Decimal
	TotalTrades    int // executed fills of any kind (entries, exits, liquidations); equals len(Trades)
	Liquidations   int
	Trades         []TradeRecord
	CompletedAt    time.Time
}
