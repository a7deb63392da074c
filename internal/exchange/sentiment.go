package exchange

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// FundingRateSource reports a symbol's current funding rate. *Binance
// satisfies it.
type FundingRateSource interface {
	FundingRate(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// FundingSentiment derives a contrarian market-sentiment verdict from the
// perpetual funding rate: sustained positive funding means crowded longs are
// paying to stay in, read as bearish for new entries; negative funding means
// shorts are paying, read as bullish. Rates inside the neutral band produce
// no verdict.
type FundingSentiment struct {
	source      FundingRateSource
	neutralBand decimal.Decimal
	logger      *slog.Logger
}

// DefaultNeutralBand is one basis point; Binance's baseline funding rate.
var DefaultNeutralBand = decimal.NewFromFloat(0.0001)

// NewFundingSentiment creates a provider over the given rate source. A
// non-positive neutralBand falls back to DefaultNeutralBand.
func NewFundingSentiment(source FundingRateSource, neutralBand decimal.Decimal, logger *slog.Logger) *FundingSentiment {
	if !neutralBand.IsPositive() {
		neutralBand = DefaultNeutralBand
	}
	return &FundingSentiment{
		source:      source,
		neutralBand: neutralBand,
		logger:      logger.With(slog.String("component", "funding_sentiment")),
	}
}

var _ domain.SentimentProvider = (*FundingSentiment)(nil)

// Verdict implements domain.SentimentProvider.
func (f *FundingSentiment) Verdict(ctx context.Context, symbol string) (domain.SentimentVerdict, error) {
	rate, err := f.source.FundingRate(ctx, symbol)
	if err != nil {
		return domain.SentimentNeutral, fmt.Errorf("sentiment: funding rate: %w", err)
	}

	verdict := domain.SentimentNeutral
	switch {
	case rate.GreaterThan(f.neutralBand):
		verdict = domain.SentimentBearish
	case rate.LessThan(f.neutralBand.Neg()):
		verdict = domain.SentimentBullish
	}
	f.logger.Debug("funding verdict",
		slog.String("symbol", symbol),
		slog.String("rate", rate.String()),
		slog.String("verdict", string(verdict)))
	return verdict, nil
}
