package domain

import "context"

// SentimentVerdict is an external market-sentiment reading used to gate
// technically-triggered entries when the sentiment gate is enabled.
type SentimentVerdict string

const (
	SentimentBullish SentimentVerdict = "bullish"
	SentimentBearish SentimentVerdict = "bearish"
	SentimentNeutral SentimentVerdict = "neutral"
)

// Agrees reports whether the verdict supports entering in the given
// direction. Neutral agrees with neither.
func (v SentimentVerdict) Agrees(d Direction) bool {
	switch v {
	case SentimentBullish:
		return d == DirectionLong
	case SentimentBearish:
		return d == DirectionShort
	default:
		return false
	}
}

// SentimentProvider produces a sentiment verdict for a symbol.
type SentimentProvider interface {
	Verdict(ctx context.Context, symbol string) (SentimentVerdict, error)
}
