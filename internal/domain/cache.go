package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest price per symbol.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error)
}

// SnapshotCache stores the latest indicator snapshot per (symbol, timeframe)
// so external consumers (dashboard, status endpoint) can read it without
// recomputing.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, symbol, timeframe string, snap IndicatorSnapshot) error
	GetSnapshot(ctx context.Context, symbol, timeframe string) (IndicatorSnapshot, error)
}

// LockManager provides distributed locks so only one engine instance trades
// a given symbol at a time.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function, or ErrLockHeld when another party holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter provides distributed rate limiting for outbound exchange calls.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the sliding
	// window limit, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
