package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// snapshotTTL bounds how stale a cached snapshot can get if the engine dies
// without cleaning up.
const snapshotTTL = 24 * time.Hour

// SnapshotCache implements domain.SnapshotCache using JSON-encoded values at
// key "indicators:{symbol}:{timeframe}".
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(symbol, timeframe string) string {
	return "indicators:" + symbol + ":" + timeframe
}

// SetSnapshot stores the latest indicator snapshot for (symbol, timeframe).
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, symbol, timeframe string, snap domain.IndicatorSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s/%s: %w", symbol, timeframe, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(symbol, timeframe), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s/%s: %w", symbol, timeframe, err)
	}
	return nil
}

// GetSnapshot retrieves the latest indicator snapshot for (symbol, timeframe).
// It returns domain.ErrNotFound when no snapshot has been published.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(symbol, timeframe)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.IndicatorSnapshot{}, domain.ErrNotFound
		}
		return domain.IndicatorSnapshot{}, fmt.Errorf("redis: get snapshot %s/%s: %w", symbol, timeframe, err)
	}

	var snap domain.IndicatorSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s/%s: %w", symbol, timeframe, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
