package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// CandleStore implements domain.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *pgxpool.Pool
}

// NewCandleStore creates a CandleStore backed by the given connection pool.
func NewCandleStore(pool *pgxpool.Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

var _ domain.CandleStore = (*CandleStore)(nil)

const candleSelectCols = `open_time, close_time, open, high, low, close, volume`

func scanCandleRows(rows pgx.Rows) ([]domain.Candle, error) {
	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(
			&c.OpenTime, &c.CloseTime,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// UpsertBatch inserts candles using a pgx Batch. Duplicates (same symbol,
// timeframe, open time) are silently skipped via ON CONFLICT DO NOTHING.
func (s *CandleStore) UpsertBatch(ctx context.Context, symbol, timeframe string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO candles (
			symbol, timeframe, open_time, close_time,
			open, high, low, close, volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, timeframe, open_time) DO NOTHING`

	for _, c := range candles {
		batch.Queue(query,
			symbol, timeframe, c.OpenTime, c.CloseTime,
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range candles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert candle batch item %d: %w", i, err)
		}
	}
	return nil
}

// Latest returns the most recent limit candles, ordered ascending.
func (s *CandleStore) Latest(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	const query = `
		SELECT ` + candleSelectCols + ` FROM (
			SELECT ` + candleSelectCols + `
			FROM candles
			WHERE symbol = $1 AND timeframe = $2
			ORDER BY open_time DESC
			LIMIT $3
		) recent
		ORDER BY open_time ASC`

	rows, err := s.pool.Query(ctx, query, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest candles: %w", err)
	}
	defer rows.Close()

	candles, err := scanCandleRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan latest candles: %w", err)
	}
	return candles, nil
}

// Range returns candles with open time in [from, to), ordered ascending.
func (s *CandleStore) Range(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]domain.Candle, error) {
	const query = `
		SELECT ` + candleSelectCols + `
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
		  AND open_time >= $3 AND open_time < $4
		ORDER BY open_time ASC`

	rows, err := s.pool.Query(ctx, query, symbol, timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: candle range: %w", err)
	}
	defer rows.Close()

	candles, err := scanCandleRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan candle range: %w", err)
	}
	return candles, nil
}
