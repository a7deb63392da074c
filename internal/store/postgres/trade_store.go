package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var _ domain.TradeStore = (*TradeStore)(nil)

const tradeSelectCols = `id, run_id, symbol, direction, side,
	quantity, price, fee, pnl, reason, executed_at`

const tradeInsert = `
	INSERT INTO trades (
		id, run_id, symbol, direction, side,
		quantity, price, fee, pnl, reason, executed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO NOTHING`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var runID *string
		if err := rows.Scan(
			&t.ID, &runID, &t.Symbol, &t.Direction, &t.Side,
			&t.Quantity, &t.Price, &t.Fee, &t.PnL, &t.Reason, &t.ExecutedAt,
		); err != nil {
			return nil, err
		}
		if runID != nil {
			t.RunID = *runID
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func nullableRunID(runID string) any {
	if runID == "" {
		return nil
	}
	return runID
}

// Insert stores a single fill.
func (s *TradeStore) Insert(ctx context.Context, trade domain.TradeRecord) error {
	_, err := s.pool.Exec(ctx, tradeInsert,
		trade.ID, nullableRunID(trade.RunID), trade.Symbol, trade.Direction, trade.Side,
		trade.Quantity, trade.Price, trade.Fee, trade.PnL, trade.Reason, trade.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade: %w", err)
	}
	return nil
}

// InsertBatch inserts multiple fills efficiently using pgx Batch. Duplicates
// (same id) are silently skipped.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(tradeInsert,
			t.ID, nullableRunID(t.RunID), t.Symbol, t.Direction, t.Side,
			t.Quantity, t.Price, t.Fee, t.PnL, t.Reason, t.ExecutedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByRun returns the fills of one backtest run in execution order.
func (s *TradeStore) ListByRun(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE run_id = $1 ORDER BY executed_at ASC`
	args := []any{runID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by run: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by run: %w", err)
	}
	return trades, nil
}

// ListRecent returns the newest limit fills for a symbol, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, symbol string, limit int) ([]domain.TradeRecord, error) {
	const query = `
		SELECT ` + tradeSelectCols + `
		FROM trades
		WHERE symbol = $1
		ORDER BY executed_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent trades: %w", err)
	}
	return trades, nil
}
