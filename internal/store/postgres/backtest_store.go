package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// BacktestRunStore implements domain.BacktestRunStore using PostgreSQL. Run
// rows hold the summary only; the per-run fills live in the trades table.
type BacktestRunStore struct {
	pool *pgxpool.Pool
}

// NewBacktestRunStore creates a BacktestRunStore backed by the given pool.
func NewBacktestRunStore(pool *pgxpool.Pool) *BacktestRunStore {
	return &BacktestRunStore{pool: pool}
}

var _ domain.BacktestRunStore = (*BacktestRunStore)(nil)

const runSelectCols = `run_id, symbol, direction, start_time, end_time,
	initial_balance, final_balance, total_profit, total_fees,
	total_trades, liquidations, completed_at`

func scanRun(row pgx.Row) (domain.BacktestResult, error) {
	var r domain.BacktestResult
	err := row.Scan(
		&r.RunID, &r.Symbol, &r.Direction, &r.StartTime, &r.EndTime,
		&r.InitialBalance, &r.FinalBalance, &r.TotalProfit, &r.TotalFees,
		&r.TotalTrades, &r.Liquidations, &r.CompletedAt,
	)
	return r, err
}

// Create stores a completed run summary.
func (s *BacktestRunStore) Create(ctx context.Context, result domain.BacktestResult) error {
	const query = `
		INSERT INTO backtest_runs (
			run_id, symbol, direction, start_time, end_time,
			initial_balance, final_balance, total_profit, total_fees,
			total_trades, liquidations, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		result.RunID, result.Symbol, result.Direction, result.StartTime, result.EndTime,
		result.InitialBalance, result.FinalBalance, result.TotalProfit, result.TotalFees,
		result.TotalTrades, result.Liquidations, result.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create backtest run: %w", err)
	}
	return nil
}

// GetByID returns one run summary, or domain.ErrNotFound.
func (s *BacktestRunStore) GetByID(ctx context.Context, runID string) (domain.BacktestResult, error) {
	const query = `SELECT ` + runSelectCols + ` FROM backtest_runs WHERE run_id = $1`

	result, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BacktestResult{}, domain.ErrNotFound
		}
		return domain.BacktestResult{}, fmt.Errorf("postgres: get backtest run: %w", err)
	}
	return result, nil
}

// ListRecent returns the newest limit run summaries, newest first.
func (s *BacktestRunStore) ListRecent(ctx context.Context, limit int) ([]domain.BacktestResult, error) {
	const query = `
		SELECT ` + runSelectCols + `
		FROM backtest_runs
		ORDER BY completed_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list backtest runs: %w", err)
	}
	defer rows.Close()

	var results []domain.BacktestResult
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan backtest run: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate backtest runs: %w", err)
	}
	return results, nil
}
