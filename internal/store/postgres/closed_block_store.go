package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"blocktrader/internal/domain"
)

// ClosedBlockStore implements domain.ClosedBlockStore using PostgreSQL.
type ClosedBlockStore struct {
	pool *pgxpool.Pool
}

var _ domain.ClosedBlockStore = (*ClosedBlockStore)(nil)

// NewClosedBlockStore creates a new ClosedBlockStore backed by the given pool.
func NewClosedBlockStore(pool *pgxpool.Pool) *ClosedBlockStore {
	return &ClosedBlockStore{pool: pool}
}

// Create archives a completed round trip.
func (s *ClosedBlockStore) Create(ctx context.Context, cb domain.ClosedBlock) error {
	const query = `
		INSERT INTO closed_blocks (
			id, user_id, symbol, shares, buy_price, sell_price, profit,
			buy_filled_at, sell_filled_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err := s.pool.Exec(ctx, query,
		cb.ID, cb.UserID, cb.Symbol, cb.Shares,
		cb.BuyPrice, cb.SellPrice, cb.Profit,
		cb.BuyFilledAt, cb.SellFilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create closed block %s: %w", cb.ID, err)
	}
	return nil
}

// ListBySymbol returns the archived round trips for (user, symbol), oldest
// first.
func (s *ClosedBlockStore) ListBySymbol(ctx context.Context, userID, symbol string) ([]domain.ClosedBlock, error) {
	const query = `
		SELECT id, user_id, symbol, shares, buy_price, sell_price, profit,
		       buy_filled_at, sell_filled_at, created_at
		FROM closed_blocks
		WHERE user_id = $1 AND symbol = $2
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, userID, symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed blocks %s/%s: %w", userID, symbol, err)
	}
	defer rows.Close()

	var out []domain.ClosedBlock
	for rows.Next() {
		var cb domain.ClosedBlock
		if err := rows.Scan(
			&cb.ID, &cb.UserID, &cb.Symbol, &cb.Shares,
			&cb.BuyPrice, &cb.SellPrice, &cb.Profit,
			&cb.BuyFilledAt, &cb.SellFilledAt, &cb.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan closed block: %w", err)
		}
		out = append(out, cb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list closed blocks %s/%s: %w", userID, symbol, err)
	}
	return out, nil
}

// SumProfit totals the archived profit for (user, symbol).
func (s *ClosedBlockStore) SumProfit(ctx context.Context, userID, symbol string) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(profit), 0) FROM closed_blocks WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum closed profit %s/%s: %w", userID, symbol, err)
	}
	return sum, nil
}

// DeleteBySymbol removes every archived round trip for (user, symbol).
func (s *ClosedBlockStore) DeleteBySymbol(ctx context.Context, userID, symbol string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM closed_blocks WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	)
	if err != nil {
		return fmt.Errorf("postgres: delete closed blocks %s/%s: %w", userID, symbol, err)
	}
	return nil
}
