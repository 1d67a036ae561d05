package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"blocktrader/internal/domain"
)

// CondensedBlockStore implements domain.CondensedBlockStore using PostgreSQL.
type CondensedBlockStore struct {
	pool *pgxpool.Pool
}

var _ domain.CondensedBlockStore = (*CondensedBlockStore)(nil)

// NewCondensedBlockStore creates a new CondensedBlockStore backed by the
// given pool.
func NewCondensedBlockStore(pool *pgxpool.Pool) *CondensedBlockStore {
	return &CondensedBlockStore{pool: pool}
}

// Get returns the rolling profit total for (user, symbol).
func (s *CondensedBlockStore) Get(ctx context.Context, userID, symbol string) (domain.CondensedBlock, error) {
	var cb domain.CondensedBlock
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, symbol, profit, last_updated
		 FROM condensed_blocks WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	).Scan(&cb.UserID, &cb.Symbol, &cb.Profit, &cb.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CondensedBlock{}, domain.ErrNotFound
		}
		return domain.CondensedBlock{}, fmt.Errorf("postgres: get condensed block %s/%s: %w", userID, symbol, err)
	}
	return cb, nil
}

// AddProfit upserts the total so the first condensation for a symbol does not
// need a separate create step.
func (s *CondensedBlockStore) AddProfit(ctx context.Context, userID, symbol string, delta float64) error {
	const query = `
		INSERT INTO condensed_blocks (user_id, symbol, profit, last_updated)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, symbol)
		DO UPDATE SET profit = condensed_blocks.profit + EXCLUDED.profit,
		              last_updated = NOW()`

	if _, err := s.pool.Exec(ctx, query, userID, symbol, delta); err != nil {
		return fmt.Errorf("postgres: add condensed profit %s/%s: %w", userID, symbol, err)
	}
	return nil
}
