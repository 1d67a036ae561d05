package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"blocktrader/internal/domain"
)

// BlockStore implements domain.BlockStore using PostgreSQL.
type BlockStore struct {
	pool *pgxpool.Pool
}

var _ domain.BlockStore = (*BlockStore)(nil)

// NewBlockStore creates a new BlockStore backed by the given connection pool.
func NewBlockStore(pool *pgxpool.Pool) *BlockStore {
	return &BlockStore{pool: pool}
}

const blockSelectCols = `id, user_id, symbol, shares,
	buy_price, sell_price, stop_loss_price,
	buy_order_id, sell_order_id, stop_loss_order_id,
	buy_order_created, buy_order_filled, sell_order_created, sell_order_filled,
	buy_filled_price, sell_filled_price, buy_filled_at, sell_filled_at,
	created_at, updated_at`

func scanBlockRow(row pgx.Row) (domain.Block, error) {
	var b domain.Block
	err := row.Scan(
		&b.ID, &b.UserID, &b.Symbol, &b.Shares,
		&b.BuyPrice, &b.SellPrice, &b.StopLossPrice,
		&b.BuyOrderID, &b.SellOrderID, &b.StopLossOrderID,
		&b.BuyOrderCreated, &b.BuyOrderFilled, &b.SellOrderCreated, &b.SellOrderFilled,
		&b.BuyFilledPrice, &b.SellFilledPrice, &b.BuyFilledAt, &b.SellFilledAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Block{}, err
	}
	return b, nil
}

// CreateBatch inserts all blocks in a single transaction so a partial ladder
// never becomes visible.
func (s *BlockStore) CreateBatch(ctx context.Context, blocks []domain.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin block batch: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO blocks (
			id, user_id, symbol, shares,
			buy_price, sell_price, stop_loss_price,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`

	batch := &pgx.Batch{}
	for _, b := range blocks {
		batch.Queue(query,
			b.ID, b.UserID, b.Symbol, b.Shares,
			b.BuyPrice, b.SellPrice, b.StopLossPrice,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range blocks {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("postgres: insert block batch: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("postgres: close block batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit block batch: %w", err)
	}
	return nil
}

// Update rewrites a block's full live-order state.
func (s *BlockStore) Update(ctx context.Context, b domain.Block) error {
	const query = `
		UPDATE blocks SET
			shares = $2,
			buy_price = $3, sell_price = $4, stop_loss_price = $5,
			buy_order_id = $6, sell_order_id = $7, stop_loss_order_id = $8,
			buy_order_created = $9, buy_order_filled = $10,
			sell_order_created = $11, sell_order_filled = $12,
			buy_filled_price = $13, sell_filled_price = $14,
			buy_filled_at = $15, sell_filled_at = $16,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		b.ID, b.Shares,
		b.BuyPrice, b.SellPrice, b.StopLossPrice,
		b.BuyOrderID, b.SellOrderID, b.StopLossOrderID,
		b.BuyOrderCreated, b.BuyOrderFilled,
		b.SellOrderCreated, b.SellOrderFilled,
		b.BuyFilledPrice, b.SellFilledPrice,
		b.BuyFilledAt, b.SellFilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update block %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a block row.
func (s *BlockStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM blocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete block %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get returns a single block by ID.
func (s *BlockStore) Get(ctx context.Context, id string) (domain.Block, error) {
	query := `SELECT ` + blockSelectCols + ` FROM blocks WHERE id = $1`

	b, err := scanBlockRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Block{}, domain.ErrNotFound
		}
		return domain.Block{}, fmt.Errorf("postgres: get block %s: %w", id, err)
	}
	return b, nil
}

// ListBySymbol returns every block for (user, symbol), ordered by buy price.
func (s *BlockStore) ListBySymbol(ctx context.Context, userID, symbol string) ([]domain.Block, error) {
	query := `SELECT ` + blockSelectCols + `
		FROM blocks WHERE user_id = $1 AND symbol = $2 ORDER BY buy_price`

	rows, err := s.pool.Query(ctx, query, userID, symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: list blocks %s/%s: %w", userID, symbol, err)
	}
	defer rows.Close()

	var blocks []domain.Block
	for rows.Next() {
		b, err := scanBlockRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list blocks %s/%s: %w", userID, symbol, err)
	}
	return blocks, nil
}

// FindByOrderID matches a block by any of its external order identifiers.
func (s *BlockStore) FindByOrderID(ctx context.Context, userID, symbol, orderID string) (domain.Block, error) {
	query := `SELECT ` + blockSelectCols + `
		FROM blocks
		WHERE user_id = $1 AND symbol = $2
		  AND (buy_order_id = $3 OR sell_order_id = $3 OR stop_loss_order_id = $3)
		LIMIT 1`

	b, err := scanBlockRow(s.pool.QueryRow(ctx, query, userID, symbol, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Block{}, domain.ErrNotFound
		}
		return domain.Block{}, fmt.Errorf("postgres: find block by order %s: %w", orderID, err)
	}
	return b, nil
}

// ResetAll returns every block for the symbol to idle in one statement.
func (s *BlockStore) ResetAll(ctx context.Context, userID, symbol string) error {
	const query = `
		UPDATE blocks SET
			buy_order_id = '', sell_order_id = '', stop_loss_order_id = '',
			buy_order_created = FALSE, buy_order_filled = FALSE,
			sell_order_created = FALSE, sell_order_filled = FALSE,
			buy_filled_price = 0, sell_filled_price = 0,
			buy_filled_at = NULL, sell_filled_at = NULL,
			updated_at = NOW()
		WHERE user_id = $1 AND symbol = $2`

	if _, err := s.pool.Exec(ctx, query, userID, symbol); err != nil {
		return fmt.Errorf("postgres: reset blocks %s/%s: %w", userID, symbol, err)
	}
	return nil
}
