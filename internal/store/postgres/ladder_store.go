package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"blocktrader/internal/domain"
)

// LadderStore implements domain.LadderStore using PostgreSQL.
type LadderStore struct {
	pool *pgxpool.Pool
}

var _ domain.LadderStore = (*LadderStore)(nil)

// NewLadderStore creates a new LadderStore backed by the given connection pool.
func NewLadderStore(pool *pgxpool.Pool) *LadderStore {
	return &LadderStore{pool: pool}
}

const ladderSelectCols = `id, user_id, symbol, shares_per_block, max_shares,
	buy_pct, sell_pct, stop_loss_pct, blocks_created, created_at, updated_at`

func scanLadderRow(row pgx.Row) (domain.Ladder, error) {
	var l domain.Ladder
	err := row.Scan(
		&l.ID, &l.UserID, &l.Symbol,
		&l.SharesPerBlock, &l.MaxShares,
		&l.BuyPct, &l.SellPct, &l.StopLossPct,
		&l.BlocksCreated, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Ladder{}, err
	}
	return l, nil
}

// Create inserts a new ladder. A ladder already registered for the same
// (user, symbol) maps to ErrAlreadyExists.
func (s *LadderStore) Create(ctx context.Context, l domain.Ladder) error {
	const query = `
		INSERT INTO ladders (
			id, user_id, symbol, shares_per_block, max_shares,
			buy_pct, sell_pct, stop_loss_pct, blocks_created,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`

	_, err := s.pool.Exec(ctx, query,
		l.ID, l.UserID, l.Symbol,
		l.SharesPerBlock, l.MaxShares,
		l.BuyPct, l.SellPct, l.StopLossPct,
		l.BlocksCreated,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create ladder %s/%s: %w", l.UserID, l.Symbol, err)
	}
	return nil
}

// Update rewrites the ladder's parameters and flags.
func (s *LadderStore) Update(ctx context.Context, l domain.Ladder) error {
	const query = `
		UPDATE ladders SET
			shares_per_block = $3, max_shares = $4,
			buy_pct = $5, sell_pct = $6, stop_loss_pct = $7,
			blocks_created = $8, updated_at = NOW()
		WHERE user_id = $1 AND symbol = $2`

	tag, err := s.pool.Exec(ctx, query,
		l.UserID, l.Symbol,
		l.SharesPerBlock, l.MaxShares,
		l.BuyPct, l.SellPct, l.StopLossPct,
		l.BlocksCreated,
	)
	if err != nil {
		return fmt.Errorf("postgres: update ladder %s/%s: %w", l.UserID, l.Symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get returns the ladder for (user, symbol).
func (s *LadderStore) Get(ctx context.Context, userID, symbol string) (domain.Ladder, error) {
	query := `SELECT ` + ladderSelectCols + ` FROM ladders WHERE user_id = $1 AND symbol = $2`

	l, err := scanLadderRow(s.pool.QueryRow(ctx, query, userID, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Ladder{}, domain.ErrNotFound
		}
		return domain.Ladder{}, fmt.Errorf("postgres: get ladder %s/%s: %w", userID, symbol, err)
	}
	return l, nil
}

// Delete removes the ladder row.
func (s *LadderStore) Delete(ctx context.Context, userID, symbol string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ladders WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	)
	if err != nil {
		return fmt.Errorf("postgres: delete ladder %s/%s: %w", userID, symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListCreated returns every ladder whose block batch has been generated.
func (s *LadderStore) ListCreated(ctx context.Context) ([]domain.Ladder, error) {
	query := `SELECT ` + ladderSelectCols + ` FROM ladders WHERE blocks_created ORDER BY user_id, symbol`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list created ladders: %w", err)
	}
	defer rows.Close()

	var ladders []domain.Ladder
	for rows.Next() {
		l, err := scanLadderRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan ladder: %w", err)
		}
		ladders = append(ladders, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list created ladders: %w", err)
	}
	return ladders, nil
}
