package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"blocktrader/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore backed by the given pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Upsert writes the trading profile for a user.
func (s *AccountStore) Upsert(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO accounts (user_id, direction, horizon, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET direction = EXCLUDED.direction, horizon = EXCLUDED.horizon`

	if _, err := s.pool.Exec(ctx, query, a.UserID, string(a.Direction), string(a.Horizon)); err != nil {
		return fmt.Errorf("postgres: upsert account %s: %w", a.UserID, err)
	}
	return nil
}

// Get returns the account for userID.
func (s *AccountStore) Get(ctx context.Context, userID string) (domain.Account, error) {
	var a domain.Account
	var direction, horizon string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, direction, horizon, created_at FROM accounts WHERE user_id = $1`,
		userID,
	).Scan(&a.UserID, &direction, &horizon, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", userID, err)
	}
	a.Direction = domain.Direction(direction)
	a.Horizon = domain.Horizon(horizon)
	return a, nil
}

// List returns every registered account.
func (s *AccountStore) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, direction, horizon, created_at FROM accounts ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		var direction, horizon string
		if err := rows.Scan(&a.UserID, &direction, &horizon, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		a.Direction = domain.Direction(direction)
		a.Horizon = domain.Horizon(horizon)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	return out, nil
}
