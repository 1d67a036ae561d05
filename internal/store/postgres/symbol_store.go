package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"blocktrader/internal/domain"
)

// SymbolStore implements domain.SymbolStore using PostgreSQL.
type SymbolStore struct {
	pool *pgxpool.Pool
}

var _ domain.SymbolStore = (*SymbolStore)(nil)

// NewSymbolStore creates a new SymbolStore backed by the given pool.
func NewSymbolStore(pool *pgxpool.Pool) *SymbolStore {
	return &SymbolStore{pool: pool}
}

// Upsert writes the symbol row, replacing its trading flag.
func (s *SymbolStore) Upsert(ctx context.Context, sym domain.Symbol) error {
	const query = `
		INSERT INTO symbols (name, trading, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name)
		DO UPDATE SET trading = EXCLUDED.trading, updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, sym.Name, sym.Trading); err != nil {
		return fmt.Errorf("postgres: upsert symbol %s: %w", sym.Name, err)
	}
	return nil
}

// Get returns the symbol by name.
func (s *SymbolStore) Get(ctx context.Context, name string) (domain.Symbol, error) {
	var sym domain.Symbol
	err := s.pool.QueryRow(ctx,
		`SELECT name, trading, updated_at FROM symbols WHERE name = $1`,
		name,
	).Scan(&sym.Name, &sym.Trading, &sym.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Symbol{}, domain.ErrNotFound
		}
		return domain.Symbol{}, fmt.Errorf("postgres: get symbol %s: %w", name, err)
	}
	return sym, nil
}

// SetTrading flips the per-symbol kill switch.
func (s *SymbolStore) SetTrading(ctx context.Context, name string, trading bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE symbols SET trading = $2, updated_at = NOW() WHERE name = $1`,
		name, trading,
	)
	if err != nil {
		return fmt.Errorf("postgres: set trading %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns every known symbol.
func (s *SymbolStore) List(ctx context.Context) ([]domain.Symbol, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, trading, updated_at FROM symbols ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list symbols: %w", err)
	}
	defer rows.Close()

	var out []domain.Symbol
	for rows.Next() {
		var sym domain.Symbol
		if err := rows.Scan(&sym.Name, &sym.Trading, &sym.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list symbols: %w", err)
	}
	return out, nil
}
