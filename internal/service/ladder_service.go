// Package service holds the operator-facing workflows layered over the
// stores and the engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"blocktrader/internal/domain"
	"blocktrader/internal/engine"
	"blocktrader/internal/ladder"
)

// LadderService owns the ladder lifecycle: creation with the initial block
// batch, parameter updates, and guarded teardown.
type LadderService struct {
	ladders  domain.LadderStore
	blocks   domain.BlockStore
	accounts domain.AccountStore
	symbols  domain.SymbolStore
	prices   *engine.PriceSource
	logger   *slog.Logger
}

// NewLadderService creates a LadderService with all required dependencies.
func NewLadderService(
	ladders domain.LadderStore,
	blocks domain.BlockStore,
	accounts domain.AccountStore,
	symbols domain.SymbolStore,
	prices *engine.PriceSource,
	logger *slog.Logger,
) *LadderService {
	return &LadderService{
		ladders:  ladders,
		blocks:   blocks,
		accounts: accounts,
		symbols:  symbols,
		prices:   prices,
		logger:   logger.With(slog.String("component", "ladder_service")),
	}
}

// Setup validates the ladder, generates its block batch around the current
// price, persists both, and enables trading for the symbol. The ladder is
// anchored once: later price moves are handled by range upkeep, never by
// regeneration.
func (s *LadderService) Setup(ctx context.Context, lad domain.Ladder) (domain.Ladder, error) {
	if err := lad.Validate(); err != nil {
		return domain.Ladder{}, err
	}

	acct, err := s.accounts.Get(ctx, lad.UserID)
	if err != nil {
		return domain.Ladder{}, fmt.Errorf("ladder_service: load account %s: %w", lad.UserID, err)
	}

	if _, err := s.ladders.Get(ctx, lad.UserID, lad.Symbol); err == nil {
		return domain.Ladder{}, domain.ErrAlreadyExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Ladder{}, fmt.Errorf("ladder_service: check existing ladder: %w", err)
	}

	price, err := s.prices.Current(ctx, lad.Symbol)
	if err != nil {
		return domain.Ladder{}, fmt.Errorf("ladder_service: anchor price %s: %w", lad.Symbol, err)
	}

	levels, err := ladder.Generate(price, lad.BuyPct, lad.SellPct, lad.StopLossPct, acct.Direction)
	if err != nil {
		return domain.Ladder{}, fmt.Errorf("ladder_service: generate levels: %w", err)
	}

	lad.ID = uuid.New().String()
	lad.BlocksCreated = false
	lad.CreatedAt = time.Now().UTC()
	lad.UpdatedAt = lad.CreatedAt
	if err := s.ladders.Create(ctx, lad); err != nil {
		return domain.Ladder{}, fmt.Errorf("ladder_service: create ladder: %w", err)
	}

	blocks := make([]domain.Block, 0, len(levels))
	for _, lv := range levels {
		blocks = append(blocks, domain.Block{
			ID:            uuid.New().String(),
			UserID:        lad.UserID,
			Symbol:        lad.Symbol,
			Shares:        lad.SharesPerBlock,
			BuyPrice:      lv.Buy,
			SellPrice:     lv.Sell,
			StopLossPrice: lv.StopLoss,
		})
	}
	if err := s.blocks.CreateBatch(ctx, blocks); err != nil {
		return domain.Ladder{}, fmt.Errorf("ladder_service: create blocks: %w", err)
	}

	lad.BlocksCreated = true
	if err := s.ladders.Update(ctx, lad); err != nil {
		return domain.Ladder{}, fmt.Errorf("ladder_service: mark blocks created: %w", err)
	}

	if err := s.symbols.Upsert(ctx, domain.Symbol{Name: lad.Symbol, Trading: true}); err != nil {
		return domain.Ladder{}, fmt.Errorf("ladder_service: enable trading: %w", err)
	}

	s.logger.InfoContext(ctx, "ladder created",
		slog.String("user", lad.UserID),
		slog.String("symbol", lad.Symbol),
		slog.Int("blocks", len(blocks)),
		slog.Float64("anchor_price", price),
	)
	return lad, nil
}

// UpdateParameters changes the ladder's sizing and percentage parameters.
// Existing blocks keep their generated price levels; only newly inserted
// edge blocks pick up the new values.
func (s *LadderService) UpdateParameters(ctx context.Context, lad domain.Ladder) (domain.Ladder, error) {
	if err := lad.Validate(); err != nil {
		return domain.Ladder{}, err
	}

	existing, err := s.ladders.Get(ctx, lad.UserID, lad.Symbol)
	if err != nil {
		return domain.Ladder{}, fmt.Errorf("ladder_service: load ladder: %w", err)
	}

	existing.SharesPerBlock = lad.SharesPerBlock
	existing.MaxShares = lad.MaxShares
	existing.BuyPct = lad.BuyPct
	existing.SellPct = lad.SellPct
	existing.StopLossPct = lad.StopLossPct
	existing.UpdatedAt = time.Now().UTC()

	if err := s.ladders.Update(ctx, existing); err != nil {
		return domain.Ladder{}, fmt.Errorf("ladder_service: update ladder: %w", err)
	}
	return existing, nil
}

// Get returns the ladder for (user, symbol).
func (s *LadderService) Get(ctx context.Context, userID, symbol string) (domain.Ladder, error) {
	return s.ladders.Get(ctx, userID, symbol)
}

// ListBlocks returns the ladder's blocks ordered by buy price.
func (s *LadderService) ListBlocks(ctx context.Context, userID, symbol string) ([]domain.Block, error) {
	return s.blocks.ListBySymbol(ctx, userID, symbol)
}

// Delete tears down a ladder and its blocks. Refused while any block still
// carries live-order state; run a close-out first.
func (s *LadderService) Delete(ctx context.Context, userID, symbol string) error {
	blocks, err := s.blocks.ListBySymbol(ctx, userID, symbol)
	if err != nil {
		return fmt.Errorf("ladder_service: list blocks: %w", err)
	}
	for _, b := range blocks {
		if !b.Idle() {
			return domain.ErrLadderActive
		}
	}

	for _, b := range blocks {
		if err := s.blocks.Delete(ctx, b.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("ladder_service: delete block %s: %w", b.ID, err)
		}
	}
	if err := s.ladders.Delete(ctx, userID, symbol); err != nil {
		return fmt.Errorf("ladder_service: delete ladder: %w", err)
	}

	s.logger.InfoContext(ctx, "ladder deleted",
		slog.String("user", userID),
		slog.String("symbol", symbol),
	)
	return nil
}
