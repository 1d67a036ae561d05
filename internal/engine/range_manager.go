package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"blocktrader/internal/domain"
	"blocktrader/internal/ladder"
)

// RangeManager keeps a symbol's block set aligned with the current price as
// it drifts. Only the newly exposed edges of the recomputed ladder are
// inserted, and blocks with a live order are never touched even when they
// fall out of range.
type RangeManager struct {
	ladders  domain.LadderStore
	blocks   domain.BlockStore
	accounts domain.AccountStore
	prices   *PriceSource
	logger   *slog.Logger
}

// NewRangeManager creates a RangeManager.
func NewRangeManager(
	ladders domain.LadderStore,
	blocks domain.BlockStore,
	accounts domain.AccountStore,
	prices *PriceSource,
	logger *slog.Logger,
) *RangeManager {
	return &RangeManager{
		ladders:  ladders,
		blocks:   blocks,
		accounts: accounts,
		prices:   prices,
		logger:   logger.With(slog.String("component", "range_manager")),
	}
}

// Realign recomputes the ladder for (user, symbol) at the live price and
// applies the delta to the block set. A price-lookup failure aborts the
// whole update; nothing is partially applied, and the caller retries on the
// next scheduled cycle.
func (m *RangeManager) Realign(ctx context.Context, userID, symbol string) error {
	lad, err := m.ladders.Get(ctx, userID, symbol)
	if err != nil {
		return fmt.Errorf("range: load ladder %s/%s: %w", userID, symbol, err)
	}
	if !lad.BlocksCreated {
		return nil
	}

	acct, err := m.accounts.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("range: load account %s: %w", userID, err)
	}

	price, err := m.prices.Current(ctx, symbol)
	if err != nil {
		return fmt.Errorf("range: %w", err)
	}

	levels, err := ladder.Generate(price, lad.BuyPct, lad.SellPct, lad.StopLossPct, acct.Direction)
	if err != nil {
		return fmt.Errorf("range: generate levels: %w", err)
	}
	newMin, newMax := ladder.Bounds(levels)

	existing, err := m.blocks.ListBySymbol(ctx, userID, symbol)
	if err != nil {
		return fmt.Errorf("range: list blocks: %w", err)
	}

	if len(existing) == 0 {
		// Nothing to diff against; materialize the whole set.
		return m.insertLevels(ctx, lad, levels)
	}

	oldMin, oldMax := existing[0].BuyPrice, existing[0].BuyPrice
	for _, b := range existing[1:] {
		if b.BuyPrice < oldMin {
			oldMin = b.BuyPrice
		}
		if b.BuyPrice > oldMax {
			oldMax = b.BuyPrice
		}
	}

	removed := 0
	for _, b := range existing {
		if b.BuyPrice >= newMin && b.BuyPrice <= newMax {
			continue
		}
		if b.HasLiveOrder() {
			continue
		}
		if err := m.blocks.Delete(ctx, b.ID); err != nil {
			m.logger.WarnContext(ctx, "range: delete out-of-range block failed",
				slog.String("block_id", b.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	// Only the newly exposed edges are added; interior levels already have
	// blocks (or had them deliberately removed while an order was live).
	var edge []ladder.Level
	for _, lv := range levels {
		if lv.Buy < oldMin || lv.Buy > oldMax {
			edge = append(edge, lv)
		}
	}
	if len(edge) > 0 {
		if err := m.insertLevels(ctx, lad, edge); err != nil {
			return err
		}
	}

	if removed > 0 || len(edge) > 0 {
		m.logger.InfoContext(ctx, "range realigned",
			slog.String("user", userID),
			slog.String("symbol", symbol),
			slog.Float64("price", price),
			slog.Int("removed", removed),
			slog.Int("added", len(edge)),
		)
	}
	return nil
}

func (m *RangeManager) insertLevels(ctx context.Context, lad domain.Ladder, levels []ladder.Level) error {
	now := time.Now().UTC()
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
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if err := m.blocks.CreateBatch(ctx, blocks); err != nil {
		return fmt.Errorf("range: insert blocks: %w", err)
	}
	return nil
}
