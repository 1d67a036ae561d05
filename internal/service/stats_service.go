package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"blocktrader/internal/domain"
)

// SymbolStats is the realized-profit summary for one (user, symbol).
type SymbolStats struct {
	UserID          string  `json:"user_id"`
	Symbol          string  `json:"symbol"`
	OpenBlocks      int     `json:"open_blocks"`
	ClosedBlocks    int     `json:"closed_blocks"`
	ClosedProfit    float64 `json:"closed_profit"`
	CondensedProfit float64 `json:"condensed_profit"`
	TotalProfit     float64 `json:"total_profit"`
}

// StatsService aggregates realized profit across the live archive and the
// condensed history.
type StatsService struct {
	blocks    domain.BlockStore
	closed    domain.ClosedBlockStore
	condensed domain.CondensedBlockStore
	logger    *slog.Logger
}

// NewStatsService creates a StatsService.
func NewStatsService(
	blocks domain.BlockStore,
	closed domain.ClosedBlockStore,
	condensed domain.CondensedBlockStore,
	logger *slog.Logger,
) *StatsService {
	return &StatsService{
		blocks:    blocks,
		closed:    closed,
		condensed: condensed,
		logger:    logger.With(slog.String("component", "stats_service")),
	}
}

// SymbolStats returns the profit summary for (user, symbol). A symbol with
// no history returns zeroed stats, not an error.
func (s *StatsService) SymbolStats(ctx context.Context, userID, symbol string) (SymbolStats, error) {
	stats := SymbolStats{UserID: userID, Symbol: symbol}

	blocks, err := s.blocks.ListBySymbol(ctx, userID, symbol)
	if err != nil {
		return SymbolStats{}, fmt.Errorf("stats_service: list blocks: %w", err)
	}
	for _, b := range blocks {
		if !b.Idle() {
			stats.OpenBlocks++
		}
	}

	closed, err := s.closed.ListBySymbol(ctx, userID, symbol)
	if err != nil {
		return SymbolStats{}, fmt.Errorf("stats_service: list closed blocks: %w", err)
	}
	stats.ClosedBlocks = len(closed)
	for _, cb := range closed {
		stats.ClosedProfit += cb.Profit
	}

	condensed, err := s.condensed.Get(ctx, userID, symbol)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return SymbolStats{}, fmt.Errorf("stats_service: get condensed block: %w", err)
	}
	stats.CondensedProfit = condensed.Profit

	stats.TotalProfit = stats.ClosedProfit + stats.CondensedProfit
	return stats, nil
}
