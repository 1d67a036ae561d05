package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"blocktrader/internal/domain"
)

// SnapshotExporter exports a symbol's closed blocks to cold storage before
// condensation deletes them. Implemented by the S3 archiver; optional.
type SnapshotExporter interface {
	ExportClosedBlocks(ctx context.Context, userID, symbol string, extra []domain.ClosedBlock) (int, error)
}

// Closer is the operator-triggered shutdown workflow for a (user, symbol):
// stop trading, cancel everything, liquidate, condense history, reset blocks.
// Runs for the same key are serialized through the lock manager so two
// operators cannot interleave a close-out.
type Closer struct {
	symbols   domain.SymbolStore
	blocks    domain.BlockStore
	closed    domain.ClosedBlockStore
	condensed domain.CondensedBlockStore
	broker    domain.Broker
	locks     domain.LockManager
	exporter  SnapshotExporter
	retry     RetryPolicy

	cancelTimeout time.Duration
	pollInterval  time.Duration

	logger *slog.Logger
}

// NewCloser creates a Closer. exporter may be nil.
func NewCloser(
	symbols domain.SymbolStore,
	blocks domain.BlockStore,
	closed domain.ClosedBlockStore,
	condensed domain.CondensedBlockStore,
	broker domain.Broker,
	locks domain.LockManager,
	exporter SnapshotExporter,
	retry RetryPolicy,
	cancelTimeout time.Duration,
	logger *slog.Logger,
) *Closer {
	if cancelTimeout <= 0 {
		cancelTimeout = time.Minute
	}
	return &Closer{
		symbols:       symbols,
		blocks:        blocks,
		closed:        closed,
		condensed:     condensed,
		broker:        broker,
		locks:         locks,
		exporter:      exporter,
		retry:         retry,
		cancelTimeout: cancelTimeout,
		pollInterval:  2 * time.Second,
		logger:        logger.With(slog.String("component", "closer")),
	}
}

// CloseOut runs the full close-out workflow for (user, symbol).
func (c *Closer) CloseOut(ctx context.Context, userID, symbol string) error {
	unlock, err := c.locks.Acquire(ctx, "close:"+userID+":"+symbol, 2*time.Minute)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("closer: close-out already running for %s/%s: %w", userID, symbol, err)
		}
		return fmt.Errorf("closer: acquire lock: %w", err)
	}
	defer unlock()

	log := c.logger.With(slog.String("user", userID), slog.String("symbol", symbol))

	if err := c.symbols.SetTrading(ctx, symbol, false); err != nil {
		return fmt.Errorf("closer: disable trading: %w", err)
	}
	log.InfoContext(ctx, "trading disabled")

	if err := c.cancelAllOrders(ctx, userID, symbol, log); err != nil {
		return err
	}

	position, found, err := c.openPosition(ctx, userID, symbol)
	if err != nil {
		return fmt.Errorf("closer: open positions: %w", err)
	}
	if !found {
		// Nothing to liquidate or condense; reset only.
		if err := c.blocks.ResetAll(ctx, userID, symbol); err != nil {
			return fmt.Errorf("closer: reset blocks: %w", err)
		}
		log.InfoContext(ctx, "no open position, blocks reset")
		return nil
	}

	fill, err := c.liquidate(ctx, symbol)
	if err != nil {
		return fmt.Errorf("closer: liquidate: %w", err)
	}
	log.InfoContext(ctx, "position liquidated",
		slog.Float64("qty", position.Qty),
		slog.Float64("price", fill.Price),
		slog.Float64("profit", fill.Profit),
	)

	liquidation := domain.ClosedBlock{
		ID:           uuid.New().String(),
		UserID:       userID,
		Symbol:       symbol,
		Shares:       fill.Qty,
		SellPrice:    fill.Price,
		Profit:       fill.Profit,
		BuyFilledAt:  fill.Timestamp,
		SellFilledAt: fill.Timestamp,
		CreatedAt:    time.Now().UTC(),
	}

	if c.exporter != nil {
		if n, err := c.exporter.ExportClosedBlocks(ctx, userID, symbol, []domain.ClosedBlock{liquidation}); err != nil {
			log.WarnContext(ctx, "closed-block export failed, condensing anyway",
				slog.String("error", err.Error()),
			)
		} else {
			log.InfoContext(ctx, "closed blocks exported", slog.Int("count", n))
		}
	}

	archived, err := c.closed.SumProfit(ctx, userID, symbol)
	if err != nil {
		return fmt.Errorf("closer: sum closed profit: %w", err)
	}
	total := archived + liquidation.Profit

	if err := c.condensed.AddProfit(ctx, userID, symbol, total); err != nil {
		return fmt.Errorf("closer: condense profit: %w", err)
	}
	if err := c.closed.DeleteBySymbol(ctx, userID, symbol); err != nil {
		return fmt.Errorf("closer: delete closed blocks: %w", err)
	}
	if err := c.blocks.ResetAll(ctx, userID, symbol); err != nil {
		return fmt.Errorf("closer: reset blocks: %w", err)
	}

	log.InfoContext(ctx, "close-out complete",
		slog.Float64("condensed_delta", total),
	)
	return nil
}

// cancelAllOrders cancels every open order for the symbol and polls until
// the broker reports none, bounded by cancelTimeout.
func (c *Closer) cancelAllOrders(ctx context.Context, userID, symbol string, log *slog.Logger) error {
	orders, err := c.symbolOrders(ctx, userID, symbol)
	if err != nil {
		return fmt.Errorf("closer: list open orders: %w", err)
	}

	for _, ord := range orders {
		id := ord.ID
		err := c.retry.Do(ctx, "broker: cancel order", func(ctx context.Context) error {
			return c.broker.CancelOrder(ctx, id)
		})
		if err != nil {
			// Keep going: the confirmation poll below is the arbiter.
			log.WarnContext(ctx, "cancel order failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	err = PollUntil(ctx, c.cancelTimeout, c.pollInterval, func(ctx context.Context) (bool, error) {
		remaining, err := c.symbolOrders(ctx, userID, symbol)
		if err != nil {
			return false, err
		}
		return len(remaining) == 0, nil
	})
	if err != nil {
		return fmt.Errorf("closer: %w: %w", domain.ErrOrdersStillOpen, err)
	}

	log.InfoContext(ctx, "all open orders cancelled", slog.Int("cancelled", len(orders)))
	return nil
}

func (c *Closer) symbolOrders(ctx context.Context, userID, symbol string) ([]domain.OpenOrder, error) {
	var all []domain.OpenOrder
	err := c.retry.Do(ctx, "broker: open orders", func(ctx context.Context) error {
		var err error
		all, err = c.broker.GetOpenOrders(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	var out []domain.OpenOrder
	for _, o := range all {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (c *Closer) openPosition(ctx context.Context, userID, symbol string) (domain.Position, bool, error) {
	var positions []domain.Position
	err := c.retry.Do(ctx, "broker: open positions", func(ctx context.Context) error {
		var err error
		positions, err = c.broker.GetOpenPositions(ctx, userID)
		return err
	})
	if err != nil {
		return domain.Position{}, false, err
	}
	for _, p := range positions {
		if p.Symbol == symbol && p.Qty != 0 {
			return p, true, nil
		}
	}
	return domain.Position{}, false, nil
}

func (c *Closer) liquidate(ctx context.Context, symbol string) (domain.FillResult, error) {
	var fill domain.FillResult
	err := c.retry.Do(ctx, "broker: close position", func(ctx context.Context) error {
		var err error
		fill, err = c.broker.ClosePosition(ctx, symbol)
		return err
	})
	return fill, err
}
