package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"blocktrader/internal/domain"
)

const (
	// proximityPct bounds block selection to ±5% of the current price.
	proximityPct = 5.0

	// ordersPerSide caps how many blocks get new orders above and below the
	// current price per invocation.
	ordersPerSide = 2

	// stopOffset is the distance between the stop trigger and the limit
	// price on stop-limit entries.
	stopOffset = 0.05
)

// Orchestrator decides which blocks receive new bracket orders. One instance
// serves both directions; the account's direction selects which leg opens a
// round trip and which order types are used on each side of the price.
type Orchestrator struct {
	ladders  domain.LadderStore
	blocks   domain.BlockStore
	accounts domain.AccountStore
	symbols  domain.SymbolStore
	broker   domain.Broker
	prices   *PriceSource
	retry    RetryPolicy
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	ladders domain.LadderStore,
	blocks domain.BlockStore,
	accounts domain.AccountStore,
	symbols domain.SymbolStore,
	broker domain.Broker,
	prices *PriceSource,
	retry RetryPolicy,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		ladders:  ladders,
		blocks:   blocks,
		accounts: accounts,
		symbols:  symbols,
		broker:   broker,
		prices:   prices,
		retry:    retry,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// PlaceOrders evaluates a (user, symbol) and places up to ordersPerSide
// bracket orders on each side of the current price. Each placement persists
// its block individually; a failed block is logged and skipped without
// aborting the rest.
func (o *Orchestrator) PlaceOrders(ctx context.Context, userID, symbol string) error {
	sym, err := o.symbols.Get(ctx, symbol)
	if err != nil {
		return fmt.Errorf("orchestrator: load symbol %s: %w", symbol, err)
	}
	if !sym.Trading {
		return fmt.Errorf("orchestrator: %s: %w", symbol, domain.ErrTradingDisabled)
	}

	acct, err := o.accounts.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("orchestrator: load account %s: %w", userID, err)
	}

	lad, err := o.ladders.Get(ctx, userID, symbol)
	if err != nil {
		return fmt.Errorf("orchestrator: load ladder %s/%s: %w", userID, symbol, err)
	}

	price, err := o.prices.Current(ctx, symbol)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	openQty, err := o.openQuantity(ctx, userID, symbol)
	if err != nil {
		return fmt.Errorf("orchestrator: open positions: %w", err)
	}
	if openQty >= lad.MaxShares {
		o.logger.DebugContext(ctx, "exposure cap reached",
			slog.String("user", userID),
			slog.String("symbol", symbol),
			slog.Float64("open_qty", openQty),
			slog.Float64("cap", lad.MaxShares),
		)
		return nil
	}

	all, err := o.blocks.ListBySymbol(ctx, userID, symbol)
	if err != nil {
		return fmt.Errorf("orchestrator: list blocks: %w", err)
	}

	above, below := partition(all, price, acct.Direction)

	// The two nearest blocks per side hold the slots even when their orders
	// are already resting, so the total never creeps past ordersPerSide.
	for _, b := range firstN(above, ordersPerSide) {
		if b.OpeningCreated(acct.Direction) {
			continue
		}
		o.placeForBlock(ctx, acct.Direction, b, price, true)
	}
	for _, b := range firstN(below, ordersPerSide) {
		if b.OpeningCreated(acct.Direction) {
			continue
		}
		o.placeForBlock(ctx, acct.Direction, b, price, false)
	}
	return nil
}

func (o *Orchestrator) openQuantity(ctx context.Context, userID, symbol string) (float64, error) {
	var positions []domain.Position
	err := o.retry.Do(ctx, "broker: open positions", func(ctx context.Context) error {
		var err error
		positions, err = o.broker.GetOpenPositions(ctx, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			if p.Qty < 0 {
				return -p.Qty, nil
			}
			return p.Qty, nil
		}
	}
	return 0, nil
}

// partition splits blocks into the within-window sets above and below the
// current price, both ordered nearest first, using the opening-leg price as
// the reference. Blocks with resting orders are kept: selection picks the
// nearest blocks regardless of state, and the caller skips the ones already
// armed.
func partition(all []domain.Block, price float64, dir domain.Direction) (above, below []domain.Block) {
	upper := price * (1 + proximityPct/100)
	lower := price * (1 - proximityPct/100)

	for _, b := range all {
		ref := b.OpeningPrice(dir)
		switch {
		case ref > price && ref <= upper:
			above = append(above, b)
		case ref < price && ref >= lower:
			below = append(below, b)
		}
	}
	sort.Slice(above, func(i, j int) bool {
		return above[i].OpeningPrice(dir) < above[j].OpeningPrice(dir)
	})
	sort.Slice(below, func(i, j int) bool {
		return below[i].OpeningPrice(dir) > below[j].OpeningPrice(dir)
	})
	return above, below
}

func firstN(blocks []domain.Block, n int) []domain.Block {
	if len(blocks) > n {
		return blocks[:n]
	}
	return blocks
}

// placeForBlock submits the opening bracket order for one block and persists
// the returned identifiers. Long accounts open with the buy leg; short
// accounts with the sell leg. Entries on the far side of the price (where a
// plain limit would fill immediately at a better level) use a stop-limit
// trigger instead.
func (o *Orchestrator) placeForBlock(ctx context.Context, dir domain.Direction, b domain.Block, price float64, aboveMarket bool) {
	log := o.logger.With(
		slog.String("block_id", b.ID),
		slog.String("symbol", b.Symbol),
		slog.String("direction", string(dir)),
	)

	var ids domain.BracketIDs
	var err error

	if dir == domain.DirectionShort {
		req := domain.BracketOrderRequest{
			UserID:     b.UserID,
			Symbol:     b.Symbol,
			Side:       domain.OrderSideSell,
			Qty:        b.Shares,
			Entry:      b.SellPrice,
			TakeProfit: b.BuyPrice,
			StopLoss:   b.StopLossPrice,
		}
		if aboveMarket {
			// Price must rise to reach the level; a resting limit fills fine.
			err = o.retry.Do(ctx, "broker: bracket order", func(ctx context.Context) error {
				var e error
				ids, e = o.broker.PlaceBracketOrder(ctx, req)
				return e
			})
		} else {
			// Entry below the market: trigger once price trades down to it.
			err = o.retry.Do(ctx, "broker: stop-limit bracket order", func(ctx context.Context) error {
				var e error
				ids, e = o.broker.PlaceStopLimitBracketOrder(ctx, domain.StopLimitBracketOrderRequest{
					BracketOrderRequest: req,
					StopTrigger:         b.SellPrice + stopOffset,
				})
				return e
			})
		}
	} else {
		req := domain.BracketOrderRequest{
			UserID:     b.UserID,
			Symbol:     b.Symbol,
			Side:       domain.OrderSideBuy,
			Qty:        b.Shares,
			Entry:      b.BuyPrice,
			TakeProfit: b.SellPrice,
			StopLoss:   b.StopLossPrice,
		}
		if aboveMarket {
			err = o.retry.Do(ctx, "broker: stop-limit bracket order", func(ctx context.Context) error {
				var e error
				ids, e = o.broker.PlaceStopLimitBracketOrder(ctx, domain.StopLimitBracketOrderRequest{
					BracketOrderRequest: req,
					StopTrigger:         b.BuyPrice - stopOffset,
				})
				return e
			})
		} else {
			err = o.retry.Do(ctx, "broker: bracket order", func(ctx context.Context) error {
				var e error
				ids, e = o.broker.PlaceBracketOrder(ctx, req)
				return e
			})
		}
	}

	if err != nil {
		log.WarnContext(ctx, "order placement failed, skipping block",
			slog.String("error", err.Error()),
		)
		return
	}

	if dir == domain.DirectionShort {
		b.SellOrderID = ids.ParentID
		b.BuyOrderID = ids.TakeProfitID
		b.SellOrderCreated = true
	} else {
		b.BuyOrderID = ids.ParentID
		b.SellOrderID = ids.TakeProfitID
		b.BuyOrderCreated = true
	}
	b.StopLossOrderID = ids.StopLossID
	b.UpdatedAt = time.Now().UTC()

	if err := o.blocks.Update(ctx, b); err != nil {
		// The order is live at the broker but the block record is stale;
		// the reconciler will log the fill as lost. Surface loudly.
		log.ErrorContext(ctx, "persist block after placement failed",
			slog.String("parent_order_id", ids.ParentID),
			slog.String("error", err.Error()),
		)
		return
	}

	log.InfoContext(ctx, "opening order placed",
		slog.String("parent_order_id", ids.ParentID),
		slog.Float64("entry", b.OpeningPrice(dir)),
		slog.Float64("market_price", price),
		slog.Bool("above_market", aboveMarket),
	)
}
