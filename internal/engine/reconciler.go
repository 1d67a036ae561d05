package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"blocktrader/internal/domain"
)

// Reconciler consumes fill/cancel notifications and walks the matching block
// through its state machine:
//
//	idle -> opening placed -> opening filled -> idle
//
// The opening leg is the buy for long accounts and the sell for short; the
// closing leg is the opposite side or the stop-loss. Completing a round trip
// archives a ClosedBlock and resets the block so it re-enters the pool.
// DayCloseStyle selects the closing-order type day-horizon accounts place
// once the opening leg fills.
type DayCloseStyle string

const (
	DayCloseOCO          DayCloseStyle = "oco"
	DayCloseTrailingStop DayCloseStyle = "trailing_stop"
)

type Reconciler struct {
	blocks   domain.BlockStore
	closed   domain.ClosedBlockStore
	accounts domain.AccountStore
	broker   domain.Broker
	bus      domain.SignalBus
	retry    RetryPolicy
	dayClose DayCloseStyle
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	blocks domain.BlockStore,
	closed domain.ClosedBlockStore,
	accounts domain.AccountStore,
	broker domain.Broker,
	bus domain.SignalBus,
	retry RetryPolicy,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		blocks:   blocks,
		closed:   closed,
		accounts: accounts,
		broker:   broker,
		bus:      bus,
		retry:    retry,
		dayClose: DayCloseOCO,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// WithDayCloseStyle overrides the closing-order type for day accounts.
// Must be called before the reconciler starts handling events.
func (r *Reconciler) WithDayCloseStyle(style DayCloseStyle) *Reconciler {
	if style == DayCloseOCO || style == DayCloseTrailingStop {
		r.dayClose = style
	}
	return r
}

// HandleFill processes one fill event. Events whose order ID matches no
// block are logged and dropped; there is no dead-letter path, and the error
// return is reserved for store failures the caller may retry.
func (r *Reconciler) HandleFill(ctx context.Context, ev domain.FillEvent) error {
	log := r.logger.With(
		slog.String("user", ev.UserID),
		slog.String("symbol", ev.Symbol),
		slog.String("order_id", ev.OrderID),
		slog.String("event", string(ev.Event)),
	)

	switch ev.Event {
	case domain.TradeEventFill:
	case domain.TradeEventCanceled, domain.TradeEventRejected:
		return r.handleTerminated(ctx, ev, log)
	default:
		// New, partial fills, and done-for-day carry no state transition.
		log.DebugContext(ctx, "ignoring non-terminal trade event")
		return nil
	}

	b, err := r.blocks.FindByOrderID(ctx, ev.UserID, ev.Symbol, ev.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.WarnContext(ctx, "no block matches filled order, dropping event")
			return nil
		}
		return fmt.Errorf("reconciler: find block: %w", err)
	}

	acct, err := r.accounts.Get(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("reconciler: load account %s: %w", ev.UserID, err)
	}

	openingID := b.BuyOrderID
	if acct.Direction == domain.DirectionShort {
		openingID = b.SellOrderID
	}

	if ev.OrderID == openingID {
		return r.handleOpeningFill(ctx, acct, b, ev, log)
	}

	openingFilled := b.BuyOrderFilled
	if acct.Direction == domain.DirectionShort {
		openingFilled = b.SellOrderFilled
	}
	if !openingFilled {
		log.WarnContext(ctx, "closing fill arrived before opening fill, dropping event",
			slog.Float64("block_buy", b.BuyPrice))
		return nil
	}
	return r.handleClosingFill(ctx, acct, b, ev, log)
}

// handleOpeningFill records the entry fill and arms the closing leg. For
// swing accounts the bracket's take-profit/stop-loss children are already
// live at the broker; day accounts get a fresh OCO sized to the fill. A
// failed OCO placement is logged but never blocks the fill-price update.
func (r *Reconciler) handleOpeningFill(ctx context.Context, acct domain.Account, b domain.Block, ev domain.FillEvent, log *slog.Logger) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if acct.Direction == domain.DirectionShort {
		b.SellOrderFilled = true
		b.SellFilledPrice = ev.ExecutedPrice
		b.SellFilledAt = &ts
		b.BuyOrderCreated = true
	} else {
		b.BuyOrderFilled = true
		b.BuyFilledPrice = ev.ExecutedPrice
		b.BuyFilledAt = &ts
		b.SellOrderCreated = true
	}

	if acct.Horizon == domain.HorizonDay {
		r.armDayClose(ctx, acct, &b, log)
	}

	b.UpdatedAt = time.Now().UTC()
	if err := r.blocks.Update(ctx, b); err != nil {
		return fmt.Errorf("reconciler: persist opening fill: %w", err)
	}

	log.InfoContext(ctx, "opening leg filled",
		slog.String("block_id", b.ID),
		slog.Float64("price", ev.ExecutedPrice),
	)
	return nil
}

// armDayClose replaces the bracket children with a one-cancels-other exit
// for intraday accounts. The OCO identifiers overwrite the closing-leg IDs
// on the block so the closing fill still matches.
func (r *Reconciler) armDayClose(ctx context.Context, acct domain.Account, b *domain.Block, log *slog.Logger) {
	opening := domain.OrderSideBuy
	takeProfit, stopLoss := b.SellPrice, b.StopLossPrice
	if acct.Direction == domain.DirectionShort {
		opening = domain.OrderSideSell
		takeProfit = b.BuyPrice
	}
	side := opening.Opposite()

	if r.dayClose == DayCloseTrailingStop {
		r.armTrailingStop(ctx, acct, b, side, log)
		return
	}

	var ids domain.BracketIDs
	err := r.retry.Do(ctx, "broker: oco order", func(ctx context.Context) error {
		var e error
		ids, e = r.broker.PlaceOneCancelsOtherOrder(ctx, domain.OCORequest{
			UserID:     b.UserID,
			Symbol:     b.Symbol,
			Side:       side,
			Qty:        b.Shares,
			TakeProfit: takeProfit,
			StopLoss:   stopLoss,
		})
		return e
	})
	if err != nil {
		log.WarnContext(ctx, "day-close oco placement failed, relying on bracket legs",
			slog.String("block_id", b.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if acct.Direction == domain.DirectionShort {
		b.BuyOrderID = ids.TakeProfitID
	} else {
		b.SellOrderID = ids.TakeProfitID
	}
	b.StopLossOrderID = ids.StopLossID
}

// armTrailingStop places a trailing-stop closing order, trailing by the
// block's stop-loss distance from its entry price. The bracket's take-profit
// child stays live; only the stop leg is replaced.
func (r *Reconciler) armTrailingStop(ctx context.Context, acct domain.Account, b *domain.Block, side domain.OrderSide, log *slog.Logger) {
	var trailPct, highWater float64
	if acct.Direction == domain.DirectionShort {
		highWater = b.SellFilledPrice
		if b.SellPrice > 0 {
			trailPct = (b.StopLossPrice - b.SellPrice) / b.SellPrice * 100
		}
	} else {
		highWater = b.BuyFilledPrice
		if b.BuyPrice > 0 {
			trailPct = (b.BuyPrice - b.StopLossPrice) / b.BuyPrice * 100
		}
	}

	var orderID string
	err := r.retry.Do(ctx, "broker: trailing stop order", func(ctx context.Context) error {
		var e error
		orderID, e = r.broker.PlaceTrailingStopOrder(ctx, domain.TrailingStopRequest{
			UserID:    b.UserID,
			Symbol:    b.Symbol,
			Side:      side,
			Qty:       b.Shares,
			TrailPct:  trailPct,
			HighWater: highWater,
		})
		return e
	})
	if err != nil {
		log.WarnContext(ctx, "trailing stop placement failed, relying on bracket legs",
			slog.String("block_id", b.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	b.StopLossOrderID = orderID
}

// handleClosingFill completes the round trip: compute profit, archive the
// closed block, publish the snapshot, and reset the block to idle.
func (r *Reconciler) handleClosingFill(ctx context.Context, acct domain.Account, b domain.Block, ev domain.FillEvent, log *slog.Logger) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if acct.Direction == domain.DirectionShort {
		b.BuyOrderFilled = true
		b.BuyFilledPrice = ev.ExecutedPrice
		b.BuyFilledAt = &ts
	} else {
		b.SellOrderFilled = true
		b.SellFilledPrice = ev.ExecutedPrice
		b.SellFilledAt = &ts
	}

	profit := (b.SellFilledPrice - b.BuyFilledPrice) * b.Shares

	cb := domain.ClosedBlock{
		ID:        uuid.New().String(),
		UserID:    b.UserID,
		Symbol:    b.Symbol,
		Shares:    b.Shares,
		BuyPrice:  b.BuyFilledPrice,
		SellPrice: b.SellFilledPrice,
		Profit:    profit,
		CreatedAt: time.Now().UTC(),
	}
	if b.BuyFilledAt != nil {
		cb.BuyFilledAt = *b.BuyFilledAt
	}
	if b.SellFilledAt != nil {
		cb.SellFilledAt = *b.SellFilledAt
	}

	if err := r.closed.Create(ctx, cb); err != nil {
		return fmt.Errorf("reconciler: archive closed block: %w", err)
	}

	r.publishClosed(ctx, cb, b, log)

	b.Reset()
	b.UpdatedAt = time.Now().UTC()
	if err := r.blocks.Update(ctx, b); err != nil {
		return fmt.Errorf("reconciler: reset block: %w", err)
	}

	log.InfoContext(ctx, "round trip closed",
		slog.String("block_id", b.ID),
		slog.Float64("profit", profit),
	)
	return nil
}

func (r *Reconciler) publishClosed(ctx context.Context, cb domain.ClosedBlock, b domain.Block, log *slog.Logger) {
	payload, err := json.Marshal(domain.ClosedBlockRecord{Closed: cb, Block: b})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, domain.ChannelClosedBlocks, payload); err != nil {
		log.WarnContext(ctx, "publish closed-block record failed",
			slog.String("error", err.Error()),
		)
	}
}

// handleTerminated clears the opening-leg state when the broker reports the
// resting entry order canceled or rejected, returning the block to the pool.
// Cancellations of closing legs (e.g. during close-out) leave the block to
// the closer's reset.
func (r *Reconciler) handleTerminated(ctx context.Context, ev domain.FillEvent, log *slog.Logger) error {
	b, err := r.blocks.FindByOrderID(ctx, ev.UserID, ev.Symbol, ev.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.DebugContext(ctx, "terminated order matches no block")
			return nil
		}
		return fmt.Errorf("reconciler: find block: %w", err)
	}

	acct, err := r.accounts.Get(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("reconciler: load account %s: %w", ev.UserID, err)
	}

	opening := ev.OrderID == b.BuyOrderID
	filled := b.BuyOrderFilled
	if acct.Direction == domain.DirectionShort {
		opening = ev.OrderID == b.SellOrderID
		filled = b.SellOrderFilled
	}
	if !opening || filled {
		return nil
	}

	b.Reset()
	b.UpdatedAt = time.Now().UTC()
	if err := r.blocks.Update(ctx, b); err != nil {
		return fmt.Errorf("reconciler: reset terminated block: %w", err)
	}

	log.InfoContext(ctx, "opening order terminated, block returned to pool",
		slog.String("block_id", b.ID),
	)
	return nil
}
