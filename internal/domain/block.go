package domain

import "time"

// Block is one price-level slot in a ladder. Its live-order state is the
// engine's sole coordination point: the orchestrator sets created flags when
// it places orders, the reconciler sets filled state and eventually resets
// the block back to idle.
//
// Invariants: BuyPrice < SellPrice; a leg with its created flag set carries a
// non-empty external order ID for that leg; an idle block has every flag
// false, every ID empty, and zeroed fill data.
type Block struct {
	ID     string  `json:"id"`
	UserID string  `json:"user_id"`
	Symbol string  `json:"symbol"`
	Shares float64 `json:"shares"`

	BuyPrice      float64 `json:"buy_price"`
	SellPrice     float64 `json:"sell_price"`
	StopLossPrice float64 `json:"stop_loss_price"`

	BuyOrderID      string `json:"buy_order_id,omitempty"`
	SellOrderID     string `json:"sell_order_id,omitempty"`
	StopLossOrderID string `json:"stop_loss_order_id,omitempty"`

	BuyOrderCreated  bool `json:"buy_order_created"`
	BuyOrderFilled   bool `json:"buy_order_filled"`
	SellOrderCreated bool `json:"sell_order_created"`
	SellOrderFilled  bool `json:"sell_order_filled"`

	BuyFilledPrice  float64    `json:"buy_filled_price,omitempty"`
	SellFilledPrice float64    `json:"sell_filled_price,omitempty"`
	BuyFilledAt     *time.Time `json:"buy_filled_at,omitempty"`
	SellFilledAt    *time.Time `json:"sell_filled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Idle reports whether the block carries no live-order state at all and is
// eligible for selection by the orchestrator or deletion by range upkeep.
func (b Block) Idle() bool {
	return !b.BuyOrderCreated && !b.BuyOrderFilled &&
		!b.SellOrderCreated && !b.SellOrderFilled
}

// HasLiveOrder reports whether either leg has an order outstanding at the
// broker. Range upkeep never deletes such blocks.
func (b Block) HasLiveOrder() bool {
	return b.BuyOrderCreated || b.SellOrderCreated
}

// OpeningPrice returns the price of the leg that opens a round trip for the
// given direction: the buy price for long accounts, the sell price for short.
func (b Block) OpeningPrice(dir Direction) float64 {
	if dir == DirectionShort {
		return b.SellPrice
	}
	return b.BuyPrice
}

// OpeningCreated reports whether the opening leg's order has been placed.
func (b Block) OpeningCreated(dir Direction) bool {
	if dir == DirectionShort {
		return b.SellOrderCreated
	}
	return b.BuyOrderCreated
}

// Reset clears all live-order state, returning the block to idle so it
// re-enters the pool for future selection. The price levels themselves are
// untouched.
func (b *Block) Reset() {
	b.BuyOrderID = ""
	b.SellOrderID = ""
	b.StopLossOrderID = ""
	b.BuyOrderCreated = false
	b.BuyOrderFilled = false
	b.SellOrderCreated = false
	b.SellOrderFilled = false
	b.BuyFilledPrice = 0
	b.SellFilledPrice = 0
	b.BuyFilledAt = nil
	b.SellFilledAt = nil
}

// ClosedBlock is a realized round trip archived when the closing leg fills.
type ClosedBlock struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Symbol       string    `json:"symbol"`
	Shares       float64   `json:"shares"`
	BuyPrice     float64   `json:"buy_price"`  // buy fill price
	SellPrice    float64   `json:"sell_price"` // sell (or stop-loss) fill price
	Profit       float64   `json:"profit"`     // (SellPrice - BuyPrice) * Shares
	BuyFilledAt  time.Time `json:"buy_filled_at"`
	SellFilledAt time.Time `json:"sell_filled_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// CondensedBlock is the rolling per-symbol profit total accumulated from
// superseded ClosedBlocks during close-out condensation.
type CondensedBlock struct {
	UserID      string    `json:"user_id"`
	Symbol      string    `json:"symbol"`
	Profit      float64   `json:"profit"`
	LastUpdated time.Time `json:"last_updated"`
}
