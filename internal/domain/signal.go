package domain

import "time"

// Signal bus channel names. These are internal to the engine; no external
// wire compatibility is required.
const (
	ChannelOrderCreation = "signals:order-creation"
	ChannelRangeUpdate   = "signals:range-update"
	ChannelFills         = "signals:fills"
	ChannelClosedBlocks  = "signals:closed-blocks"
)

// StreamFills is the durable stream every fill event is appended to, kept
// alongside the ephemeral ChannelFills pub/sub delivery for replay and audit.
const StreamFills = "streams:fills"

// OrderCreationSignal asks the orchestrator to evaluate a (user, symbol).
type OrderCreationSignal struct {
	UserID string `json:"user_id"`
	Symbol string `json:"symbol"`
}

// RangeUpdateSignal asks range upkeep to realign a (user, symbol).
type RangeUpdateSignal struct {
	UserID string `json:"user_id"`
	Symbol string `json:"symbol"`
}

// FillEvent is a broker fill/cancel notification routed to the reconciler.
// Delivery is at-least-once; the reconciler must tolerate duplicates.
type FillEvent struct {
	UserID        string         `json:"user_id"`
	Symbol        string         `json:"symbol"`
	OrderID       string         `json:"order_id"`
	Side          OrderSide      `json:"side"`
	Event         TradeEventType `json:"event"`
	ExecutedPrice float64        `json:"executed_price"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ClosedBlockRecord carries the full snapshot of an archived round trip,
// published on ChannelClosedBlocks for downstream consumers.
type ClosedBlockRecord struct {
	Closed ClosedBlock `json:"closed"`
	Block  Block       `json:"block"` // state of the block at close time
}

// StreamMessage is a single durable message read from a signal stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}
