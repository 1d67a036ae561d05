package domain

import (
	"context"
	"time"
)

// OrderSide is the direction of a single order leg.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// TradeEventType is the lifecycle event reported by the broker's live
// trade-update stream.
type TradeEventType string

const (
	TradeEventNew         TradeEventType = "new"
	TradeEventFill        TradeEventType = "fill"
	TradeEventPartialFill TradeEventType = "partial_fill"
	TradeEventRejected    TradeEventType = "rejected"
	TradeEventCanceled    TradeEventType = "canceled"
	TradeEventDoneForDay  TradeEventType = "done_for_day"
)

// TradeUpdate is one event from the broker's live stream.
type TradeUpdate struct {
	OrderID   string
	Symbol    string
	Side      OrderSide
	Event     TradeEventType
	Price     float64
	Qty       float64
	Timestamp time.Time
}

// BracketOrderRequest places an entry order with attached take-profit and
// stop-loss child orders.
type BracketOrderRequest struct {
	UserID     string
	Symbol     string
	Side       OrderSide
	Qty        float64
	Entry      float64 // limit price of the entry leg
	TakeProfit float64
	StopLoss   float64
}

// StopLimitBracketOrderRequest is a bracket whose entry leg only activates
// once the stop trigger price trades.
type StopLimitBracketOrderRequest struct {
	BracketOrderRequest
	StopTrigger float64
}

// OCORequest places two linked exit orders where filling one cancels the
// other. Used as the closing leg for day-horizon accounts.
type OCORequest struct {
	UserID     string
	Symbol     string
	Side       OrderSide
	Qty        float64
	TakeProfit float64
	StopLoss   float64
}

// TrailingStopRequest places a trailing-stop closing order.
type TrailingStopRequest struct {
	UserID    string
	Symbol    string
	Side      OrderSide
	Qty       float64
	TrailPct  float64
	HighWater float64
}

// BracketIDs carries the external identifiers returned for a bracket or OCO
// placement. For an OCO, ParentID equals TakeProfitID.
type BracketIDs struct {
	ParentID     string
	TakeProfitID string
	StopLossID   string
}

// Position is an open brokerage position.
type Position struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
}

// OpenOrder is an order resting at the broker.
type OpenOrder struct {
	ID     string
	Symbol string
	Side   OrderSide
	Qty    float64
}

// FillResult reports the outcome of liquidating a position.
type FillResult struct {
	OrderID   string
	Symbol    string
	Qty       float64
	Price     float64
	Profit    float64 // realized P&L of the liquidation
	Timestamp time.Time
}

// Broker exposes the brokerage's logical operations. Connection and
// streaming mechanics live behind this interface; the engine only sees
// prices, positions, orders, and the trade-update stream.
type Broker interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetPreviousClose(ctx context.Context, symbol string) (float64, error)
	GetOpenPositions(ctx context.Context, userID string) ([]Position, error)
	GetOpenOrders(ctx context.Context, userID string) ([]OpenOrder, error)

	PlaceBracketOrder(ctx context.Context, req BracketOrderRequest) (BracketIDs, error)
	PlaceStopLimitBracketOrder(ctx context.Context, req StopLimitBracketOrderRequest) (BracketIDs, error)
	PlaceOneCancelsOtherOrder(ctx context.Context, req OCORequest) (BracketIDs, error)
	PlaceTrailingStopOrder(ctx context.Context, req TrailingStopRequest) (string, error)

	CancelOrder(ctx context.Context, orderID string) error
	ClosePosition(ctx context.Context, symbol string) (FillResult, error)
}
