package broker

import (
	"time"

	"blocktrader/internal/domain"
)

// Credentials authenticates one user's brokerage account.
type Credentials struct {
	KeyID  string
	Secret string
}

// Wire types for the brokerage REST API.

type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	AsOf   string  `json:"as_of"`
}

type barResponse struct {
	Symbol string  `json:"symbol"`
	Close  float64 `json:"close"`
}

type positionResponse struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty,string"`
	AvgEntryPrice float64 `json:"avg_entry_price,string"`
}

type orderResponse struct {
	ID      string          `json:"id"`
	Symbol  string          `json:"symbol"`
	Side    string          `json:"side"`
	Qty     float64         `json:"qty,string"`
	Status  string          `json:"status"`
	LegType string          `json:"leg_type,omitempty"`
	Legs    []orderResponse `json:"legs,omitempty"`
}

type closeResponse struct {
	OrderID     string  `json:"order_id"`
	Symbol      string  `json:"symbol"`
	Qty         float64 `json:"qty,string"`
	FillPrice   float64 `json:"fill_price,string"`
	RealizedPnL float64 `json:"realized_pnl,string"`
	FilledAt    string  `json:"filled_at"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// orderRequest is the request body for POST /orders. Depending on Class it
// expresses a plain limit, a bracket, an OCO pair, or a trailing stop.
type orderRequest struct {
	Symbol       string   `json:"symbol"`
	Side         string   `json:"side"`
	Qty          string   `json:"qty"`
	Type         string   `json:"type"`
	TimeInForce  string   `json:"time_in_force"`
	Class        string   `json:"order_class,omitempty"`
	LimitPrice   string   `json:"limit_price,omitempty"`
	StopPrice    string   `json:"stop_price,omitempty"`
	TrailPercent string   `json:"trail_percent,omitempty"`
	TakeProfit   *exitLeg `json:"take_profit,omitempty"`
	StopLoss     *exitLeg `json:"stop_loss,omitempty"`
}

type exitLeg struct {
	LimitPrice string `json:"limit_price,omitempty"`
	StopPrice  string `json:"stop_price,omitempty"`
}

// tradeUpdateMessage is one event from the trade-update stream.
type tradeUpdateMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		Event string `json:"event"`
		Order struct {
			ID     string  `json:"id"`
			Symbol string  `json:"symbol"`
			Side   string  `json:"side"`
			Qty    float64 `json:"qty,string"`
		} `json:"order"`
		Price     float64 `json:"price,string"`
		Qty       float64 `json:"qty,string"`
		Timestamp string  `json:"timestamp"`
	} `json:"data"`
}

func (m tradeUpdateMessage) toDomain() domain.TradeUpdate {
	ts, err := time.Parse(time.RFC3339Nano, m.Data.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	return domain.TradeUpdate{
		OrderID:   m.Data.Order.ID,
		Symbol:    m.Data.Order.Symbol,
		Side:      domain.OrderSide(m.Data.Order.Side),
		Event:     domain.TradeEventType(m.Data.Event),
		Price:     m.Data.Price,
		Qty:       m.Data.Qty,
		Timestamp: ts,
	}
}
