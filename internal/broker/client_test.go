package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blocktrader/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL: srv.URL,
		Default: Credentials{KeyID: "default-key", Secret: "default-secret"},
		Accounts: map[string]Credentials{
			"u1": {KeyID: "u1-key", Secret: "u1-secret"},
		},
	})
}

func TestClient_GetCurrentPrice(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quotes/ACME/latest", r.URL.Path)
		assert.Equal(t, "default-key", r.Header.Get("X-API-Key-ID"))
		_ = json.NewEncoder(w).Encode(map[string]any{"symbol": "ACME", "price": 101.25})
	})

	price, err := c.GetCurrentPrice(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, 101.25, price)
}

func TestClient_GetCurrentPrice_EmptyQuoteFails(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"symbol": "ACME"})
	})

	_, err := c.GetCurrentPrice(context.Background(), "ACME")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no quote")
}

func TestClient_PlaceBracketOrder(t *testing.T) {
	var got orderRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		// Per-user credentials selected over the default pair.
		assert.Equal(t, "u1-key", r.Header.Get("X-API-Key-ID"))
		assert.Equal(t, "u1-secret", r.Header.Get("X-API-Secret"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "parent-1",
			"legs": []map[string]any{
				{"id": "sl-1", "leg_type": "stop_loss"},
				{"id": "tp-1", "leg_type": "take_profit"},
			},
		})
	})

	ids, err := c.PlaceBracketOrder(context.Background(), domain.BracketOrderRequest{
		UserID:     "u1",
		Symbol:     "ACME",
		Side:       domain.OrderSideBuy,
		Qty:        10,
		Entry:      100,
		TakeProfit: 102,
		StopLoss:   97,
	})
	require.NoError(t, err)

	assert.Equal(t, "parent-1", ids.ParentID)
	assert.Equal(t, "tp-1", ids.TakeProfitID)
	assert.Equal(t, "sl-1", ids.StopLossID)

	assert.Equal(t, "bracket", got.Class)
	assert.Equal(t, "limit", got.Type)
	assert.Equal(t, "gtc", got.TimeInForce)
	assert.Equal(t, "100.00", got.LimitPrice)
	require.NotNil(t, got.TakeProfit)
	assert.Equal(t, "102.00", got.TakeProfit.LimitPrice)
	require.NotNil(t, got.StopLoss)
	assert.Equal(t, "97.00", got.StopLoss.StopPrice)
}

func TestClient_PlaceBracketOrder_PositionalLegs(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "parent-1",
			"legs": []map[string]any{
				{"id": "tp-1"},
				{"id": "sl-1"},
			},
		})
	})

	ids, err := c.PlaceBracketOrder(context.Background(), domain.BracketOrderRequest{
		UserID: "u1", Symbol: "ACME", Side: domain.OrderSideBuy,
		Qty: 10, Entry: 100, TakeProfit: 102, StopLoss: 97,
	})
	require.NoError(t, err)
	assert.Equal(t, "tp-1", ids.TakeProfitID)
	assert.Equal(t, "sl-1", ids.StopLossID)
}

func TestClient_PlaceOneCancelsOtherOrder_ParentIsTakeProfit(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "oco", req.Class)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "oco-group",
			"legs": []map[string]any{
				{"id": "tp-1", "leg_type": "take_profit"},
				{"id": "sl-1", "leg_type": "stop_loss"},
			},
		})
	})

	ids, err := c.PlaceOneCancelsOtherOrder(context.Background(), domain.OCORequest{
		UserID: "u1", Symbol: "ACME", Side: domain.OrderSideSell,
		Qty: 10, TakeProfit: 102, StopLoss: 97,
	})
	require.NoError(t, err)
	assert.Equal(t, "tp-1", ids.ParentID)
}

func TestClient_PlaceTrailingStopOrder(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "trailing_stop", req.Type)
		assert.Equal(t, "3.00", req.TrailPercent)

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "trail-1"})
	})

	id, err := c.PlaceTrailingStopOrder(context.Background(), domain.TrailingStopRequest{
		UserID: "u1", Symbol: "ACME", Side: domain.OrderSideSell, Qty: 10, TrailPct: 3.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "trail-1", id)
}

func TestClient_CancelOrder(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/orders/ord-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.CancelOrder(context.Background(), "ord-1"))
}

func TestClient_ClosePosition(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/positions/ACME", r.URL.Path)
		// Numeric fields come back as strings on this API.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"order_id":     "liq-1",
			"symbol":       "ACME",
			"qty":          "10",
			"fill_price":   "99.5",
			"realized_pnl": "-5",
			"filled_at":    "2026-08-28T15:04:05Z",
		})
	})

	fill, err := c.ClosePosition(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, "liq-1", fill.OrderID)
	assert.Equal(t, 99.5, fill.Price)
	assert.Equal(t, -5.0, fill.Profit)
	assert.Equal(t, 2026, fill.Timestamp.Year())
}

func TestClient_ErrorStatusMapping(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "insufficient buying power"})
	})

	_, err := c.PlaceBracketOrder(context.Background(), domain.BracketOrderRequest{
		UserID: "u1", Symbol: "ACME", Side: domain.OrderSideBuy,
		Qty: 10, Entry: 100, TakeProfit: 102, StopLoss: 97,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected: insufficient buying power")
}
