// Package broker is the REST and streaming client for the brokerage API.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"blocktrader/internal/domain"
)

// Config holds the brokerage endpoints and credentials.
type Config struct {
	BaseURL string // trading API root
	DataURL string // market-data API root; defaults to BaseURL
	WSURL   string // trade-update stream endpoint

	// Default credentials, used for market data and for any user without an
	// entry in Accounts.
	Default Credentials

	// Accounts maps user IDs to their brokerage credentials.
	Accounts map[string]Credentials
}

// Client implements domain.Broker against the brokerage REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.Broker = (*Client)(nil)

// NewClient creates a new brokerage REST client.
func NewClient(cfg Config) *Client {
	if cfg.DataURL == "" {
		cfg.DataURL = cfg.BaseURL
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) creds(userID string) Credentials {
	if cr, ok := c.cfg.Accounts[userID]; ok {
		return cr
	}
	return c.cfg.Default
}

// GetCurrentPrice returns the latest trade price for a symbol.
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	path := fmt.Sprintf("/v1/quotes/%s/latest", url.PathEscape(symbol))

	body, err := c.doRequest(ctx, http.MethodGet, c.cfg.DataURL+path, c.cfg.Default, nil)
	if err != nil {
		return 0, fmt.Errorf("broker: get price %s: %w", symbol, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("broker: decode quote: %w", err)
	}
	if resp.Price <= 0 {
		return 0, fmt.Errorf("broker: no quote for %s", symbol)
	}
	return resp.Price, nil
}

// GetPreviousClose returns the prior session's closing price for a symbol.
func (c *Client) GetPreviousClose(ctx context.Context, symbol string) (float64, error) {
	path := fmt.Sprintf("/v1/bars/%s/previous", url.PathEscape(symbol))

	body, err := c.doRequest(ctx, http.MethodGet, c.cfg.DataURL+path, c.cfg.Default, nil)
	if err != nil {
		return 0, fmt.Errorf("broker: get previous close %s: %w", symbol, err)
	}

	var resp barResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("broker: decode bar: %w", err)
	}
	return resp.Close, nil
}

// GetOpenPositions returns the user's open positions.
func (c *Client) GetOpenPositions(ctx context.Context, userID string) ([]domain.Position, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/positions", c.creds(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("broker: get positions: %w", err)
	}

	var resp []positionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("broker: decode positions: %w", err)
	}

	out := make([]domain.Position, 0, len(resp))
	for _, p := range resp {
		out = append(out, domain.Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty,
			AvgEntryPrice: p.AvgEntryPrice,
		})
	}
	return out, nil
}

// GetOpenOrders returns the user's resting orders.
func (c *Client) GetOpenOrders(ctx context.Context, userID string) ([]domain.OpenOrder, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/orders?status=open", c.creds(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("broker: get open orders: %w", err)
	}

	var resp []orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("broker: decode orders: %w", err)
	}

	out := make([]domain.OpenOrder, 0, len(resp))
	for _, o := range resp {
		out = append(out, domain.OpenOrder{
			ID:     o.ID,
			Symbol: o.Symbol,
			Side:   domain.OrderSide(o.Side),
			Qty:    o.Qty,
		})
	}
	return out, nil
}

// PlaceBracketOrder submits a limit entry with attached take-profit and
// stop-loss children.
func (c *Client) PlaceBracketOrder(ctx context.Context, req domain.BracketOrderRequest) (domain.BracketIDs, error) {
	order := orderRequest{
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		Qty:         fmtQty(req.Qty),
		Type:        "limit",
		TimeInForce: "gtc",
		Class:       "bracket",
		LimitPrice:  fmtPrice(req.Entry),
		TakeProfit:  &exitLeg{LimitPrice: fmtPrice(req.TakeProfit)},
		StopLoss:    &exitLeg{StopPrice: fmtPrice(req.StopLoss)},
	}
	return c.placeOrder(ctx, req.UserID, order)
}

// PlaceStopLimitBracketOrder submits a bracket whose entry leg activates at
// the stop trigger.
func (c *Client) PlaceStopLimitBracketOrder(ctx context.Context, req domain.StopLimitBracketOrderRequest) (domain.BracketIDs, error) {
	order := orderRequest{
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		Qty:         fmtQty(req.Qty),
		Type:        "stop_limit",
		TimeInForce: "gtc",
		Class:       "bracket",
		LimitPrice:  fmtPrice(req.Entry),
		StopPrice:   fmtPrice(req.StopTrigger),
		TakeProfit:  &exitLeg{LimitPrice: fmtPrice(req.TakeProfit)},
		StopLoss:    &exitLeg{StopPrice: fmtPrice(req.StopLoss)},
	}
	return c.placeOrder(ctx, req.UserID, order)
}

// PlaceOneCancelsOtherOrder submits a linked take-profit/stop-loss exit pair.
func (c *Client) PlaceOneCancelsOtherOrder(ctx context.Context, req domain.OCORequest) (domain.BracketIDs, error) {
	order := orderRequest{
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		Qty:         fmtQty(req.Qty),
		Type:        "limit",
		TimeInForce: "gtc",
		Class:       "oco",
		TakeProfit:  &exitLeg{LimitPrice: fmtPrice(req.TakeProfit)},
		StopLoss:    &exitLeg{StopPrice: fmtPrice(req.StopLoss)},
	}
	return c.placeOrder(ctx, req.UserID, order)
}

// PlaceTrailingStopOrder submits a trailing-stop closing order and returns
// its ID.
func (c *Client) PlaceTrailingStopOrder(ctx context.Context, req domain.TrailingStopRequest) (string, error) {
	order := orderRequest{
		Symbol:       req.Symbol,
		Side:         string(req.Side),
		Qty:          fmtQty(req.Qty),
		Type:         "trailing_stop",
		TimeInForce:  "gtc",
		TrailPercent: fmtPrice(req.TrailPct),
	}

	body, err := c.doRequest(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", c.creds(req.UserID), order)
	if err != nil {
		return "", fmt.Errorf("broker: place trailing stop: %w", err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("broker: decode order response: %w", err)
	}
	return resp.ID, nil
}

// CancelOrder cancels a resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/v1/orders/%s", url.PathEscape(orderID))

	_, err := c.doRequest(ctx, http.MethodDelete, c.cfg.BaseURL+path, c.cfg.Default, nil)
	if err != nil {
		return fmt.Errorf("broker: cancel order %s: %w", orderID, err)
	}
	return nil
}

// ClosePosition liquidates the whole position at market and reports the fill.
func (c *Client) ClosePosition(ctx context.Context, symbol string) (domain.FillResult, error) {
	path := fmt.Sprintf("/v1/positions/%s", url.PathEscape(symbol))

	body, err := c.doRequest(ctx, http.MethodDelete, c.cfg.BaseURL+path, c.cfg.Default, nil)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("broker: close position %s: %w", symbol, err)
	}

	var resp closeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.FillResult{}, fmt.Errorf("broker: decode close response: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, resp.FilledAt)
	if err != nil {
		ts = time.Now().UTC()
	}
	return domain.FillResult{
		OrderID:   resp.OrderID,
		Symbol:    resp.Symbol,
		Qty:       resp.Qty,
		Price:     resp.FillPrice,
		Profit:    resp.RealizedPnL,
		Timestamp: ts,
	}, nil
}

// placeOrder submits an order whose response carries child legs and maps the
// identifiers back by leg type.
func (c *Client) placeOrder(ctx context.Context, userID string, order orderRequest) (domain.BracketIDs, error) {
	body, err := c.doRequest(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", c.creds(userID), order)
	if err != nil {
		return domain.BracketIDs{}, fmt.Errorf("broker: place %s order: %w", order.Class, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.BracketIDs{}, fmt.Errorf("broker: decode order response: %w", err)
	}

	ids := domain.BracketIDs{ParentID: resp.ID}
	for _, leg := range resp.Legs {
		switch leg.LegType {
		case "take_profit":
			ids.TakeProfitID = leg.ID
		case "stop_loss":
			ids.StopLossID = leg.ID
		}
	}
	// Older API versions return legs positionally.
	if ids.TakeProfitID == "" && len(resp.Legs) > 0 {
		ids.TakeProfitID = resp.Legs[0].ID
	}
	if ids.StopLossID == "" && len(resp.Legs) > 1 {
		ids.StopLossID = resp.Legs[1].ID
	}
	if order.Class == "oco" {
		ids.ParentID = ids.TakeProfitID
	}
	return ids, nil
}

// doRequest builds, authenticates, sends, and reads an HTTP request.
func (c *Client) doRequest(ctx context.Context, method, fullURL string, creds Credentials, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key-ID", creds.KeyID)
	req.Header.Set("X-API-Secret", creds.Secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s", apiErr.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s", apiErr.Message)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("rejected: %s", apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s", apiErr.Message)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, apiErr.Message)
	}
}

func fmtPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

func fmtQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
