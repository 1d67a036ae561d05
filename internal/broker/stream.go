package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"blocktrader/internal/domain"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 30 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the fixed pause between connection attempts. The
	// stream never gives up; a down broker just means a quiet loop until it
	// returns.
	reconnectDelay = time.Second
)

// TradeUpdateHandler is called for each event on the trade-update stream.
type TradeUpdateHandler func(ctx context.Context, update domain.TradeUpdate)

// Stream consumes one user's trade-update WebSocket feed. It reconnects
// forever on disconnect; missed events during the gap surface later through
// order polling at close-out.
type Stream struct {
	wsURL   string
	userID  string
	creds   Credentials
	handler TradeUpdateHandler
	logger  *slog.Logger
}

// NewStream creates a Stream for one user's account.
func NewStream(wsURL, userID string, creds Credentials, handler TradeUpdateHandler, logger *slog.Logger) *Stream {
	return &Stream{
		wsURL:   wsURL,
		userID:  userID,
		creds:   creds,
		handler: handler,
		logger: logger.With(
			slog.String("component", "trade_stream"),
			slog.String("user", userID),
		),
	}
}

// Run connects and consumes trade updates until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("trade stream disconnected, reconnecting",
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Stream) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("broker: dial stream: %v: %w", err, domain.ErrWSDisconnect)
	}
	defer conn.Close()

	if err := s.authenticate(conn); err != nil {
		return err
	}
	if err := s.subscribe(conn); err != nil {
		return err
	}
	s.logger.Info("trade stream connected")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("broker: read stream: %v: %w", err, domain.ErrWSDisconnect)
		}

		var msg tradeUpdateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("dropping malformed stream message",
				slog.Int("payload_len", len(data)),
			)
			continue
		}
		if msg.Stream != "trade_updates" || msg.Data.Order.ID == "" {
			continue
		}

		s.handler(ctx, msg.toDomain())
	}
}

func (s *Stream) authenticate(conn *websocket.Conn) error {
	auth := map[string]any{
		"action": "auth",
		"key":    s.creds.KeyID,
		"secret": s.creds.Secret,
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("broker: stream auth: %w", err)
	}
	return nil
}

func (s *Stream) subscribe(conn *websocket.Conn) error {
	sub := map[string]any{
		"action":  "listen",
		"streams": []string{"trade_updates"},
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("broker: stream subscribe: %w", err)
	}
	return nil
}
