// Package feed bridges the broker's live trade-update streams onto the
// engine's signal bus.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"blocktrader/internal/broker"
	"blocktrader/internal/domain"
)

// FillFeeder runs one user's trade-update stream and republishes every event
// as a FillEvent: pub/sub for the live dispatcher, plus a durable stream
// append for replay. The stream client reconnects on its own; the feeder
// only translates.
type FillFeeder struct {
	userID string
	stream *broker.Stream
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewFillFeeder creates a FillFeeder for one user's account.
func NewFillFeeder(wsURL, userID string, creds broker.Credentials, bus domain.SignalBus, logger *slog.Logger) *FillFeeder {
	f := &FillFeeder{
		userID: userID,
		bus:    bus,
		logger: logger.With(
			slog.String("component", "fill_feeder"),
			slog.String("user", userID),
		),
	}
	f.stream = broker.NewStream(wsURL, userID, creds, f.handleUpdate, logger)
	return f
}

// Run consumes the trade-update stream until ctx is cancelled.
func (f *FillFeeder) Run(ctx context.Context) error {
	f.logger.Info("fill feeder started")
	defer f.logger.Info("fill feeder stopped")
	return f.stream.Run(ctx)
}

func (f *FillFeeder) handleUpdate(ctx context.Context, update domain.TradeUpdate) {
	ev := domain.FillEvent{
		UserID:        f.userID,
		Symbol:        update.Symbol,
		OrderID:       update.OrderID,
		Side:          update.Side,
		Event:         update.Event,
		ExecutedPrice: update.Price,
		Timestamp:     update.Timestamp,
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	if err := f.bus.Publish(ctx, domain.ChannelFills, payload); err != nil {
		f.logger.Warn("publish fill event failed",
			slog.String("order_id", ev.OrderID),
			slog.String("error", err.Error()),
		)
	}
	if err := f.bus.StreamAppend(ctx, domain.StreamFills, payload); err != nil {
		f.logger.Warn("append fill event to stream failed",
			slog.String("order_id", ev.OrderID),
			slog.String("error", err.Error()),
		)
	}
}
