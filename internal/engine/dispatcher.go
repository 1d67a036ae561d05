package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"blocktrader/internal/domain"
)

// Dispatcher subscribes to the engine's signal channels and feeds each
// message into the actor pool. It is the single consumer of the queue
// collaborator; everything downstream of it is serialized per (user, symbol).
type Dispatcher struct {
	bus          domain.SignalBus
	pool         *Pool
	orchestrator *Orchestrator
	ranges       *RangeManager
	reconciler   *Reconciler
	closer       *Closer
	logger       *slog.Logger
}

// NewDispatcher creates a Dispatcher and its actor pool.
func NewDispatcher(
	bus domain.SignalBus,
	orchestrator *Orchestrator,
	ranges *RangeManager,
	reconciler *Reconciler,
	closer *Closer,
	logger *slog.Logger,
) *Dispatcher {
	d := &Dispatcher{
		bus:          bus,
		orchestrator: orchestrator,
		ranges:       ranges,
		reconciler:   reconciler,
		closer:       closer,
		logger:       logger.With(slog.String("component", "dispatcher")),
	}
	d.pool = NewPool(d.handle, 128, logger)
	return d
}

// Run consumes all three signal channels until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.consume(ctx, domain.ChannelFills, KindFill) })
	g.Go(func() error { return d.consume(ctx, domain.ChannelOrderCreation, KindOrderCreation) })
	g.Go(func() error { return d.consume(ctx, domain.ChannelRangeUpdate, KindRangeUpdate) })

	d.logger.Info("dispatcher started")
	defer d.logger.Info("dispatcher stopped")

	err := g.Wait()
	d.pool.Close()
	d.pool.Wait()
	return err
}

// CloseOut runs the close-out workflow through the (user, symbol) actor, so
// it cannot interleave with a fill being reconciled for the same ladder. The
// call blocks until the close-out finishes or ctx is cancelled.
func (d *Dispatcher) CloseOut(ctx context.Context, userID, symbol string) error {
	reply := make(chan error, 1)
	msg := Message{Kind: KindCloseOut, UserID: userID, Symbol: symbol, Reply: reply}
	if err := d.pool.Dispatch(ctx, msg); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) consume(ctx context.Context, channel string, kind MessageKind) error {
	ch, err := d.bus.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			msg, ok := d.decode(kind, payload)
			if !ok {
				continue
			}
			if err := d.pool.Dispatch(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// decode extracts the routing key from the payload. Malformed payloads are
// logged and dropped.
func (d *Dispatcher) decode(kind MessageKind, payload []byte) (Message, bool) {
	var key struct {
		UserID string `json:"user_id"`
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(payload, &key); err != nil || key.UserID == "" || key.Symbol == "" {
		d.logger.Warn("dropping malformed signal",
			slog.Int("kind", int(kind)),
			slog.Int("payload_len", len(payload)),
		)
		return Message{}, false
	}
	return Message{Kind: kind, UserID: key.UserID, Symbol: key.Symbol, Payload: payload}, true
}

// handle runs inside a (user, symbol) actor. Failures are logged and the
// message dropped; one bad symbol never stalls the others.
func (d *Dispatcher) handle(ctx context.Context, msg Message) {
	var err error
	switch msg.Kind {
	case KindFill:
		var ev domain.FillEvent
		if err = json.Unmarshal(msg.Payload, &ev); err == nil {
			err = d.reconciler.HandleFill(ctx, ev)
		}
	case KindOrderCreation:
		err = d.orchestrator.PlaceOrders(ctx, msg.UserID, msg.Symbol)
	case KindRangeUpdate:
		err = d.ranges.Realign(ctx, msg.UserID, msg.Symbol)
	case KindCloseOut:
		err = d.closer.CloseOut(ctx, msg.UserID, msg.Symbol)
	}
	if msg.Reply != nil {
		msg.Reply <- err
		return
	}
	if errors.Is(err, domain.ErrTradingDisabled) {
		// Routine during a close-out; the scheduler keeps sweeping the ladder.
		d.logger.DebugContext(ctx, "symbol not trading, skipping placement",
			slog.String("user", msg.UserID),
			slog.String("symbol", msg.Symbol),
		)
		return
	}
	if err != nil {
		d.logger.WarnContext(ctx, "signal handling failed",
			slog.Int("kind", int(msg.Kind)),
			slog.String("user", msg.UserID),
			slog.String("symbol", msg.Symbol),
			slog.String("error", err.Error()),
		)
	}
}
