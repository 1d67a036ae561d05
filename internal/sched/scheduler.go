// Package sched drives the engine's periodic work: order-creation and
// range-update signals emitted for every active ladder.
package sched

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"blocktrader/internal/domain"
)

const (
	// DefaultOrderInterval paces order-creation sweeps.
	DefaultOrderInterval = 15 * time.Second
	// DefaultRangeInterval paces range realignment. Range drift is slow, so
	// this runs far less often than order creation.
	DefaultRangeInterval = 5 * time.Minute
)

// Scheduler ticks over every ladder with generated blocks and publishes the
// corresponding signal. State changes happen downstream in the dispatcher's
// actors; the scheduler itself only emits.
type Scheduler struct {
	ladders       domain.LadderStore
	bus           domain.SignalBus
	orderInterval time.Duration
	rangeInterval time.Duration
	logger        *slog.Logger
}

// NewScheduler creates a Scheduler. Non-positive intervals select defaults.
func NewScheduler(ladders domain.LadderStore, bus domain.SignalBus, orderInterval, rangeInterval time.Duration, logger *slog.Logger) *Scheduler {
	if orderInterval <= 0 {
		orderInterval = DefaultOrderInterval
	}
	if rangeInterval <= 0 {
		rangeInterval = DefaultRangeInterval
	}
	return &Scheduler{
		ladders:       ladders,
		bus:           bus,
		orderInterval: orderInterval,
		rangeInterval: rangeInterval,
		logger:        logger.With(slog.String("component", "scheduler")),
	}
}

// RunOrderLoop publishes OrderCreationSignals on the order interval until ctx
// is cancelled.
func (s *Scheduler) RunOrderLoop(ctx context.Context) error {
	return s.runLoop(ctx, s.orderInterval, domain.ChannelOrderCreation)
}

// RunRangeLoop publishes RangeUpdateSignals on the range interval until ctx
// is cancelled.
func (s *Scheduler) RunRangeLoop(ctx context.Context) error {
	return s.runLoop(ctx, s.rangeInterval, domain.ChannelRangeUpdate)
}

func (s *Scheduler) runLoop(ctx context.Context, interval time.Duration, channel string) error {
	// Sweep immediately on start.
	s.sweep(ctx, channel)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler loop stopped", slog.String("channel", channel))
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx, channel)
		}
	}
}

// sweep publishes one signal per active ladder. Both signal types share the
// same JSON shape, so one marshal covers either channel.
func (s *Scheduler) sweep(ctx context.Context, channel string) {
	ladders, err := s.ladders.ListCreated(ctx)
	if err != nil {
		s.logger.Error("list active ladders failed", slog.String("error", err.Error()))
		return
	}

	for _, lad := range ladders {
		payload, err := json.Marshal(domain.OrderCreationSignal{
			UserID: lad.UserID,
			Symbol: lad.Symbol,
		})
		if err != nil {
			continue
		}
		if err := s.bus.Publish(ctx, channel, payload); err != nil {
			s.logger.Warn("publish signal failed",
				slog.String("channel", channel),
				slog.String("user", lad.UserID),
				slog.String("symbol", lad.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}
