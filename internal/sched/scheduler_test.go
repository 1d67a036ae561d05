package sched

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blocktrader/internal/domain"
)

type stubLadderStore struct {
	domain.LadderStore
	ladders []domain.Ladder
	err     error
}

func (s *stubLadderStore) ListCreated(ctx context.Context) ([]domain.Ladder, error) {
	return s.ladders, s.err
}

type published struct {
	channel string
	payload []byte
}

type stubBus struct {
	mu   sync.Mutex
	msgs []published
}

func (b *stubBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{channel: channel, payload: payload})
	return nil
}

func (b *stubBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *stubBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return nil
}

func (b *stubBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *stubBus) snapshot() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]published, len(b.msgs))
	copy(out, b.msgs)
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_SweepsImmediatelyOnStart(t *testing.T) {
	store := &stubLadderStore{ladders: []domain.Ladder{
		{UserID: "u1", Symbol: "ACME", BlocksCreated: true},
		{UserID: "u2", Symbol: "WIDG", BlocksCreated: true},
	}}
	bus := &stubBus{}
	s := NewScheduler(store, bus, time.Hour, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunOrderLoop(ctx) }()

	require.Eventually(t, func() bool {
		return len(bus.snapshot()) == 2
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	msgs := bus.snapshot()
	for _, m := range msgs {
		assert.Equal(t, domain.ChannelOrderCreation, m.channel)
	}

	var sig domain.OrderCreationSignal
	require.NoError(t, json.Unmarshal(msgs[0].payload, &sig))
	assert.Equal(t, "u1", sig.UserID)
	assert.Equal(t, "ACME", sig.Symbol)
}

func TestScheduler_RangeLoopUsesRangeChannel(t *testing.T) {
	store := &stubLadderStore{ladders: []domain.Ladder{
		{UserID: "u1", Symbol: "ACME", BlocksCreated: true},
	}}
	bus := &stubBus{}
	s := NewScheduler(store, bus, time.Hour, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunRangeLoop(ctx) }()

	require.Eventually(t, func() bool {
		return len(bus.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, domain.ChannelRangeUpdate, bus.snapshot()[0].channel)
}

func TestScheduler_ListFailureDoesNotStopLoop(t *testing.T) {
	store := &stubLadderStore{err: errors.New("db down")}
	bus := &stubBus{}
	s := NewScheduler(store, bus, 10*time.Millisecond, time.Hour, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := s.RunOrderLoop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, bus.snapshot())
}
