package engine

import (
	"context"
	"log/slog"
	"sync"
)

// MessageKind routes an actor message to the right engine component.
type MessageKind int

const (
	KindFill MessageKind = iota
	KindOrderCreation
	KindRangeUpdate
	KindCloseOut
)

// Message is one unit of work for a (user, symbol) actor.
type Message struct {
	Kind   MessageKind
	UserID string
	Symbol string
	// Payload carries the original signal for KindFill.
	Payload []byte
	// Reply, when non-nil, receives the handler's result. Used by callers
	// outside the signal channels that need the outcome, such as close-out.
	Reply chan error
}

// Handler processes one message. Errors are handled (logged) by the caller's
// handler itself; the pool only moves messages.
type Handler func(ctx context.Context, msg Message)

// Pool serializes engine work per (user, symbol): each key gets a dedicated
// goroutine consuming from its own channel, so two fill events for the same
// block can never interleave their read-modify-write on the store. Distinct
// keys still run concurrently.
type Pool struct {
	handler Handler
	buffer  int
	logger  *slog.Logger

	// ctx governs the actor goroutines. Actors must outlive any single
	// Dispatch caller (an HTTP request, say), so their lifetime is owned by
	// the pool itself and ends only on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	actors map[string]chan Message
	wg     sync.WaitGroup
}

// NewPool creates a Pool whose actors invoke handler for every message.
func NewPool(handler Handler, buffer int, logger *slog.Logger) *Pool {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler: handler,
		buffer:  buffer,
		logger:  logger.With(slog.String("component", "actor_pool")),
		ctx:     ctx,
		cancel:  cancel,
		actors:  make(map[string]chan Message),
	}
}

// Dispatch routes msg to its key's actor, spawning the actor lazily. It
// blocks when the actor's buffer is full, providing backpressure to the
// signal consumer, and returns the context error if cancelled while waiting.
func (p *Pool) Dispatch(ctx context.Context, msg Message) error {
	key := msg.UserID + "|" + msg.Symbol

	p.mu.Lock()
	ch, ok := p.actors[key]
	if !ok {
		ch = make(chan Message, p.buffer)
		p.actors[key] = ch
		p.wg.Add(1)
		go p.run(key, ch)
	}
	p.mu.Unlock()

	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

func (p *Pool) run(key string, ch chan Message) {
	defer p.wg.Done()
	p.logger.Debug("actor started", slog.String("key", key))
	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("actor stopped", slog.String("key", key))
			return
		case msg := <-ch:
			p.handler(p.ctx, msg)
		}
	}
}

// Close stops every actor goroutine.
func (p *Pool) Close() {
	p.cancel()
}

// Wait blocks until every actor goroutine has exited. Call after Close.
func (p *Pool) Wait() {
	p.wg.Wait()
}
