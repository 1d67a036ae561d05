// Package engine owns the block/ladder lifecycle: order placement selection,
// fill reconciliation, price-range upkeep, and the close-out workflow. All
// block mutation for one (user, symbol) is serialized through a single-writer
// actor, so the components here never race on the same block.
package engine

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is the bounded retry-with-backoff helper used for every
// outbound broker call. The delay doubles per attempt up to MaxDelay.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetry is used where no policy is configured.
var DefaultRetry = RetryPolicy{Attempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 2 * time.Second}

// Do runs fn up to p.Attempts times. It stops early when fn succeeds or the
// context is cancelled, and wraps the final error with op for the log line.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PollUntil calls fn every interval until it reports done, the timeout
// elapses, or the context is cancelled. Errors from fn abort the poll.
// This replaces unbounded confirmation loops: every poll has a deadline.
func PollUntil(ctx context.Context, timeout, interval time.Duration, fn func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("poll: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
