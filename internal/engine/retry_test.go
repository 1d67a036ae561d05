package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDo_SucceedsAfterTransientFailures(t *testing.T) {
	p := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDo_BoundedAttempts(t *testing.T) {
	p := RetryPolicy{Attempts: 4, BaseDelay: time.Millisecond}

	calls := 0
	sentinel := errors.New("still broken")
	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return sentinel
	})

	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "op")
}

func TestRetryDo_StopsOnContextCancel(t *testing.T) {
	p := RetryPolicy{Attempts: 10, BaseDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, "op", func(ctx context.Context) error {
		calls++
		return errors.New("nope")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 3)
}

func TestPollUntil_CompletesWithinTimeout(t *testing.T) {
	calls := 0
	err := PollUntil(context.Background(), time.Second, time.Millisecond, func(ctx context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPollUntil_TimesOut(t *testing.T) {
	err := PollUntil(context.Background(), 20*time.Millisecond, 5*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollUntil_PropagatesFnError(t *testing.T) {
	sentinel := errors.New("lookup failed")
	err := PollUntil(context.Background(), time.Second, time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}
