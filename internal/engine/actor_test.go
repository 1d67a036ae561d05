package engine

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_SerializesPerKey(t *testing.T) {
	var mu sync.Mutex
	got := make(map[string][]int)
	running := make(map[string]bool)

	handler := func(ctx context.Context, msg Message) {
		key := msg.UserID + "|" + msg.Symbol

		mu.Lock()
		require.False(t, running[key], "two messages for one key in flight")
		running[key] = true
		mu.Unlock()

		time.Sleep(time.Millisecond)
		seq, _ := strconv.Atoi(string(msg.Payload))

		mu.Lock()
		running[key] = false
		got[key] = append(got[key], seq)
		mu.Unlock()
	}

	ctx := context.Background()
	pool := NewPool(handler, 8, discardLogger())

	const perKey = 10
	for i := 0; i < perKey; i++ {
		for _, sym := range []string{"ACME", "ZETA"} {
			require.NoError(t, pool.Dispatch(ctx, Message{
				Kind:    KindFill,
				UserID:  "u1",
				Symbol:  sym,
				Payload: []byte(strconv.Itoa(i)),
			}))
		}
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["u1|ACME"]) == perKey && len(got["u1|ZETA"]) == perKey
	}, 5*time.Second, 5*time.Millisecond)

	pool.Close()
	pool.Wait()

	// Per-key delivery keeps dispatch order.
	for _, key := range []string{"u1|ACME", "u1|ZETA"} {
		for i, seq := range got[key] {
			assert.Equal(t, i, seq, "out of order on %s", key)
		}
	}
}

func TestPool_DispatchReturnsOnCancel(t *testing.T) {
	block := make(chan struct{})
	handler := func(ctx context.Context, msg Message) {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(handler, 1, discardLogger())

	// First message occupies the actor, second fills the buffer.
	require.NoError(t, pool.Dispatch(ctx, Message{UserID: "u1", Symbol: "ACME"}))
	require.NoError(t, pool.Dispatch(ctx, Message{UserID: "u1", Symbol: "ACME"}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- pool.Dispatch(ctx, Message{UserID: "u1", Symbol: "ACME"})
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not unblock on cancel")
	}

	close(block)
	pool.Close()
	pool.Wait()
}

func TestPool_ActorOutlivesDispatchContext(t *testing.T) {
	done := make(chan string, 2)
	handler := func(ctx context.Context, msg Message) {
		done <- string(msg.Payload)
	}

	pool := NewPool(handler, 4, discardLogger())
	defer func() {
		pool.Close()
		pool.Wait()
	}()

	// A short-lived caller context, like an HTTP request, spawns the actor.
	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Dispatch(reqCtx, Message{UserID: "u1", Symbol: "ACME", Payload: []byte("first")}))
	cancel()

	select {
	case got := <-done:
		assert.Equal(t, "first", got)
	case <-time.After(2 * time.Second):
		t.Fatal("first message never handled")
	}

	// The actor for the key must still be alive for later callers.
	require.NoError(t, pool.Dispatch(context.Background(), Message{UserID: "u1", Symbol: "ACME", Payload: []byte("second")}))
	select {
	case got := <-done:
		assert.Equal(t, "second", got)
	case <-time.After(2 * time.Second):
		t.Fatal("actor died with the first caller's context")
	}
}
