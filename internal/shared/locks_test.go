package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedLimiterExclusivePerKey(t *testing.T) {
	limiter := NewKeyedLimiter()
	ctx := context.Background()

	release, err := limiter.Acquire(ctx, "customer:1")
	require.NoError(t, err)

	// Same key waits; a short deadline turns that wait into an error.
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = limiter.Acquire(waitCtx, "customer:1")
	require.Error(t, err)

	// A different key is free immediately.
	other, err := limiter.Acquire(ctx, "customer:2")
	require.NoError(t, err)
	other()

	release()

	// Released sections can be taken again.
	release, err = limiter.Acquire(ctx, "customer:1")
	require.NoError(t, err)
	release()
}

func TestKeyedLimiterHandsOverToWaiter(t *testing.T) {
	limiter := NewKeyedLimiter()
	ctx := context.Background()

	release, err := limiter.Acquire(ctx, "k")
	require.NoError(t, err)

	acquired := make(chan func(), 1)
	go func() {
		second, err := limiter.Acquire(ctx, "k")
		if err == nil {
			acquired <- second
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while section was held")
	case <-time.After(30 * time.Millisecond):
	}

	release()

	select {
	case second := <-acquired:
		second()
	case <-time.After(time.Second):
		t.Fatal("waiter never admitted after release")
	}
}

func TestKeyedLimiterReleaseIdempotent(t *testing.T) {
	limiter := NewKeyedLimiter()

	release, err := limiter.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	again, err := limiter.Acquire(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestKeyedLimiterDropsIdleEntries(t *testing.T) {
	limiter := NewKeyedLimiter()

	release, err := limiter.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	require.Empty(t, limiter.entries)
}
