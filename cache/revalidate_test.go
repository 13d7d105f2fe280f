package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/rawrcache/envelope"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerRevalidation_DeduplicatesPerKey(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "new", nil
	}

	assert.True(t, TriggerRevalidation(ctx, h.c, "k", fetch))
	assert.True(t, h.c.Revalidating("k"))
	assert.False(t, TriggerRevalidation(ctx, h.c, "k", fetch))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.c.metrics.revalidating))

	close(release)
	h.c.Wait()

	assert.False(t, h.c.Revalidating("k"))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 0.0, testutil.ToFloat64(h.c.metrics.revalidating))
	assert.Equal(t, 1.0, h.events(DefaultLabel, evRevalidateOK))

	res := Read[string](ctx, h.c, "k")
	assert.Equal(t, envelope.Fresh, res.Status)
	assert.Equal(t, "new", res.Value)

	// Once finished the key can be revalidated again.
	assert.True(t, TriggerRevalidation(ctx, h.c, "k", counter(&calls, "newer")))
	h.c.Wait()
	assert.EqualValues(t, 2, calls.Load())
}

func TestTriggerRevalidation_OutlivesCaller(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(t.Context())
	started := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		return "X", ctx.Err()
	}

	require.True(t, TriggerRevalidation(ctx, h.c, "k", fetch))
	<-started
	cancel()
	h.c.Wait()

	assert.Equal(t, 1.0, h.events(DefaultLabel, evRevalidateOK))
	assert.True(t, h.mr.Exists("k"))
}

func TestTriggerRevalidation_Timeout(t *testing.T) {
	h := newHarness(t, WithRevalidateTimeout(20*time.Millisecond))

	require.True(t, TriggerRevalidation(t.Context(), h.c, "k", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
	h.c.Wait()

	assert.Equal(t, 1.0, h.events(DefaultLabel, evRevalidateFail))
	assert.False(t, h.mr.Exists(LockKey("k")))
}

func TestTriggerRevalidation_FailureKeepsStaleValue(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	Write(ctx, h.c, "k", "old", 10*time.Second, time.Minute)
	h.clock.Advance(20 * time.Second)

	require.True(t, TriggerRevalidation(ctx, h.c, "k", func(context.Context) (string, error) {
		return "", errUpstream
	}))
	h.c.Wait()

	assert.Equal(t, 1.0, h.events(DefaultLabel, evRevalidateFail))
	assert.Equal(t, 0.0, h.events(DefaultLabel, evServeStale))
	res := Read[string](ctx, h.c, "k")
	assert.Equal(t, envelope.Stale, res.Status)
	assert.Equal(t, "old", res.Value)
}

func TestTriggerRevalidation_RecoversPanic(t *testing.T) {
	h := newHarness(t)

	require.True(t, TriggerRevalidation(t.Context(), h.c, "k", func(context.Context) (string, error) {
		panic("boom")
	}))
	h.c.Wait()

	assert.False(t, h.c.Revalidating("k"))
	assert.Equal(t, 1.0, h.events(DefaultLabel, evRevalidateFail))
	assert.False(t, h.mr.Exists(LockKey("k")))
}

func TestTriggerRevalidation_Throttled(t *testing.T) {
	h := newHarness(t, WithRevalidationLimit(0.001, 1))
	ctx := t.Context()

	var calls atomic.Int32
	assert.True(t, TriggerRevalidation(ctx, h.c, "a", counter(&calls, "X")))
	assert.False(t, TriggerRevalidation(ctx, h.c, "b", counter(&calls, "X")))
	h.c.Wait()

	assert.False(t, h.c.Revalidating("b"))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1.0, h.events(DefaultLabel, evRevalidateThrottled))
}

func TestCache_CloseStopsRevalidation(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	release := make(chan struct{})
	require.True(t, TriggerRevalidation(ctx, h.c, "a", func(context.Context) (string, error) {
		<-release
		return "X", nil
	}))

	closed := make(chan error, 1)
	go func() { closed <- h.c.Close(ctx) }()

	require.Eventually(t, func() bool {
		h.c.mu.Lock()
		defer h.c.mu.Unlock()
		return h.c.closed
	}, time.Second, time.Millisecond)
	assert.False(t, TriggerRevalidation(ctx, h.c, "b", func(context.Context) (string, error) { return "Y", nil }))

	close(release)
	require.NoError(t, <-closed)
	assert.True(t, h.mr.Exists("a"))
	assert.False(t, h.mr.Exists("b"))
}

func TestCache_CloseHonoursContext(t *testing.T) {
	h := newHarness(t)

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	require.True(t, TriggerRevalidation(t.Context(), h.c, "a", func(context.Context) (string, error) {
		<-release
		return "X", nil
	}))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.c.Close(ctx), context.DeadlineExceeded)
}
