package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/rawrcache/envelope"
	"github.com/Keksclan/rawrcache/retry"
	"github.com/Keksclan/rawrcache/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh_WinnerWritesAndReleases(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	var calls atomic.Int32
	v, err := RefreshWithLock(ctx, h.c, "k", counter(&calls, "X"), WithTTL(10*time.Second, 5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "X", v)
	assert.EqualValues(t, 1, calls.Load())

	assert.False(t, h.mr.Exists(LockKey("k")))
	res := Read[string](ctx, h.c, "k")
	assert.Equal(t, envelope.Fresh, res.Status)
	assert.Equal(t, "X", res.Value)
	assert.Equal(t, 1.0, h.events(DefaultLabel, evLockAcquired))
}

func TestRefresh_AtMostOneFetch(t *testing.T) {
	h := newHarness(t)

	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		return "X", nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = RefreshWithLock(t.Context(), h.c, "k", fetch)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, "X", results[i])
	}
	assert.Equal(t, float64(n-1), h.events(DefaultLabel, evLockWaitHit))
}

func TestRefresh_TwoCallerRace(t *testing.T) {
	h := newHarness(t, WithLockWait(200*time.Millisecond, 10*time.Millisecond))
	ctx := t.Context()

	first := func(context.Context) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "Y", nil
	}
	var secondCalls atomic.Int32
	second := counter(&secondCalls, "Z")

	done := make(chan string, 1)
	go func() {
		v, _ := RefreshWithLock(ctx, h.c, "k", first)
		done <- v
	}()

	require.Eventually(t, func() bool { return h.mr.Exists(LockKey("k")) }, time.Second, time.Millisecond)

	v, err := RefreshWithLock(ctx, h.c, "k", second)
	require.NoError(t, err)
	assert.Equal(t, "Y", v)
	assert.EqualValues(t, 0, secondCalls.Load())
	assert.Equal(t, "Y", <-done)
}

func TestRefresh_LockWaitTimeoutFetches(t *testing.T) {
	h := newHarness(t, WithLockWait(100*time.Millisecond, 10*time.Millisecond))
	require.NoError(t, h.mr.Set(LockKey("k"), "someone-else"))

	var calls atomic.Int32
	start := time.Now()
	v, err := RefreshWithLock(t.Context(), h.c, "k", counter(&calls, "X"))
	require.NoError(t, err)
	assert.Equal(t, "X", v)
	assert.EqualValues(t, 1, calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// The foreign lock is left alone.
	got, err := h.mr.Get(LockKey("k"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
	assert.Equal(t, 1.0, h.events(DefaultLabel, evLockTimeout))
	assert.True(t, h.mr.Exists("k"))
}

func TestRefresh_LockWaitHonoursCancellation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mr.Set(LockKey("k"), "someone-else"))

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	_, err := RefreshWithLock(ctx, h.c, "k", counter(&calls, "X"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 0, calls.Load())
}

func TestRefresh_LockWaitServesStale(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	Write(ctx, h.c, "k", "old", 10*time.Second, time.Minute)
	h.clock.Advance(20 * time.Second)
	require.NoError(t, h.mr.Set(LockKey("k"), "someone-else"))

	var calls atomic.Int32
	v, err := RefreshWithLock(ctx, h.c, "k", counter(&calls, "new"))
	require.NoError(t, err)
	assert.Equal(t, "old", v)
	assert.EqualValues(t, 0, calls.Load())
}

func TestRefresh_FetchErrorReleasesLock(t *testing.T) {
	h := newHarness(t)

	_, err := RefreshWithLock(t.Context(), h.c, "k", func(context.Context) (string, error) {
		return "", errUpstream
	})
	assert.ErrorIs(t, err, errUpstream)
	assert.False(t, h.mr.Exists(LockKey("k")))
	assert.False(t, h.mr.Exists("k"))
	assert.Equal(t, 1.0, h.events(DefaultLabel, evFetchFailed))
}

func TestRefresh_StaleIfError(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	v, err := RefreshWithStaleFallback(ctx, h.c, "k", func(context.Context) (string, error) {
		return "", errUpstream
	}, "old")
	require.NoError(t, err)
	assert.Equal(t, "old", v)
	assert.Equal(t, 1.0, h.events(DefaultLabel, evServeStale))
	assert.Contains(t, h.logs.String(), "serving stale due to error")
	assert.False(t, h.mr.Exists(LockKey("k")))
}

func TestRefresh_StaleFallbackTakesFetcherType(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	v, err := RefreshWithStaleFallback(ctx, h.c, "counter", func(context.Context) (int64, error) {
		return 0, errUpstream
	}, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	type userID uint32
	id, err := RefreshWithStaleFallback(ctx, h.c, "user", func(context.Context) (userID, error) {
		return 0, errUpstream
	}, 42)
	require.NoError(t, err)
	assert.Equal(t, userID(42), id)

	assert.Equal(t, 2.0, h.events(DefaultLabel, evServeStale))
	assert.False(t, h.mr.Exists("counter"))
}

func TestRefresh_StaleFallbackUnusedOnSuccess(t *testing.T) {
	h := newHarness(t)

	v, err := RefreshWithStaleFallback(t.Context(), h.c, "k", func(context.Context) (string, error) {
		return "new", nil
	}, "old")
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.True(t, h.mr.Exists("k"))
}

func TestRefresh_StoreDownDegrades(t *testing.T) {
	cs := &countingStore{Store: store.NewRedis("127.0.0.1:1", "", 0), pingErr: errors.New("down")}
	c := discardCache(t, cs)
	ctx := t.Context()

	var calls atomic.Int32
	for range 3 {
		v, err := RefreshWithLock(ctx, c, "k", counter(&calls, "X"))
		require.NoError(t, err)
		assert.Equal(t, "X", v)
	}
	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 0, cs.sets.Load())
	assert.EqualValues(t, 0, cs.setNXs.Load())
}

func TestRefresh_StoreDownFallback(t *testing.T) {
	cs := &countingStore{Store: store.NewRedis("127.0.0.1:1", "", 0), pingErr: errors.New("down")}
	c := discardCache(t, cs)

	v, err := RefreshWithStaleFallback(t.Context(), c, "k", func(context.Context) (int64, error) {
		return 0, errUpstream
	}, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestRefresh_LockErrorTakesNoLockPath(t *testing.T) {
	h := newHarness(t)
	h.store.setNXErr = errors.New("READONLY")

	var calls atomic.Int32
	v, err := RefreshWithLock(t.Context(), h.c, "k", counter(&calls, "X"))
	require.NoError(t, err)
	assert.Equal(t, "X", v)
	assert.Equal(t, 1.0, h.events(DefaultLabel, evNoLock))
	assert.Equal(t, 1.0, h.events(DefaultLabel, evStoreError))
}

func TestRefresh_LockLostIsLogged(t *testing.T) {
	h := newHarness(t)

	v, err := RefreshWithLock(t.Context(), h.c, "k", func(context.Context) (string, error) {
		// Simulate the lock expiring and another process taking it.
		_ = h.mr.Set(LockKey("k"), "someone-else")
		return "X", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "X", v)

	got, err := h.mr.Get(LockKey("k"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
	assert.Equal(t, 1.0, h.events(DefaultLabel, evLockLost))
	assert.Contains(t, h.logs.String(), "token=")
}

func TestRefresh_LockTTL(t *testing.T) {
	h := newHarness(t, WithLockTTL(7*time.Second))

	var ttl time.Duration
	_, err := RefreshWithLock(t.Context(), h.c, "k", func(context.Context) (string, error) {
		ttl = h.mr.TTL(LockKey("k"))
		return "X", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, ttl)
}

func TestRefresh_JitterAppliedToFreshTTL(t *testing.T) {
	h := newHarness(t, WithTTLJitter(0.5))

	_, err := RefreshWithLock(t.Context(), h.c, "k", func(context.Context) (string, error) {
		return "X", nil
	}, WithTTL(100*time.Second, 0))
	require.NoError(t, err)

	raw, err := h.mr.Get("k")
	require.NoError(t, err)
	env, err := envelope.Decode[string]([]byte(raw))
	require.NoError(t, err)

	fresh := env.ExpiresAt.Sub(env.UpdatedAt)
	assert.GreaterOrEqual(t, fresh, 50*time.Second)
	assert.LessOrEqual(t, fresh, 150*time.Second)
	assert.Zero(t, fresh%time.Second)
}

func TestRefresh_FetchRetry(t *testing.T) {
	h := newHarness(t, WithFetchRetry(retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		RetryIf:     func(err error) bool { return errors.Is(err, errUpstream) },
	}))

	var calls atomic.Int32
	v, err := RefreshWithLock(t.Context(), h.c, "k", func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errUpstream
		}
		return "X", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "X", v)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRefresh_FetchDurationObserved(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	_, _ = RefreshWithLock(ctx, h.c, "a", func(context.Context) (string, error) { return "X", nil })
	_, _ = RefreshWithLock(ctx, h.c, "b", func(context.Context) (string, error) { return "", errUpstream })

	assert.Equal(t, 2, testutil.CollectAndCount(h.c.metrics.fetchDuration))
}
