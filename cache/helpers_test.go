package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/rawrcache/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

// fakeClock drives envelope classification. Store-side expiry is driven
// separately with miniredis FastForward.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// syncBuffer is a log sink that is safe to read while background
// revalidations are still logging.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// countingStore wraps a Store and counts the calls the cache makes.
type countingStore struct {
	store.Store

	pingErr  error
	pingHang bool
	setNXErr error

	pings   atomic.Int32

	gets    atomic.Int32
	sets    atomic.Int32
	setNXs  atomic.Int32
	deletes atomic.Int32

	mu         sync.Mutex
	batchSizes []int
}

func (s *countingStore) Ping(ctx context.Context) error {
	s.pings.Add(1)
	if s.pingHang {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.Store.Ping(ctx)
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.gets.Add(1)
	return s.Store.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.sets.Add(1)
	return s.Store.Set(ctx, key, val, ttl)
}

func (s *countingStore) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	s.setNXs.Add(1)
	if s.setNXErr != nil {
		return false, s.setNXErr
	}
	return s.Store.SetNX(ctx, key, val, ttl)
}

func (s *countingStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	s.deletes.Add(1)
	s.mu.Lock()
	s.batchSizes = append(s.batchSizes, len(keys))
	s.mu.Unlock()
	return s.Store.Delete(ctx, keys...)
}

func (s *countingStore) batches() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.batchSizes...)
}

type harness struct {
	c     *Cache
	mr    *miniredis.Miniredis
	store *countingStore
	clock *fakeClock
	logs  *syncBuffer
}

// newHarness builds a Cache over miniredis with a private registry, a
// debug-level log buffer, and a fake clock.
func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rs := store.NewRedis(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = rs.Close() })
	cs := &countingStore{Store: rs}

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	base := []Option{
		WithRegisterer(prometheus.NewRegistry()),
		WithLogger(logger),
		WithLockWait(time.Second, 10*time.Millisecond),
	}
	c, err := New(cs, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(c.Wait)

	clock := newFakeClock()
	c.nowFunc = clock.Now

	return &harness{c: c, mr: mr, store: cs, clock: clock, logs: logs}
}

// advance moves both the envelope clock and the store's TTL clock.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.mr.FastForward(d)
}

func (h *harness) events(label string, ev event) float64 {
	return testutil.ToFloat64(h.c.metrics.events.WithLabelValues(label, string(ev)))
}

// discardCache builds a Cache over s for tests that do not need miniredis.
func discardCache(t *testing.T, s store.Store, opts ...Option) *Cache {
	t.Helper()
	base := []Option{
		WithRegisterer(prometheus.NewRegistry()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	c, err := New(s, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(c.Wait)
	return c
}

// counter returns a fetcher that counts its calls and returns value.
func counter[V any](calls *atomic.Int32, value V) Fetcher[V] {
	return func(context.Context) (V, error) {
		calls.Add(1)
		return value, nil
	}
}
