package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestMemoryCounter_CeilingUnderConcurrency(t *testing.T) {
	c := NewMemoryCounter()
	key := Key{Principal: "key_1", Endpoint: "/api/v1/readings"}

	const ceiling = 100
	const callers = 1000

	var allowed atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := c.CheckAndIncrement(context.Background(), key, ceiling)
			if err != nil {
				t.Error(err)
				return
			}
			if res.Allowed {
				allowed.Add(1)
			}
			if res.Count > ceiling {
				t.Errorf("count %d exceeds ceiling", res.Count)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(ceiling), allowed.Load())
}

func TestMemoryCounter_FreeTierScenario(t *testing.T) {
	clk := newClock()
	c := NewMemoryCounter(WithClock(clk.Now))
	key := Key{Principal: "key_free", Endpoint: "/v1/items"}
	windowStart := clk.Now()
	ctx := context.Background()

	for i := 1; i <= 99; i++ {
		res, err := c.CheckAndIncrement(ctx, key, 100)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		clk.Advance(10 * time.Second)
	}

	res, err := c.CheckAndIncrement(ctx, key, 100)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "100th call is admitted")
	assert.Equal(t, 100, res.Count)
	assert.Equal(t, 0, res.Remaining())

	res, err = c.CheckAndIncrement(ctx, key, 100)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "101st call is rejected")
	assert.Equal(t, 100, res.Count)
	assert.Equal(t, windowStart.Add(time.Hour), res.ResetAt)
	assert.Equal(t, time.Hour-clk.Now().Sub(windowStart), res.ResetAt.Sub(clk.Now()))

	clk.now = windowStart.Add(time.Hour)
	res, err = c.CheckAndIncrement(ctx, key, 100)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, clk.Now().Add(time.Hour), res.ResetAt)
}

func TestMemoryCounter_WindowReset(t *testing.T) {
	clk := newClock()
	c := NewMemoryCounter(WithClock(clk.Now), WithWindow(time.Minute))
	key := Key{Principal: "p", Endpoint: "/e"}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.CheckAndIncrement(ctx, key, 3)
		require.NoError(t, err)
	}
	res, _ := c.CheckAndIncrement(ctx, key, 3)
	require.False(t, res.Allowed)

	clk.Advance(61 * time.Second)
	res, err := c.CheckAndIncrement(ctx, key, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Count, "no carry-over from the previous window")
	assert.Equal(t, clk.Now().Add(time.Minute), res.ResetAt)
}

func TestMemoryCounter_IndependentKeys(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()

	exhausted := Key{Principal: "key_1", Endpoint: "/api/v1/exports"}
	for i := 0; i < 2; i++ {
		_, err := c.CheckAndIncrement(ctx, exhausted, 2)
		require.NoError(t, err)
	}
	res, _ := c.CheckAndIncrement(ctx, exhausted, 2)
	require.False(t, res.Allowed)

	res, _ = c.CheckAndIncrement(ctx, Key{Principal: "key_1", Endpoint: "/api/v1/readings"}, 2)
	assert.True(t, res.Allowed, "other endpoint keeps its own budget")

	res, _ = c.CheckAndIncrement(ctx, Key{Principal: "key_2", Endpoint: "/api/v1/exports"}, 2)
	assert.True(t, res.Allowed, "other principal keeps its own budget")
}

func TestMemoryCounter_ExistingWindowIsReused(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()
	key := Key{Principal: "key_1", Endpoint: "/api/v1/readings"}

	_, err := c.CheckAndIncrement(ctx, key, 1_000_000)
	require.NoError(t, err)
	first, ok := c.store.Load(key.String())
	require.True(t, ok)

	lookup := testing.AllocsPerRun(100, func() {
		_, _ = c.store.Load(key.String())
	})
	hit := testing.AllocsPerRun(100, func() {
		_, _ = c.CheckAndIncrement(ctx, key, 1_000_000)
	})
	assert.LessOrEqual(t, hit, lookup, "a hit must not allocate a fresh window")

	again, _ := c.store.Load(key.String())
	assert.Same(t, first.(*window), again.(*window))
	assert.Equal(t, 1, c.Len())

	res, err := c.CheckAndIncrement(ctx, key, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, 103, res.Count)
}

func TestMemoryCounter_Sweep(t *testing.T) {
	clk := newClock()
	c := NewMemoryCounter(WithClock(clk.Now), WithWindow(time.Minute))
	ctx := context.Background()

	_, _ = c.CheckAndIncrement(ctx, Key{Principal: "old", Endpoint: "/e"}, 10)
	clk.Advance(5 * time.Minute)
	_, _ = c.CheckAndIncrement(ctx, Key{Principal: "fresh", Endpoint: "/e"}, 10)
	require.Equal(t, 2, c.Len())

	removed := c.Sweep(2 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())

	res, err := c.CheckAndIncrement(ctx, Key{Principal: "old", Endpoint: "/e"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestMemoryCounter_SweepDuringTraffic(t *testing.T) {
	clk := newClock()
	c := NewMemoryCounter(WithClock(clk.Now), WithWindow(time.Millisecond))
	key := Key{Principal: "p", Endpoint: "/e"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				res, err := c.CheckAndIncrement(context.Background(), key, 5)
				if err != nil || res.Count > 5 {
					t.Errorf("res=%+v err=%v", res, err)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		clk.Advance(time.Millisecond)
		c.Sweep(0)
	}
	wg.Wait()
}

func TestResult_RemainingAndRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := Result{Count: 40, Ceiling: 100, ResetAt: now.Add(90*time.Second + 300*time.Millisecond)}

	assert.Equal(t, 60, r.Remaining())
	assert.Equal(t, 91*time.Second, r.RetryAfter(now))
	assert.Equal(t, time.Duration(0), r.RetryAfter(now.Add(time.Hour)))

	assert.Equal(t, 0, Result{Count: 100, Ceiling: 100}.Remaining())
}
