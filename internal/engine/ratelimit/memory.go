package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	mu    sync.Mutex
	start time.Time
	count int
	// dead is set by Sweep after removing the window from the map.
	dead bool
}

// MemoryCounter keeps windows in process. Keys never share a lock.
type MemoryCounter struct {
	store  sync.Map // map[string]*window
	window time.Duration
	now    func() time.Time
}

type MemoryOption func(*MemoryCounter)

func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCounter) { c.now = now }
}

func WithWindow(d time.Duration) MemoryOption {
	return func(c *MemoryCounter) {
		if d > 0 {
			c.window = d
		}
	}
}

func NewMemoryCounter(opts ...MemoryOption) *MemoryCounter {
	c := &MemoryCounter{window: DefaultWindow, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCounter) CheckAndIncrement(_ context.Context, key Key, ceiling int) (Result, error) {
	k := key.String()
	for {
		now := c.now()
		val, ok := c.store.Load(k)
		if !ok {
			val, _ = c.store.LoadOrStore(k, &window{start: now})
		}
		w := val.(*window)

		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}

		if now.Sub(w.start) >= c.window {
			w.start = now
			w.count = 0
		}

		res := Result{Ceiling: ceiling, ResetAt: w.start.Add(c.window)}
		if w.count < ceiling {
			w.count++
			res.Allowed = true
		}
		res.Count = w.count
		w.mu.Unlock()
		return res, nil
	}
}

// Sweep drops windows that reset more than grace ago and returns how many it removed.
func (c *MemoryCounter) Sweep(grace time.Duration) int {
	now := c.now()
	removed := 0
	c.store.Range(func(key, value interface{}) bool {
		w := value.(*window)
		w.mu.Lock()
		if now.Sub(w.start.Add(c.window)) > grace {
			w.dead = true
			c.store.Delete(key)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed
}

func (c *MemoryCounter) Len() int {
	n := 0
	c.store.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
