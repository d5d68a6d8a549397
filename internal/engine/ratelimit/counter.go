// Package ratelimit implements fixed-window request counters keyed by principal and endpoint.
//
// A window opens on the first request for a key and lasts Window. Inside it the count
// never exceeds the ceiling; afterwards the next request opens a fresh window at zero.
// Nothing carries over, so a client can spend up to twice the ceiling across a boundary.
package ratelimit

import (
	"context"
	"time"
)

const DefaultWindow = time.Hour

// Key identifies one window. The same principal holds independent windows per endpoint.
type Key struct {
	Principal string
	Endpoint  string
}

func (k Key) String() string {
	return k.Principal + "|" + k.Endpoint
}

type Result struct {
	Allowed bool
	// Count is the number of requests admitted in the current window, this one included.
	Count   int
	Ceiling int
	ResetAt time.Time
}

func (r Result) Remaining() int {
	if r.Count >= r.Ceiling {
		return 0
	}
	return r.Ceiling - r.Count
}

// RetryAfter is the wait until the window resets, rounded up to whole seconds.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	if d%time.Second == 0 {
		return d
	}
	return d.Truncate(time.Second) + time.Second
}

// Counter atomically checks a key against its ceiling and counts the request if allowed.
type Counter interface {
	CheckAndIncrement(ctx context.Context, key Key, ceiling int) (Result, error)
}
