package ratelimit

import (
	"context"

	"github.com/rs/zerolog/log"
)

// FallbackCounter answers from a local counter while the shared one is failing.
// Nodes then count independently, so overshoot is bounded by the node count.
type FallbackCounter struct {
	primary  Counter
	fallback Counter
}

func NewFallbackCounter(primary, fallback Counter) *FallbackCounter {
	return &FallbackCounter{primary: primary, fallback: fallback}
}

func (c *FallbackCounter) CheckAndIncrement(ctx context.Context, key Key, ceiling int) (Result, error) {
	res, err := c.primary.CheckAndIncrement(ctx, key, ceiling)
	if err == nil {
		return res, nil
	}

	log.Warn().Err(err).Str("endpoint", key.Endpoint).Msg("shared rate limit store failed, using local counter")
	return c.fallback.CheckAndIncrement(ctx, key, ceiling)
}
