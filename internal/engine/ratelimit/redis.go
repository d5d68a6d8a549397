package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// The window starts when the key is created; its TTL is the time left until reset.
var fixedWindowScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '-1')
local window = tonumber(ARGV[2])
if count < 0 then
	redis.call('SET', KEYS[1], 0, 'PX', window)
	count = 0
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], window)
	ttl = window
end
if count < tonumber(ARGV[1]) then
	count = redis.call('INCR', KEYS[1])
	return {1, count, ttl}
end
return {0, count, ttl}
`)

// RedisCounter shares windows between nodes. Redis expiry recycles windows.
type RedisCounter struct {
	client redis.Scripter
	prefix string
	window time.Duration
	now    func() time.Time
}

func NewRedisCounter(client redis.Scripter, prefix string, window time.Duration) *RedisCounter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisCounter{client: client, prefix: prefix, window: window, now: time.Now}
}

// Connect accepts redis:// URLs or a bare host:port.
func Connect(ctx context.Context, redisURL string, dial, read, write time.Duration) (*redis.Client, error) {
	var opt *redis.Options
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: redisURL}
	}
	if dial > 0 {
		opt.DialTimeout = dial
	}
	if read > 0 {
		opt.ReadTimeout = read
	}
	if write > 0 {
		opt.WriteTimeout = write
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisCounter) CheckAndIncrement(ctx context.Context, key Key, ceiling int) (Result, error) {
	now := c.now()
	raw, err := fixedWindowScript.Run(ctx, c.client, []string{c.prefix + key.String()}, ceiling, c.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis fixed window: %w", err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("redis fixed window: unexpected reply %v", raw)
	}

	return Result{
		Allowed: raw[0] == 1,
		Count:   int(raw[1]),
		Ceiling: ceiling,
		ResetAt: now.Add(time.Duration(raw[2]) * time.Millisecond),
	}, nil
}
