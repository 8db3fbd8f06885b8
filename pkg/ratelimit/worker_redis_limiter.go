package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// RedisSlidingWindow - shared quota across worker processes
// =============================================================================

// slidingWindowScript admits a call if the ZSET holds fewer than max members
// younger than the window. Otherwise it returns the negative wait in ms.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)

	local count = redis.call('ZCARD', key)
	if count < max_requests then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms * 2)
		return 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		return -(oldest[2] + window_ms - now)
	end
	return -window_ms
`)

// RedisSlidingWindow enforces the window in Redis so that several processes
// sharing one API key share one budget. Redis errors fall back to the local window.
type RedisSlidingWindow struct {
	client   *redis.Client
	key      string
	max      int
	window   time.Duration
	fallback *SlidingWindow
	sleep    SleepFunc
}

// NewRedisSlidingWindow creates a Redis-backed limiter admitting max calls per window for the named quota.
func NewRedisSlidingWindow(client *redis.Client, name string, max int, window time.Duration) *RedisSlidingWindow {
	if max <= 0 {
		max = DefaultRequestsPerWindow
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisSlidingWindow{
		client:   client,
		key:      fmt.Sprintf("triage:ratelimit:%s", name),
		max:      max,
		window:   window,
		fallback: NewSlidingWindow(max, WithWindow(window)),
		sleep:    contextSleep,
	}
}

// Acquire blocks until Redis admits the call.
func (l *RedisSlidingWindow) Acquire(ctx context.Context) time.Duration {
	if l.client == nil {
		return l.fallback.Acquire(ctx)
	}

	member := uuid.NewString()
	var waited time.Duration
	for {
		result, err := slidingWindowScript.Run(ctx, l.client, []string{l.key},
			time.Now().UnixMilli(),
			l.window.Milliseconds(),
			l.max,
			member,
		).Int64()
		if err != nil {
			return waited + l.fallback.Acquire(ctx)
		}
		if result == 1 {
			return waited
		}

		wait := time.Duration(-result) * time.Millisecond
		if wait <= 0 {
			wait = time.Millisecond
		}
		if err := l.sleep(ctx, wait); err != nil {
			return waited
		}
		waited += wait
	}
}
