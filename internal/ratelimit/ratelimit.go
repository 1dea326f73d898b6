// Package ratelimit throttles outbound calls to the commerce and ad
// platforms. A Redis-backed limiter coordinates across processes when
// Redis is configured; otherwise an in-process interval throttle keeps a
// single task under the per-host budget.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HostLimit defines the request budget for one external API host.
type HostLimit struct {
	RequestsPerSecond int
	RequestsPerMinute int
	MinInterval       time.Duration
}

// HostLimits holds the per-host budgets. Shopify REST allows 2 rps on
// standard plans; Pinterest v5 is more generous but pin creation is
// throttled separately to one every 500ms.
var HostLimits = map[string]HostLimit{
	"shopify":       {RequestsPerSecond: 2, RequestsPerMinute: 100, MinInterval: 500 * time.Millisecond},
	"pinterest":     {RequestsPerSecond: 5, RequestsPerMinute: 250, MinInterval: 300 * time.Millisecond},
	"pinterest-pin": {RequestsPerSecond: 2, RequestsPerMinute: 60, MinInterval: 500 * time.Millisecond},
	"openai":        {RequestsPerSecond: 1, RequestsPerMinute: 30, MinInterval: time.Second},
}

// Lua script for atomic two-window rate limit check.
// Checks both windows before incrementing so a denied call consumes no budget.
const hostLimitLuaScript = `
local secondKey = KEYS[1]
local minuteKey = KEYS[2]
local secondLimit = tonumber(ARGV[1])
local minuteLimit = tonumber(ARGV[2])

local secCurrent = tonumber(redis.call("GET", secondKey) or "0")
local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")

if secCurrent + 1 > secondLimit then
    return {0, 1}
end
if minCurrent + 1 > minuteLimit then
    return {0, 2}
end

local newSec = redis.call("INCR", secondKey)
if newSec == 1 then
    redis.call("EXPIRE", secondKey, 2)
end

local newMin = redis.call("INCR", minuteKey)
if newMin == 1 then
    redis.call("EXPIRE", minuteKey, 120)
end

return {1, 0}
`

// Limiter gates outbound requests per API host.
type Limiter struct {
	redis      *redis.Client
	hostScript *redis.Script

	mu       sync.Mutex
	lastCall map[string]time.Time
}

// NewLimiter creates a limiter. redisClient may be nil, in which case
// only the in-process interval throttle applies.
func NewLimiter(redisClient *redis.Client) *Limiter {
	return &Limiter{
		redis:      redisClient,
		hostScript: redis.NewScript(hostLimitLuaScript),
		lastCall:   make(map[string]time.Time),
	}
}

// Wait blocks until a request to the given host is within budget, or the
// context is done. It always enforces the host's minimum interval locally;
// with Redis it additionally checks the shared per-second and per-minute
// windows.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	limit, ok := HostLimits[host]
	if !ok {
		return fmt.Errorf("ratelimit: unknown host %q", host)
	}

	if err := l.waitInterval(ctx, host, limit.MinInterval); err != nil {
		return err
	}

	if l.redis == nil {
		return nil
	}

	for {
		allowed, wait, err := l.checkRedis(ctx, host, limit)
		if err != nil {
			// Redis trouble must not stall the pipelines; the local
			// interval throttle still applies.
			return nil
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (l *Limiter) waitInterval(ctx context.Context, host string, interval time.Duration) error {
	l.mu.Lock()
	last := l.lastCall[host]
	now := time.Now()
	wait := interval - now.Sub(last)
	if wait < 0 {
		wait = 0
	}
	l.lastCall[host] = now.Add(wait)
	l.mu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) checkRedis(ctx context.Context, host string, limit HostLimit) (allowed bool, wait time.Duration, err error) {
	now := time.Now()
	secondKey := fmt.Sprintf("ratelimit:%s:sec:%d", host, now.Unix())
	minuteKey := fmt.Sprintf("ratelimit:%s:min:%d", host, now.Unix()/60)

	result, err := l.hostScript.Run(ctx, l.redis,
		[]string{secondKey, minuteKey},
		limit.RequestsPerSecond,
		limit.RequestsPerMinute,
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowedInt := result[0].(int64)
	denialReason := result[1].(int64)

	if allowedInt == 1 {
		return true, 0, nil
	}
	switch denialReason {
	case 1:
		return false, time.Second, nil
	default:
		return false, time.Duration(60-now.Second()) * time.Second, nil
	}
}
