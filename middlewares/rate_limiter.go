package middlewares

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/yeremiapane/waitercall/utils"
)

// LimitDecision is one sliding-window verdict, with the metadata the 429
// response carries.
type LimitDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// WindowLimiter decides whether a client key may proceed.
type WindowLimiter interface {
	Allow(ctx context.Context, key string) (LimitDecision, error)
}

// MemoryLimiter keeps the per-key sliding window in process memory.
type MemoryLimiter struct {
	limit     int
	window    time.Duration
	keys      map[string][]time.Time
	lastPrune time.Time
	mu        sync.Mutex
	now       func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		keys:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (LimitDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	l.pruneLocked(now, cutoff)

	valid := make([]time.Time, 0, len(l.keys[key]))
	for _, t := range l.keys[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= l.limit {
		l.keys[key] = valid
		return LimitDecision{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   valid[0].Add(l.window),
		}, nil
	}

	valid = append(valid, now)
	l.keys[key] = valid
	return LimitDecision{
		Allowed:   true,
		Remaining: l.limit - len(valid),
		ResetAt:   now.Add(l.window),
	}, nil
}

// pruneLocked drops clients whose every hit has left the window, at most once
// per window, so the map does not grow with every IP ever seen. Caller holds
// l.mu.
func (l *MemoryLimiter) pruneLocked(now, cutoff time.Time) {
	if now.Sub(l.lastPrune) < l.window {
		return
	}
	l.lastPrune = now

	for key, hits := range l.keys {
		idx := 0
		for _, t := range hits {
			if t.After(cutoff) {
				hits[idx] = t
				idx++
			}
		}
		if idx == 0 {
			delete(l.keys, key)
		} else {
			l.keys[key] = hits[:idx]
		}
	}
}

// RedisLimiter keeps the sliding window in a redis sorted set so the limit
// holds across instances.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// slidingWindow trims, counts and conditionally records one hit in a single
// atomic script: concurrent requests racing the same key cannot both slip
// past the limit. Returns {allowed, remaining, reset_at_ms}; when denied,
// reset_at is the oldest surviving hit plus the window.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local reset = now + window
	if oldest[2] then
		reset = tonumber(oldest[2]) + window
	end
	return {0, 0, reset}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, limit - count - 1, now + window}
`)

func (l *RedisLimiter) Allow(ctx context.Context, key string) (LimitDecision, error) {
	now := l.now()
	res, err := slidingWindow.Run(ctx, l.client, []string{"ratelimit:" + key},
		now.UnixMilli(), l.window.Milliseconds(), int64(l.limit),
		strconv.FormatInt(now.UnixNano(), 10)).Int64Slice()
	if err != nil {
		return LimitDecision{}, err
	}
	if len(res) != 3 {
		return LimitDecision{}, fmt.Errorf("unexpected limiter reply: %v", res)
	}

	return LimitDecision{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}

// RateLimit guards call creation per client IP. On a limiter failure the
// request passes: losing a call over a broken limiter is the worse outcome.
func RateLimit(limiter WindowLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			utils.ErrorLogger.Printf("rate limiter failed for %s: %v", c.ClientIP(), err)
			c.Next()
			return
		}

		if !decision.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":     "too many requests",
				"remaining": decision.Remaining,
				"reset_at":  decision.ResetAt.UTC().Format(time.RFC3339),
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Next()
	}
}

// NewStrictRateLimiter throttles rarely-hit endpoints like subscription
// registration.
func NewStrictRateLimiter() gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Every(time.Minute/5), 5)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			utils.RespondError(c, http.StatusTooManyRequests, fmt.Errorf("too many attempts, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
