package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  local refill = (delta / 1000) * rate
  tokens = math.min(burst, tokens + refill)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tokens, ts}
`

var (
	ErrBucketUnavailable = errors.New("rate_limiter_unavailable")
	ErrBucketConfig      = errors.New("rate_limiter_config_invalid")
	errBucketReply       = errors.New("rate_limiter_bad_reply")
)

// TokenBucket is a redis-side token bucket shared by every replica. Refill and take run in one
// script, so concurrent requests for the same key never overspend.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

// RateLimitResult describes one admission decision.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(tokenBucketScript)}
}

// Allow takes one token from key, refilled at rate per second up to burst.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	denied := &RateLimitResult{}
	if t == nil || t.client == nil {
		return denied, ErrBucketUnavailable
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return denied, ErrBucketConfig
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		rate,
		burst,
		bucketTTL(rate, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return denied, err
	}
	if len(reply) != 3 {
		return denied, errBucketReply
	}

	// redis truncates the fractional token count, so a denied caller waits for a whole token.
	allowed, tokens, refilledAt := reply[0] == 1, reply[1], reply[2]
	result := &RateLimitResult{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: int(tokens),
		ResetTime: time.UnixMilli(refilledAt),
	}
	if !allowed {
		result.RetryAfter = time.Duration(float64(1-tokens) / rate * float64(time.Second))
		result.ResetTime = result.ResetTime.Add(result.RetryAfter)
	}
	return result, nil
}

// bucketTTL keeps an idle bucket around for twice the time it takes to refill from empty.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}
