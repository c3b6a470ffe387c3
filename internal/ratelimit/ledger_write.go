package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fundledger/internal/config"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const keyLedgerWriteOrg = "ledger:write:org:%s"

// LedgerWriteLimiter bounds recording calls per organization. It uses the shared redis token
// bucket when redis is configured and a process-local ulule limiter otherwise.
type LedgerWriteLimiter struct {
	enabled bool

	bucket *TokenBucket
	memory *limiter.Limiter

	rate  float64
	burst int
}

func NewLedgerWriteLimiter(cfg config.Config, client *redis.Client) (*LedgerWriteLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return &LedgerWriteLimiter{}, nil
	}
	if limitCfg.Rate <= 0 || limitCfg.Burst <= 0 {
		return nil, fmt.Errorf("ledger write rate limit must be positive")
	}

	l := &LedgerWriteLimiter{
		enabled: true,
		rate:    limitCfg.Rate,
		burst:   limitCfg.Burst,
	}
	if client != nil {
		l.bucket = NewTokenBucket(client)
		return l, nil
	}

	l.memory = limiter.New(memory.NewStore(), fallbackRate(limitCfg.Rate, limitCfg.Burst))
	return l, nil
}

// fallbackRate maps the token bucket onto ulule's fixed window: a window lets burst requests
// through and lasts as long as the bucket takes to refill from empty, so both limiters admit the
// same burst and the same sustained rate.
func fallbackRate(rate float64, burst int) limiter.Rate {
	period := time.Duration(float64(burst) / rate * float64(time.Second))
	if period < time.Millisecond {
		period = time.Millisecond
	}
	return limiter.Rate{Period: period, Limit: int64(burst)}
}

func (l *LedgerWriteLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *LedgerWriteLimiter) AllowOrg(ctx context.Context, orgID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyLedgerWriteOrg, strings.TrimSpace(orgID))
	if l.bucket != nil {
		return l.bucket.Allow(ctx, key, l.rate, l.burst)
	}

	res, err := l.memory.Get(ctx, key)
	if err != nil {
		return &RateLimitResult{Allowed: false}, err
	}
	reset := time.Unix(res.Reset, 0)
	result := &RateLimitResult{
		Allowed:   !res.Reached,
		Limit:     int(res.Limit),
		Remaining: int(res.Remaining),
		ResetTime: reset,
	}
	if res.Reached {
		result.RetryAfter = time.Until(reset)
	}
	return result, nil
}
