package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fundledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerWriteLimiterDisabledAllowsEverything(t *testing.T) {
	l, err := NewLedgerWriteLimiter(config.Config{}, nil)
	require.NoError(t, err)

	res, err := l.AllowOrg(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.False(t, l.Enabled())
}

func TestLedgerWriteLimiterMemoryFallback(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, Rate: 1, Burst: 2}}
	l, err := NewLedgerWriteLimiter(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := l.AllowOrg(ctx, "42")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.AllowOrg(ctx, "42")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)

	other, err := l.AllowOrg(ctx, "43")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestLedgerWriteLimiterRedisBucket(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, Rate: 50, Burst: 100}}
	l, err := NewLedgerWriteLimiter(cfg, client)
	require.NoError(t, err)

	sha := redis.NewScript(tokenBucketScript).Hash()
	mock.ExpectEvalSha(sha, []string{"ledger:write:org:7"}, float64(50), 100, int64(4000)).
		SetVal([]interface{}{int64(0), int64(0), int64(1_700_000_000_000)})

	res, err := l.AllowOrg(context.Background(), "7")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 100, res.Limit)
	assert.Equal(t, 20*time.Millisecond, res.RetryAfter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerTryLockAndRelease(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewLocker(client)

	mock.Regexp().ExpectSetNX("ledger:relay:leader", `.+`, 30*time.Second).SetVal(true)

	token, ok, err := locker.TryLock(context.Background(), "ledger:relay:leader", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	sha := redis.NewScript(lockReleaseScript).Hash()
	mock.ExpectEvalSha(sha, []string{"ledger:relay:leader"}, token).SetVal(int64(1))
	require.NoError(t, locker.Release(context.Background(), "ledger:relay:leader", token))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerExtendAndValidation(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewLocker(client)
	ctx := context.Background()

	sha := redis.NewScript(lockExtendScript).Hash()
	mock.ExpectEvalSha(sha, []string{"ledger:relay:leader"}, "tok", int64(30000)).SetVal(int64(1))
	mock.ExpectEvalSha(sha, []string{"ledger:relay:leader"}, "stale", int64(30000)).SetVal(int64(0))

	held, err := locker.Extend(ctx, "ledger:relay:leader", "tok", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, held)

	held, err = locker.Extend(ctx, "ledger:relay:leader", "stale", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, held)
	require.NoError(t, mock.ExpectationsWereMet())

	_, _, err = locker.TryLock(ctx, "", time.Second)
	assert.ErrorIs(t, err, ErrLockKey)
	_, _, err = locker.TryLock(ctx, "k", 0)
	assert.ErrorIs(t, err, ErrLockTTL)

	var missing *Locker
	_, _, err = missing.TryLock(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.NoError(t, missing.Release(ctx, "k", "tok"))
}

func TestFallbackRateMatchesTokenBucket(t *testing.T) {
	rate := fallbackRate(50, 100)
	assert.Equal(t, 2*time.Second, rate.Period)
	assert.Equal(t, int64(100), rate.Limit)

	rate = fallbackRate(0.5, 3)
	assert.Equal(t, 6*time.Second, rate.Period)
	assert.Equal(t, int64(3), rate.Limit)

	rate = fallbackRate(1e9, 1)
	assert.Equal(t, time.Millisecond, rate.Period)
}
