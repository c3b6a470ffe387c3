package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/smallbiznis/fundledger/internal/clock"
	"github.com/smallbiznis/fundledger/internal/config"
	"github.com/smallbiznis/fundledger/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTTLCacheExpires(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCacheWithClock[string, int](fake.Now)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	fake.Advance(2 * time.Minute)

	_, ok = c.Get("a")
	assert.False(t, ok)
	v, ok = c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func testAccount() domain.LedgerAccount {
	return domain.LedgerAccount{
		ID:        1001,
		OrgID:     7,
		Kind:      domain.AccountKindOperating,
		Name:      "Operating",
		IsSystem:  true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryAccountCache(t *testing.T) {
	c := NewMemoryAccountCache(config.StaticLedgerConfigHolder(config.DefaultLedgerConfig()))
	ctx := context.Background()

	_, ok := c.Get(ctx, 7, domain.AccountKindOperating)
	assert.False(t, ok)

	c.Set(ctx, testAccount())
	c.Set(ctx, domain.LedgerAccount{OrgID: 7, Kind: domain.AccountKindPayouts})

	got, ok := c.Get(ctx, 7, domain.AccountKindOperating)
	require.True(t, ok)
	assert.Equal(t, testAccount(), got)

	_, ok = c.Get(ctx, 7, domain.AccountKindPayouts)
	assert.False(t, ok, "accounts without an id are never cached")
}

func TestRedisAccountCache(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisAccountCache(client, config.StaticLedgerConfigHolder(config.DefaultLedgerConfig()), zap.NewNop())
	ctx := context.Background()
	account := testAccount()
	raw, err := json.Marshal(account)
	require.NoError(t, err)

	mock.ExpectGet("ledger:account:7:OPERATING").RedisNil()
	mock.ExpectSet("ledger:account:7:OPERATING", raw, 10*time.Minute).SetVal("OK")
	mock.ExpectGet("ledger:account:7:OPERATING").SetVal(string(raw))

	_, ok := c.Get(ctx, 7, domain.AccountKindOperating)
	assert.False(t, ok)

	c.Set(ctx, account)

	got, ok := c.Get(ctx, 7, domain.AccountKindOperating)
	require.True(t, ok)
	assert.Equal(t, account, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisAccountCacheTreatsErrorsAsMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisAccountCache(client, nil, zap.NewNop())

	mock.ExpectGet("ledger:account:7:REFUNDS").SetErr(assert.AnError)

	_, ok := c.Get(context.Background(), 7, domain.AccountKindRefunds)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
