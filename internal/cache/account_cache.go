package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fundledger/internal/config"
	"github.com/smallbiznis/fundledger/internal/ledger/domain"
	"go.uber.org/zap"
)

const keyLedgerAccount = "ledger:account:%d:%s"

// AccountCache stores resolved ledger accounts. Accounts never change after creation, so an
// entry is only ever stale by being absent.
type AccountCache interface {
	Get(ctx context.Context, orgID snowflake.ID, kind domain.AccountKind) (domain.LedgerAccount, bool)
	Set(ctx context.Context, account domain.LedgerAccount)
}

// NewAccountCache picks the redis cache when a client is configured.
func NewAccountCache(client *redis.Client, holder *config.LedgerConfigHolder, log *zap.Logger) AccountCache {
	if client != nil {
		return NewRedisAccountCache(client, holder, log)
	}
	return NewMemoryAccountCache(holder)
}

type memoryAccountCache struct {
	items  Cache[string, domain.LedgerAccount]
	holder *config.LedgerConfigHolder
}

func NewMemoryAccountCache(holder *config.LedgerConfigHolder) AccountCache {
	return &memoryAccountCache{
		items:  NewTTLCache[string, domain.LedgerAccount](),
		holder: holder,
	}
}

func (c *memoryAccountCache) Get(_ context.Context, orgID snowflake.ID, kind domain.AccountKind) (domain.LedgerAccount, bool) {
	return c.items.Get(accountKey(orgID, kind))
}

func (c *memoryAccountCache) Set(_ context.Context, account domain.LedgerAccount) {
	if account.ID == 0 {
		return
	}
	c.items.Set(accountKey(account.OrgID, account.Kind), account, accountTTL(c.holder))
}

type redisAccountCache struct {
	client *redis.Client
	holder *config.LedgerConfigHolder
	log    *zap.Logger
}

func NewRedisAccountCache(client *redis.Client, holder *config.LedgerConfigHolder, log *zap.Logger) AccountCache {
	return &redisAccountCache{
		client: client,
		holder: holder,
		log:    log.Named("ledger.account_cache"),
	}
}

// Get treats every redis failure as a miss; the database stays the source of truth.
func (c *redisAccountCache) Get(ctx context.Context, orgID snowflake.ID, kind domain.AccountKind) (domain.LedgerAccount, bool) {
	raw, err := c.client.Get(ctx, accountKey(orgID, kind)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("account cache read failed", zap.Error(err))
		}
		return domain.LedgerAccount{}, false
	}
	var account domain.LedgerAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		c.log.Warn("account cache entry corrupt", zap.Error(err))
		return domain.LedgerAccount{}, false
	}
	return account, true
}

func (c *redisAccountCache) Set(ctx context.Context, account domain.LedgerAccount) {
	if account.ID == 0 {
		return
	}
	raw, err := json.Marshal(account)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, accountKey(account.OrgID, account.Kind), raw, accountTTL(c.holder)).Err(); err != nil {
		c.log.Warn("account cache write failed", zap.Error(err))
	}
}

func accountKey(orgID snowflake.ID, kind domain.AccountKind) string {
	return fmt.Sprintf(keyLedgerAccount, orgID.Int64(), kind)
}

func accountTTL(holder *config.LedgerConfigHolder) time.Duration {
	if holder == nil {
		return config.DefaultLedgerConfig().AccountCacheTTL
	}
	return holder.Get().AccountCacheTTL
}
