package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fundledger/internal/cache"
	"github.com/smallbiznis/fundledger/internal/clock"
	"github.com/smallbiznis/fundledger/internal/config"
	"github.com/smallbiznis/fundledger/internal/ledger/domain"
	"github.com/smallbiznis/fundledger/internal/ledger/repository"
	"github.com/smallbiznis/fundledger/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const orgID = snowflake.ID(42)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:registry_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := migration.ApplySQLite(context.Background(), db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db
}

type spyCache struct {
	mu   sync.Mutex
	rows map[string]domain.LedgerAccount
	sets int
}

func newSpyCache() *spyCache {
	return &spyCache{rows: map[string]domain.LedgerAccount{}}
}

func (c *spyCache) key(orgID snowflake.ID, kind domain.AccountKind) string {
	return orgID.String() + ":" + string(kind)
}

func (c *spyCache) Get(_ context.Context, orgID snowflake.ID, kind domain.AccountKind) (domain.LedgerAccount, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	account, ok := c.rows[c.key(orgID, kind)]
	return account, ok
}

func (c *spyCache) Set(_ context.Context, account domain.LedgerAccount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.rows[c.key(account.OrgID, account.Kind)] = account
}

func (c *spyCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

func newRegistry(t *testing.T, db *gorm.DB, repo domain.Repository, accountCache cache.AccountCache, holder *config.LedgerConfigHolder) *Registry {
	t.Helper()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	if repo == nil {
		repo = repository.Provide()
	}
	if accountCache == nil {
		accountCache = newSpyCache()
	}
	return New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repo,
		Clock:  clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Cache:  accountCache,
		Config: holder,
	})
}

func countAccounts(t *testing.T, db *gorm.DB, kind domain.AccountKind) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(1) FROM ledger_accounts WHERE org_id = ? AND kind = ?`, orgID, kind).Scan(&count).Error)
	return count
}

func TestEnsureAccountProvisionsOnce(t *testing.T) {
	db := setupDB(t)
	reg := newRegistry(t, db, nil, nil, nil)
	ctx := context.Background()

	first, err := reg.EnsureAccount(ctx, orgID, domain.AccountKindOperating)
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, "Operating", first.Name)
	assert.True(t, first.IsSystem)

	second, err := reg.EnsureAccount(ctx, orgID, domain.AccountKindOperating)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), countAccounts(t, db, domain.AccountKindOperating))
}

func TestEnsureAccountRejectsInvalidInput(t *testing.T) {
	reg := newRegistry(t, setupDB(t), nil, nil, nil)
	ctx := context.Background()

	_, err := reg.EnsureAccount(ctx, 0, domain.AccountKindOperating)
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)

	_, err = reg.EnsureAccount(ctx, orgID, domain.AccountKind("SAVINGS"))
	assert.ErrorIs(t, err, domain.ErrInvalidAccountKind)
}

func TestEnsureAccountConcurrentCallersConverge(t *testing.T) {
	db := setupDB(t)
	reg := newRegistry(t, db, nil, nil, nil)
	ctx := context.Background()

	const callers = 50
	ids := make([]snowflake.ID, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			account, err := reg.EnsureAccount(ctx, orgID, domain.AccountKindOperating)
			ids[i] = account.ID
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, int64(1), countAccounts(t, db, domain.AccountKindOperating))
}

func TestEnsureAccountsKeepsInputOrder(t *testing.T) {
	db := setupDB(t)
	reg := newRegistry(t, db, nil, nil, nil)

	kinds := []domain.AccountKind{
		domain.AccountKindProcessorClearing,
		domain.AccountKindOperating,
		domain.AccountKindProcessorClearing,
	}
	accounts, err := reg.EnsureAccounts(context.Background(), orgID, kinds)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, domain.AccountKindProcessorClearing, accounts[0].Kind)
	assert.Equal(t, domain.AccountKindOperating, accounts[1].Kind)
	assert.Equal(t, accounts[0].ID, accounts[2].ID)
	assert.Equal(t, int64(1), countAccounts(t, db, domain.AccountKindProcessorClearing))
}

func TestEnsureAccountUsesConfiguredLabel(t *testing.T) {
	cfg := config.DefaultLedgerConfig()
	cfg.AccountLabels = map[string]string{"operating": "Main Operating"}
	reg := newRegistry(t, setupDB(t), nil, nil, config.StaticLedgerConfigHolder(cfg))

	account, err := reg.EnsureAccount(context.Background(), orgID, domain.AccountKindOperating)
	require.NoError(t, err)
	assert.Equal(t, "Main Operating", account.Name)

	other, err := reg.EnsureAccount(context.Background(), orgID, domain.AccountKindPayouts)
	require.NoError(t, err)
	assert.Equal(t, "Payouts", other.Name)
}

func TestWithTxCachesOnlyAfterCommit(t *testing.T) {
	db := setupDB(t)
	spy := newSpyCache()
	reg := newRegistry(t, db, nil, spy, nil)
	ctx := context.Background()

	rolledBack := db.Transaction(func(tx *gorm.DB) error {
		bound := reg.WithTx(tx)
		_, err := bound.EnsureAccount(ctx, orgID, domain.AccountKindRefunds)
		require.NoError(t, err)
		return fmt.Errorf("abort")
	})
	require.Error(t, rolledBack)
	assert.Equal(t, int64(0), countAccounts(t, db, domain.AccountKindRefunds))
	assert.Equal(t, 0, spy.len())

	var bound domain.AccountRegistry
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		bound = reg.WithTx(tx)
		_, err := bound.EnsureAccount(ctx, orgID, domain.AccountKindRefunds)
		return err
	}))
	assert.Equal(t, 0, spy.len())

	Committed(ctx, bound)
	cached, ok := spy.Get(ctx, orgID, domain.AccountKindRefunds)
	require.True(t, ok)
	assert.Equal(t, int64(1), countAccounts(t, db, domain.AccountKindRefunds))
	assert.NotZero(t, cached.ID)
}

// conflictRepo simulates a concurrent writer winning between the read and the insert.
type conflictRepo struct {
	domain.Repository
	winner domain.LedgerAccount
	finds  int
}

func (r *conflictRepo) FindAccount(context.Context, *gorm.DB, snowflake.ID, domain.AccountKind) (*domain.LedgerAccount, error) {
	r.finds++
	if r.finds == 1 {
		return nil, nil
	}
	winner := r.winner
	return &winner, nil
}

func (r *conflictRepo) InsertAccount(context.Context, *gorm.DB, *domain.LedgerAccount) (bool, error) {
	return false, nil
}

func TestEnsureAccountRereadsAfterConflict(t *testing.T) {
	repo := &conflictRepo{winner: domain.LedgerAccount{ID: 900, OrgID: orgID, Kind: domain.AccountKindPayouts, Name: "Payouts"}}
	spy := newSpyCache()
	reg := newRegistry(t, nil, repo, spy, nil)

	account, err := reg.EnsureAccount(context.Background(), orgID, domain.AccountKindPayouts)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(900), account.ID)
	assert.Equal(t, 2, repo.finds)

	cached, ok := spy.Get(context.Background(), orgID, domain.AccountKindPayouts)
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(900), cached.ID)
}
