package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fundledger/internal/cache"
	"github.com/smallbiznis/fundledger/internal/clock"
	"github.com/smallbiznis/fundledger/internal/config"
	"github.com/smallbiznis/fundledger/internal/ledger/domain"
	"github.com/smallbiznis/fundledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Cache   cache.AccountCache
	Config  *config.LedgerConfigHolder `optional:"true"`
	Metrics *metrics.Metrics           `optional:"true"`
}

// Registry resolves the canonical account of each kind for an organization, provisioning it on
// first use. Provisioning is an INSERT ... ON CONFLICT DO NOTHING against the (org_id, kind)
// unique key followed by a re-read, so concurrent callers converge on one row.
type Registry struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	cache   cache.AccountCache
	cfg     *config.LedgerConfigHolder
	metrics *metrics.Metrics

	// tx is set when bound to an open transaction. Rows inserted through it stay out of the
	// cache until they are known to be committed.
	tx *txState
}

type txState struct {
	mu      sync.Mutex
	created []domain.LedgerAccount
}

func New(p Params) *Registry {
	return &Registry{
		db:      p.DB,
		log:     p.Log.Named("ledger.registry"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   p.Clock,
		cache:   p.Cache,
		cfg:     p.Config,
		metrics: p.Metrics,
	}
}

func Provide(r *Registry) domain.AccountRegistry {
	return r
}

func (r *Registry) WithTx(tx *gorm.DB) domain.AccountRegistry {
	clone := *r
	clone.db = tx
	clone.tx = &txState{}
	return &clone
}

// Committed caches the accounts provisioned through a transaction-bound registry. Callers invoke
// it after the transaction commits.
func Committed(ctx context.Context, reg domain.AccountRegistry) {
	bound, ok := reg.(*Registry)
	if !ok || bound.tx == nil {
		return
	}
	bound.tx.mu.Lock()
	created := bound.tx.created
	bound.tx.created = nil
	bound.tx.mu.Unlock()
	for _, account := range created {
		bound.cache.Set(ctx, account)
	}
}

func (r *Registry) EnsureAccount(ctx context.Context, orgID snowflake.ID, kind domain.AccountKind) (domain.LedgerAccount, error) {
	if orgID == 0 {
		return domain.LedgerAccount{}, domain.ErrInvalidOrganization
	}
	if !kind.Valid() {
		return domain.LedgerAccount{}, domain.ErrInvalidAccountKind
	}

	if account, ok := r.cache.Get(ctx, orgID, kind); ok {
		return account, nil
	}

	existing, err := r.repo.FindAccount(ctx, r.db, orgID, kind)
	if err != nil {
		return domain.LedgerAccount{}, err
	}
	if existing != nil {
		r.remember(ctx, *existing)
		return *existing, nil
	}

	account := domain.LedgerAccount{
		ID:        r.genID.Generate(),
		OrgID:     orgID,
		Kind:      kind,
		Name:      r.label(kind),
		IsSystem:  true,
		CreatedAt: r.clock.Now(),
	}
	created, err := r.repo.InsertAccount(ctx, r.db, &account)
	if err != nil {
		return domain.LedgerAccount{}, err
	}
	if created {
		r.metrics.RecordAccountProvisioned(ctx, string(kind))
		r.log.Info("ledger account provisioned",
			zap.String("org_id", orgID.String()),
			zap.String("kind", string(kind)),
			zap.String("account_id", account.ID.String()),
		)
		if r.tx != nil {
			r.tx.mu.Lock()
			r.tx.created = append(r.tx.created, account)
			r.tx.mu.Unlock()
		} else {
			r.cache.Set(ctx, account)
		}
		return account, nil
	}

	// A concurrent caller inserted the row between our read and our insert.
	winner, err := r.repo.FindAccount(ctx, r.db, orgID, kind)
	if err != nil {
		return domain.LedgerAccount{}, err
	}
	if winner == nil {
		return domain.LedgerAccount{}, fmt.Errorf("%w: %s for org %s after insert conflict", domain.ErrAccountNotFound, kind, orgID)
	}
	r.log.Debug("ledger account provisioned concurrently",
		zap.String("org_id", orgID.String()),
		zap.String("kind", string(kind)),
	)
	r.remember(ctx, *winner)
	return *winner, nil
}

// EnsureAccounts provisions kinds in sorted order so concurrent recorders take row locks in the
// same sequence. Results follow the order of kinds; duplicates resolve to the same account.
func (r *Registry) EnsureAccounts(ctx context.Context, orgID snowflake.ID, kinds []domain.AccountKind) ([]domain.LedgerAccount, error) {
	ordered := make([]domain.AccountKind, 0, len(kinds))
	seen := make(map[domain.AccountKind]struct{}, len(kinds))
	for _, kind := range kinds {
		if _, ok := seen[kind]; ok {
			continue
		}
		seen[kind] = struct{}{}
		ordered = append(ordered, kind)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	resolved := make(map[domain.AccountKind]domain.LedgerAccount, len(ordered))
	for _, kind := range ordered {
		account, err := r.EnsureAccount(ctx, orgID, kind)
		if err != nil {
			return nil, err
		}
		resolved[kind] = account
	}

	out := make([]domain.LedgerAccount, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, resolved[kind])
	}
	return out, nil
}

// remember caches rows read from the store. Inside a transaction the row may be one this
// transaction inserted earlier, so only committed reads are cached.
func (r *Registry) remember(ctx context.Context, account domain.LedgerAccount) {
	if r.tx != nil {
		r.tx.mu.Lock()
		defer r.tx.mu.Unlock()
		for _, created := range r.tx.created {
			if created.ID == account.ID {
				return
			}
		}
	}
	r.cache.Set(ctx, account)
}

func (r *Registry) label(kind domain.AccountKind) string {
	if r.cfg != nil {
		labels := r.cfg.Get().AccountLabels
		for _, key := range []string{strings.ToLower(string(kind)), string(kind)} {
			if label := strings.TrimSpace(labels[key]); label != "" {
				return label
			}
		}
	}
	return kind.Label()
}
