package events

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/fundledger/internal/clock"
	"github.com/smallbiznis/fundledger/internal/config"
	"github.com/smallbiznis/fundledger/internal/observability/metrics"
	"github.com/smallbiznis/fundledger/internal/observability/tracing"
	"github.com/smallbiznis/fundledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const relayLockKey = "fundledger:ledger-events:relay"

// LeaderLock elects a single relaying replica.
type LeaderLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

type RelayParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Publisher  Publisher
	Clock      clock.Clock
	Config     *config.LedgerConfigHolder
	Lock       LeaderLock         `optional:"true"`
	Metrics    *metrics.Metrics   `optional:"true"`
	PromMetric *telemetry.Metrics `optional:"true"`
}

// Relay moves committed outbox rows to the publisher in id order and marks them published.
type Relay struct {
	db        *gorm.DB
	log       *zap.Logger
	publisher Publisher
	clock     clock.Clock
	cfg       *config.LedgerConfigHolder
	lock      LeaderLock
	metrics   *metrics.Metrics
	prom      *telemetry.Metrics
}

func NewRelay(p RelayParams) *Relay {
	return &Relay{
		db:        p.DB,
		log:       p.Log.Named("ledger.relay"),
		publisher: p.Publisher,
		clock:     p.Clock,
		cfg:       p.Config,
		lock:      p.Lock,
		metrics:   p.Metrics,
		prom:      p.PromMetric,
	}
}

func (r *Relay) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Get().Relay.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("ledger event relay failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ticker.Reset(r.cfg.Get().Relay.Interval)
		}
	}
}

// RunOnce relays at most one batch and returns how many events were published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.relay_batch")
	published, err := r.relayBatch(ctx)
	span.SetAttributes(attribute.Int("ledger.events_published", published))
	tracing.EndSpan(span, err)
	return published, err
}

func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	if r.db == nil || r.publisher == nil {
		return 0, errors.New("relay_unavailable")
	}
	cfg := r.cfg.Get().Relay

	var lease *relayLease
	if r.lock != nil {
		token, ok, err := r.lock.TryLock(ctx, relayLockKey, cfg.LockTTL)
		if err != nil {
			return 0, err
		}
		r.prom.RecordRelayLock(ok)
		if !ok {
			return 0, nil
		}
		lease = &relayLease{token: token, ttl: cfg.LockTTL, renewedAt: time.Now()}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx), relayLockKey, token); err != nil {
				r.log.Warn("release relay lock failed", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	var pending []Record
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, event_type, payload, dedupe_key, published_at, created_at
		 FROM ledger_events
		 WHERE published_at IS NULL
		 ORDER BY id
		 LIMIT ?`,
		cfg.BatchSize,
	).Scan(&pending).Error
	if err != nil {
		return 0, err
	}

	published := 0
	var publishErr error
	for _, record := range pending {
		held, err := r.renew(ctx, lease)
		if err != nil {
			publishErr = err
			break
		}
		if !held {
			r.log.Warn("relay lock lost mid-batch", zap.Int("published", published))
			break
		}
		if err := r.publisher.Publish(ctx, record); err != nil {
			// Stop at the first failure so events leave in id order.
			publishErr = err
			break
		}
		if err := r.markPublished(ctx, record); err != nil {
			publishErr = err
			break
		}
		published++
	}

	status := "published"
	if publishErr != nil {
		status = "failed"
		r.metrics.RecordOutboxPublished(ctx, "failed", 1)
	}
	r.metrics.RecordOutboxPublished(ctx, "published", published)
	r.prom.RecordOutboxBatch(status, published, time.Since(start))
	r.prom.SetOutboxBacklog(float64(len(pending) - published))

	if published > 0 {
		r.log.Debug("ledger events relayed", zap.Int("count", published))
	}
	return published, publishErr
}

type relayLease struct {
	token     string
	ttl       time.Duration
	renewedAt time.Time
}

// renew extends the leader lease once half of it has elapsed. Without a lock every call holds.
func (r *Relay) renew(ctx context.Context, lease *relayLease) (bool, error) {
	if lease == nil || time.Since(lease.renewedAt) < lease.ttl/2 {
		return true, nil
	}
	held, err := r.lock.Extend(ctx, relayLockKey, lease.token, lease.ttl)
	if err != nil || !held {
		return false, err
	}
	lease.renewedAt = time.Now()
	return true, nil
}

func (r *Relay) markPublished(ctx context.Context, record Record) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE ledger_events
		 SET published_at = ?
		 WHERE id = ? AND published_at IS NULL`,
		r.clock.Now(),
		record.ID,
	).Error
}
