package events

import (
	"context"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fundledger/internal/ratelimit"
	"github.com/smallbiznis/fundledger/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ledger.events",
	fx.Provide(
		NewOutbox,
		providePublisher,
		provideLeaderLock,
		provideRelayMetrics,
		NewRelay,
	),
	fx.Invoke(startRelay),
)

func providePublisher(client *redis.Client, log *zap.Logger) Publisher {
	if client == nil {
		return NewLogPublisher(log.Named("ledger.events"))
	}
	return NewRedisStreamPublisher(client, DefaultStream)
}

// provideLeaderLock keeps a nil *Locker from becoming a non-nil interface.
func provideLeaderLock(locker *ratelimit.Locker) LeaderLock {
	if locker == nil {
		return nil
	}
	return locker
}

func provideRelayMetrics() *telemetry.Metrics {
	return telemetry.NewMetrics(nil)
}

func startRelay(lc fx.Lifecycle, relay *Relay) {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			wg.Add(1)
			go func() {
				defer wg.Done()
				relay.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			wg.Wait()
			return nil
		},
	})
}
