package events

import (
	"context"
	"encoding/json"
	"sort"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fundledger/internal/observability/tracing"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	DefaultStream       = "fundledger:ledger-events"
	defaultStreamMaxLen = 100_000
)

// Publisher hands a relayed event to downstream consumers. Delivery is at-least-once; consumers
// dedupe on event_id.
type Publisher interface {
	Publish(ctx context.Context, record Record) error
}

// RedisStreamPublisher appends events to a capped redis stream.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: defaultStreamMaxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return err
	}
	values := []interface{}{
		"event_id", record.ID.String(),
		"org_id", record.OrgID.String(),
		"event_type", record.EventType,
		"payload", string(payload),
	}

	// Trace context rides along as extra fields (traceparent, baggage) so consumers can continue
	// the relay's trace.
	carrier := propagation.MapCarrier{}
	tracing.InjectContext(ctx, carrier)
	keys := carrier.Keys()
	sort.Strings(keys)
	for _, key := range keys {
		values = append(values, key, carrier.Get(key))
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, record Record) error {
	p.log.Info("ledger event",
		zap.String("event_id", record.ID.String()),
		zap.String("org_id", record.OrgID.String()),
		zap.String("event_type", record.EventType),
		zap.Any("payload", map[string]any(record.Payload)),
	)
	return nil
}
