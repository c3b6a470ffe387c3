package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redismock/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fundledger/internal/clock"
	"github.com/smallbiznis/fundledger/internal/config"
	"github.com/smallbiznis/fundledger/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:events_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
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

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return node
}

func countUnpublished(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM ledger_events WHERE published_at IS NULL`).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, record Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type stubLock struct {
	acquired bool
	held     bool
	extended int
	released int
}

func (l *stubLock) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	return "token", l.acquired, nil
}

func (l *stubLock) Extend(context.Context, string, string, time.Duration) (bool, error) {
	l.extended++
	return l.held, nil
}

func (l *stubLock) Release(context.Context, string, string) error {
	l.released++
	return nil
}

func newRelay(db *gorm.DB, publisher Publisher, lock LeaderLock) *Relay {
	return NewRelay(RelayParams{
		DB:        db,
		Log:       zap.NewNop(),
		Publisher: publisher,
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Config:    config.StaticLedgerConfigHolder(config.DefaultLedgerConfig()),
		Lock:      lock,
	})
}

func TestOutboxDedupesPerOrg(t *testing.T) {
	db := setupDB(t)
	outbox := NewOutbox(db, newNode(t), clock.New())
	ctx := context.Background()
	event := Event{
		OrgID:     10,
		Type:      EventLedgerTransactionRecorded,
		Payload:   map[string]any{"ledger_transaction_id": "1"},
		DedupeKey: TransactionDedupeKey("1"),
	}

	require.NoError(t, outbox.Publish(ctx, event))
	require.NoError(t, outbox.Publish(ctx, event))
	event.OrgID = 11
	require.NoError(t, outbox.Publish(ctx, event))

	assert.Equal(t, int64(2), countUnpublished(t, db))
}

func TestOutboxRejectsIncompleteEvents(t *testing.T) {
	outbox := NewOutbox(setupDB(t), newNode(t), clock.New())
	ctx := context.Background()

	assert.EqualError(t, outbox.Publish(ctx, Event{Type: "x", DedupeKey: "k"}), "invalid_org_id")
	assert.EqualError(t, outbox.Publish(ctx, Event{OrgID: 1, DedupeKey: "k"}), "missing_event_type")
	assert.EqualError(t, outbox.Publish(ctx, Event{OrgID: 1, Type: "x"}), "missing_dedupe_key")
	assert.EqualError(t, outbox.PublishTx(ctx, nil, Event{OrgID: 1, Type: "x", DedupeKey: "k"}), "missing_transaction")
}

func TestOutboxPublishTxRollsBackWithTransaction(t *testing.T) {
	db := setupDB(t)
	outbox := NewOutbox(db, newNode(t), clock.New())

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := outbox.PublishTx(context.Background(), tx, Event{OrgID: 1, Type: "x", DedupeKey: "k"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int64(0), countUnpublished(t, db))
}

func TestRelayPublishesInOrderAndMarks(t *testing.T) {
	db := setupDB(t)
	outbox := NewOutbox(db, newNode(t), clock.New())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, outbox.Publish(ctx, Event{OrgID: 1, Type: EventLedgerTransactionRecorded, DedupeKey: fmt.Sprintf("k%d", i)}))
	}

	publisher := &mockPublisher{}
	var seen []snowflake.ID
	publisher.On("Publish", mock.Anything, mock.AnythingOfType("events.Record")).
		Run(func(args mock.Arguments) { seen = append(seen, args.Get(1).(Record).ID) }).
		Return(nil)

	lock := &stubLock{acquired: true}
	relay := newRelay(db, publisher, lock)

	n, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(0), countUnpublished(t, db))
	assert.Equal(t, 1, lock.released)
	require.Len(t, seen, 3)
	assert.Less(t, seen[0], seen[1])
	assert.Less(t, seen[1], seen[2])

	n, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	publisher.AssertNumberOfCalls(t, "Publish", 3)
}

func TestRelayStopsAtFirstFailure(t *testing.T) {
	db := setupDB(t)
	outbox := NewOutbox(db, newNode(t), clock.New())
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, outbox.Publish(ctx, Event{OrgID: 1, Type: EventLedgerTransactionRecorded, DedupeKey: fmt.Sprintf("k%d", i)}))
	}

	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	n, err := newRelay(db, publisher, nil).RunOnce(ctx)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(2), countUnpublished(t, db))
	publisher.AssertExpectations(t)
}

func TestRelaySkipsWithoutLeadership(t *testing.T) {
	db := setupDB(t)
	outbox := NewOutbox(db, newNode(t), clock.New())
	require.NoError(t, outbox.Publish(context.Background(), Event{OrgID: 1, Type: "x", DedupeKey: "k"}))

	publisher := &mockPublisher{}
	n, err := newRelay(db, publisher, &stubLock{acquired: false}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	assert.Equal(t, int64(1), countUnpublished(t, db))
}

func TestRelayStopsWhenLeaseIsLost(t *testing.T) {
	db := setupDB(t)
	outbox := NewOutbox(db, newNode(t), clock.New())
	require.NoError(t, outbox.Publish(context.Background(), Event{OrgID: 1, Type: "x", DedupeKey: "k"}))

	cfg := config.DefaultLedgerConfig()
	cfg.Relay.LockTTL = time.Nanosecond
	lock := &stubLock{acquired: true, held: false}
	publisher := &mockPublisher{}
	relay := NewRelay(RelayParams{
		DB:        db,
		Log:       zap.NewNop(),
		Publisher: publisher,
		Clock:     clock.New(),
		Config:    config.StaticLedgerConfigHolder(cfg),
		Lock:      lock,
	})

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, lock.extended)
	assert.Equal(t, 1, lock.released)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	assert.Equal(t, int64(1), countUnpublished(t, db))
}

func TestRedisStreamPublisher(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	publisher := NewRedisStreamPublisher(client, "")

	record := Record{ID: 5, OrgID: 9, EventType: EventLedgerTransactionRecorded, Payload: map[string]any{"kind": "PAYOUT"}}
	redisMock.ExpectXAdd(&redis.XAddArgs{
		Stream: DefaultStream,
		MaxLen: defaultStreamMaxLen,
		Approx: true,
		Values: []interface{}{
			"event_id", "5",
			"org_id", "9",
			"event_type", EventLedgerTransactionRecorded,
			"payload", `{"kind":"PAYOUT"}`,
		},
	}).SetVal("1-0")

	require.NoError(t, publisher.Publish(context.Background(), record))
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRedisStreamPublisherCarriesTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator()) })

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	client, redisMock := redismock.NewClientMock()
	publisher := NewRedisStreamPublisher(client, "ledger-test")
	redisMock.ExpectXAdd(&redis.XAddArgs{
		Stream: "ledger-test",
		MaxLen: defaultStreamMaxLen,
		Approx: true,
		Values: []interface{}{
			"event_id", "5",
			"org_id", "9",
			"event_type", EventLedgerTransactionRecorded,
			"payload", `{}`,
			"traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		},
	}).SetVal("1-0")

	record := Record{ID: 5, OrgID: 9, EventType: EventLedgerTransactionRecorded, Payload: map[string]any{}}
	require.NoError(t, publisher.Publish(ctx, record))
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestTransactionRecordedPayloadOmitsEmptyKeys(t *testing.T) {
	payload := TransactionRecordedPayload{
		TransactionID: "1",
		Kind:          "PAYOUT",
		ExternalID:    "po_1",
		PayoutID:      "po_1",
		Amount:        9_007_199_254_740_993,
		Currency:      "USD",
		OccurredAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}.ToMap()

	assert.Equal(t, "po_1", payload["payout_id"])
	assert.Equal(t, "9007199254740993", payload["amount"])
	assert.Equal(t, "2026-01-02T03:04:05Z", payload["occurred_at"])
	assert.NotContains(t, payload, "payment_id")
	assert.NotContains(t, payload, "refund_id")
}
