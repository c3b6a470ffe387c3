package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("payment_id", "pay_1"),
		attribute.String("kind", "PAYOUT"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "org_id" && attrs[1].Key != "org_id" {
		t.Fatalf("expected org_id to be retained")
	}
	if attrs[0].Key != "kind" && attrs[1].Key != "kind" {
		t.Fatalf("expected kind to be retained")
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordTransaction(ctx, "PAYOUT", "created", time.Millisecond)
	m.RecordAccountProvisioned(ctx, "PAYOUTS")
	m.RecordOutboxPublished(ctx, "published", 2)
	m.RecordRateLimitDenied(ctx, "1", "/captures", "burst")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "fundledger"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordTransaction(context.Background(), "PAYMENT_CAPTURE", "replayed", time.Millisecond)
}
