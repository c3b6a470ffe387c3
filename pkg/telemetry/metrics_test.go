package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOutboxBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordOutboxBatch("published", 3, 20*time.Millisecond)
	m.RecordOutboxBatch("", 0, time.Millisecond)
	m.SetOutboxBacklog(7)
	m.RecordRelayLock(false)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.outboxDispatch.WithLabelValues("published")))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.outboxBacklog))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.relayLeadership.WithLabelValues("skipped")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordOutboxBatch("published", 1, time.Second)
	m.SetOutboxBacklog(1)
	m.RecordRelayLock(true)
}
