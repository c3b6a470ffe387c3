package telemetry

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus primitives for the ledger event relay.
type Metrics struct {
	outboxDispatch     *prometheus.CounterVec
	outboxDispatchTime *prometheus.HistogramVec
	outboxBacklog      prometheus.Gauge
	relayLeadership    *prometheus.CounterVec
}

// NewMetrics registers relay metrics on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	outboxDispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fundledger_outbox_dispatch_total",
		Help: "Ledger events handed to the publisher, by status.",
	}, []string{"status"})

	outboxDispatchTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fundledger_outbox_dispatch_duration_seconds",
		Help:    "Relay batch durations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	outboxBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fundledger_outbox_backlog",
		Help: "Unpublished ledger events seen by the last relay pass.",
	})

	relayLeadership := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fundledger_relay_lock_total",
		Help: "Relay leader lock attempts, by result.",
	}, []string{"result"})

	reg.MustRegister(
		outboxDispatch,
		outboxDispatchTime,
		outboxBacklog,
		relayLeadership,
	)

	return &Metrics{
		outboxDispatch:     outboxDispatch,
		outboxDispatchTime: outboxDispatchTime,
		outboxBacklog:      outboxBacklog,
		relayLeadership:    relayLeadership,
	}
}

// RecordOutboxBatch records one relay batch.
func (m *Metrics) RecordOutboxBatch(status string, count int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := sanitizeLabel(status)
	if count > 0 {
		m.outboxDispatch.WithLabelValues(statusLabel).Add(float64(count))
	}
	m.outboxDispatchTime.WithLabelValues(statusLabel).Observe(duration.Seconds())
}

// SetOutboxBacklog updates the backlog gauge.
func (m *Metrics) SetOutboxBacklog(value float64) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(value)
}

// RecordRelayLock counts leader lock attempts.
func (m *Metrics) RecordRelayLock(acquired bool) {
	if m == nil {
		return
	}
	result := "skipped"
	if acquired {
		result = "acquired"
	}
	m.relayLeadership.WithLabelValues(result).Inc()
}

func sanitizeLabel(val string) string {
	val = strings.ToLower(strings.TrimSpace(val))
	if val == "" {
		return "unknown"
	}
	return val
}
