package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records publisher batches and per-event results.
type OutboxMetrics struct {
	duration  prometheus.Histogram
	published prometheus.Counter
	failed    *prometheus.CounterVec
}

// NewOutboxMetrics registers the publisher metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tally_outbox_batch_duration_seconds",
		Help:    "Duration of outbox publish batches in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tally_outbox_published_total",
		Help: "Outbox events delivered to the channel.",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_outbox_failed_total",
		Help: "Outbox events that failed to publish.",
	}, []string{"reason"})
	reg.MustRegister(duration, published, failed)
	return &OutboxMetrics{
		duration:  duration,
		published: published,
		failed:    failed,
	}
}

// ObserveBatch records the duration of one publish batch.
func (m *OutboxMetrics) ObserveBatch(elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Observe(elapsed.Seconds())
}

// IncPublished counts one delivered event.
func (m *OutboxMetrics) IncPublished() {
	if m == nil || m.published == nil {
		return
	}
	m.published.Inc()
}

// IncFailed counts one failed delivery.
func (m *OutboxMetrics) IncFailed(reason string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(reason)).Inc()
}
