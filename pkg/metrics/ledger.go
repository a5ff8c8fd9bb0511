package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
)

// Operation labels used by the ledger.
const (
	OpPurchase = "purchase"
	OpUndo     = "undo"
	OpSettle   = "settle"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// LedgerMetrics records purchases, undos and settlements.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	units      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_ledger_operations_total",
		Help: "Ledger operations by kind and outcome code.",
	}, []string{"operation", "outcome"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_ledger_units_total",
		Help: "Purchase units written or reversed.",
	}, []string{"operation"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tally_ledger_operation_duration_seconds",
		Help:    "Duration of ledger operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(operations, units, duration)
	return &LedgerMetrics{
		operations: operations,
		units:      units,
		duration:   duration,
	}
}

// Observe records one finished operation. outcome is OutcomeSuccess or an error code.
func (m *LedgerMetrics) Observe(operation, outcome string, units int, elapsed time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	operation = normalizeLabel(operation)
	m.operations.WithLabelValues(operation, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if units > 0 {
		m.units.WithLabelValues(operation).Add(float64(units))
	}
}

// Outcome maps an operation error to its outcome label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return OutcomeFailure
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
