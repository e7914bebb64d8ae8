// Package metrics exposes prometheus instruments for ledger activity.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	transactions  *prometheus.CounterVec
	points        *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	conflicts     prometheus.Counter
	grants        *prometheus.CounterVec
	applyDuration prometheus.Histogram
}

// New registers the ledger instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "familybank",
			Name:      "transactions_total",
			Help:      "Committed ledger transactions by type.",
		}, []string{"type"}),
		points: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "familybank",
			Name:      "points_moved_total",
			Help:      "Absolute points moved by committed transactions, by direction.",
		}, []string{"direction"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "familybank",
			Name:      "action_rejections_total",
			Help:      "Actions rejected before any write, by reason.",
		}, []string{"reason"}),
		conflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "familybank",
			Name:      "balance_conflicts_total",
			Help:      "Optimistic balance updates that lost a version check.",
		}),
		grants: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "familybank",
			Name:      "daily_grants_total",
			Help:      "Daily grant outcomes per member.",
		}, []string{"result"}),
		applyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "familybank",
			Name:      "ledger_apply_duration_seconds",
			Help:      "Time spent committing balance changes, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

func (m *Metrics) TransactionCommitted(t model.Transaction) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(string(t.Kind)).Inc()
	if t.Points >= 0 {
		m.points.WithLabelValues("credit").Add(float64(t.Points))
	} else {
		m.points.WithLabelValues("debit").Add(float64(-t.Points))
	}
}

// Rejected counts a failed action under the name of its error kind.
func (m *Metrics) Rejected(err error) {
	if m == nil || err == nil {
		return
	}
	m.rejections.WithLabelValues(Reason(err)).Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) Granted(granted, skipped int) {
	if m == nil {
		return
	}
	m.grants.WithLabelValues("granted").Add(float64(granted))
	m.grants.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) ObserveApply(d time.Duration) {
	if m == nil {
		return
	}
	m.applyDuration.Observe(d.Seconds())
}

// Reason is the label value used for err.
func Reason(err error) string {
	switch ledger.KindOf(err) {
	case ledger.ErrNotFound:
		return "not_found"
	case ledger.ErrInvariantViolation:
		return "invariant"
	case ledger.ErrForbidden:
		return "forbidden"
	case ledger.ErrInsufficientBalance:
		return "insufficient_balance"
	case ledger.ErrConflict:
		return "conflict"
	case ledger.ErrTransientIO:
		return "transient"
	case ledger.ErrInvalid:
		return "invalid"
	case ledger.ErrDuplicate:
		return "duplicate"
	}
	return "internal"
}
