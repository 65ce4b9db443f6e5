package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics holds the Prometheus collectors of the admin-service. A nil *Metrics records nothing.
type Metrics struct {
	Decisions        *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec
	PlanApplies      *prometheus.CounterVec
	CommissionPaid   prometheus.Counter
	Resyncs          *prometheus.CounterVec
	SnapshotVersion  prometheus.Gauge
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_decisions_total",
				Help: "Operator actions by action and outcome.",
			},
			[]string{"action", "result"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admin_decision_duration_seconds",
				Help:    "Time from operator action to committed plan, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		PlanApplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_plan_applies_total",
				Help: "Ledger store plan applications by result.",
			},
			[]string{"result"},
		),
		CommissionPaid: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "admin_commission_paid_total",
				Help: "Sum of agent commission credited, in currency units.",
			},
		),
		Resyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_resyncs_total",
				Help: "Full live-collection reloads by trigger and result.",
			},
			[]string{"trigger", "result"},
		),
		SnapshotVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "admin_snapshot_version",
				Help: "Version of the snapshot the last decision was made against.",
			},
		),
	}

	registry.MustRegister(m.Decisions, m.DecisionDuration, m.PlanApplies, m.CommissionPaid, m.Resyncs, m.SnapshotVersion)
	return m
}

func (m *Metrics) observeDecision(action, result string, started time.Time) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(action, result).Inc()
	if result == "ok" {
		m.DecisionDuration.WithLabelValues(action).Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) observeApply(result string) {
	if m == nil {
		return
	}
	m.PlanApplies.WithLabelValues(result).Inc()
}

func (m *Metrics) addCommission(amount decimal.Decimal) {
	if m == nil || !amount.IsPositive() {
		return
	}
	m.CommissionPaid.Add(amount.InexactFloat64())
}

func (m *Metrics) observeResync(trigger string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Resyncs.WithLabelValues(trigger, result).Inc()
}

func (m *Metrics) setSnapshotVersion(v uint64) {
	if m == nil {
		return
	}
	m.SnapshotVersion.Set(float64(v))
}
