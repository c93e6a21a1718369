package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"legitify/pkg/platform/circuit"
)

// Metrics instruments session lifecycle and transaction outcomes.
type Metrics struct {
	OpenSessions prometheus.Gauge
	Transactions *prometheus.CounterVec
	TxLatency    *prometheus.HistogramVec
	Retries      *prometheus.CounterVec
	BreakerOpen  *prometheus.GaugeVec
}

// NewMetrics registers the session metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OpenSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "legitify_ledger_open_sessions",
			Help: "Ledger sessions currently open",
		}),
		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "legitify_ledger_transactions_total",
			Help: "Ledger transactions by kind, name and outcome code",
		}, []string{"kind", "tx", "outcome"}),
		TxLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "legitify_ledger_transaction_seconds",
			Help:    "Ledger transaction latency including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "tx"}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "legitify_ledger_retries_total",
			Help: "Retried ledger calls by kind",
		}, []string{"kind"}),
		BreakerOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "legitify_ledger_breaker_open",
			Help: "1 while an organization's gateway breaker rejects connects",
		}, []string{"organization"}),
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.OpenSessions.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.OpenSessions.Dec()
	}
}

func (m *Metrics) observeTx(kind, tx, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(kind, tx, outcome).Inc()
	m.TxLatency.WithLabelValues(kind, tx).Observe(seconds)
}

func (m *Metrics) retried(kind string) {
	if m != nil {
		m.Retries.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) breakerState(org string, state circuit.State) {
	if m == nil {
		return
	}
	open := 0.0
	if state != circuit.StateClosed {
		open = 1
	}
	m.BreakerOpen.WithLabelValues(org).Set(open)
}
