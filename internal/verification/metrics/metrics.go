package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for verification scans.
type Metrics struct {
	Outcomes   *prometheus.CounterVec
	Candidates prometheus.Histogram
	Duration   *prometheus.HistogramVec
}

// New registers and returns verification metrics collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "legitify_verifications_total",
			Help: "Verification requests, labeled by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		Candidates: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "legitify_verification_candidates_queried",
			Help:    "Ledger queries issued per verification scan",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "legitify_verification_duration_seconds",
			Help:    "Wall time of a verification, session included",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
	}
}

func (m *Metrics) Observe(strategy, outcome string, queried int, seconds float64) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(strategy, outcome).Inc()
	m.Candidates.Observe(float64(queried))
	m.Duration.WithLabelValues(strategy).Observe(seconds)
}
