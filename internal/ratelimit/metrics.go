package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts limiter decisions.
type Metrics struct {
	Rejections  prometheus.Counter
	StoreErrors prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejections: f.NewCounter(prometheus.CounterOpts{
			Name: "legitify_ratelimit_rejections_total",
			Help: "Verification requests rejected by the rate limiter",
		}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "legitify_ratelimit_store_errors_total",
			Help: "Rate limiter store failures; requests are let through",
		}),
	}
}
