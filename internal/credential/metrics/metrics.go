package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for credential lifecycle operations.
type Metrics struct {
	Issued      *prometheus.CounterVec
	Revoked     *prometheus.CounterVec
	OwnerAction *prometheus.CounterVec
}

// New registers and returns credential metrics collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "legitify_credentials_issued_total",
			Help: "Credential issuance attempts, labeled by issuer organization and outcome",
		}, []string{"organization", "outcome"}),
		Revoked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "legitify_credentials_revoked_total",
			Help: "Credential revocation attempts, labeled by issuer organization and outcome",
		}, []string{"organization", "outcome"}),
		OwnerAction: f.NewCounterVec(prometheus.CounterOpts{
			Name: "legitify_credentials_owner_actions_total",
			Help: "Owner accept and deny decisions on issued documents",
		}, []string{"action"}),
	}
}

func (m *Metrics) IncIssued(org, outcome string) {
	if m == nil {
		return
	}
	m.Issued.WithLabelValues(org, outcome).Inc()
}

func (m *Metrics) IncRevoked(org, outcome string) {
	if m == nil {
		return
	}
	m.Revoked.WithLabelValues(org, outcome).Inc()
}

func (m *Metrics) IncOwnerAction(action string) {
	if m == nil {
		return
	}
	m.OwnerAction.WithLabelValues(action).Inc()
}
