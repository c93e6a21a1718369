// Package httptransport assembles the public HTTP surface.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	credentialhandler "legitify/internal/credential/handler"
	"legitify/internal/platform/health"
	verificationhandler "legitify/internal/verification/handler"
	"legitify/pkg/platform/middleware/auth"
	"legitify/pkg/platform/middleware/request"
)

// Dependencies are the collaborators the router mounts.
type Dependencies struct {
	Logger         *slog.Logger
	Validator      auth.JWTValidator
	Syncer         auth.PrincipalSyncer
	Health         *health.Handler
	Metrics        http.Handler
	RequestMetrics *request.Metrics
	Credentials    *credentialhandler.Handler
	Verification   *verificationhandler.Handler
	// VerifyLimit runs in front of the verification handler, after the role check.
	VerifyLimit    func(http.Handler) http.Handler
	Timeout        time.Duration
	MaxBodyBytes   int64
	TrustedProxies []netip.Prefix
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(d Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(request.ClientIP(d.TrustedProxies))
	r.Use(request.Logger(d.Logger))
	r.Use(request.Latency(d.RequestMetrics))
	r.Use(request.ContentTypeJSON)

	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		if d.Timeout > 0 {
			r.Use(request.Timeout(d.Timeout))
		}
		if d.MaxBodyBytes > 0 {
			r.Use(request.BodyLimit(d.MaxBodyBytes))
		}
		r.Use(auth.RequireAuth(d.Validator, d.Logger))
		if d.Syncer != nil {
			r.Use(auth.SyncPrincipal(d.Syncer, d.Logger))
		}

		if d.Verification != nil {
			var limits []func(http.Handler) http.Handler
			if d.VerifyLimit != nil {
				limits = append(limits, d.VerifyLimit)
			}
			d.Verification.Register(r, limits...)
		}
		if d.Credentials != nil {
			d.Credentials.Register(r)
		}
	})

	return r
}
