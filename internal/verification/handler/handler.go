package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"legitify/internal/documents/models"
	"legitify/internal/verification"
	dErrors "legitify/pkg/domain-errors"
	"legitify/pkg/platform/httputil"
	"legitify/pkg/platform/middleware/auth"
	"legitify/pkg/requestcontext"
)

// Verifier runs a document verification for the calling employer.
type Verifier interface {
	Verify(ctx context.Context, caller requestcontext.Principal, req verification.Request) (*verification.Result, error)
}

type Handler struct {
	verifier Verifier
	logger   *slog.Logger
}

func New(verifier Verifier, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, logger: logger}
}

// Register mounts POST /credentials/verify for employers. Extra middleware,
// such as the rate limiter, runs after the role check.
func (h *Handler) Register(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	chain := append([]func(http.Handler) http.Handler{
		auth.RequireRole(h.logger, string(models.RoleEmployer)),
	}, middlewares...)
	r.With(chain...).Post("/credentials/verify", h.HandleVerify)
}

// HandleVerify answers with a definite verified flag. Unknown owners get 404
// with verified=false; ledger outages get 503.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	principal, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.verifier.Verify(ctx, principal, verification.Request{
		OwnerEmail: req.OwnerEmail,
		Document:   req.Document(),
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnknownOwner) {
			httputil.WriteJSON(w, http.StatusNotFound, VerifyResponse{
				Verified: false,
				Message:  verification.MessageUnknownOwner,
			})
			return
		}
		h.logger.ErrorContext(ctx, "verification failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toVerifyResponse(result))
}
