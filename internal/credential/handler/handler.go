package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"legitify/contracts/ledger"
	"legitify/internal/credential/service"
	"legitify/internal/documents/models"
	"legitify/pkg/platform/httputil"
	"legitify/pkg/platform/middleware/auth"
	"legitify/pkg/requestcontext"
)

// Service defines the credential operations the handler exposes.
type Service interface {
	Issue(ctx context.Context, issuer requestcontext.Principal, cmd service.IssueCommand) (*service.Issued, error)
	Revoke(ctx context.Context, issuer requestcontext.Principal, id string) error
	Read(ctx context.Context, caller requestcontext.Principal, id string) (*ledger.Record, error)
	Accept(ctx context.Context, owner requestcontext.Principal, id string) (models.Document, error)
	Deny(ctx context.Context, owner requestcontext.Principal, id string) (models.Document, error)
	ListMine(ctx context.Context, owner requestcontext.Principal) ([]models.Document, error)
}

// Handler serves the credential lifecycle endpoints.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the routes. The router must already authenticate callers.
func (h *Handler) Register(r chi.Router) {
	issuer := auth.RequireRole(h.logger, string(models.RoleIssuer))
	individual := auth.RequireRole(h.logger, string(models.RoleIndividual))

	r.With(issuer).Post("/credentials", h.handleIssue)
	r.With(issuer).Post("/credentials/{id}/revoke", h.handleRevoke)
	r.With(individual).Post("/credentials/{id}/accept", h.handleAccept)
	r.With(individual).Post("/credentials/{id}/deny", h.handleDeny)
	r.Get("/credentials/{id}", h.handleRead)
	r.With(individual).Get("/me/credentials", h.handleListMine)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	principal, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger)
	if !ok {
		return
	}

	issued, err := h.svc.Issue(ctx, principal, service.IssueCommand{
		OwnerEmail: req.OwnerEmail,
		Document:   req.Document(),
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue credential",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, IssueResponse{
		ID:     issued.ID,
		Hash:   issued.Hash,
		Status: string(issued.Document.Status),
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.svc.Revoke(ctx, principal, id); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke credential",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, MessageResponse{
		ID:      id,
		Status:  string(ledger.StatusRevoked),
		Message: "Credential revoked",
	})
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.svc.Accept, "Document accepted")
}

func (h *Handler) handleDeny(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.svc.Deny, "Document denied")
}

type decisionFunc func(ctx context.Context, owner requestcontext.Principal, id string) (models.Document, error)

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, decide decisionFunc, message string) {
	ctx := r.Context()
	principal, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	doc, err := decide(ctx, principal, id)
	if err != nil {
		h.logger.WarnContext(ctx, "document decision rejected",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, MessageResponse{
		ID:      doc.ID,
		Status:  string(doc.Status),
		Message: message,
	})
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.svc.Read(ctx, principal, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(record))
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	docs, err := h.svc.ListMine(ctx, principal)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list documents",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := ListResponse{Documents: make([]DocumentResponse, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
