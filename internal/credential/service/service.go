// Package service implements the credential lifecycle: issuance and
// revocation on the ledger, plus the owner's off-ledger accept/deny decision.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"legitify/contracts/ledger"
	"legitify/internal/audit"
	"legitify/internal/credential/metrics"
	"legitify/internal/documents/models"
	"legitify/internal/documents/store"
	"legitify/internal/ledger/session"
	"legitify/pkg/digest"
	dErrors "legitify/pkg/domain-errors"
	"legitify/pkg/requestcontext"
)

// IssueCommand is a validated issuance request.
type IssueCommand struct {
	OwnerEmail string
	Document   []byte
	Metadata   json.RawMessage
}

// Issued describes a committed credential.
type Issued struct {
	ID       string
	Hash     string
	OwnerID  uuid.UUID
	Document models.Document
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithIDGenerator overrides credential id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		s.newID = gen
	}
}

// Service issues, revokes and reads credentials.
type Service struct {
	store    DocumentStore
	ledger   Ledger
	auditor  AuditPublisher
	channel  string
	contract string
	metrics  *metrics.Metrics
	logger   *slog.Logger
	newID    func() string
}

// New creates a credential service bound to one channel and contract.
func New(docs DocumentStore, ledger Ledger, auditor AuditPublisher, channel, contract string, opts ...Option) *Service {
	svc := &Service{
		store:    docs,
		ledger:   ledger,
		auditor:  auditor,
		channel:  channel,
		contract: contract,
		logger:   slog.Default(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) ref(p requestcontext.Principal) session.ContractRef {
	return session.ContractRef{
		Label:        p.IdentityLabel,
		Organization: p.Organization,
		Channel:      s.channel,
		Contract:     s.contract,
	}
}

// Issue anchors the document hash on the ledger under the issuer's identity,
// then records the off-ledger document row with status issued.
func (s *Service) Issue(ctx context.Context, issuer requestcontext.Principal, cmd IssueCommand) (*Issued, error) {
	if models.Role(issuer.Role) != models.RoleIssuer {
		return nil, dErrors.New(dErrors.CodeForbidden, "only issuers may issue credentials")
	}
	if len(cmd.Document) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "document must not be empty")
	}

	owner, err := s.store.FindUserByEmail(ctx, cmd.OwnerEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnknownOwner, "No user found with this email")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve owner")
	}
	if owner.Role != models.RoleIndividual {
		return nil, dErrors.New(dErrors.CodeValidation, "credentials can only be issued to individuals")
	}

	req := ledger.IssueRequest{
		ID:       s.newID(),
		Hash:     digest.SHA256Hex(cmd.Document),
		Issuer:   issuer.Organization,
		Owner:    owner.ID.String(),
		Metadata: cmd.Metadata,
	}
	if err := req.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}

	err = s.ledger.WithContract(ctx, s.ref(issuer), func(ctx context.Context, c session.Contract) error {
		_, err := c.Submit(ctx, ledger.TxIssueCredential, req.Args()...)
		if err == nil || !outcomeUncertain(err) {
			return err
		}
		if s.alreadyIssued(ctx, c, req) {
			s.logger.WarnContext(ctx, "issuance confirmed by reading back the ledger record",
				"request_id", requestcontext.RequestID(ctx),
				"credential_id", req.ID,
				"submit_error", err,
			)
			return nil
		}
		return err
	})
	if err != nil {
		s.metrics.IncIssued(issuer.Organization, string(dErrors.CodeOf(err)))
		s.logger.WarnContext(ctx, "credential issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"organization", issuer.Organization,
			"error", err,
		)
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	doc := models.Document{
		ID:        req.ID,
		OwnerID:   owner.ID,
		IssuerID:  issuer.UserID,
		IssuerOrg: issuer.Organization,
		Hash:      req.Hash,
		Metadata:  req.Metadata,
		Status:    models.StatusIssued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		// The ledger record is committed; the owner simply never sees it as a candidate.
		s.logger.ErrorContext(ctx, "credential committed on ledger but metadata write failed",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", req.ID,
			"error", err,
		)
		s.metrics.IncIssued(issuer.Organization, "metadata_failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record issued document")
	}

	s.metrics.IncIssued(issuer.Organization, "ok")
	s.emit(ctx, audit.Event{
		Type:         audit.EventCredentialIssued,
		CredentialID: req.ID,
		Organization: issuer.Organization,
		ActorID:      issuer.UserID,
		OwnerID:      owner.ID,
		Outcome:      "issued",
	})
	s.logger.InfoContext(ctx, "credential issued",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", req.ID,
		"organization", issuer.Organization,
	)

	return &Issued{ID: req.ID, Hash: req.Hash, OwnerID: owner.ID, Document: doc}, nil
}

// outcomeUncertain reports whether a failed issuance may still have committed.
// The credential id is fresh, so a duplicate can only be an earlier attempt of
// the same call that was confirmed too late.
func outcomeUncertain(err error) bool {
	return errors.Is(err, session.ErrCommitUnknown) ||
		errors.Is(err, session.ErrUnreachable) ||
		dErrors.HasCode(err, dErrors.CodeConflict)
}

// alreadyIssued reads req.ID back and reports whether the ledger holds exactly
// the record req describes.
func (s *Service) alreadyIssued(ctx context.Context, c session.Contract, req ledger.IssueRequest) bool {
	payload, err := c.Evaluate(ctx, ledger.TxReadCredential, req.ID)
	if err != nil {
		return false
	}
	var record ledger.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return false
	}
	return record.ID == req.ID &&
		record.Hash == req.Hash &&
		record.Issuer == req.Issuer &&
		record.Owner == req.Owner
}

// Revoke revokes the credential on the ledger as the caller's organization
// and mirrors the status off-ledger. Repeating a revocation succeeds.
func (s *Service) Revoke(ctx context.Context, issuer requestcontext.Principal, id string) error {
	if models.Role(issuer.Role) != models.RoleIssuer {
		return dErrors.New(dErrors.CodeForbidden, "only issuers may revoke credentials")
	}
	req := ledger.RevokeRequest{ID: id, Issuer: issuer.Organization}
	if err := req.Validate(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}

	err := s.ledger.WithContract(ctx, s.ref(issuer), func(ctx context.Context, c session.Contract) error {
		_, err := c.Submit(ctx, ledger.TxRevokeCredential, req.Args()...)
		return err
	})
	if err != nil {
		s.metrics.IncRevoked(issuer.Organization, string(dErrors.CodeOf(err)))
		return err
	}

	if _, err := s.store.TransitionStatus(ctx, id, models.StatusRevoked); err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidState):
			// already revoked off-ledger
		case errors.Is(err, store.ErrNotFound):
			s.logger.WarnContext(ctx, "revoked credential has no metadata row",
				"request_id", requestcontext.RequestID(ctx),
				"credential_id", id,
			)
		default:
			s.logger.ErrorContext(ctx, "credential revoked on ledger but metadata update failed",
				"request_id", requestcontext.RequestID(ctx),
				"credential_id", id,
				"error", err,
			)
			s.metrics.IncRevoked(issuer.Organization, "metadata_failed")
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record revocation")
		}
	}

	s.metrics.IncRevoked(issuer.Organization, "ok")
	s.emit(ctx, audit.Event{
		Type:         audit.EventCredentialRevoked,
		CredentialID: id,
		Organization: issuer.Organization,
		ActorID:      issuer.UserID,
		Outcome:      "revoked",
	})
	return nil
}

// Read returns the ledger record as seen through the caller's identity.
func (s *Service) Read(ctx context.Context, caller requestcontext.Principal, id string) (*ledger.Record, error) {
	if err := ledger.ValidateID(id); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}

	var record ledger.Record
	err := s.ledger.WithContract(ctx, s.ref(caller), func(ctx context.Context, c session.Contract) error {
		payload, err := c.Evaluate(ctx, ledger.TxReadCredential, id)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(payload, &record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "malformed ledger record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Accept marks an issued document as accepted by its owner, which makes it a
// verification candidate.
func (s *Service) Accept(ctx context.Context, owner requestcontext.Principal, id string) (models.Document, error) {
	return s.decide(ctx, owner, id, models.StatusAccepted)
}

// Deny records the owner's refusal of an issued document.
func (s *Service) Deny(ctx context.Context, owner requestcontext.Principal, id string) (models.Document, error) {
	return s.decide(ctx, owner, id, models.StatusDenied)
}

func (s *Service) decide(ctx context.Context, owner requestcontext.Principal, id string, next models.Status) (models.Document, error) {
	if models.Role(owner.Role) != models.RoleIndividual {
		return models.Document{}, dErrors.New(dErrors.CodeForbidden, "only document owners may accept or deny")
	}

	doc, err := s.store.FindDocument(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Document{}, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return models.Document{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	if doc.OwnerID != owner.UserID {
		return models.Document{}, dErrors.New(dErrors.CodeForbidden, "document belongs to another user")
	}

	updated, err := s.store.TransitionStatus(ctx, id, next)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidState):
			return models.Document{}, dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("document is %s and cannot be %s", doc.Status, next))
		case errors.Is(err, store.ErrNotFound):
			return models.Document{}, dErrors.New(dErrors.CodeNotFound, "document not found")
		default:
			return models.Document{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update document")
		}
	}

	s.metrics.IncOwnerAction(string(next))
	return updated, nil
}

// ListMine returns the caller's documents in issuance order.
func (s *Service) ListMine(ctx context.Context, owner requestcontext.Principal) ([]models.Document, error) {
	docs, err := s.store.ListByOwner(ctx, owner.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.Timestamp = requestcontext.Now(ctx).UTC()
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit credential event",
			"request_id", event.RequestID,
			"event_type", event.Type,
			"error", err,
		)
	}
}
