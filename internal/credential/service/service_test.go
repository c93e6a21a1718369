package service_test

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"legitify/contracts/ledger"
	"legitify/internal/audit"
	"legitify/internal/credential/service"
	"legitify/internal/credential/service/mocks"
	"legitify/internal/documents/models"
	"legitify/internal/documents/store"
	"legitify/internal/ledger/session"
	sessionmocks "legitify/internal/ledger/session/mocks"
	"legitify/pkg/digest"
	dErrors "legitify/pkg/domain-errors"
	"legitify/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *mocks.MockDocumentStore
	ledger   *mocks.MockLedger
	auditor  *mocks.MockAuditPublisher
	contract *sessionmocks.MockContract
	svc      *service.Service
	ctx      context.Context

	issuer requestcontext.Principal
	owner  models.User
	now    time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockDocumentStore(s.ctrl)
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.contract = sessionmocks.NewMockContract(s.ctrl)
	s.svc = service.New(s.store, s.ledger, s.auditor, "legitify", "credentials",
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithIDGenerator(func() string { return "cred-1" }),
	)
	s.now = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-1"), s.now)

	s.issuer = requestcontext.Principal{
		UserID:        uuid.New(),
		Email:         "registrar@uni.example",
		Role:          string(models.RoleIssuer),
		Organization:  "orguniversity",
		IdentityLabel: "registrar",
	}
	s.owner = models.User{
		ID:    uuid.New(),
		Email: "alice@example.com",
		Role:  models.RoleIndividual,
	}
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

// expectContract routes WithContract for ref into the mock contract.
func (s *ServiceSuite) expectContract(ref session.ContractRef) {
	s.ledger.EXPECT().WithContract(gomock.Any(), ref, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ session.ContractRef, fn func(context.Context, session.Contract) error) error {
			return fn(ctx, s.contract)
		})
}

func (s *ServiceSuite) issuerRef() session.ContractRef {
	return session.ContractRef{Label: "registrar", Organization: "orguniversity", Channel: "legitify", Contract: "credentials"}
}

func (s *ServiceSuite) issueCommand() service.IssueCommand {
	return service.IssueCommand{
		OwnerEmail: s.owner.Email,
		Document:   []byte("diploma bytes"),
		Metadata:   json.RawMessage(`{"degree":"BSc"}`),
	}
}

func (s *ServiceSuite) TestIssue() {
	s.Run("submits to the ledger then records the document", func() {
		hash := digest.SHA256Hex([]byte("diploma bytes"))
		s.store.EXPECT().FindUserByEmail(gomock.Any(), s.owner.Email).Return(s.owner, nil)
		s.expectContract(s.issuerRef())
		s.contract.EXPECT().Submit(gomock.Any(), ledger.TxIssueCredential,
			"cred-1", hash, "orguniversity", s.owner.ID.String(), `{"degree":"BSc"}`).Return(nil, nil)

		var saved models.Document
		s.store.EXPECT().CreateDocument(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, doc models.Document) error {
				saved = doc
				return nil
			})
		var emitted audit.Event
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e audit.Event) error {
				emitted = e
				return nil
			})

		issued, err := s.svc.Issue(s.ctx, s.issuer, s.issueCommand())
		s.Require().NoError(err)
		s.Equal("cred-1", issued.ID)
		s.Equal(hash, issued.Hash)

		s.Equal(models.StatusIssued, saved.Status)
		s.Equal(s.owner.ID, saved.OwnerID)
		s.Equal(s.issuer.UserID, saved.IssuerID)
		s.Equal("orguniversity", saved.IssuerOrg)
		s.Equal(s.now, saved.CreatedAt)

		s.Equal(audit.EventCredentialIssued, emitted.Type)
		s.Equal("cred-1", emitted.CredentialID)
		s.Equal("req-1", emitted.RequestID)
		s.Equal(s.owner.ID, emitted.OwnerID)
	})

	s.Run("unknown owner never touches the ledger", func() {
		s.store.EXPECT().FindUserByEmail(gomock.Any(), "ghost@example.com").Return(models.User{}, store.ErrNotFound)

		cmd := s.issueCommand()
		cmd.OwnerEmail = "ghost@example.com"
		_, err := s.svc.Issue(s.ctx, s.issuer, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownOwner))
	})

	s.Run("owner must be an individual", func() {
		employer := s.owner
		employer.Role = models.RoleEmployer
		s.store.EXPECT().FindUserByEmail(gomock.Any(), gomock.Any()).Return(employer, nil)

		_, err := s.svc.Issue(s.ctx, s.issuer, s.issueCommand())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non-issuers are forbidden", func() {
		caller := s.issuer
		caller.Role = string(models.RoleEmployer)
		_, err := s.svc.Issue(s.ctx, caller, s.issueCommand())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("empty document is rejected", func() {
		cmd := s.issueCommand()
		cmd.Document = nil
		_, err := s.svc.Issue(s.ctx, s.issuer, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("metadata must be a JSON object", func() {
		s.store.EXPECT().FindUserByEmail(gomock.Any(), gomock.Any()).Return(s.owner, nil)
		cmd := s.issueCommand()
		cmd.Metadata = json.RawMessage(`[1,2]`)
		_, err := s.svc.Issue(s.ctx, s.issuer, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("ledger duplicate surfaces as conflict without a metadata row", func() {
		s.store.EXPECT().FindUserByEmail(gomock.Any(), gomock.Any()).Return(s.owner, nil)
		s.expectContract(s.issuerRef())
		s.contract.EXPECT().Submit(gomock.Any(), ledger.TxIssueCredential, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "credential cred-1 already exists"))
		other, _ := json.Marshal(ledger.Record{
			ID: "cred-1", Hash: digest.SHA256Hex([]byte("someone else's")), Issuer: "orgother", Owner: s.owner.ID.String(),
		})
		s.contract.EXPECT().Evaluate(gomock.Any(), ledger.TxReadCredential, "cred-1").Return(other, nil)

		_, err := s.svc.Issue(s.ctx, s.issuer, s.issueCommand())
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("duplicate of its own late-confirmed submit is success", func() {
		hash := digest.SHA256Hex([]byte("diploma bytes"))
		s.store.EXPECT().FindUserByEmail(gomock.Any(), gomock.Any()).Return(s.owner, nil)
		s.expectContract(s.issuerRef())
		s.contract.EXPECT().Submit(gomock.Any(), ledger.TxIssueCredential, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "credential cred-1 already exists"))
		mine, _ := json.Marshal(ledger.Record{
			ID: "cred-1", Hash: hash, Issuer: "orguniversity", Owner: s.owner.ID.String(), Status: ledger.StatusActive,
		})
		s.contract.EXPECT().Evaluate(gomock.Any(), ledger.TxReadCredential, "cred-1").Return(mine, nil)
		s.store.EXPECT().CreateDocument(gomock.Any(), gomock.Any()).Return(nil)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		issued, err := s.svc.Issue(s.ctx, s.issuer, s.issueCommand())
		s.Require().NoError(err)
		s.Equal("cred-1", issued.ID)
	})

	s.Run("unconfirmed submit that never landed stays unavailable", func() {
		s.store.EXPECT().FindUserByEmail(gomock.Any(), gomock.Any()).Return(s.owner, nil)
		s.expectContract(s.issuerRef())
		s.contract.EXPECT().Submit(gomock.Any(), ledger.TxIssueCredential, gomock.Any()).
			Return(nil, dErrors.Wrap(session.ErrCommitUnknown, dErrors.CodeUnavailable, "ledger did not confirm the transaction"))
		s.contract.EXPECT().Evaluate(gomock.Any(), ledger.TxReadCredential, "cred-1").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "credential cred-1 does not exist"))

		_, err := s.svc.Issue(s.ctx, s.issuer, s.issueCommand())
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("metadata failure after commit is internal", func() {
		s.store.EXPECT().FindUserByEmail(gomock.Any(), gomock.Any()).Return(s.owner, nil)
		s.expectContract(s.issuerRef())
		s.contract.EXPECT().Submit(gomock.Any(), ledger.TxIssueCredential, gomock.Any()).Return(nil, nil)
		s.store.EXPECT().CreateDocument(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

		_, err := s.svc.Issue(s.ctx, s.issuer, s.issueCommand())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestRevoke() {
	s.Run("revokes on the ledger and mirrors the status", func() {
		s.expectContract(s.issuerRef())
		s.contract.EXPECT().Submit(gomock.Any(), ledger.TxRevokeCredential, "cred-1", "orguniversity").Return(nil, nil)
		s.store.EXPECT().TransitionStatus(gomock.Any(), "cred-1", models.StatusRevoked).Return(models.Document{}, nil)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		s.NoError(s.svc.Revoke(s.ctx, s.issuer, "cred-1"))
	})

	s.Run("repeat revocation tolerates an already revoked row", func() {
		s.expectContract(s.issuerRef())
		s.contract.EXPECT().Submit(gomock.Any(), ledger.TxRevokeCredential, gomock.Any()).Return(nil, nil)
		s.store.EXPECT().TransitionStatus(gomock.Any(), "cred-1", models.StatusRevoked).
			Return(models.Document{}, store.ErrInvalidState)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		s.NoError(s.svc.Revoke(s.ctx, s.issuer, "cred-1"))
	})

	s.Run("foreign issuer is forbidden and nothing is mirrored", func() {
		s.expectContract(s.issuerRef())
		s.contract.EXPECT().Submit(gomock.Any(), ledger.TxRevokeCredential, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "only the issuer may revoke credential cred-1"))

		err := s.svc.Revoke(s.ctx, s.issuer, "cred-1")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("audit failures do not fail the revocation", func() {
		s.expectContract(s.issuerRef())
		s.contract.EXPECT().Submit(gomock.Any(), ledger.TxRevokeCredential, gomock.Any()).Return(nil, nil)
		s.store.EXPECT().TransitionStatus(gomock.Any(), gomock.Any(), gomock.Any()).Return(models.Document{}, store.ErrNotFound)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(audit.ErrBufferFull)

		s.NoError(s.svc.Revoke(s.ctx, s.issuer, "cred-1"))
	})
}

func (s *ServiceSuite) TestRead() {
	caller := requestcontext.Principal{Role: "employer", Organization: "orgemployer", IdentityLabel: "hr"}
	ref := session.ContractRef{Label: "hr", Organization: "orgemployer", Channel: "legitify", Contract: "credentials"}

	s.Run("decodes the ledger record", func() {
		s.expectContract(ref)
		s.contract.EXPECT().Evaluate(gomock.Any(), ledger.TxReadCredential, "cred-1").
			Return([]byte(`{"id":"cred-1","hash":"h","issuer":"orguniversity","owner":"o","metadata":{},"status":"active","issuedAt":"2026-01-01T00:00:00Z"}`), nil)

		rec, err := s.svc.Read(s.ctx, caller, "cred-1")
		s.Require().NoError(err)
		s.Equal("orguniversity", rec.Issuer)
		s.True(rec.Active())
	})

	s.Run("not found passes through", func() {
		s.expectContract(ref)
		s.contract.EXPECT().Evaluate(gomock.Any(), ledger.TxReadCredential, "missing").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "credential missing does not exist"))

		_, err := s.svc.Read(s.ctx, caller, "missing")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestAcceptAndDeny() {
	holder := requestcontext.Principal{UserID: s.owner.ID, Role: string(models.RoleIndividual)}
	doc := models.Document{ID: "cred-1", OwnerID: s.owner.ID, Status: models.StatusIssued}

	s.Run("owner accepts", func() {
		s.store.EXPECT().FindDocument(gomock.Any(), "cred-1").Return(doc, nil)
		accepted := doc
		accepted.Status = models.StatusAccepted
		s.store.EXPECT().TransitionStatus(gomock.Any(), "cred-1", models.StatusAccepted).Return(accepted, nil)

		got, err := s.svc.Accept(s.ctx, holder, "cred-1")
		s.Require().NoError(err)
		s.Equal(models.StatusAccepted, got.Status)
	})

	s.Run("someone else's document is forbidden", func() {
		s.store.EXPECT().FindDocument(gomock.Any(), "cred-1").Return(doc, nil)

		stranger := holder
		stranger.UserID = uuid.New()
		_, err := s.svc.Deny(s.ctx, stranger, "cred-1")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("decided documents conflict", func() {
		denied := doc
		denied.Status = models.StatusDenied
		s.store.EXPECT().FindDocument(gomock.Any(), "cred-1").Return(denied, nil)
		s.store.EXPECT().TransitionStatus(gomock.Any(), "cred-1", models.StatusAccepted).
			Return(models.Document{}, store.ErrInvalidState)

		_, err := s.svc.Accept(s.ctx, holder, "cred-1")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown document", func() {
		s.store.EXPECT().FindDocument(gomock.Any(), "nope").Return(models.Document{}, store.ErrNotFound)

		_, err := s.svc.Accept(s.ctx, holder, "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("only individuals decide", func() {
		_, err := s.svc.Accept(s.ctx, s.issuer, "cred-1")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
