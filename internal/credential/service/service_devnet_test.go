package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legitify/contracts/ledger"
	"legitify/internal/audit"
	"legitify/internal/credential/service"
	"legitify/internal/documents/models"
	"legitify/internal/documents/store"
	"legitify/internal/ledger/devnet"
	"legitify/internal/ledger/ledgertest"
	"legitify/internal/ledger/session"
	"legitify/pkg/digest"
	dErrors "legitify/pkg/domain-errors"
	"legitify/pkg/requestcontext"
)

type devnetFixture struct {
	env    *ledgertest.Env
	docs   *store.InMemory
	events *audit.InMemoryStore
	svc    *service.Service

	registrar requestcontext.Principal
	employer  requestcontext.Principal
	alice     requestcontext.Principal
}

func newDevnetFixture(t *testing.T, opts ...service.Option) *devnetFixture {
	t.Helper()
	return newDevnetFixtureOn(t, nil, opts...)
}

// newDevnetFixtureOn is newDevnetFixture with extra devnet options, e.g. faults.
func newDevnetFixtureOn(t *testing.T, netOpts []devnet.Option, opts ...service.Option) *devnetFixture {
	t.Helper()
	env := ledgertest.New(t, nil, netOpts...)
	docs := store.NewInMemory()
	events := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(events)
	t.Cleanup(publisher.Close)

	opts = append([]service.Option{service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	f := &devnetFixture{
		env:    env,
		docs:   docs,
		events: events,
		svc:    service.New(docs, env.Manager, publisher, ledgertest.Channel, ledgertest.Contract, opts...),
		registrar: requestcontext.Principal{
			UserID: uuid.New(), Email: "registrar@uni.example", Role: "issuer",
			Organization: "orguniversity", IdentityLabel: "registrar",
		},
		employer: requestcontext.Principal{
			UserID: uuid.New(), Email: "hr@corp.example", Role: "employer",
			Organization: "orgemployer", IdentityLabel: "hr",
		},
		alice: requestcontext.Principal{
			UserID: uuid.New(), Email: "alice@example.com", Role: "individual",
			Organization: "orgindividual", IdentityLabel: "holder",
		},
	}
	ctx := context.Background()
	for _, p := range []requestcontext.Principal{f.registrar, f.employer, f.alice} {
		require.NoError(t, docs.SaveUser(ctx, models.User{
			ID: p.UserID, Email: p.Email, Role: models.Role(p.Role),
			Organization: p.Organization, IdentityLabel: p.IdentityLabel,
		}))
	}
	t.Cleanup(func() { env.AssertNoLeaks(t) })
	return f
}

func TestDevnet_IssueAcceptReadRevoke(t *testing.T) {
	f := newDevnetFixture(t)
	ctx := context.Background()
	doc := []byte("%PDF-1.7 diploma of alice")

	issued, err := f.svc.Issue(ctx, f.registrar, service.IssueCommand{
		OwnerEmail: "ALICE@example.com",
		Document:   doc,
		Metadata:   json.RawMessage(`{"degree":"MSc","institution":"Uni"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, digest.SHA256Hex(doc), issued.Hash)

	mine, err := f.svc.ListMine(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.StatusIssued, mine[0].Status)

	_, err = f.svc.Accept(ctx, f.alice, issued.ID)
	require.NoError(t, err)

	record, err := f.svc.Read(ctx, f.employer, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, "orguniversity", record.Issuer)
	assert.Equal(t, f.alice.UserID.String(), record.Owner)
	assert.Equal(t, ledger.StatusActive, record.Status)
	assert.NotEmpty(t, record.IssuedAt)

	require.NoError(t, f.svc.Revoke(ctx, f.registrar, issued.ID))
	require.NoError(t, f.svc.Revoke(ctx, f.registrar, issued.ID), "repeat revocation is a no-op")

	record, err = f.svc.Read(ctx, f.employer, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRevoked, record.Status)

	stored, err := f.docs.FindDocument(ctx, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, stored.Status)

	assert.Len(t, f.events.ListByType(audit.EventCredentialIssued), 1)
	assert.Len(t, f.events.ListByType(audit.EventCredentialRevoked), 2)
}

func TestDevnet_RevokeByAnotherIssuerIsForbidden(t *testing.T) {
	f := newDevnetFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, f.registrar, service.IssueCommand{
		OwnerEmail: f.alice.Email, Document: []byte("doc"), Metadata: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	impostor := f.employer
	impostor.Role = "issuer"
	err = f.svc.Revoke(ctx, impostor, issued.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), "got %v", err)

	record, err := f.svc.Read(ctx, f.employer, issued.ID)
	require.NoError(t, err)
	assert.True(t, record.Active())
}

func TestDevnet_RevokeUnknownCredential(t *testing.T) {
	f := newDevnetFixture(t)

	err := f.svc.Revoke(context.Background(), f.registrar, "does-not-exist")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)
}

func TestDevnet_ConcurrentIssueSameIDHasOneWinner(t *testing.T) {
	f := newDevnetFixture(t, service.WithIDGenerator(func() string { return "fixed-id" }))
	ctx := context.Background()

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Issue(ctx, f.registrar, service.IssueCommand{
				OwnerEmail: f.alice.Email,
				Document:   []byte{byte(i)},
				Metadata:   json.RawMessage(`{}`),
			})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case dErrors.HasCode(err, dErrors.CodeConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
}

// The first issueCredential commits but its confirmation is lost. Whether the
// session resubmits (and hits its own record) or gives up, the credential must
// come out issued with a metadata row.
func TestDevnet_IssueSurvivesLostCommitConfirmation(t *testing.T) {
	cases := map[string]error{
		"unreachable after commit":    fmt.Errorf("commit status: DeadlineExceeded: %w", session.ErrUnreachable),
		"outcome reported as unknown": fmt.Errorf("commit status: DeadlineExceeded: %w", session.ErrCommitUnknown),
	}
	for name, lost := range cases {
		t.Run(name, func(t *testing.T) {
			var dropped atomic.Bool
			f := newDevnetFixtureOn(t, []devnet.Option{devnet.WithFault(func(op, tx string) error {
				if op == "commit_status" && tx == ledger.TxIssueCredential && dropped.CompareAndSwap(false, true) {
					return lost
				}
				return nil
			})})
			ctx := context.Background()
			doc := []byte("%PDF-1.7 transcript")

			issued, err := f.svc.Issue(ctx, f.registrar, service.IssueCommand{
				OwnerEmail: f.alice.Email,
				Document:   doc,
				Metadata:   json.RawMessage(`{}`),
			})
			require.NoError(t, err)
			require.True(t, dropped.Load())

			stored, err := f.docs.FindDocument(ctx, issued.ID)
			require.NoError(t, err)
			assert.Equal(t, digest.SHA256Hex(doc), stored.Hash)
			assert.Equal(t, models.StatusIssued, stored.Status)

			record, err := f.svc.Read(ctx, f.employer, issued.ID)
			require.NoError(t, err)
			assert.Equal(t, f.alice.UserID.String(), record.Owner)
			assert.Len(t, f.events.ListByType(audit.EventCredentialIssued), 1)
		})
	}
}

func TestDevnet_IssueLostBeforeCommitIsUnavailable(t *testing.T) {
	f := newDevnetFixtureOn(t, []devnet.Option{devnet.WithFault(func(op, tx string) error {
		if op == "submit" && tx == ledger.TxIssueCredential {
			return errors.Join(errors.New("orderer down"), session.ErrCommitUnknown)
		}
		return nil
	})})

	_, err := f.svc.Issue(context.Background(), f.registrar, service.IssueCommand{
		OwnerEmail: f.alice.Email,
		Document:   []byte("never lands"),
		Metadata:   json.RawMessage(`{}`),
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable), "got %v", err)

	mine, err := f.svc.ListMine(context.Background(), f.alice)
	require.NoError(t, err)
	assert.Empty(t, mine)
}
