package verification

import (
	"context"

	"github.com/google/uuid"

	"legitify/internal/audit"
	"legitify/internal/documents/models"
	"legitify/internal/ledger/session"
)

// Directory is the off-ledger lookup of owners and their accepted documents.
// Lookups return store.ErrNotFound when the owner is unknown.
type Directory interface {
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	ListAccepted(ctx context.Context, ownerID uuid.UUID) ([]models.Candidate, error)
}

// Ledger runs work against one contract inside a scoped session.
type Ledger interface {
	WithContract(ctx context.Context, ref session.ContractRef, fn func(context.Context, session.Contract) error) error
}

// AuditPublisher emits lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
