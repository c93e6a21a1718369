package service

import (
	"context"

	"github.com/google/uuid"

	"legitify/internal/audit"
	"legitify/internal/documents/models"
	"legitify/internal/ledger/session"
)

// DocumentStore is the off-ledger metadata store.
// Error contract: lookups return store.ErrNotFound, CreateDocument returns
// store.ErrConflict on a duplicate id, TransitionStatus returns
// store.ErrInvalidState when the move is not allowed.
type DocumentStore interface {
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	CreateDocument(ctx context.Context, doc models.Document) error
	FindDocument(ctx context.Context, id string) (models.Document, error)
	TransitionStatus(ctx context.Context, id string, next models.Status) (models.Document, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Document, error)
}

// Ledger runs work against one contract inside a scoped session.
type Ledger interface {
	WithContract(ctx context.Context, ref session.ContractRef, fn func(context.Context, session.Contract) error) error
}

// AuditPublisher emits lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
