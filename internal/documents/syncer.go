// Package documents keeps the off-ledger index of users and issued documents.
package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"legitify/internal/documents/models"
	"legitify/internal/documents/store"
	"legitify/pkg/requestcontext"
)

// UserStore is the user half of the documents store.
type UserStore interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	SaveUser(ctx context.Context, user models.User) error
}

// Syncer upserts authenticated principals into the users table so documents
// can reference them and owners can be found by email.
type Syncer struct {
	users UserStore
}

func NewSyncer(users UserStore) *Syncer {
	return &Syncer{users: users}
}

// SyncPrincipal records p, rewriting the row only when a claim changed.
// An email already held by another user is reported as store.ErrConflict.
func (s *Syncer) SyncPrincipal(ctx context.Context, p requestcontext.Principal) error {
	role := models.Role(p.Role)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", p.Role)
	}
	want := models.User{
		ID:            p.UserID,
		Email:         models.NormalizeEmail(p.Email),
		Role:          role,
		Organization:  p.Organization,
		IdentityLabel: p.IdentityLabel,
	}

	existing, err := s.users.FindUserByID(ctx, p.UserID)
	switch {
	case err == nil:
		if existing.Email == want.Email && existing.Role == want.Role &&
			existing.Organization == want.Organization && existing.IdentityLabel == want.IdentityLabel {
			return nil
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("load user %s: %w", p.UserID, err)
	}

	if err := s.users.SaveUser(ctx, want); err != nil {
		return fmt.Errorf("save user %s: %w", p.UserID, err)
	}
	return nil
}
