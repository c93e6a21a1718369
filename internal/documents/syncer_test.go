package documents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legitify/internal/documents/models"
	"legitify/internal/documents/store"
	"legitify/pkg/requestcontext"
)

func TestSyncer_SyncPrincipal(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and updates the user", func(t *testing.T) {
		users := store.NewInMemory()
		s := NewSyncer(users)
		p := requestcontext.Principal{UserID: uuid.New(), Email: "Alice@Example.com", Role: "individual", Organization: "orgindividual", IdentityLabel: "holder"}

		require.NoError(t, s.SyncPrincipal(ctx, p))
		got, err := users.FindUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, p.UserID, got.ID)
		assert.Equal(t, models.RoleIndividual, got.Role)

		p.Email = "alice@new.example"
		require.NoError(t, s.SyncPrincipal(ctx, p))
		_, err = users.FindUserByEmail(ctx, "alice@example.com")
		assert.ErrorIs(t, err, store.ErrNotFound)
		got, err = users.FindUserByEmail(ctx, "alice@new.example")
		require.NoError(t, err)
		assert.Equal(t, p.UserID, got.ID)
	})

	t.Run("email owned by another user conflicts", func(t *testing.T) {
		users := store.NewInMemory()
		s := NewSyncer(users)
		require.NoError(t, s.SyncPrincipal(ctx, requestcontext.Principal{UserID: uuid.New(), Email: "bob@example.com", Role: "employer"}))

		err := s.SyncPrincipal(ctx, requestcontext.Principal{UserID: uuid.New(), Email: "bob@example.com", Role: "employer"})
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		s := NewSyncer(store.NewInMemory())
		err := s.SyncPrincipal(ctx, requestcontext.Principal{UserID: uuid.New(), Email: "x@example.com", Role: "admin"})
		assert.Error(t, err)
	})
}
