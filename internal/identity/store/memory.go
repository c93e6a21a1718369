package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"legitify/internal/identity/models"
	"legitify/internal/topology"
)

// InMemory stores identities in a sync.Map keyed by organization and label.
// Values are never mutated after insertion, which keeps lock-free reads safe.
type InMemory struct {
	identities sync.Map
	now        func() time.Time
}

// NewInMemory creates an in-memory wallet.
func NewInMemory() *InMemory {
	return &InMemory{now: time.Now}
}

func key(org, label string) string {
	return topology.NormalizeOrganization(org) + "\x00" + label
}

// Put stores a new identity. Existing labels are never overwritten.
func (s *InMemory) Put(_ context.Context, identity models.Identity) error {
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, err)
	}
	identity = normalize(identity.Clone())
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = s.now().UTC()
	}
	if _, loaded := s.identities.LoadOrStore(key(identity.Organization, identity.Label), identity); loaded {
		return fmt.Errorf("identity %q in %s: %w", identity.Label, identity.Organization, ErrConflict)
	}
	return nil
}

// Get returns a copy of the identity stored under label for the organization.
func (s *InMemory) Get(_ context.Context, org, label string) (models.Identity, error) {
	v, ok := s.identities.Load(key(org, label))
	if !ok {
		return models.Identity{}, fmt.Errorf("identity %q in %s: %w", label, org, ErrNotFound)
	}
	return v.(models.Identity).Clone(), nil
}

// Delete removes an identity.
func (s *InMemory) Delete(_ context.Context, org, label string) error {
	if _, loaded := s.identities.LoadAndDelete(key(org, label)); !loaded {
		return fmt.Errorf("identity %q in %s: %w", label, org, ErrNotFound)
	}
	return nil
}

// List returns the identities of an organization ordered by label.
func (s *InMemory) List(_ context.Context, org string) ([]models.Summary, error) {
	prefix := topology.NormalizeOrganization(org) + "\x00"
	out := make([]models.Summary, 0)
	s.identities.Range(func(k, v any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			out = append(out, v.(models.Identity).Summary())
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}
