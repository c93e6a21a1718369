package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"legitify/internal/documents/models"
)

// InMemory stores users and documents in memory for development and tests.
type InMemory struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]models.User
	emailIdx  map[string]uuid.UUID
	documents map[string]models.Document
	now       func() time.Time
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:     make(map[uuid.UUID]models.User),
		emailIdx:  make(map[string]uuid.UUID),
		documents: make(map[string]models.Document),
		now:       time.Now,
	}
}

// SaveUser inserts or updates a user. Emails are unique case-insensitively.
func (s *InMemory) SaveUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := models.NormalizeEmail(user.Email)
	if owner, taken := s.emailIdx[email]; taken && owner != user.ID {
		return fmt.Errorf("email %s: %w", email, ErrConflict)
	}
	if prev, ok := s.users[user.ID]; ok {
		delete(s.emailIdx, models.NormalizeEmail(prev.Email))
		user.CreatedAt = prev.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	s.users[user.ID] = user
	s.emailIdx[email] = user.ID
	return nil
}

// FindUserByEmail looks a user up by email, case-insensitively.
func (s *InMemory) FindUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIdx[models.NormalizeEmail(email)]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return s.users[id], nil
}

// FindUserByID looks a user up by id.
func (s *InMemory) FindUserByID(_ context.Context, id uuid.UUID) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

// CreateDocument inserts a new document row.
func (s *InMemory) CreateDocument(_ context.Context, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[doc.ID]; exists {
		return fmt.Errorf("document %s: %w", doc.ID, ErrConflict)
	}
	now := s.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = doc.CreatedAt
	doc.Metadata = slices.Clone(doc.Metadata)
	s.documents[doc.ID] = doc
	return nil
}

// FindDocument returns a document by ledger id.
func (s *InMemory) FindDocument(_ context.Context, id string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return models.Document{}, ErrNotFound
	}
	return doc, nil
}

// TransitionStatus moves a document to next if its current status allows it.
func (s *InMemory) TransitionStatus(_ context.Context, id string, next models.Status) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return models.Document{}, ErrNotFound
	}
	if !models.CanTransition(doc.Status, next) {
		return models.Document{}, fmt.Errorf("document %s is %s, cannot become %s: %w", id, doc.Status, next, ErrInvalidState)
	}
	doc.Status = next
	doc.UpdatedAt = s.now().UTC()
	s.documents[id] = doc
	return doc, nil
}

// ListAccepted returns the owner's accepted documents, oldest first.
func (s *InMemory) ListAccepted(_ context.Context, ownerID uuid.UUID) ([]models.Candidate, error) {
	docs := s.byOwner(ownerID, func(d models.Document) bool { return d.Status == models.StatusAccepted })
	out := make([]models.Candidate, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Candidate())
	}
	return out, nil
}

// ListByOwner returns every document of the owner, oldest first.
func (s *InMemory) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]models.Document, error) {
	return s.byOwner(ownerID, func(models.Document) bool { return true }), nil
}

func (s *InMemory) byOwner(ownerID uuid.UUID, keep func(models.Document) bool) []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Document, 0)
	for _, d := range s.documents {
		if d.OwnerID == ownerID && keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
