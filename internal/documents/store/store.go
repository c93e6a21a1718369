// Package store persists users and document metadata.
package store

import "legitify/internal/sentinel"

var (
	// ErrNotFound is returned when a user or document does not exist.
	ErrNotFound = sentinel.ErrNotFound
	// ErrConflict is returned on a duplicate document id or user email.
	ErrConflict = sentinel.ErrConflict
	// ErrInvalidState is returned when a status transition is not allowed.
	ErrInvalidState = sentinel.ErrInvalidState
)
