// Package sentinel holds the storage errors shared by the wallet and
// document stores. Services map them to domain codes at their boundary.
package sentinel

import "errors"

var (
	// ErrNotFound means no record exists under the requested key.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a record already exists under the key being created.
	ErrConflict = errors.New("record already exists")
	// ErrInvalidInput means a record failed the store's own checks.
	ErrInvalidInput = errors.New("invalid record")
	// ErrInvalidState means a transition is not allowed from the stored state.
	ErrInvalidState = errors.New("invalid state transition")
)
