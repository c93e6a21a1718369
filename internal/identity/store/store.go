// Package store persists wallet identities, scoped by organization.
//
// Organization names are normalized before every lookup so "OrgUniversity"
// and "orguniversity" address the same wallet.
package store

import (
	"legitify/internal/identity/models"
	"legitify/internal/sentinel"
	"legitify/internal/topology"
)

var (
	// ErrNotFound is returned when no identity exists for the label.
	ErrNotFound = sentinel.ErrNotFound
	// ErrConflict is returned when the label is already taken in the organization.
	ErrConflict = sentinel.ErrConflict
	// ErrInvalid is returned when the identity material does not parse.
	ErrInvalid = sentinel.ErrInvalidInput
)

func normalize(identity models.Identity) models.Identity {
	identity.Organization = topology.NormalizeOrganization(identity.Organization)
	return identity
}
