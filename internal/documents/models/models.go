// Package models defines the off-ledger view of users and issued documents.
// The ledger stays authoritative for credential validity; these rows index
// who owns what and which documents an owner has accepted.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the caller's role in the credential lifecycle.
type Role string

const (
	RoleIssuer     Role = "issuer"
	RoleIndividual Role = "individual"
	RoleEmployer   Role = "employer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleIssuer, RoleIndividual, RoleEmployer:
		return true
	}
	return false
}

// User is an account known to the platform. Organization and IdentityLabel
// select the wallet identity used for the user's ledger sessions.
type User struct {
	ID            uuid.UUID
	Email         string
	Role          Role
	Organization  string
	IdentityLabel string
	CreatedAt     time.Time
}

// NormalizeEmail canonicalizes an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Status is the off-ledger lifecycle of an issued document.
type Status string

const (
	StatusIssued   Status = "issued"
	StatusAccepted Status = "accepted"
	StatusDenied   Status = "denied"
	StatusRevoked  Status = "revoked"
)

// allowedFrom lists, per target status, the statuses it may be reached from.
var allowedFrom = map[Status][]Status{
	StatusAccepted: {StatusIssued},
	StatusDenied:   {StatusIssued},
	StatusRevoked:  {StatusIssued, StatusAccepted, StatusDenied},
}

// AllowedFrom returns the statuses a document must be in to move to next.
func AllowedFrom(next Status) []Status {
	return allowedFrom[next]
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Document is the metadata row of a credential anchored on the ledger.
// ID equals the ledger record id.
type Document struct {
	ID        string
	OwnerID   uuid.UUID
	IssuerID  uuid.UUID
	IssuerOrg string
	Hash      string
	Metadata  json.RawMessage
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Candidate is an accepted document an employer may match a presented file against.
type Candidate struct {
	LedgerID  string
	IssuerOrg string
	Metadata  json.RawMessage
}

func (d Document) Candidate() Candidate {
	return Candidate{LedgerID: d.ID, IssuerOrg: d.IssuerOrg, Metadata: d.Metadata}
}
