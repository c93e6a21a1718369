// Package audit publishes credential lifecycle events.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle event. It doubles as the Kafka topic.
type EventType string

const (
	EventCredentialIssued   EventType = "credential.issued"
	EventCredentialRevoked  EventType = "credential.revoked"
	EventCredentialVerified EventType = "credential.verified"
)

// Event is emitted after a ledger transaction commits or a verification
// completes. It never carries document bytes.
type Event struct {
	ID           uuid.UUID `json:"id"`
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	CredentialID string    `json:"credentialId,omitempty"`
	Organization string    `json:"organization,omitempty"`
	ActorID      uuid.UUID `json:"actorId"`
	OwnerID      uuid.UUID `json:"ownerId,omitzero"`
	Outcome      string    `json:"outcome,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
}
