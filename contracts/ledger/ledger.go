// Package ledger hosts the wire contract shared by the credential chaincode and
// its off-chain clients: transaction names, argument order, the stored record
// shape and the business error encoding. Bump ContractVersion on breaking changes.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"legitify/pkg/digest"
)

// ContractVersion identifies the contract schema version for compatibility checks.
const ContractVersion = "v1.0.0"

// Transaction names exposed by the credential chaincode.
const (
	TxInitLedger            = "initLedger"
	TxIssueCredential       = "issueCredential"
	TxVerifyCredential      = "verifyCredential"
	TxRevokeCredential      = "revokeCredential"
	TxReadCredential        = "readCredential"
	TxListOwnerCredentials  = "listOwnerCredentials"
	TxListIssuerCredentials = "listIssuerCredentials"
)

// Chaincode events emitted on state transitions.
const (
	EventCredentialIssued  = "CredentialIssued"
	EventCredentialRevoked = "CredentialRevoked"
)

// Status is the lifecycle state of a record. Transitions are one-way: active -> revoked.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Record is the JSON value stored under a credential id.
// Timestamps come from the transaction header, never from the local clock,
// so every endorsing peer computes the same bytes.
type Record struct {
	ID        string          `json:"id"`
	Hash      string          `json:"hash"`
	Issuer    string          `json:"issuer"`
	Owner     string          `json:"owner"`
	Metadata  json.RawMessage `json:"metadata"`
	Status    Status          `json:"status"`
	IssuedAt  string          `json:"issuedAt"`
	RevokedAt string          `json:"revokedAt,omitempty"`
}

// Active reports whether the record has not been revoked.
func (r Record) Active() bool {
	return r.Status == StatusActive
}

// FieldError reports a malformed transaction argument.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IssueRequest is the argument set of issueCredential.
type IssueRequest struct {
	ID       string
	Hash     string
	Issuer   string
	Owner    string
	Metadata json.RawMessage
}

func (r IssueRequest) Validate() error {
	if err := validateID(r.ID); err != nil {
		return err
	}
	if err := digest.ValidateHex(r.Hash); err != nil {
		return &FieldError{Field: "hash", Reason: err.Error()}
	}
	if err := requireText("issuer", r.Issuer); err != nil {
		return err
	}
	if err := requireText("owner", r.Owner); err != nil {
		return err
	}
	return validateMetadata(r.Metadata)
}

// Args returns the positional arguments in chaincode order.
func (r IssueRequest) Args() []string {
	return []string{r.ID, r.Hash, r.Issuer, r.Owner, string(r.Metadata)}
}

// ParseIssueRequest rebuilds an IssueRequest from positional arguments.
func ParseIssueRequest(args []string) (IssueRequest, error) {
	if len(args) != 5 {
		return IssueRequest{}, arityError(TxIssueCredential, 5, len(args))
	}
	req := IssueRequest{ID: args[0], Hash: args[1], Issuer: args[2], Owner: args[3], Metadata: json.RawMessage(args[4])}
	return req, req.Validate()
}

// VerifyRequest is the argument set of verifyCredential.
type VerifyRequest struct {
	ID   string
	Hash string
}

func (r VerifyRequest) Validate() error {
	if err := validateID(r.ID); err != nil {
		return err
	}
	if err := digest.ValidateHex(r.Hash); err != nil {
		return &FieldError{Field: "hash", Reason: err.Error()}
	}
	return nil
}

func (r VerifyRequest) Args() []string {
	return []string{r.ID, r.Hash}
}

func ParseVerifyRequest(args []string) (VerifyRequest, error) {
	if len(args) != 2 {
		return VerifyRequest{}, arityError(TxVerifyCredential, 2, len(args))
	}
	req := VerifyRequest{ID: args[0], Hash: args[1]}
	return req, req.Validate()
}

// RevokeRequest is the argument set of revokeCredential.
type RevokeRequest struct {
	ID     string
	Issuer string
}

func (r RevokeRequest) Validate() error {
	if err := validateID(r.ID); err != nil {
		return err
	}
	return requireText("issuer", r.Issuer)
}

func (r RevokeRequest) Args() []string {
	return []string{r.ID, r.Issuer}
}

func ParseRevokeRequest(args []string) (RevokeRequest, error) {
	if len(args) != 2 {
		return RevokeRequest{}, arityError(TxRevokeCredential, 2, len(args))
	}
	req := RevokeRequest{ID: args[0], Issuer: args[1]}
	return req, req.Validate()
}

// ParseBool decodes the payload of verifyCredential.
func ParseBool(payload []byte) (bool, error) {
	switch strings.TrimSpace(string(payload)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected verification payload %q", payload)
	}
}

// FormatBool encodes a verification result the way ParseBool expects it.
func FormatBool(v bool) []byte {
	if v {
		return []byte("true")
	}
	return []byte("false")
}

// ValidateID checks a credential id on its own, for read and list operations.
func ValidateID(id string) error {
	return validateID(id)
}

func validateID(id string) error {
	if err := requireText("id", id); err != nil {
		return err
	}
	// Composite index keys start with U+0000; plain ids must never collide with them.
	if strings.ContainsRune(id, 0) {
		return &FieldError{Field: "id", Reason: "must not contain NUL"}
	}
	if len(id) > 128 {
		return &FieldError{Field: "id", Reason: "must be at most 128 bytes"}
	}
	return nil
}

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &FieldError{Field: field, Reason: "is required"}
	}
	if !utf8.ValidString(v) {
		return &FieldError{Field: field, Reason: "must be valid UTF-8"}
	}
	return nil
}

func validateMetadata(raw json.RawMessage) error {
	if len(raw) == 0 {
		return &FieldError{Field: "metadata", Reason: "is required"}
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return &FieldError{Field: "metadata", Reason: "must be a JSON object"}
	}
	return nil
}

func arityError(tx string, want, got int) error {
	return &FieldError{Field: "args", Reason: fmt.Sprintf("%s expects %d arguments, got %d", tx, want, got)}
}
