package handler

import (
	"encoding/json"
	"time"

	"legitify/contracts/ledger"
	"legitify/internal/documents/models"
)

type IssueResponse struct {
	ID     string `json:"id"`
	Hash   string `json:"hash"`
	Status string `json:"status"`
}

type DocumentResponse struct {
	ID        string          `json:"id"`
	IssuerOrg string          `json:"issuerOrg"`
	Hash      string          `json:"hash"`
	Metadata  json.RawMessage `json:"metadata"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

type ListResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

type CredentialResponse struct {
	ID        string          `json:"id"`
	Hash      string          `json:"hash"`
	Issuer    string          `json:"issuer"`
	Owner     string          `json:"owner"`
	Metadata  json.RawMessage `json:"metadata"`
	Status    string          `json:"status"`
	IssuedAt  string          `json:"issuedAt"`
	RevokedAt string          `json:"revokedAt,omitempty"`
}

type MessageResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func toDocumentResponse(d models.Document) DocumentResponse {
	return DocumentResponse{
		ID:        d.ID,
		IssuerOrg: d.IssuerOrg,
		Hash:      d.Hash,
		Metadata:  d.Metadata,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toCredentialResponse(r *ledger.Record) CredentialResponse {
	return CredentialResponse{
		ID:        r.ID,
		Hash:      r.Hash,
		Issuer:    r.Issuer,
		Owner:     r.Owner,
		Metadata:  r.Metadata,
		Status:    string(r.Status),
		IssuedAt:  r.IssuedAt,
		RevokedAt: r.RevokedAt,
	}
}
