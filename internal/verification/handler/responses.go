package handler

import (
	"encoding/json"

	"legitify/internal/verification"
)

type VerifyResponse struct {
	Verified bool             `json:"verified"`
	Message  string           `json:"message"`
	DocID    string           `json:"docId,omitempty"`
	Details  *DetailsResponse `json:"details,omitempty"`
}

type DetailsResponse struct {
	Issuer    string          `json:"issuer,omitempty"`
	IssuerOrg string          `json:"issuerOrg"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Status    string          `json:"status"`
	IssuedAt  string          `json:"issuedAt,omitempty"`
}

func toVerifyResponse(r *verification.Result) VerifyResponse {
	resp := VerifyResponse{
		Verified: r.Verified,
		Message:  r.Message,
		DocID:    r.DocID,
	}
	if r.Details != nil {
		resp.Details = &DetailsResponse{
			Issuer:    r.Details.Issuer,
			IssuerOrg: r.Details.IssuerOrg,
			Metadata:  r.Details.Metadata,
			Status:    r.Details.Status,
			IssuedAt:  r.Details.IssuedAt,
		}
	}
	return resp
}
