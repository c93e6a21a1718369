package handler

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	dErrors "legitify/pkg/domain-errors"
	"legitify/pkg/validation"
)

// IssueRequest is the body of POST /credentials.
type IssueRequest struct {
	OwnerEmail     string          `json:"ownerEmail" validate:"required,email,max=255"`
	DocumentBase64 string          `json:"documentBase64" validate:"required,base64"`
	Metadata       json.RawMessage `json:"metadata"`
}

func (r *IssueRequest) Sanitize() {
	r.OwnerEmail = strings.TrimSpace(r.OwnerEmail)
	r.DocumentBase64 = strings.TrimSpace(r.DocumentBase64)
}

// Normalize lowercases the email and defaults metadata to an empty object.
func (r *IssueRequest) Normalize() {
	r.OwnerEmail = strings.ToLower(r.OwnerEmail)
	if len(r.Metadata) == 0 || string(r.Metadata) == "null" {
		r.Metadata = json.RawMessage(`{}`)
	}
}

func (r *IssueRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	var obj map[string]any
	if err := json.Unmarshal(r.Metadata, &obj); err != nil || obj == nil {
		return dErrors.New(dErrors.CodeValidation, "metadata must be a JSON object")
	}
	return nil
}

// Document decodes the uploaded bytes. Validate has already checked the encoding.
func (r *IssueRequest) Document() []byte {
	b, _ := base64.StdEncoding.DecodeString(r.DocumentBase64)
	return b
}
