package handler

import (
	"encoding/base64"
	"strings"

	"legitify/pkg/validation"
)

// VerifyRequest is the body of POST /credentials/verify.
type VerifyRequest struct {
	OwnerEmail     string `json:"ownerEmail" validate:"required,email,max=255"`
	DocumentBase64 string `json:"documentBase64" validate:"required,base64"`
}

func (r *VerifyRequest) Sanitize() {
	r.OwnerEmail = strings.TrimSpace(r.OwnerEmail)
	r.DocumentBase64 = strings.TrimSpace(r.DocumentBase64)
}

func (r *VerifyRequest) Normalize() {
	r.OwnerEmail = strings.ToLower(r.OwnerEmail)
}

func (r *VerifyRequest) Validate() error {
	return validation.Validate(r)
}

func (r *VerifyRequest) Document() []byte {
	b, _ := base64.StdEncoding.DecodeString(r.DocumentBase64)
	return b
}
