// Package models defines the ledger identities held in the wallet.
package models

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	gwidentity "github.com/hyperledger/fabric-gateway/pkg/identity"
)

// Identity is an X.509 enrollment that can sign ledger transactions for one
// organization. Identities are immutable once stored; rotation is delete + put.
type Identity struct {
	Label        string
	Organization string
	MSPID        string
	Certificate  []byte // PEM
	PrivateKey   []byte // PEM, PKCS#8
	CreatedAt    time.Time
}

// Validate checks that every field is present and the PEM material parses.
func (i Identity) Validate() error {
	switch {
	case strings.TrimSpace(i.Label) == "":
		return fmt.Errorf("identity label is required")
	case strings.TrimSpace(i.Organization) == "":
		return fmt.Errorf("identity organization is required")
	case strings.TrimSpace(i.MSPID) == "":
		return fmt.Errorf("identity MSP ID is required")
	}
	if _, err := gwidentity.CertificateFromPEM(i.Certificate); err != nil {
		return fmt.Errorf("identity certificate: %w", err)
	}
	if _, err := gwidentity.PrivateKeyFromPEM(i.PrivateKey); err != nil {
		return fmt.Errorf("identity private key: %w", err)
	}
	return nil
}

// Clone returns a deep copy so callers can never mutate stored key material.
func (i Identity) Clone() Identity {
	i.Certificate = bytes.Clone(i.Certificate)
	i.PrivateKey = bytes.Clone(i.PrivateKey)
	return i
}

// Summary is the key-free view of an identity used for listings.
type Summary struct {
	Label        string
	Organization string
	MSPID        string
	CreatedAt    time.Time
}

func (i Identity) Summary() Summary {
	return Summary{Label: i.Label, Organization: i.Organization, MSPID: i.MSPID, CreatedAt: i.CreatedAt}
}
