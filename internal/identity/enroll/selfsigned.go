package enroll

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"legitify/internal/identity/models"
	"legitify/internal/topology"
)

// SelfSigned mints a fresh P-256 identity with a self-signed certificate.
// Only the devnet connector accepts these; a Fabric peer would reject them.
type SelfSigned struct {
	MSPID    string
	Label    string
	Validity time.Duration
}

var _ Enroller = SelfSigned{}

func (s SelfSigned) Enroll(ctx context.Context, org string) (models.Identity, error) {
	if err := ctx.Err(); err != nil {
		return models.Identity{}, err
	}
	validity := s.Validity
	if validity <= 0 {
		validity = 365 * 24 * time.Hour
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return models.Identity{}, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return models.Identity{}, fmt.Errorf("generate serial: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   s.Label,
			Organization: []string{s.MSPID},
		},
		NotBefore: now.Add(-time.Minute),
		NotAfter:  now.Add(validity),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return models.Identity{}, fmt.Errorf("create certificate: %w", err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return models.Identity{}, fmt.Errorf("marshal key: %w", err)
	}

	identity := models.Identity{
		Label:        s.Label,
		Organization: topology.NormalizeOrganization(org),
		MSPID:        s.MSPID,
		Certificate:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		PrivateKey:   pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}),
	}
	if err := identity.Validate(); err != nil {
		return models.Identity{}, err
	}
	return identity, nil
}
