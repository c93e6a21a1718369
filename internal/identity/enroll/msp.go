// Package enroll builds wallet identities from enrollment material produced
// by a Fabric CA client or cryptogen.
package enroll

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"legitify/internal/identity/models"
	"legitify/internal/topology"
)

// Enroller produces an enrolled identity for an organization.
type Enroller interface {
	Enroll(ctx context.Context, org string) (models.Identity, error)
}

// MSPDir is an on-disk MSP directory with signcerts/ and keystore/ subfolders.
type MSPDir struct {
	Path  string
	MSPID string
	Label string
}

var _ Enroller = MSPDir{}

// Enroll reads the signing certificate and private key from the directory and
// returns a validated identity stored under d.Label for org.
func (d MSPDir) Enroll(ctx context.Context, org string) (models.Identity, error) {
	if err := ctx.Err(); err != nil {
		return models.Identity{}, err
	}
	cert, err := firstFile(filepath.Join(d.Path, "signcerts"))
	if err != nil {
		return models.Identity{}, fmt.Errorf("read signing certificate: %w", err)
	}
	key, err := firstFile(filepath.Join(d.Path, "keystore"))
	if err != nil {
		return models.Identity{}, fmt.Errorf("read private key: %w", err)
	}

	identity := models.Identity{
		Label:        d.Label,
		Organization: topology.NormalizeOrganization(org),
		MSPID:        d.MSPID,
		Certificate:  cert,
		PrivateKey:   key,
	}
	if err := identity.Validate(); err != nil {
		return models.Identity{}, err
	}
	return identity, nil
}

// firstFile returns the contents of the lexically first regular file in dir.
// Fabric CA writes exactly one file into signcerts/ and keystore/.
func firstFile(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no files in %s", dir)
	}
	sort.Strings(names)
	return os.ReadFile(filepath.Join(dir, names[0]))
}
