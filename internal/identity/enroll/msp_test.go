package enroll

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legitify/pkg/testutil"
)

func writeMSP(t *testing.T, cert, key []byte) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "signcerts"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "keystore"), 0o700))
	if cert != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "signcerts", "cert.pem"), cert, 0o644))
	}
	if key != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "keystore", "abc_sk"), key, 0o600))
	}
	return dir
}

func TestMSPDir_Enroll(t *testing.T) {
	cert, key := testutil.NewCertificatePEM(t, "registrar")
	dir := writeMSP(t, cert, key)

	identity, err := MSPDir{Path: dir, MSPID: "OrgUniversityMSP", Label: "registrar"}.Enroll(context.Background(), "OrgUniversity")
	require.NoError(t, err)
	assert.Equal(t, "orguniversity", identity.Organization)
	assert.Equal(t, "registrar", identity.Label)
	assert.Equal(t, cert, identity.Certificate)
	assert.Equal(t, key, identity.PrivateKey)
}

func TestMSPDir_EnrollMissingKey(t *testing.T) {
	cert, _ := testutil.NewCertificatePEM(t, "registrar")
	dir := writeMSP(t, cert, nil)

	_, err := MSPDir{Path: dir, MSPID: "OrgUniversityMSP", Label: "registrar"}.Enroll(context.Background(), "orguniversity")
	assert.ErrorContains(t, err, "read private key")
}

func TestMSPDir_EnrollRejectsGarbage(t *testing.T) {
	dir := writeMSP(t, []byte("garbage"), []byte("garbage"))

	_, err := MSPDir{Path: dir, MSPID: "OrgUniversityMSP", Label: "registrar"}.Enroll(context.Background(), "orguniversity")
	assert.ErrorContains(t, err, "identity certificate")
}
