package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legitify/internal/identity/store"
	"legitify/pkg/testutil"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func execute(t *testing.T, wallet Wallet, gotURL *string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(func(_ context.Context, url string) (Wallet, io.Closer, error) {
		if gotURL != nil {
			*gotURL = url
		}
		return wallet, nopCloser{}, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeMSP(t *testing.T, label string) string {
	t.Helper()
	cert, key := testutil.NewCertificatePEM(t, label)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "signcerts"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "keystore"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signcerts", "cert.pem"), cert, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keystore", "priv_sk"), key, 0o600))
	return dir
}

func TestImportListDelete(t *testing.T) {
	wallet := store.NewInMemory()
	dir := writeMSP(t, "registrar")

	out, err := execute(t, wallet, nil, "import",
		"--org", "OrgUniversity", "--label", "registrar",
		"--msp-id", "OrgUniversityMSP", "--msp-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "imported orguniversity/registrar (OrgUniversityMSP)")

	out, err = execute(t, wallet, nil, "list", "--org", "orguniversity")
	require.NoError(t, err)
	assert.Contains(t, out, "ORGANIZATION")
	assert.Contains(t, out, "registrar")
	assert.Contains(t, out, "OrgUniversityMSP")

	out, err = execute(t, wallet, nil, "delete", "--org", "orguniversity", "--label", "registrar")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted orguniversity/registrar")

	summaries, err := wallet.List(context.Background(), "orguniversity")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestImportTwiceConflicts(t *testing.T) {
	wallet := store.NewInMemory()
	dir := writeMSP(t, "registrar")
	args := []string{"import", "--org", "orguniversity", "--label", "registrar", "--msp-id", "OrgUniversityMSP", "--msp-dir", dir}

	_, err := execute(t, wallet, nil, args...)
	require.NoError(t, err)

	_, err = execute(t, wallet, nil, args...)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestImportRejectsEmptyMSPDir(t *testing.T) {
	_, err := execute(t, store.NewInMemory(), nil, "import",
		"--org", "orguniversity", "--label", "registrar",
		"--msp-id", "OrgUniversityMSP", "--msp-dir", t.TempDir())
	assert.ErrorContains(t, err, "read signing certificate")
}

func TestDeleteUnknownLabel(t *testing.T) {
	_, err := execute(t, store.NewInMemory(), nil, "delete", "--org", "orguniversity", "--label", "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequiredFlags(t *testing.T) {
	_, err := execute(t, store.NewInMemory(), nil, "import", "--org", "orguniversity")
	assert.ErrorContains(t, err, "required flag")
}

func TestDatabaseURLFromEnvironment(t *testing.T) {
	t.Setenv("LEGITIFY_DATABASE_URL", "postgres://wallet@db/legitify")

	var got string
	_, err := execute(t, store.NewInMemory(), &got, "list", "--org", "orguniversity")
	require.NoError(t, err)
	assert.Equal(t, "postgres://wallet@db/legitify", got)
}

func TestDatabaseURLFlagWins(t *testing.T) {
	t.Setenv("LEGITIFY_DATABASE_URL", "postgres://env/legitify")

	var got string
	_, err := execute(t, store.NewInMemory(), &got, "list", "--org", "orguniversity", "--database-url", "postgres://flag/legitify")
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/legitify", got)
}

func TestOpenPostgresWalletRequiresURL(t *testing.T) {
	_, _, err := openPostgresWallet(context.Background(), "")
	assert.ErrorContains(t, err, "database url is required")
}
