package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLSProperties(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}
	keyPath := write("key.pem", "key")
	certPath := write("cert.pem", "cert")
	caPath := write("ca.pem", "ca")

	t.Run("disabled by default", func(t *testing.T) {
		props, err := serverConfig{}.tlsProperties()
		require.NoError(t, err)
		assert.True(t, props.Disabled)
	})

	t.Run("explicitly disabled", func(t *testing.T) {
		props, err := serverConfig{TLS: "false", TLSKey: keyPath}.tlsProperties()
		require.NoError(t, err)
		assert.True(t, props.Disabled)
	})

	t.Run("key implies tls", func(t *testing.T) {
		props, err := serverConfig{TLSKey: keyPath, TLSCert: certPath, TLSCACert: caPath}.tlsProperties()
		require.NoError(t, err)
		assert.False(t, props.Disabled)
		assert.Equal(t, []byte("key"), props.Key)
		assert.Equal(t, []byte("cert"), props.Cert)
		assert.Equal(t, []byte("ca"), props.ClientCACerts)
	})

	t.Run("client ca optional", func(t *testing.T) {
		props, err := serverConfig{TLS: "true", TLSKey: keyPath, TLSCert: certPath}.tlsProperties()
		require.NoError(t, err)
		assert.Nil(t, props.ClientCACerts)
	})

	t.Run("bad flag", func(t *testing.T) {
		_, err := serverConfig{TLS: "maybe"}.tlsProperties()
		assert.ErrorContains(t, err, "parse CHAINCODE_TLS")
	})

	t.Run("missing key file", func(t *testing.T) {
		_, err := serverConfig{TLS: "true", TLSKey: filepath.Join(dir, "absent")}.tlsProperties()
		assert.ErrorContains(t, err, "read tls key")
	})
}
