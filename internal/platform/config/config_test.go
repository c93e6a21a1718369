package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ConnectorDevnet, cfg.Ledger.Connector)
	assert.Equal(t, "legitify", cfg.Ledger.Channel)
	assert.Equal(t, "credentials", cfg.Ledger.Contract)
	assert.Equal(t, StrategySequential, cfg.Verification.Strategy)
	assert.Equal(t, 3, cfg.Ledger.MaxRetries)
	assert.Equal(t, 5, cfg.Ledger.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.Ledger.BreakerCooldown)
	assert.Empty(t, cfg.Server.TrustedProxies)
	assert.Empty(t, cfg.Database.URL)
}

func TestFromEnv_TrustedProxies(t *testing.T) {
	t.Setenv("LEGITIFY_TRUSTED_PROXIES", "10.1.2.3/8, 192.168.0.7")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.0.7/32"),
	}, cfg.Server.TrustedProxies)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LEGITIFY_ADDR", ":9090")
	t.Setenv("LEGITIFY_LEDGER_CONNECTOR", "FABRIC")
	t.Setenv("LEGITIFY_LEDGER_TOPOLOGY_FILE", "/etc/legitify/network.yaml")
	t.Setenv("LEGITIFY_VERIFICATION_STRATEGY", "parallel")
	t.Setenv("LEGITIFY_VERIFICATION_PARALLELISM", "8")
	t.Setenv("LEGITIFY_RATELIMIT_VERIFY_WINDOW", "30s")
	t.Setenv("LEGITIFY_DATABASE_URL", "postgres://localhost/legitify")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, ConnectorFabric, cfg.Ledger.Connector)
	assert.Equal(t, "/etc/legitify/network.yaml", cfg.Ledger.TopologyFile)
	assert.Equal(t, StrategyParallel, cfg.Verification.Strategy)
	assert.Equal(t, 8, cfg.Verification.Parallelism)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.VerifyWindow)
	assert.Equal(t, "postgres://localhost/legitify", cfg.Database.URL)
}

func TestFromEnv_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown connector", map[string]string{"LEGITIFY_LEDGER_CONNECTOR": "sqlite"}},
		{"fabric without topology", map[string]string{"LEGITIFY_LEDGER_CONNECTOR": "fabric"}},
		{"unknown strategy", map[string]string{"LEGITIFY_VERIFICATION_STRATEGY": "random"}},
		{"zero parallelism", map[string]string{"LEGITIFY_VERIFICATION_PARALLELISM": "0"}},
		{"default key outside dev", map[string]string{"LEGITIFY_ENVIRONMENT": "production"}},
		{"malformed trusted proxy", map[string]string{"LEGITIFY_TRUSTED_PROXIES": "10.0.0.0/33"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
