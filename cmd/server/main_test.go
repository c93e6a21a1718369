package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legitify/internal/ledger/session"
	"legitify/internal/platform/config"
	dErrors "legitify/pkg/domain-errors"
)

func devnetConfig() config.Config {
	return config.Config{
		Environment: "test",
		Ledger: config.Ledger{
			Connector:    config.ConnectorDevnet,
			Channel:      "legitify",
			Contract:     "credentials",
			MaxRetries:   1,
			RetryBackoff: time.Millisecond,
		},
	}
}

func TestBuildInfraFallsBackToMemory(t *testing.T) {
	in, err := buildInfra(context.Background(), devnetConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer in.Close()

	assert.NotNil(t, in.Documents)
	assert.NotNil(t, in.Wallet)
	assert.NotNil(t, in.Publisher)
	assert.NotNil(t, in.RateLimitStore)
}

func TestBuildLedgerDevnet(t *testing.T) {
	ctx := context.Background()
	cfg := devnetConfig()
	log := slog.New(slog.DiscardHandler)
	in, err := buildInfra(ctx, cfg, log)
	require.NoError(t, err)
	defer in.Close()

	manager, err := buildLedger(ctx, cfg, in, log)
	require.NoError(t, err)

	for _, m := range devnetMembers {
		ref := session.ContractRef{
			Label:        m.Labels[0],
			Organization: m.Organization,
			Channel:      cfg.Ledger.Channel,
			Contract:     cfg.Ledger.Contract,
		}
		err := manager.WithContract(ctx, ref, func(context.Context, session.Contract) error { return nil })
		assert.NoError(t, err, m.Organization)
	}
	assert.Zero(t, manager.OpenSessions())

	err = manager.WithContract(ctx, session.ContractRef{
		Label:        "registrar",
		Organization: "orgunknown",
		Channel:      cfg.Ledger.Channel,
		Contract:     cfg.Ledger.Contract,
	}, func(context.Context, session.Contract) error { return nil })
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownOrganization))
}

func TestBuildLedgerUnknownConnector(t *testing.T) {
	cfg := devnetConfig()
	cfg.Ledger.Connector = "carrier-pigeon"
	log := slog.New(slog.DiscardHandler)
	in, err := buildInfra(context.Background(), cfg, log)
	require.NoError(t, err)
	defer in.Close()

	_, err = buildLedger(context.Background(), cfg, in, log)
	assert.ErrorContains(t, err, "unknown ledger connector")
}
