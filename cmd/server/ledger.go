package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	idstore "legitify/internal/identity/store"
	"legitify/internal/ledger/contract"
	"legitify/internal/ledger/devnet"
	"legitify/internal/ledger/fabric"
	"legitify/internal/ledger/session"
	"legitify/internal/platform/config"
	"legitify/internal/topology"
	"legitify/pkg/platform/circuit"
)

const maxRetryInterval = 2 * time.Second

// devnetMembers are the organizations a devnet ledger starts with. Bearer
// tokens must carry one of these org/label pairs to reach the ledger.
var devnetMembers = []devnet.Member{
	{Organization: "orguniversity", MSPID: "OrgUniversityMSP", Labels: []string{"registrar"}},
	{Organization: "orgemployer", MSPID: "OrgEmployerMSP", Labels: []string{"hr"}},
	{Organization: "orgindividual", MSPID: "OrgIndividualMSP", Labels: []string{"holder"}},
}

// buildLedger returns a session manager for the configured connector.
func buildLedger(ctx context.Context, cfg config.Config, in *infra, log *slog.Logger) (*session.Manager, error) {
	opts := []session.Option{
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(in.Registry)),
		session.WithRetryPolicy(session.RetryPolicy{
			MaxRetries:      cfg.Ledger.MaxRetries,
			InitialInterval: cfg.Ledger.RetryBackoff,
			MaxInterval:     maxRetryInterval,
		}),
	}
	if cfg.Ledger.BreakerThreshold > 0 {
		opts = append(opts, session.WithCircuitBreaker(
			circuit.WithFailureThreshold(cfg.Ledger.BreakerThreshold),
			circuit.WithCooldown(cfg.Ledger.BreakerCooldown),
		))
	}

	switch cfg.Ledger.Connector {
	case config.ConnectorFabric:
		resolver, err := topology.Load(cfg.Ledger.TopologyFile)
		if err != nil {
			return nil, fmt.Errorf("load topology: %w", err)
		}
		connOpts := []fabric.Option{fabric.WithLogger(log)}
		if cfg.Ledger.Insecure {
			log.Warn("fabric gateway TLS disabled")
			connOpts = append(connOpts, fabric.WithInsecureTransport())
		}
		log.Info("connecting to fabric network",
			"topology", cfg.Ledger.TopologyFile,
			"organizations", resolver.Organizations(),
		)
		return session.NewManager(in.Wallet, resolver, fabric.NewConnector(connOpts...), opts...), nil

	case config.ConnectorDevnet:
		// Devnet state lives in memory, so its identities do too.
		wallet := idstore.NewInMemory()
		network := devnet.NewNetwork(devnet.WithLogger(log))
		topos, err := devnet.Bootstrap(ctx, network, contract.New(log),
			cfg.Ledger.Channel, cfg.Ledger.Contract, devnetMembers, wallet)
		if err != nil {
			return nil, fmt.Errorf("bootstrap devnet: %w", err)
		}
		resolver, err := topology.NewResolver(topos)
		if err != nil {
			return nil, fmt.Errorf("devnet topology: %w", err)
		}
		log.Warn("using in-process devnet ledger, state is lost on restart",
			"organizations", resolver.Organizations(),
		)
		return session.NewManager(wallet, resolver, network, opts...), nil
	}
	return nil, fmt.Errorf("unknown ledger connector %q", cfg.Ledger.Connector)
}
