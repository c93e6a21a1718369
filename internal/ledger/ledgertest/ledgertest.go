// Package ledgertest wires a session manager to an in-process devnet running
// the credential chaincode, for tests of the services built on top of it.
package ledgertest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	idstore "legitify/internal/identity/store"
	"legitify/internal/ledger/contract"
	"legitify/internal/ledger/devnet"
	"legitify/internal/ledger/session"
	"legitify/internal/topology"
)

const (
	Channel  = "legitify"
	Contract = "credentials"
)

// Well-known organizations and labels.
var (
	University = devnet.Member{Organization: "orguniversity", MSPID: "OrgUniversityMSP", Labels: []string{"registrar"}}
	Employer   = devnet.Member{Organization: "orgemployer", MSPID: "OrgEmployerMSP", Labels: []string{"hr"}}
	Individual = devnet.Member{Organization: "orgindividual", MSPID: "OrgIndividualMSP", Labels: []string{"holder"}}
)

// Env is a ready-to-use ledger.
type Env struct {
	Network  *devnet.Network
	Manager  *session.Manager
	Wallet   *idstore.InMemory
	Resolver *topology.Resolver
	Metrics  *session.Metrics
}

// New bootstraps a devnet with the given members, or the three well-known
// organizations when none are given. Extra network options install faults or
// commit hooks.
func New(t testing.TB, members []devnet.Member, opts ...devnet.Option) *Env {
	t.Helper()
	if len(members) == 0 {
		members = []devnet.Member{University, Employer, Individual}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	network := devnet.NewNetwork(append([]devnet.Option{devnet.WithLogger(logger)}, opts...)...)
	wallet := idstore.NewInMemory()

	topos, err := devnet.Bootstrap(context.Background(), network, contract.New(logger), Channel, Contract, members, wallet)
	if err != nil {
		t.Fatalf("bootstrap devnet: %v", err)
	}
	resolver, err := topology.NewResolver(topos)
	if err != nil {
		t.Fatalf("build topology resolver: %v", err)
	}

	metrics := session.NewMetrics(prometheus.NewRegistry())
	manager := session.NewManager(wallet, resolver, network,
		session.WithLogger(logger),
		session.WithMetrics(metrics),
		session.WithRetryPolicy(session.RetryPolicy{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		}),
	)

	return &Env{
		Network:  network,
		Manager:  manager,
		Wallet:   wallet,
		Resolver: resolver,
		Metrics:  metrics,
	}
}

// AssertNoLeaks fails the test when a session or connection is still open.
func (e *Env) AssertNoLeaks(t testing.TB) {
	t.Helper()
	if n := e.Manager.OpenSessions(); n != 0 {
		t.Errorf("%d ledger sessions still open", n)
	}
	if n := e.Network.OpenConnections(); n != 0 {
		t.Errorf("%d devnet connections still open", n)
	}
}

// Ref addresses the credential contract as member's first label.
func Ref(member devnet.Member) session.ContractRef {
	return session.ContractRef{
		Label:        member.Labels[0],
		Organization: member.Organization,
		Channel:      Channel,
		Contract:     Contract,
	}
}
