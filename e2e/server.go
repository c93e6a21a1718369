package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"legitify/internal/audit"
	credentialhandler "legitify/internal/credential/handler"
	credentialmetrics "legitify/internal/credential/metrics"
	credentialservice "legitify/internal/credential/service"
	"legitify/internal/documents"
	docstore "legitify/internal/documents/store"
	idstore "legitify/internal/identity/store"
	jwttoken "legitify/internal/jwt_token"
	"legitify/internal/ledger/contract"
	"legitify/internal/ledger/devnet"
	"legitify/internal/ledger/session"
	"legitify/internal/platform/config"
	"legitify/internal/platform/health"
	"legitify/internal/ratelimit"
	"legitify/internal/topology"
	httptransport "legitify/internal/transport/http"
	"legitify/internal/verification"
	verificationhandler "legitify/internal/verification/handler"
	verificationmetrics "legitify/internal/verification/metrics"
	"legitify/pkg/platform/middleware/request"
)

const (
	channel      = "legitify"
	contractName = "credentials"
	signingKey   = "e2e-signing-key"
	tokenIssuer  = "legitify"
	tokenAud     = "legitify-api"
)

// members are the devnet organizations; actors borrow their wallet labels.
var members = map[string]devnet.Member{
	"issuer":     {Organization: "orguniversity", MSPID: "OrgUniversityMSP", Labels: []string{"registrar"}},
	"employer":   {Organization: "orgemployer", MSPID: "OrgEmployerMSP", Labels: []string{"hr"}},
	"individual": {Organization: "orgindividual", MSPID: "OrgIndividualMSP", Labels: []string{"holder"}},
}

// Stack is an in-process API on a fresh devnet ledger.
type Stack struct {
	Server  *httptest.Server
	Tokens  *jwttoken.JWTService
	Manager *session.Manager
	Network *devnet.Network
	Events  *audit.InMemoryStore
}

// StartStack boots a devnet, wires the services and serves the router.
func StartStack(ctx context.Context) (*Stack, error) {
	log := slog.New(slog.DiscardHandler)
	reg := prometheus.NewRegistry()

	network := devnet.NewNetwork(devnet.WithLogger(log))
	wallet := idstore.NewInMemory()
	list := make([]devnet.Member, 0, len(members))
	for _, role := range []string{"issuer", "employer", "individual"} {
		list = append(list, members[role])
	}
	topos, err := devnet.Bootstrap(ctx, network, contract.New(log), channel, contractName, list, wallet)
	if err != nil {
		return nil, fmt.Errorf("bootstrap devnet: %w", err)
	}
	resolver, err := topology.NewResolver(topos)
	if err != nil {
		return nil, err
	}
	manager := session.NewManager(wallet, resolver, network,
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(reg)),
		session.WithRetryPolicy(session.RetryPolicy{
			MaxRetries:      1,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		}),
	)

	docs := docstore.NewInMemory()
	events := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(events, audit.WithPublisherLogger(log))

	credentials := credentialservice.New(docs, manager, publisher, channel, contractName,
		credentialservice.WithMetrics(credentialmetrics.New(reg)),
		credentialservice.WithLogger(log),
	)
	coordinator := verification.New(docs, manager, publisher, channel, contractName,
		verification.WithMetrics(verificationmetrics.New(reg)),
		verification.WithLogger(log),
	)

	tokens := jwttoken.NewJWTService(signingKey, tokenIssuer, tokenAud, time.Hour)
	limiter := ratelimit.New(ratelimit.NewInMemoryStore(), config.RateLimit{VerifyRequests: 1000, VerifyWindow: time.Minute})

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:         log,
		Validator:      jwttoken.NewJWTServiceAdapter(tokens),
		Syncer:         documents.NewSyncer(docs),
		Health:         health.New("test"),
		RequestMetrics: request.NewMetrics(reg),
		Credentials:    credentialhandler.New(credentials, log),
		Verification:   verificationhandler.New(coordinator, log),
		VerifyLimit:    ratelimit.Middleware(limiter, ratelimit.NewMetrics(reg), log),
		Timeout:        10 * time.Second,
		MaxBodyBytes:   1 << 20,
	})

	return &Stack{
		Server:  httptest.NewServer(router),
		Tokens:  tokens,
		Manager: manager,
		Network: network,
		Events:  events,
	}, nil
}

// Close stops the HTTP server.
func (s *Stack) Close() {
	s.Server.Close()
}
