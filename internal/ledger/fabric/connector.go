// Package fabric connects sessions to a Hyperledger Fabric network through
// the Fabric Gateway service of the organization's gateway peer.
package fabric

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	gwidentity "github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	idmodels "legitify/internal/identity/models"
	"legitify/internal/ledger/session"
	"legitify/internal/topology"
)

// Timeouts bound each phase of a gateway call.
type Timeouts struct {
	Evaluate     time.Duration
	Endorse      time.Duration
	Submit       time.Duration
	CommitStatus time.Duration
}

// DefaultTimeouts mirror the Fabric Gateway samples.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Evaluate:     5 * time.Second,
		Endorse:      15 * time.Second,
		Submit:       5 * time.Second,
		CommitStatus: time.Minute,
	}
}

// Connector implements session.Connector over gRPC.
type Connector struct {
	timeouts Timeouts
	insecure bool
	logger   *slog.Logger
}

// Option configures a Connector.
type Option func(*Connector)

func WithTimeouts(t Timeouts) Option {
	return func(c *Connector) {
		c.timeouts = t
	}
}

// WithInsecureTransport disables TLS toward peers without a CA certificate.
// Only meant for local test networks.
func WithInsecureTransport() Option {
	return func(c *Connector) {
		c.insecure = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		c.logger = logger
	}
}

// NewConnector creates a gateway connector.
func NewConnector(opts ...Option) *Connector {
	c := &Connector{
		timeouts: DefaultTimeouts(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the gateway peer and binds the identity's signer to it.
// Dialing is lazy; an unreachable peer surfaces on the first call.
func (c *Connector) Connect(ctx context.Context, identity idmodels.Identity, topo topology.Topology) (session.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, sign, err := signer(identity)
	if err != nil {
		return nil, fmt.Errorf("identity %q: %v: %w", identity.Label, err, session.ErrIdentityRejected)
	}

	peer := topo.GatewayPeer()
	creds, err := c.transportCredentials(peer)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(peer.Address, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %v: %w", peer.Address, err, session.ErrUnreachable)
	}

	gw, err := client.Connect(id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(c.timeouts.Evaluate),
		client.WithEndorseTimeout(c.timeouts.Endorse),
		client.WithSubmitTimeout(c.timeouts.Submit),
		client.WithCommitStatusTimeout(c.timeouts.CommitStatus),
	)
	if err != nil {
		conn.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("gateway connect: %w", err)
	}

	c.logger.DebugContext(ctx, "fabric gateway connected",
		"peer", peer.Address,
		"msp_id", identity.MSPID,
	)
	return &connection{gw: gw, conn: conn}, nil
}

func signer(identity idmodels.Identity) (*gwidentity.X509Identity, gwidentity.Sign, error) {
	cert, err := gwidentity.CertificateFromPEM(identity.Certificate)
	if err != nil {
		return nil, nil, err
	}
	id, err := gwidentity.NewX509Identity(identity.MSPID, cert)
	if err != nil {
		return nil, nil, err
	}
	key, err := gwidentity.PrivateKeyFromPEM(identity.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	sign, err := gwidentity.NewPrivateKeySign(key)
	if err != nil {
		return nil, nil, err
	}
	return id, sign, nil
}

func (c *Connector) transportCredentials(peer topology.Endpoint) (credentials.TransportCredentials, error) {
	if peer.TLSCACert == "" {
		if c.insecure {
			return insecure.NewCredentials(), nil
		}
		return nil, fmt.Errorf("peer %s has no TLS CA certificate configured", peer.Address)
	}
	pemBytes, err := os.ReadFile(peer.TLSCACert)
	if err != nil {
		return nil, fmt.Errorf("read TLS CA for %s: %w", peer.Address, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, fmt.Errorf("no certificates in TLS CA %s", peer.TLSCACert)
	}
	return credentials.NewClientTLSFromCert(pool, peer.ServerName), nil
}

type connection struct {
	gw   *client.Gateway
	conn *grpc.ClientConn
}

func (c *connection) Contract(channel, name string) session.Contract {
	return &contract{inner: c.gw.GetNetwork(channel).GetContract(name)}
}

func (c *connection) Close() error {
	gwErr := c.gw.Close()
	connErr := c.conn.Close()
	if gwErr != nil {
		return gwErr
	}
	return connErr
}

type contract struct {
	inner *client.Contract
}

// Submit runs endorse, order and commit status as separate steps. Endorsement
// failures leave nothing on the ledger; after the orderer has been contacted
// the transaction may commit even though the caller saw an error.
func (c *contract) Submit(ctx context.Context, tx string, args ...string) ([]byte, error) {
	proposal, err := c.inner.NewProposal(tx, client.WithArguments(args...))
	if err != nil {
		return nil, classify(err)
	}
	txn, err := proposal.EndorseWithContext(ctx)
	if err != nil {
		return nil, classify(err)
	}
	commit, err := txn.SubmitWithContext(ctx)
	if err != nil {
		return nil, outcomeUnknown(txn.TransactionID(), err)
	}
	st, err := commit.StatusWithContext(ctx)
	if err != nil {
		return nil, outcomeUnknown(txn.TransactionID(), err)
	}
	if !st.Successful {
		return nil, classify(&client.CommitError{TransactionID: st.TransactionID, Code: st.Code})
	}
	return txn.Result(), nil
}

func (c *contract) Evaluate(ctx context.Context, tx string, args ...string) ([]byte, error) {
	payload, err := c.inner.EvaluateWithContext(ctx, tx, client.WithArguments(args...))
	return payload, classify(err)
}
