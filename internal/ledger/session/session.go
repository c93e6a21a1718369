// Package session manages short-lived, identity-bound ledger sessions.
//
// A session is opened for one (identity label, organization) pair, used for a
// bounded unit of work and closed exactly once. Sessions are never shared
// across requests; WithSession guarantees release on every exit path.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	idmodels "legitify/internal/identity/models"
	"legitify/internal/topology"
	dErrors "legitify/pkg/domain-errors"
)

// Contract invokes transactions on one deployed chaincode.
type Contract interface {
	// Submit endorses, orders and commits a state-changing transaction.
	Submit(ctx context.Context, tx string, args ...string) ([]byte, error)
	// Evaluate runs a read-only query against a peer without ordering.
	Evaluate(ctx context.Context, tx string, args ...string) ([]byte, error)
}

// Connection is the transport-level handle a Connector produces.
// Implementations translate transport failures into ErrUnreachable,
// ErrIdentityRejected, ErrReadConflict or *ledger.Error.
type Connection interface {
	Contract(channel, name string) Contract
	Close() error
}

// Connector opens transport connections for an identity.
type Connector interface {
	Connect(ctx context.Context, identity idmodels.Identity, topo topology.Topology) (Connection, error)
}

// IdentityStore is the wallet lookup the manager needs.
type IdentityStore interface {
	Get(ctx context.Context, org, label string) (idmodels.Identity, error)
}

// TopologyResolver maps organizations to their network profile.
type TopologyResolver interface {
	Resolve(org string) (topology.Topology, error)
}

// ContractRef addresses a contract on behalf of an identity.
type ContractRef struct {
	Label        string
	Organization string
	Channel      string
	Contract     string
}

// Session is an open, identity-bound connection to the ledger.
type Session struct {
	id    string
	label string
	topo  topology.Topology
	conn  Connection
	mgr   *Manager

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

func newSession(mgr *Manager, label string, topo topology.Topology, conn Connection) *Session {
	return &Session{
		id:    uuid.NewString(),
		label: label,
		topo:  topo,
		conn:  conn,
		mgr:   mgr,
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Organization returns the normalized organization the session acts for.
func (s *Session) Organization() string { return s.topo.Organization }

// Label returns the wallet label of the session identity.
func (s *Session) Label() string { return s.label }

// Network selects a channel. Channels outside the organization's topology
// fail with CodeUnknownChannel.
func (s *Session) Network(channel string) (*Network, error) {
	if !s.topo.HasChannel(channel) {
		return nil, dErrors.New(dErrors.CodeUnknownChannel,
			fmt.Sprintf("channel %q is not available to %s", channel, s.topo.Organization))
	}
	return &Network{session: s, channel: channel}, nil
}

// Close releases the underlying connection. Only the first call has effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.conn.Close()
		s.mgr.released(s)
	})
	return s.closeErr
}

// Network is a channel view of a session.
type Network struct {
	session *Session
	channel string
}

// Contract selects a chaincode on the channel. Contracts not deployed for the
// organization fail with CodeUnknownContract.
func (n *Network) Contract(name string) (Contract, error) {
	if !n.session.topo.HasContract(n.channel, name) {
		return nil, dErrors.New(dErrors.CodeUnknownContract,
			fmt.Sprintf("contract %q is not deployed on channel %q", name, n.channel))
	}
	return &contractClient{
		session: n.session,
		channel: n.channel,
		name:    name,
		inner:   n.session.conn.Contract(n.channel, name),
	}, nil
}
