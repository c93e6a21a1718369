// Package devnet is an in-process ledger network for development and tests.
//
// It hosts real chaincode against an in-memory versioned world state and
// applies Fabric's MVCC validation on commit, so concurrency behavior seen
// through devnet matches a real network: of two transactions that read the
// same key, only the first to commit succeeds.
package devnet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	gwidentity "github.com/hyperledger/fabric-gateway/pkg/identity"

	idmodels "legitify/internal/identity/models"
	"legitify/internal/ledger/session"
	"legitify/internal/topology"
)

// Fault lets tests inject transport failures. op is "connect", "submit" or
// "evaluate"; a non-nil return aborts the call with that error. op
// "commit_status" runs after a submit has committed, and its error replaces
// the result, as when a client loses the commit confirmation.
type Fault func(op, tx string) error

// Network hosts chaincode deployments keyed by channel and contract name.
type Network struct {
	clock  func() time.Time
	fault  Fault
	hook   func(tx string)
	logger *slog.Logger

	mu        sync.RWMutex
	ledgers   map[string]map[string]*Ledger
	open      atomic.Int64
	connected atomic.Int64
}

// Option configures a Network.
type Option func(*Network)

// WithClock overrides the source of transaction timestamps.
func WithClock(clock func() time.Time) Option {
	return func(n *Network) {
		n.clock = clock
	}
}

// WithFault installs a transport fault injector.
func WithFault(f Fault) Option {
	return func(n *Network) {
		n.fault = f
	}
}

// WithCommitHook runs hook between endorsement and commit of every submit,
// which lets tests interleave competing transactions deterministically.
func WithCommitHook(hook func(tx string)) Option {
	return func(n *Network) {
		n.hook = hook
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Network) {
		n.logger = logger
	}
}

// NewNetwork creates an empty network.
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		clock:   time.Now,
		logger:  slog.Default(),
		ledgers: make(map[string]map[string]*Ledger),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Deploy instantiates cc as contract name on channel and runs its Init.
func (n *Network) Deploy(channel, name string, cc shim.Chaincode) (*Ledger, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.ledgers[channel][name]; exists {
		return nil, fmt.Errorf("devnet: %s already deployed on %s", name, channel)
	}
	l := newLedger(channel, name, cc, n.clock, n.hook)
	if err := l.Init(); err != nil {
		return nil, err
	}
	if n.ledgers[channel] == nil {
		n.ledgers[channel] = make(map[string]*Ledger)
	}
	n.ledgers[channel][name] = l
	n.logger.Info("devnet chaincode deployed", "channel", channel, "contract", name)
	return l, nil
}

// Ledger returns a deployment.
func (n *Network) Ledger(channel, name string) (*Ledger, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	l, ok := n.ledgers[channel][name]
	return l, ok
}

// OpenConnections reports connections not yet closed.
func (n *Network) OpenConnections() int64 {
	return n.open.Load()
}

// TotalConnections reports every connection ever opened.
func (n *Network) TotalConnections() int64 {
	return n.connected.Load()
}

// Connect implements session.Connector. The identity must carry a parseable
// certificate; the network has no membership service beyond that.
func (n *Network) Connect(ctx context.Context, identity idmodels.Identity, topo topology.Topology) (session.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := n.injected("connect", ""); err != nil {
		return nil, err
	}
	if _, err := gwidentity.CertificateFromPEM(identity.Certificate); err != nil {
		return nil, fmt.Errorf("identity %q: %w", identity.Label, session.ErrIdentityRejected)
	}
	n.open.Add(1)
	n.connected.Add(1)
	return &connection{network: n}, nil
}

func (n *Network) injected(op, tx string) error {
	if n.fault == nil {
		return nil
	}
	return n.fault(op, tx)
}

type connection struct {
	network *Network
	closed  atomic.Bool
}

func (c *connection) Contract(channel, name string) session.Contract {
	return &contract{conn: c, channel: channel, name: name}
}

func (c *connection) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.network.open.Add(-1)
	}
	return nil
}

type contract struct {
	conn    *connection
	channel string
	name    string
}

func (c *contract) Submit(ctx context.Context, tx string, args ...string) ([]byte, error) {
	l, err := c.resolve("submit", tx)
	if err != nil {
		return nil, err
	}
	payload, err := l.Submit(ctx, tx, args...)
	if err != nil {
		return nil, err
	}
	if err := c.conn.network.injected("commit_status", tx); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *contract) Evaluate(ctx context.Context, tx string, args ...string) ([]byte, error) {
	l, err := c.resolve("evaluate", tx)
	if err != nil {
		return nil, err
	}
	return l.Evaluate(ctx, tx, args...)
}

func (c *contract) resolve(op, tx string) (*Ledger, error) {
	if c.conn.closed.Load() {
		return nil, fmt.Errorf("devnet connection closed: %w", session.ErrUnreachable)
	}
	if err := c.conn.network.injected(op, tx); err != nil {
		return nil, err
	}
	l, ok := c.conn.network.Ledger(c.channel, c.name)
	if !ok {
		return nil, fmt.Errorf("devnet: chaincode %s not deployed on %s", c.name, c.channel)
	}
	return l, nil
}
