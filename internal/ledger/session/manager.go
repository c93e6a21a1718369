package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"legitify/internal/sentinel"
	dErrors "legitify/pkg/domain-errors"
	"legitify/pkg/platform/circuit"
)

// Manager opens ledger sessions for wallet identities.
// It is safe for concurrent use; every session it returns is independent.
type Manager struct {
	identities IdentityStore
	topologies TopologyResolver
	connector  Connector
	retry      RetryPolicy
	metrics    *Metrics
	logger     *slog.Logger

	open atomic.Int64

	breakerOpts []circuit.Option
	breakerMu   sync.Mutex
	breakers    map[string]*circuit.Breaker
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) {
		m.retry = p
	}
}

// WithCircuitBreaker guards each organization's gateway with its own breaker.
// Only unreachable or timed out connects count as failures.
func WithCircuitBreaker(opts ...circuit.Option) Option {
	return func(m *Manager) {
		m.breakerOpts = append([]circuit.Option{}, opts...)
		m.breakers = make(map[string]*circuit.Breaker)
	}
}

// NewManager creates a session manager.
func NewManager(identities IdentityStore, topologies TopologyResolver, connector Connector, opts ...Option) *Manager {
	m := &Manager{
		identities: identities,
		topologies: topologies,
		connector:  connector,
		retry:      DefaultRetryPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open resolves the organization, loads the identity and connects.
// The caller owns the returned session and must Close it.
func (m *Manager) Open(ctx context.Context, label, org string) (*Session, error) {
	topo, err := m.topologies.Resolve(org)
	if err != nil {
		return nil, err
	}

	identity, err := m.identities.Get(ctx, topo.Organization, label)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeAuthenticationRejected,
				fmt.Sprintf("no ledger identity %q enrolled for %s", label, topo.Organization))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load ledger identity")
	}
	if identity.MSPID != topo.MSPID {
		return nil, dErrors.New(dErrors.CodeAuthenticationRejected,
			fmt.Sprintf("identity %q belongs to %s, not %s", label, identity.MSPID, topo.MSPID))
	}

	breaker := m.breaker(topo.Organization)
	if err := breaker.Allow(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable,
			fmt.Sprintf("ledger gateway for %s is failing, retry later", topo.Organization))
	}

	var conn Connection
	err = m.retry.run(ctx, func() error {
		c, err := m.connector.Connect(ctx, identity, topo)
		if err == nil {
			conn = c
			return nil
		}
		if retryable(false, err) {
			m.metrics.retried("connect")
			return err
		}
		return backoff.Permanent(err)
	})
	breaker.Record(gatewayFailure(err))
	if err != nil {
		m.logger.WarnContext(ctx, "ledger connect failed",
			"organization", topo.Organization,
			"label", label,
			"error", err,
		)
		return nil, Translate(err)
	}

	s := newSession(m, label, topo, conn)
	m.open.Add(1)
	m.metrics.sessionOpened()
	m.logger.DebugContext(ctx, "ledger session opened",
		"session_id", s.ID(),
		"organization", topo.Organization,
		"label", label,
	)
	return s, nil
}

// WithSession opens a session, runs fn and closes the session on every exit
// path, panics included. Close failures are logged and never mask fn's result.
func (m *Manager) WithSession(ctx context.Context, label, org string, fn func(context.Context, *Session) error) error {
	s, err := m.Open(ctx, label, org)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			m.logger.WarnContext(ctx, "ledger session close failed",
				"session_id", s.ID(),
				"error", cerr,
			)
		}
	}()
	return fn(ctx, s)
}

// WithContract is WithSession narrowed to a single contract.
func (m *Manager) WithContract(ctx context.Context, ref ContractRef, fn func(context.Context, Contract) error) error {
	return m.WithSession(ctx, ref.Label, ref.Organization, func(ctx context.Context, s *Session) error {
		network, err := s.Network(ref.Channel)
		if err != nil {
			return err
		}
		contract, err := network.Contract(ref.Contract)
		if err != nil {
			return err
		}
		return fn(ctx, contract)
	})
}

// breaker returns the organization's breaker, or nil when breakers are off.
func (m *Manager) breaker(org string) *circuit.Breaker {
	if m.breakers == nil {
		return nil
	}
	m.breakerMu.Lock()
	defer m.breakerMu.Unlock()
	b, ok := m.breakers[org]
	if !ok {
		opts := append(append([]circuit.Option{}, m.breakerOpts...), circuit.WithStateChange(m.breakerChanged))
		b = circuit.New(org, opts...)
		m.breakers[org] = b
	}
	return b
}

func (m *Manager) breakerChanged(org string, from, to circuit.State) {
	m.metrics.breakerState(org, to)
	m.logger.Warn("ledger circuit breaker changed state",
		"organization", org,
		"from", from.String(),
		"to", to.String(),
	)
}

// BreakerState reports the breaker state for org; closed when breakers are off.
func (m *Manager) BreakerState(org string) circuit.State {
	if m.breakers == nil {
		return circuit.StateClosed
	}
	m.breakerMu.Lock()
	b := m.breakers[org]
	m.breakerMu.Unlock()
	return b.State()
}

// CheckGateways fails while any organization's breaker is not closed.
// It has the signature of a health check.
func (m *Manager) CheckGateways(context.Context) error {
	m.breakerMu.Lock()
	var tripped []string
	for org, b := range m.breakers {
		if b.State() != circuit.StateClosed {
			tripped = append(tripped, org)
		}
	}
	m.breakerMu.Unlock()
	if len(tripped) == 0 {
		return nil
	}
	slices.Sort(tripped)
	return fmt.Errorf("ledger gateway breaker open for %s", strings.Join(tripped, ", "))
}

// OpenSessions reports how many sessions are currently open.
func (m *Manager) OpenSessions() int64 {
	return m.open.Load()
}

func (m *Manager) released(s *Session) {
	m.open.Add(-1)
	m.metrics.sessionClosed()
	m.logger.Debug("ledger session closed", "session_id", s.ID())
}
