package devnet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"google.golang.org/protobuf/types/known/timestamppb"

	"legitify/contracts/ledger"
	"legitify/internal/ledger/session"
)

// Event is a chaincode event emitted by a committed transaction.
type Event struct {
	Name    string
	Payload []byte
	TxID    string
}

type versioned struct {
	value   []byte // nil for a deleted key
	version uint64
}

// Ledger is one chaincode deployment on one channel: a versioned world state
// plus the endorse, validate and commit cycle Fabric runs around it.
type Ledger struct {
	channel string
	name    string
	cc      shim.Chaincode
	clock   func() time.Time
	hook    func(tx string)

	mu     sync.RWMutex
	state  map[string]versioned
	height uint64
	events []Event
}

func newLedger(channel, name string, cc shim.Chaincode, clock func() time.Time, hook func(string)) *Ledger {
	return &Ledger{
		channel: channel,
		name:    name,
		cc:      cc,
		clock:   clock,
		hook:    hook,
		state:   make(map[string]versioned),
	}
}

// Submit endorses tx against the current state and commits its writes if no
// key it read has changed since. A stale read set fails with ErrReadConflict.
func (l *Ledger) Submit(ctx context.Context, tx string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sim, payload, err := l.endorse(tx, args)
	if err != nil {
		return nil, err
	}
	if l.hook != nil {
		l.hook(tx)
	}
	if err := l.commit(sim); err != nil {
		return nil, err
	}
	return payload, nil
}

// Evaluate runs tx and discards its writes.
func (l *Ledger) Evaluate(ctx context.Context, tx string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, payload, err := l.endorse(tx, args)
	return payload, err
}

// Init runs the chaincode Init function, as instantiation does.
func (l *Ledger) Init() error {
	sim := l.newSimulation("init", nil)
	resp := l.cc.Init(sim)
	if resp.GetStatus() >= shim.ERRORTHRESHOLD {
		return fmt.Errorf("chaincode init failed: %s", resp.GetMessage())
	}
	return l.commit(sim)
}

// State returns the committed value of key.
func (l *Ledger) State(key string) ([]byte, bool) {
	value, _ := l.read(key)
	return value, value != nil
}

// Height is the number of committed transactions.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// Events returns the chaincode events of committed transactions in commit order.
func (l *Ledger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event(nil), l.events...)
}

func (l *Ledger) newSimulation(fn string, args []string) *simulation {
	return &simulation{
		ledger:    l,
		txID:      uuid.NewString(),
		channel:   l.channel,
		fn:        fn,
		args:      args,
		timestamp: timestamppb.New(l.clock()),
		reads:     make(map[string]uint64),
		writes:    make(map[string][]byte),
	}
}

func (l *Ledger) endorse(tx string, args []string) (*simulation, []byte, error) {
	sim := l.newSimulation(tx, args)
	resp := l.cc.Invoke(sim)
	if resp.GetStatus() >= shim.ERRORTHRESHOLD {
		if ccErr, ok := ledger.DecodeError(resp.GetMessage()); ok {
			return nil, nil, ccErr
		}
		return nil, nil, fmt.Errorf("endorsement of %s failed: %s", tx, resp.GetMessage())
	}
	return sim, resp.GetPayload(), nil
}

func (l *Ledger) commit(sim *simulation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, readVersion := range sim.reads {
		if l.state[key].version != readVersion {
			return fmt.Errorf("tx %s read stale key %q: %w", sim.txID, printable(key), session.ErrReadConflict)
		}
	}
	if len(sim.writes) == 0 && len(sim.events) == 0 {
		return nil
	}

	l.height++
	for _, key := range sim.order {
		l.state[key] = versioned{value: sim.writes[key], version: l.height}
	}
	l.events = append(l.events, sim.events...)
	return nil
}

func (l *Ledger) read(key string) ([]byte, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v := l.state[key]
	if v.value == nil {
		return nil, v.version
	}
	return append([]byte(nil), v.value...), v.version
}

// scan returns live keys in [start, end) in key order.
func (l *Ledger) scan(start, end string) []scanned {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]scanned, 0)
	for _, key := range sortedKeys(l.state) {
		if key < start || key >= end {
			continue
		}
		v := l.state[key]
		if v.value == nil {
			continue
		}
		out = append(out, scanned{key: key, value: append([]byte(nil), v.value...), version: v.version})
	}
	return out
}

func printable(key string) string {
	return strings.ReplaceAll(key, "\x00", "|")
}
