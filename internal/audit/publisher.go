package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrBufferFull is returned when the async buffer cannot take another event.
	ErrBufferFull = errors.New("audit buffer full")
	// ErrPublisherClosed is returned by Emit after Close.
	ErrPublisherClosed = errors.New("audit publisher closed")
)

// Publisher stamps events and hands them to a Store, synchronously or
// through a bounded buffer drained by one goroutine.
type Publisher struct {
	store  Store
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool

	// mu guards closed and the send on events against Close.
	mu     sync.RWMutex
	closed bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer queues up to size events and delivers them in the background.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for delivery failures.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := p.store.Append(ctx, event); err != nil {
			p.logger.Error("failed to deliver audit event",
				"error", err,
				"type", event.Type,
				"credential_id", event.CredentialID,
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the buffer to drain. Later
// calls are no-ops.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.async {
		close(p.events)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Emit stamps id and timestamp when unset and delivers the event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.WarnContext(ctx, "audit event emitted after close, dropped",
			"type", event.Type,
			"credential_id", event.CredentialID,
		)
		return ErrPublisherClosed
	}
	if !p.async {
		return p.store.Append(ctx, event)
	}
	select {
	case p.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"type", event.Type,
			"credential_id", event.CredentialID,
		)
		return ErrBufferFull
	}
}
