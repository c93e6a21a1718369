package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "legitify/pkg/domain-errors"
)

const (
	kindSubmit   = "submit"
	kindEvaluate = "evaluate"
)

var tracer = otel.Tracer("legitify/ledger/session")

// contractClient adds retries, error translation, tracing and metrics on top
// of a connector contract. It refuses calls once its session is closed.
type contractClient struct {
	session *Session
	channel string
	name    string
	inner   Contract
}

func (c *contractClient) Submit(ctx context.Context, tx string, args ...string) ([]byte, error) {
	return c.call(ctx, kindSubmit, tx, args)
}

func (c *contractClient) Evaluate(ctx context.Context, tx string, args ...string) ([]byte, error) {
	return c.call(ctx, kindEvaluate, tx, args)
}

func (c *contractClient) call(ctx context.Context, kind, tx string, args []string) ([]byte, error) {
	if c.session.closed.Load() {
		return nil, errSessionClosed
	}

	ctx, span := tracer.Start(ctx, "ledger."+kind, trace.WithAttributes(
		attribute.String("ledger.channel", c.channel),
		attribute.String("ledger.contract", c.name),
		attribute.String("ledger.tx", tx),
		attribute.String("ledger.organization", c.session.Organization()),
	))
	defer span.End()

	start := time.Now()
	submit := kind == kindSubmit
	attempts := 0

	var payload []byte
	err := c.session.mgr.retry.run(ctx, func() error {
		attempts++
		if attempts > 1 {
			c.session.mgr.metrics.retried(kind)
		}
		var err error
		if submit {
			payload, err = c.inner.Submit(ctx, tx, args...)
		} else {
			payload, err = c.inner.Evaluate(ctx, tx, args...)
		}
		if err == nil || retryable(submit, err) {
			return err
		}
		return backoff.Permanent(err)
	})
	err = Translate(err)

	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.Int("ledger.attempts", attempts))
	c.session.mgr.metrics.observeTx(kind, tx, outcome, time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	return payload, nil
}
