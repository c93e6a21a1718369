package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the exponential backoff applied to transient failures.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries transient failures three times starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// run calls op until it succeeds, returns a permanent error, the retry budget
// is spent or ctx is done.
func (p RetryPolicy) run(ctx context.Context, op func() error) error {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if p.MaxRetries > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.InitialInterval
		eb.MaxInterval = p.MaxInterval
		eb.MaxElapsedTime = 0
		b = backoff.WithMaxRetries(eb, uint64(p.MaxRetries))
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
