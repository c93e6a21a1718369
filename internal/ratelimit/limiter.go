// Package ratelimit bounds how often a caller may run credential verification.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"legitify/internal/platform/config"
	"legitify/pkg/requestcontext"
)

// Result describes the outcome of one limiter check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Store records request timestamps per key over a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
	Reset(ctx context.Context, key string) error
}

// Limiter applies the verification quota to authenticated principals.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// New builds a limiter. A zero limit disables limiting.
func New(store Store, cfg config.RateLimit) *Limiter {
	return &Limiter{
		store:  store,
		limit:  cfg.VerifyRequests,
		window: cfg.VerifyWindow,
	}
}

// Enabled reports whether requests are limited at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limit > 0 && l.window > 0
}

// Allow consumes one verification slot for the user.
func (l *Limiter) Allow(ctx context.Context, userID uuid.UUID) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	res, err := l.store.Allow(ctx, verifyKey(userID), l.limit, l.window, requestcontext.Now(ctx))
	if err != nil {
		return Result{}, fmt.Errorf("check verification quota: %w", err)
	}
	return res, nil
}

// Reset clears the user's verification quota.
func (l *Limiter) Reset(ctx context.Context, userID uuid.UUID) error {
	return l.store.Reset(ctx, verifyKey(userID))
}

func verifyKey(userID uuid.UUID) string {
	return "verify:user:" + userID.String()
}

func retryAfter(allowed bool, resetAt, now time.Time) time.Duration {
	if allowed {
		return 0
	}
	d := resetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
