package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_Allow(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("admits up to the limit then rejects", func(t *testing.T) {
		s := NewInMemoryStore()
		for i := range 3 {
			res, err := s.Allow(ctx, "k", 3, time.Minute, base.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 2-i, res.Remaining)
		}

		res, err := s.Allow(ctx, "k", 3, time.Minute, base.Add(5*time.Second))
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.Equal(t, base.Add(time.Minute), res.ResetAt)
		assert.Equal(t, 55*time.Second, res.RetryAfter)
	})

	t.Run("window slides past old requests", func(t *testing.T) {
		s := NewInMemoryStore()
		_, _ = s.Allow(ctx, "k", 1, time.Minute, base)

		res, err := s.Allow(ctx, "k", 1, time.Minute, base.Add(30*time.Second))
		require.NoError(t, err)
		assert.False(t, res.Allowed)

		res, err = s.Allow(ctx, "k", 1, time.Minute, base.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := NewInMemoryStore()
		_, _ = s.Allow(ctx, "a", 1, time.Minute, base)

		res, err := s.Allow(ctx, "b", 1, time.Minute, base)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("reset clears the window", func(t *testing.T) {
		s := NewInMemoryStore()
		_, _ = s.Allow(ctx, "k", 1, time.Minute, base)
		require.NoError(t, s.Reset(ctx, "k"))

		res, err := s.Allow(ctx, "k", 1, time.Minute, base)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})
}
