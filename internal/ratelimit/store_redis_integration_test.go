//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"legitify/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestAdmitsUpToLimit() {
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	for i := range 3 {
		res, err := s.store.Allow(ctx, "k", 3, time.Minute, now.Add(time.Duration(i)*time.Millisecond))
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(2-i, res.Remaining)
	}

	res, err := s.store.Allow(ctx, "k", 3, time.Minute, now.Add(10*time.Millisecond))
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(now.Add(time.Minute).UnixMilli(), res.ResetAt.UnixMilli())
	s.Positive(res.RetryAfter)
}

func (s *RedisStoreSuite) TestWindowSlides() {
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	_, err := s.store.Allow(ctx, "k", 1, time.Second, now)
	s.Require().NoError(err)

	res, err := s.store.Allow(ctx, "k", 1, time.Second, now.Add(500*time.Millisecond))
	s.Require().NoError(err)
	s.False(res.Allowed)

	res, err = s.store.Allow(ctx, "k", 1, time.Second, now.Add(time.Second))
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisStoreSuite) TestReset() {
	ctx := context.Background()
	now := time.Now()

	_, err := s.store.Allow(ctx, "k", 1, time.Minute, now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(ctx, "k"))

	res, err := s.store.Allow(ctx, "k", 1, time.Minute, now)
	s.Require().NoError(err)
	s.True(res.Allowed)
}
