package redis

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legitify/internal/platform/config"
)

func TestNewSkipsUnconfiguredRedis(t *testing.T) {
	client, err := New(t.Context(), configWithURL(""))
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRejectsMalformedURL(t *testing.T) {
	_, err := New(t.Context(), configWithURL("http://not-redis"))
	assert.ErrorContains(t, err, "parse redis URL")
}

func TestPoolCollectorReadsStatsAtScrapeTime(t *testing.T) {
	client := &Client{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})}
	t.Cleanup(func() { _ = client.Close() })

	collector := NewPoolCollector(client).(*poolCollector)
	stats := &redis.PoolStats{Hits: 7, Misses: 2, TotalConns: 3, IdleConns: 1}
	collector.stats = func() *redis.PoolStats { return stats }

	assert.Equal(t, 6, testutil.CollectAndCount(collector))
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(`
# HELP legitify_redis_pool_hits_total Times a free connection was found in the pool
# TYPE legitify_redis_pool_hits_total counter
legitify_redis_pool_hits_total 7
# HELP legitify_redis_pool_total_conns Connections currently in the pool
# TYPE legitify_redis_pool_total_conns gauge
legitify_redis_pool_total_conns 3
`), "legitify_redis_pool_hits_total", "legitify_redis_pool_total_conns"))

	stats = &redis.PoolStats{Hits: 9, TotalConns: 4}
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(`
# HELP legitify_redis_pool_total_conns Connections currently in the pool
# TYPE legitify_redis_pool_total_conns gauge
legitify_redis_pool_total_conns 4
`), "legitify_redis_pool_total_conns"))
}

func configWithURL(url string) config.RedisConfig {
	return config.RedisConfig{URL: url, PoolSize: 2}
}
