// Package redis connects the rate limiter to Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"legitify/internal/platform/config"
)

// Client is a go-redis client with a readiness check.
type Client struct {
	*redis.Client
}

// New connects to Redis for the verification rate limiter.
// It returns nil, nil when no URL is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// poolCollector reads pool statistics at scrape time.
type poolCollector struct {
	stats func() *redis.PoolStats

	hits, misses, timeouts, stale *prometheus.Desc
	total, idle                   *prometheus.Desc
}

// NewPoolCollector exposes c's connection pool as legitify_redis_pool_* metrics.
func NewPoolCollector(c *Client) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("legitify_redis_pool_"+name, help, nil, nil)
	}
	return &poolCollector{
		stats:    c.PoolStats,
		hits:     desc("hits_total", "Times a free connection was found in the pool"),
		misses:   desc("misses_total", "Times a connection had to be dialed"),
		timeouts: desc("timeouts_total", "Times waiting for a connection timed out"),
		stale:    desc("stale_conns_total", "Stale connections removed from the pool"),
		total:    desc("total_conns", "Connections currently in the pool"),
		idle:     desc("idle_conns", "Idle connections currently in the pool"),
	}
}

func (p *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{p.hits, p.misses, p.timeouts, p.stale, p.total, p.idle} {
		ch <- d
	}
}

func (p *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.stats()
	ch <- prometheus.MustNewConstMetric(p.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(p.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(p.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(p.stale, prometheus.CounterValue, float64(s.StaleConns))
	ch <- prometheus.MustNewConstMetric(p.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(p.idle, prometheus.GaugeValue, float64(s.IdleConns))
}
