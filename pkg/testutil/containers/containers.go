//go:build integration

// Package containers starts the backing services integration tests run
// against. Each service starts at most once per test binary and is shared by
// every suite in it; Ryuk removes the containers when the process exits.
package containers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

const startupTimeout = 2 * time.Minute

// Manager hands out the shared containers.
type Manager struct {
	postgres lazy[*PostgresContainer]
	kafka    lazy[*KafkaContainer]
	redis    lazy[*RedisContainer]
}

var manager = &Manager{}

// GetManager returns the process-wide manager.
func GetManager() *Manager {
	return manager
}

// GetPostgres returns a migrated Postgres, starting it on first use.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, "postgres", startPostgres)
}

// GetKafka returns a single-node Kafka broker, starting it on first use.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, "kafka", startKafka)
}

// GetRedis returns a Redis server, starting it on first use.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, "redis", startRedis)
}

// lazy starts a container once and remembers the outcome, failure included,
// so a broken Docker daemon fails every suite quickly instead of retrying.
type lazy[T any] struct {
	once  sync.Once
	value T
	err   error
}

func (l *lazy[T]) get(t *testing.T, name string, start func(context.Context) (T, error)) T {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		l.value, l.err = start(ctx)
	})
	if l.err != nil {
		t.Fatalf("start %s container: %v", name, l.err)
	}
	return l.value
}
