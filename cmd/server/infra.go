package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"legitify/internal/audit"
	credentialservice "legitify/internal/credential/service"
	"legitify/internal/documents"
	docstore "legitify/internal/documents/store"
	idstore "legitify/internal/identity/store"
	"legitify/internal/ledger/devnet"
	"legitify/internal/ledger/session"
	"legitify/internal/platform/config"
	"legitify/internal/platform/database"
	"legitify/internal/platform/health"
	"legitify/internal/platform/kafka/producer"
	"legitify/internal/platform/metrics"
	"legitify/internal/platform/redis"
	"legitify/internal/ratelimit"
	"legitify/internal/verification"
)

const auditBufferSize = 1024

// documentStore is everything the services need from the off-ledger index.
type documentStore interface {
	credentialservice.DocumentStore
	verification.Directory
	documents.UserStore
}

// wallet is the identity store the session manager reads and devnet fills.
type wallet interface {
	session.IdentityStore
	devnet.Wallet
}

// infra holds the process-wide backing services. Optional backends fall back
// to in-memory implementations when their URL is not configured.
type infra struct {
	Registry       *metrics.Registry
	Health         *health.Handler
	Documents      documentStore
	Wallet         wallet
	Publisher      *audit.Publisher
	RateLimitStore ratelimit.Store

	log      *slog.Logger
	pool     *database.Pool
	redis    *redis.Client
	producer *producer.Producer
}

func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{
		Registry: metrics.New(),
		Health:   health.New(cfg.Environment),
		log:      log,
	}

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if pool != nil {
		in.pool = pool
		in.Documents = docstore.NewPostgres(pool.DB())
		in.Wallet = idstore.NewPostgres(pool.DB())
		in.Health.RegisterCheck("database", pool.Health)
		in.Registry.MustRegister(collectors.NewDBStatsCollector(pool.DB(), "legitify"))
		log.Info("using postgres stores")
	} else {
		in.Documents = docstore.NewInMemory()
		in.Wallet = idstore.NewInMemory()
		log.Warn("LEGITIFY_DATABASE_URL not set, using in-memory stores")
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client != nil {
		in.redis = client
		in.RateLimitStore = ratelimit.NewRedisStore(client)
		in.Health.RegisterCheck("redis", client.Health)
		in.Registry.MustRegister(redis.NewPoolCollector(client))
		log.Info("using redis rate limit store")
	} else {
		in.RateLimitStore = ratelimit.NewInMemoryStore()
		log.Warn("LEGITIFY_REDIS_URL not set, using in-memory rate limiting")
	}

	var sink audit.Store
	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(cfg.Kafka, log)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		in.producer = p
		sink = audit.NewKafkaStore(p, "")
		in.Health.RegisterCheck("kafka", p.Health)
		log.Info("publishing credential events to kafka", "brokers", cfg.Kafka.Brokers)
	} else {
		sink = audit.NewInMemoryStore()
		log.Warn("LEGITIFY_KAFKA_BROKERS not set, keeping credential events in memory")
	}
	in.Publisher = audit.NewPublisher(sink,
		audit.WithAsyncBuffer(auditBufferSize),
		audit.WithPublisherLogger(log),
	)

	return in, nil
}

// Close releases backends in reverse order of construction.
func (in *infra) Close() {
	if in.Publisher != nil {
		in.Publisher.Close()
	}
	if in.producer != nil {
		if err := in.producer.Close(); err != nil {
			in.log.Warn("closing kafka producer", "error", err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			in.log.Warn("closing redis client", "error", err)
		}
	}
	if in.pool != nil {
		if err := in.pool.Close(); err != nil {
			in.log.Warn("closing database pool", "error", err)
		}
	}
}
