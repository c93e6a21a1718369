// Package config loads process configuration from LEGITIFY_* environment variables.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Connector modes for the ledger session manager.
const (
	ConnectorFabric = "fabric"
	ConnectorDevnet = "devnet"
)

// Verification strategies.
const (
	StrategySequential = "sequential"
	StrategyParallel   = "parallel"
)

// Config is the full server configuration.
type Config struct {
	Environment  string
	LogLevel     string
	Server       Server
	Auth         Auth
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Ledger       Ledger
	Verification Verification
	RateLimit    RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	// TrustedProxies may set X-Forwarded-For. Empty trusts no proxy.
	TrustedProxies []netip.Prefix
}

// Auth configures bearer token validation.
type Auth struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
}

// DatabaseConfig configures the PostgreSQL pool. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the rate limit backend. An empty URL selects the in-memory limiter.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the credential event producer. Empty brokers keep events in memory.
type KafkaConfig struct {
	Brokers         string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// Ledger configures how sessions reach the network.
type Ledger struct {
	Connector    string
	TopologyFile string
	Channel      string
	Contract     string
	Insecure     bool
	MaxRetries   int
	RetryBackoff time.Duration
	// BreakerThreshold consecutive gateway failures open an organization's
	// breaker for BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Verification configures the coordinator.
type Verification struct {
	Strategy    string
	Parallelism int
	Timeout     time.Duration
}

// RateLimit bounds verification requests per caller.
type RateLimit struct {
	VerifyRequests int
	VerifyWindow   time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("log.level", "info")

	v.SetDefault("addr", ":8080")
	v.SetDefault("request.timeout", 30*time.Second)
	v.SetDefault("shutdown.timeout", 15*time.Second)
	v.SetDefault("max.body.bytes", 10<<20)

	v.SetDefault("jwt.signing.key", "dev-secret-key-change-in-production")
	v.SetDefault("jwt.issuer", "legitify")
	v.SetDefault("jwt.audience", "legitify-api")
	v.SetDefault("token.ttl", 15*time.Minute)

	v.SetDefault("database.max.open.conns", 25)
	v.SetDefault("database.max.idle.conns", 5)
	v.SetDefault("database.conn.max.lifetime", 5*time.Minute)

	v.SetDefault("redis.pool.size", 10)
	v.SetDefault("redis.min.idle.conns", 2)
	v.SetDefault("redis.dial.timeout", 5*time.Second)
	v.SetDefault("redis.read.timeout", 3*time.Second)
	v.SetDefault("redis.write.timeout", 3*time.Second)

	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.retries", 3)
	v.SetDefault("kafka.delivery.timeout", 30*time.Second)

	v.SetDefault("ledger.connector", ConnectorDevnet)
	v.SetDefault("ledger.channel", "legitify")
	v.SetDefault("ledger.contract", "credentials")
	v.SetDefault("ledger.max.retries", 3)
	v.SetDefault("ledger.retry.backoff", 100*time.Millisecond)
	v.SetDefault("ledger.breaker.threshold", 5)
	v.SetDefault("ledger.breaker.cooldown", 30*time.Second)

	v.SetDefault("verification.strategy", StrategySequential)
	v.SetDefault("verification.parallelism", 4)
	v.SetDefault("verification.timeout", 20*time.Second)

	v.SetDefault("ratelimit.verify.requests", 30)
	v.SetDefault("ratelimit.verify.window", time.Minute)
}

// FromEnv builds the configuration from LEGITIFY_-prefixed environment
// variables, e.g. LEGITIFY_LEDGER_CONNECTOR or LEGITIFY_DATABASE_URL.
func FromEnv() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEGITIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	proxies, err := parsePrefixes(v.GetString("trusted.proxies"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Environment: v.GetString("environment"),
		LogLevel:    v.GetString("log.level"),
		Server: Server{
			Addr:            v.GetString("addr"),
			RequestTimeout:  v.GetDuration("request.timeout"),
			ShutdownTimeout: v.GetDuration("shutdown.timeout"),
			MaxBodyBytes:    v.GetInt64("max.body.bytes"),
			TrustedProxies:  proxies,
		},
		Auth: Auth{
			JWTSigningKey: v.GetString("jwt.signing.key"),
			JWTIssuer:     v.GetString("jwt.issuer"),
			JWTAudience:   v.GetString("jwt.audience"),
			TokenTTL:      v.GetDuration("token.ttl"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxOpenConns:    v.GetInt("database.max.open.conns"),
			MaxIdleConns:    v.GetInt("database.max.idle.conns"),
			ConnMaxLifetime: v.GetDuration("database.conn.max.lifetime"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool.size"),
			MinIdleConns: v.GetInt("redis.min.idle.conns"),
			DialTimeout:  v.GetDuration("redis.dial.timeout"),
			ReadTimeout:  v.GetDuration("redis.read.timeout"),
			WriteTimeout: v.GetDuration("redis.write.timeout"),
		},
		Kafka: KafkaConfig{
			Brokers:         v.GetString("kafka.brokers"),
			Acks:            v.GetString("kafka.acks"),
			Retries:         v.GetInt("kafka.retries"),
			DeliveryTimeout: v.GetDuration("kafka.delivery.timeout"),
		},
		Ledger: Ledger{
			Connector:    strings.ToLower(v.GetString("ledger.connector")),
			TopologyFile: v.GetString("ledger.topology.file"),
			Channel:      v.GetString("ledger.channel"),
			Contract:     v.GetString("ledger.contract"),
			Insecure:     v.GetBool("ledger.insecure"),
			MaxRetries:   v.GetInt("ledger.max.retries"),
			RetryBackoff: v.GetDuration("ledger.retry.backoff"),

			BreakerThreshold: v.GetInt("ledger.breaker.threshold"),
			BreakerCooldown:  v.GetDuration("ledger.breaker.cooldown"),
		},
		Verification: Verification{
			Strategy:    strings.ToLower(v.GetString("verification.strategy")),
			Parallelism: v.GetInt("verification.parallelism"),
			Timeout:     v.GetDuration("verification.timeout"),
		},
		RateLimit: RateLimit{
			VerifyRequests: v.GetInt("ratelimit.verify.requests"),
			VerifyWindow:   v.GetDuration("ratelimit.verify.window"),
		},
	}
	return cfg, cfg.Validate()
}

// parsePrefixes reads a comma separated list of CIDRs or bare addresses.
func parsePrefixes(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if !strings.Contains(field, "/") {
			addr, err := netip.ParseAddr(field)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", field, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(field)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", field, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.Ledger.Connector {
	case ConnectorDevnet:
	case ConnectorFabric:
		if c.Ledger.TopologyFile == "" {
			return fmt.Errorf("LEGITIFY_LEDGER_TOPOLOGY_FILE is required for the fabric connector")
		}
	default:
		return fmt.Errorf("unknown ledger connector %q", c.Ledger.Connector)
	}
	switch c.Verification.Strategy {
	case StrategySequential, StrategyParallel:
	default:
		return fmt.Errorf("unknown verification strategy %q", c.Verification.Strategy)
	}
	if c.Verification.Parallelism < 1 {
		return fmt.Errorf("verification parallelism must be at least 1")
	}
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("jwt signing key must not be empty")
	}
	if c.Environment != "dev" && c.Auth.JWTSigningKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("jwt signing key must be set outside dev")
	}
	return nil
}
