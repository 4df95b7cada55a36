// Package config provides configuration structures and validation for the application.
// It handles environment-based configuration for the API gateway, the background
// processor and the operator CLI, including the external provider and payment gateway
// contracts and the resilience policies that guard them.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration and is validated during
// application startup.
type Config struct {
	Application  ApplicationConfig
	Logging      LoggingConfig
	Server       ServerConfig
	Auth         AuthConfig
	Kafka        KafkaConfig
	Postgres     PostgresConfig
	MongoDB      MongoDBConfig
	Redis        RedisConfig
	Outbox       OutboxConfig
	WorkerPool   WorkerPoolConfig
	Provider     ProviderConfig
	Gateway      GatewayConfig
	Resilience   ResilienceConfig
	Orchestrator OrchestratorConfig
	Idempotency  IdempotencyConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
	MaxAwait        time.Duration // Upper bound for long-polling a verification code
}

// AuthConfig contains bearer token verification settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	SettlementTopic   string
	NumPartitions     int // Number of partitions for topics
	ReplicationFactor int // Replication factor for topics
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string // Topic for Dead Letter Queue
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int // Maximum number of retry attempts for outbox messages
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size         int           // Maximum number of workers in the pool
	DrainTimeout time.Duration // How long shutdown waits for running settlements
}

// ProviderConfig describes the external verification provider
type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// GatewayConfig describes the external payment gateway
type GatewayConfig struct {
	BaseURL        string
	SecretKey      string
	WebhookSecret  string
	CallbackURL    string
	Currency       string
	RequestTimeout time.Duration
}

// ResilienceConfig holds the retry and circuit breaker policy shared by both
// external dependencies.
type ResilienceConfig struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	FailureThreshold int
	FailureWindow    time.Duration
	Cooldown         time.Duration
	MaxCooldown      time.Duration
}

// OrchestratorConfig contains transaction lifecycle settings
type OrchestratorConfig struct {
	DefaultExpiry          time.Duration
	ServiceExpiry          map[string]time.Duration // per-service overrides, "svc:dur,svc:dur"
	PollInterval           time.Duration
	SweepInterval          time.Duration
	SweepBatchSize         int
	StaleProvisioningAfter time.Duration
	RefundFactorBps        int64 // rental release refund factor, 10000 = 100%
	BanThreshold           int
	MaxLineSwaps           int
	VolumeWindow           time.Duration
}

// IdempotencyConfig contains idempotency-key retention settings
type IdempotencyConfig struct {
	TTL           time.Duration
	InProgressTTL time.Duration
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}
	if c.Server.MaxAwait <= 0 || c.Server.MaxAwait >= c.Server.WriteTimeout {
		validationErrors = append(validationErrors, "SERVER_MAX_AWAIT must be greater than 0 and below SERVER_WRITE_TIMEOUT")
	}

	// Validate Auth config
	if c.Auth.JWTSecret == "" {
		validationErrors = append(validationErrors, "AUTH_JWT_SECRET is required")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.SettlementTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_SETTLEMENT_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Redis config
	if c.Redis.Addr == "" {
		validationErrors = append(validationErrors, "REDIS_ADDR is required")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate external dependencies
	if c.Provider.BaseURL == "" {
		validationErrors = append(validationErrors, "PROVIDER_BASE_URL is required")
	}
	if c.Provider.RequestTimeout <= 0 {
		validationErrors = append(validationErrors, "PROVIDER_REQUEST_TIMEOUT must be greater than 0")
	}
	if c.Gateway.BaseURL == "" {
		validationErrors = append(validationErrors, "GATEWAY_BASE_URL is required")
	}
	if c.Gateway.WebhookSecret == "" {
		validationErrors = append(validationErrors, "GATEWAY_WEBHOOK_SECRET is required")
	}
	if len(c.Gateway.Currency) != 3 {
		validationErrors = append(validationErrors, "GATEWAY_CURRENCY must be a 3-letter code")
	}
	if c.Gateway.RequestTimeout <= 0 {
		validationErrors = append(validationErrors, "GATEWAY_REQUEST_TIMEOUT must be greater than 0")
	}

	// Validate Resilience config
	if c.Resilience.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "RESILIENCE_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Resilience.BaseDelay <= 0 || c.Resilience.MaxDelay < c.Resilience.BaseDelay {
		validationErrors = append(validationErrors, "RESILIENCE_BASE_DELAY must be greater than 0 and not exceed RESILIENCE_MAX_DELAY")
	}
	if c.Resilience.FailureThreshold <= 0 {
		validationErrors = append(validationErrors, "RESILIENCE_FAILURE_THRESHOLD must be greater than 0")
	}
	if c.Resilience.FailureWindow <= 0 {
		validationErrors = append(validationErrors, "RESILIENCE_FAILURE_WINDOW must be greater than 0")
	}
	if c.Resilience.Cooldown <= 0 || c.Resilience.MaxCooldown < c.Resilience.Cooldown {
		validationErrors = append(validationErrors, "RESILIENCE_COOLDOWN must be greater than 0 and not exceed RESILIENCE_MAX_COOLDOWN")
	}

	// Validate Orchestrator config
	if c.Orchestrator.DefaultExpiry <= 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_DEFAULT_EXPIRY must be greater than 0")
	}
	if c.Orchestrator.PollInterval <= 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_POLL_INTERVAL must be greater than 0")
	}
	if c.Orchestrator.SweepInterval <= 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_SWEEP_INTERVAL must be greater than 0")
	}
	if c.Orchestrator.SweepBatchSize <= 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_SWEEP_BATCH_SIZE must be greater than 0")
	}
	if c.Orchestrator.StaleProvisioningAfter <= 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_STALE_PROVISIONING_AFTER must be greater than 0")
	}
	if c.Orchestrator.RefundFactorBps <= 0 || c.Orchestrator.RefundFactorBps >= 10000 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_REFUND_FACTOR_BPS must be between 1 and 9999")
	}
	if c.Orchestrator.BanThreshold <= 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_BAN_THRESHOLD must be greater than 0")
	}
	if c.Orchestrator.MaxLineSwaps < 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_MAX_LINE_SWAPS cannot be negative")
	}
	if c.Orchestrator.VolumeWindow <= 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_VOLUME_WINDOW must be greater than 0")
	}
	for service, expiry := range c.Orchestrator.ServiceExpiry {
		if expiry <= 0 {
			validationErrors = append(validationErrors, "ORCHESTRATOR_SERVICE_EXPIRY has a non-positive duration for "+service)
		}
	}

	// Validate Idempotency config
	if c.Idempotency.TTL <= 0 {
		validationErrors = append(validationErrors, "IDEMPOTENCY_TTL must be greater than 0")
	}
	if c.Idempotency.InProgressTTL <= 0 {
		validationErrors = append(validationErrors, "IDEMPOTENCY_IN_PROGRESS_TTL must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
