package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateAuth(cfg.Auth); err != nil {
		errors = append(errors, err)
	}

	if err := validateLLM(cfg.LLM); err != nil {
		errors = append(errors, err)
	}

	if err := validatePipeline(cfg.Pipeline); err != nil {
		errors = append(errors, err)
	}

	if err := validateRateLimit(cfg.RateLimit); err != nil {
		errors = append(errors, err)
	}

	if err := validateCircuitBreaker(cfg.CircuitBreaker); err != nil {
		errors = append(errors, err)
	}

	if err := validateRetry(cfg.Retry); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "", "none":
		return nil
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, none)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.RequestTopic == "" || cfg.ResultTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.request_topic",
			Message: "request and result topics are required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.InitialInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.TTLSeconds < 0 {
		return &ValidationError{
			Field:   "database.redis.ttl_seconds",
			Message: "TTL must be non-negative",
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateAuth(cfg AuthConfig) error {
	if cfg.Enabled && len(cfg.JWTSecret) < 16 {
		return &ValidationError{
			Field:   "auth.jwt_secret",
			Message: "JWT secret of at least 16 characters is required when auth is enabled",
		}
	}
	return nil
}

func validateLLM(cfg LLMConfig) error {
	switch strings.ToLower(cfg.Provider) {
	case "", "disabled":
		return nil
	case "openai", "gemini":
	default:
		return &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider: %s (supported: openai, gemini, disabled)", cfg.Provider),
		}
	}

	if cfg.APIKey == "" {
		return &ValidationError{
			Field:   "llm.api_key",
			Message: "API key is required for the configured provider",
		}
	}

	if cfg.Model == "" {
		return &ValidationError{
			Field:   "llm.model",
			Message: "model name is required",
		}
	}

	if cfg.RequestsPerSecond < 0 {
		return &ValidationError{
			Field:   "llm.requests_per_second",
			Message: "requests_per_second must be non-negative",
		}
	}

	return nil
}

func validatePipeline(cfg PipelineConfig) error {
	if cfg.DefaultBatchSize < 1 {
		return &ValidationError{
			Field:   "pipeline.default_batch_size",
			Message: "default batch size must be at least 1",
		}
	}

	if cfg.MaxBatchSize < cfg.DefaultBatchSize {
		return &ValidationError{
			Field:   "pipeline.max_batch_size",
			Message: fmt.Sprintf("max batch size must be at least the default (%d)", cfg.DefaultBatchSize),
		}
	}

	if cfg.Concurrency < 1 {
		return &ValidationError{
			Field:   "pipeline.concurrency",
			Message: "concurrency must be at least 1",
		}
	}

	if cfg.HourlyBatchLimit < 1 {
		return &ValidationError{
			Field:   "pipeline.hourly_batch_limit",
			Message: "hourly batch limit must be at least 1",
		}
	}

	if cfg.LeaseTimeout <= 0 {
		return &ValidationError{
			Field:   "pipeline.lease_timeout",
			Message: "lease timeout must be positive",
		}
	}

	return nil
}

func validateRateLimit(cfg RateLimitConfig) error {
	switch cfg.Backend {
	case "", "memory", "redis":
	default:
		return &ValidationError{
			Field:   "rate_limit.backend",
			Message: fmt.Sprintf("unknown backend: %s (supported: memory, redis)", cfg.Backend),
		}
	}

	for name, p := range cfg.Policies {
		if p.MaxRequests < 1 {
			return &ValidationError{
				Field:   fmt.Sprintf("rate_limit.policies.%s.max_requests", name),
				Message: "max_requests must be at least 1",
			}
		}
		if p.Window <= 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("rate_limit.policies.%s.window", name),
				Message: "window must be positive",
			}
		}
	}

	if _, ok := cfg.Policies["model"]; !ok {
		return &ValidationError{
			Field:   "rate_limit.policies.model",
			Message: "a model policy is required",
		}
	}

	return nil
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if cfg.FailureThreshold < 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_threshold",
			Message: "failure threshold must be at least 1",
		}
	}

	if cfg.Cooldown <= 0 {
		return &ValidationError{
			Field:   "circuit_breaker.cooldown",
			Message: "cooldown must be positive",
		}
	}

	for name, r := range cfg.Resources {
		if r.Cooldown < 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("circuit_breaker.resources.%s.cooldown", name),
				Message: "cooldown must be non-negative",
			}
		}
	}

	return nil
}

func validateRetry(cfg RetryConfig) error {
	if cfg.MaxRetries < 0 {
		return &ValidationError{
			Field:   "retry.max_retries",
			Message: "max_retries must be non-negative",
		}
	}

	if cfg.BaseDelay <= 0 {
		return &ValidationError{
			Field:   "retry.base_delay",
			Message: "base_delay must be positive",
		}
	}

	if cfg.MaxDelay < cfg.BaseDelay {
		return &ValidationError{
			Field:   "retry.max_delay",
			Message: "max_delay must be greater than or equal to base_delay",
		}
	}

	if cfg.Multiplier < 1 {
		return &ValidationError{
			Field:   "retry.multiplier",
			Message: "multiplier must be at least 1",
		}
	}

	return nil
}
