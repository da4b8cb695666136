package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig reads configFile, layers environment variables on top and
// validates the result. An empty configFile loads defaults and environment
// only.
func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", "15s")
	viper.SetDefault("server.write_timeout_seconds", "60s")

	viper.SetDefault("database.postgres.sslmode", "disable")
	viper.SetDefault("database.redis.ttl_seconds", 3600)
	viper.SetDefault("database.mongodb.collection", "processing_results")

	viper.SetDefault("broker.type", "none")
	viper.SetDefault("broker.kafka.group_id", "triage-service")
	viper.SetDefault("broker.kafka.request_topic", "process_requests")
	viper.SetDefault("broker.kafka.result_topic", "processing_results")
	viper.SetDefault("broker.kafka.dlq_topic", "process_requests_dlq")
	viper.SetDefault("broker.kafka.retry.max_attempts", 3)
	viper.SetDefault("broker.kafka.retry.initial_interval", "1s")
	viper.SetDefault("broker.kafka.retry.max_interval", "30s")
	viper.SetDefault("broker.kafka.retry.multiplier", 2.0)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("tracing.service_name", "triage-service")
	viper.SetDefault("tracing.sampler.type", "always_on")

	viper.SetDefault("auth.enabled", true)

	viper.SetDefault("llm.provider", "disabled")
	viper.SetDefault("llm.timeout", "30s")
	viper.SetDefault("llm.requests_per_second", 2.0)
	viper.SetDefault("llm.burst", 1)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.temperature", 0.2)

	viper.SetDefault("pipeline.default_batch_size", 10)
	viper.SetDefault("pipeline.max_batch_size", 50)
	viper.SetDefault("pipeline.concurrency", 5)
	viper.SetDefault("pipeline.hourly_batch_limit", 10)
	viper.SetDefault("pipeline.lease_timeout", "10m")
	viper.SetDefault("pipeline.persist_timeout", "10s")
	viper.SetDefault("pipeline.model_timeout", "30s")

	viper.SetDefault("rate_limit.backend", "memory")
	viper.SetDefault("rate_limit.sweep_interval", "1m")
	viper.SetDefault("rate_limit.policies", map[string]interface{}{
		"model":     map[string]interface{}{"max_requests": 50, "window": "1m"},
		"mail":      map[string]interface{}{"max_requests": 250, "window": "1m"},
		"chat":      map[string]interface{}{"max_requests": 100, "window": "1m"},
		"groupchat": map[string]interface{}{"max_requests": 60, "window": "1m"},
		"api":       map[string]interface{}{"max_requests": 30, "window": "1m"},
	})
	viper.SetDefault("rate_limit.api.enabled", true)
	viper.SetDefault("rate_limit.api.rps", 10.0)
	viper.SetDefault("rate_limit.api.burst", 20)
	viper.SetDefault("rate_limit.api.cleanup_interval", "5m")
	viper.SetDefault("rate_limit.api.max_age", "10m")

	viper.SetDefault("circuit_breaker.failure_threshold", 5)
	viper.SetDefault("circuit_breaker.cooldown", "60s")

	viper.SetDefault("retry.max_retries", 3)
	viper.SetDefault("retry.base_delay", "1s")
	viper.SetDefault("retry.max_delay", "30s")
	viper.SetDefault("retry.multiplier", 2.0)
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.request_topic", "BROKER_KAFKA_REQUEST_TOPIC")
	viper.BindEnv("broker.kafka.result_topic", "BROKER_KAFKA_RESULT_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")
	viper.BindEnv("database.run_migrations", "DATABASE_RUN_MIGRATIONS")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")

	viper.BindEnv("auth.enabled", "AUTH_ENABLED")
	viper.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "JWT_SECRET")

	viper.BindEnv("llm.provider", "LLM_PROVIDER")
	viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	viper.BindEnv("llm.api_key", "LLM_API_KEY")
	viper.BindEnv("llm.model", "LLM_MODEL")

	viper.BindEnv("pipeline.hourly_batch_limit", "PIPELINE_HOURLY_BATCH_LIMIT")
	viper.BindEnv("pipeline.concurrency", "PIPELINE_CONCURRENCY")

	viper.BindEnv("rate_limit.backend", "RATE_LIMIT_BACKEND")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	if rules := viper.GetString("VIP_RULES"); rules != "" {
		var parsed []string
		for _, r := range strings.Split(rules, ";") {
			if r = strings.TrimSpace(r); r != "" {
				parsed = append(parsed, r)
			}
		}
		cfg.VIP.Rules = parsed
	}

	return nil
}
