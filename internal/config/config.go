package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
	Auth           AuthConfig           `mapstructure:"auth"`
	LLM            LLMConfig            `mapstructure:"llm"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Retry          RetryConfig          `mapstructure:"retry"`
	VIP            VIPConfig            `mapstructure:"vip"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers      []string          `mapstructure:"brokers"`
	GroupID      string            `mapstructure:"group_id"`
	RequestTopic string            `mapstructure:"request_topic"`
	ResultTopic  string            `mapstructure:"result_topic"`
	DLQTopic     string            `mapstructure:"dlq_topic"`
	Retry        BrokerRetryConfig `mapstructure:"retry"`
}

type BrokerRetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LLMConfig struct {
	Provider          string        `mapstructure:"provider"` // "openai", "gemini" or "disabled"
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Temperature       float32       `mapstructure:"temperature"`
}

type PipelineConfig struct {
	DefaultBatchSize int           `mapstructure:"default_batch_size"`
	MaxBatchSize     int           `mapstructure:"max_batch_size"`
	Concurrency      int           `mapstructure:"concurrency"`
	HourlyBatchLimit int           `mapstructure:"hourly_batch_limit"`
	LeaseTimeout     time.Duration `mapstructure:"lease_timeout"`
	PersistTimeout   time.Duration `mapstructure:"persist_timeout"`
	ModelTimeout     time.Duration `mapstructure:"model_timeout"` // per model attempt
}

type RateLimitConfig struct {
	Backend       string                  `mapstructure:"backend"` // "memory" or "redis"
	SweepInterval time.Duration           `mapstructure:"sweep_interval"`
	Policies      map[string]PolicyConfig `mapstructure:"policies"`
	API           IPRateLimitConfig       `mapstructure:"api"`
}

type PolicyConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

type IPRateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	FailureThreshold uint32                   `mapstructure:"failure_threshold"`
	Cooldown         time.Duration            `mapstructure:"cooldown"`
	Resources        map[string]BreakerConfig `mapstructure:"resources"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
}

type VIPConfig struct {
	Rules []string `mapstructure:"rules"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
