package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
auth:
  enabled: true
  jwt_secret: "0123456789abcdef0123"
llm:
  provider: openai
  base_url: http://localhost:11434/v1
  api_key: test-key
  model: gpt-4o-mini
pipeline:
  default_batch_size: 10
  max_batch_size: 25
  concurrency: 3
  hourly_batch_limit: 4
rate_limit:
  backend: memory
  policies:
    model:
      max_requests: 3
      window: 1s
circuit_breaker:
  failure_threshold: 2
  cooldown: 30s
  resources:
    database:
      failure_threshold: 4
retry:
  max_retries: 3
  base_delay: 100ms
  max_delay: 2s
  multiplier: 2
vip:
  rules:
    - 'sender.address.endsWith("@board.example.com")'
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 4, cfg.Pipeline.HourlyBatchLimit)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.LeaseTimeout)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.ModelTimeout)
	assert.Equal(t, PolicyConfig{MaxRequests: 3, Window: time.Second}, cfg.RateLimit.Policies["model"])
	assert.Equal(t, uint32(2), cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, uint32(4), cfg.CircuitBreaker.Resources["database"].FailureThreshold)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Len(t, cfg.VIP.Rules, 1)
	assert.Equal(t, "none", cfg.Broker.Type)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("BROKER_TYPE", "kafka")
	t.Setenv("BROKER_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("VIP_RULES", `platform == "mail"; sender.name == "CEO"`)

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, []string{`platform == "mail"`, `sender.name == "CEO"`}, cfg.VIP.Rules)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
auth:
  enabled: true
  jwt_secret: short
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ReadTimeoutSeconds: time.Second, WriteTimeoutSeconds: time.Second},
		Broker: BrokerConfig{Type: "none"},
		Auth:   AuthConfig{Enabled: false},
		LLM:    LLMConfig{Provider: "disabled"},
		Pipeline: PipelineConfig{
			DefaultBatchSize: 10,
			MaxBatchSize:     10,
			Concurrency:      2,
			HourlyBatchLimit: 10,
			LeaseTimeout:     time.Minute,
		},
		RateLimit: RateLimitConfig{
			Backend:  "memory",
			Policies: map[string]PolicyConfig{"model": {MaxRequests: 1, Window: time.Second}},
		},
		CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Second},
		Retry:          RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown broker", func(c *Config) { c.Broker.Type = "rabbitmq" }, "broker.type"},
		{"kafka without brokers", func(c *Config) { c.Broker.Type = "kafka" }, "broker.kafka.brokers"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "other" }, "llm.provider"},
		{"provider without key", func(c *Config) { c.LLM.Provider = "gemini"; c.LLM.Model = "m" }, "llm.api_key"},
		{"batch size", func(c *Config) { c.Pipeline.DefaultBatchSize = 0 }, "pipeline.default_batch_size"},
		{"max below default", func(c *Config) { c.Pipeline.MaxBatchSize = 5 }, "pipeline.max_batch_size"},
		{"hourly limit", func(c *Config) { c.Pipeline.HourlyBatchLimit = 0 }, "pipeline.hourly_batch_limit"},
		{"missing model policy", func(c *Config) { c.RateLimit.Policies = map[string]PolicyConfig{} }, "rate_limit.policies.model"},
		{"bad policy", func(c *Config) {
			c.RateLimit.Policies["chat"] = PolicyConfig{MaxRequests: 0, Window: time.Second}
		}, "rate_limit.policies.chat.max_requests"},
		{"unknown backend", func(c *Config) { c.RateLimit.Backend = "etcd" }, "rate_limit.backend"},
		{"breaker threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }, "circuit_breaker.failure_threshold"},
		{"retry multiplier", func(c *Config) { c.Retry.Multiplier = 0.5 }, "retry.multiplier"},
		{"retry max delay", func(c *Config) { c.Retry.MaxDelay = 0 }, "retry.max_delay"},
		{"bad mongo uri", func(c *Config) { c.Database.MongoDB.URI = "http://mongo" }, "database.mongodb.uri"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
