package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixStats     = "stats:"
	CacheKeyPrefixRateLimit = "ratelimit:"
)

const (
	DefaultRequestTopic = "process_requests"
	DefaultResultTopic  = "processing_results"
)

const (
	DefaultMongoDBName       = "triage"
	DefaultResultsCollection = "processing_results"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultErrorLimit   = 50
	MaxErrorLimit       = 1000
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 200
)

// The batch ceiling counts runs over a trailing hour; a rejected caller is
// told to come back after the full window.
const (
	BatchCeilingWindow     = time.Hour
	BatchCeilingRetryAfter = 3600
)

const (
	DefaultStatsTTLSeconds = 3600
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	LLMProviderOpenAI   = "openai"
	LLMProviderGemini   = "gemini"
	LLMProviderDisabled = "disabled"
)

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

const (
	DBConnectAttempts        = 5
	DBConnectInitialInterval = 500 * time.Millisecond
	DBConnectMaxInterval     = 5 * time.Second
	DBPingTimeout            = 5 * time.Second
	PostgresMaxOpenConns     = 20
	PostgresMaxIdleConns     = 5
	PostgresConnMaxIdleTime  = 5 * time.Minute
)

const TracingExporterTimeout = 5 * time.Second
