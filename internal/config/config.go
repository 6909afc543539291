// Package config loads the dynamic batching scheduler's tunables from the
// environment once at process start, following the getenv/getenvInt
// convention used throughout this codebase family.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	MaxBatchSize         int
	BatchWaitTimeout     time.Duration
	MaxConcurrentBatches int

	UseRealEngine      bool
	RealEngineURL      string
	RealEngineModel    string
	RealEngineTimeout  time.Duration
	RealEngineFallback bool

	JWTSecretKey         string
	JWTAlgorithm         string
	JWTExpirationMinutes int

	QueueMaxDepth   int
	TaskRetention   time.Duration
	TaskMaxRetained int

	MaxPromptLength    int
	MaxBatchSubmitSize int
	ShutdownGrace      time.Duration
	SynchronousTimeout time.Duration

	ModelPolicyFile string

	ResultArchive  string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	OTelServiceName string
}

// FromEnv loads configuration from the process environment and validates
// it. A validation failure here is a fatal configuration error (exit code
// 1 at the call site in main).
func FromEnv() (Config, error) {
	c := Config{
		Port: getenv("BATCH_GATEWAY_PORT", "8080"),

		MaxBatchSize:         getenvInt("VLLM_MAX_BATCH_SIZE", 32),
		BatchWaitTimeout:     getenvSeconds("VLLM_BATCH_WAIT_TIMEOUT", 0.1),
		MaxConcurrentBatches: getenvInt("VLLM_MAX_CONCURRENT_BATCHES", 4),

		UseRealEngine:      getenvBool("USE_REAL_VLLM", false),
		RealEngineURL:      getenv("REAL_VLLM_URL", ""),
		RealEngineModel:    getenv("REAL_VLLM_MODEL", "mock-model"),
		RealEngineTimeout:  getenvSeconds("REAL_VLLM_TIMEOUT_SECONDS", 60),
		RealEngineFallback: getenvBool("REAL_VLLM_FALLBACK_ENABLED", true),

		JWTSecretKey:         getenv("JWT_SECRET_KEY", "dev-secret-change-me"),
		JWTAlgorithm:         getenv("JWT_ALGORITHM", "HS256"),
		JWTExpirationMinutes: getenvInt("JWT_EXPIRATION_MINUTES", 30),

		QueueMaxDepth:   getenvInt("QUEUE_MAX_DEPTH", 10000),
		TaskRetention:   getenvSeconds("TASK_RETENTION_SECONDS", 3600),
		TaskMaxRetained: getenvInt("TASK_MAX_RETAINED", 100000),

		MaxPromptLength:    getenvInt("MAX_PROMPT_LENGTH", 8000),
		MaxBatchSubmitSize: getenvInt("MAX_BATCH_SUBMIT_SIZE", 100),
		ShutdownGrace:      getenvSeconds("SHUTDOWN_GRACE_SECONDS", 5),
		SynchronousTimeout: getenvSeconds("OPENAI_SYNC_TIMEOUT_SECONDS", 120),

		ModelPolicyFile: getenv("BATCH_GATEWAY_MODEL_POLICY_FILE", ""),

		ResultArchive:  strings.ToLower(getenv("BATCH_GATEWAY_RESULT_ARCHIVE", "none")),
		MinIOEndpoint:  getenv("BATCH_GATEWAY_MINIO_ENDPOINT", ""),
		MinIOAccessKey: getenv("BATCH_GATEWAY_MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getenv("BATCH_GATEWAY_MINIO_SECRET_KEY", ""),
		MinIOBucket:    getenv("BATCH_GATEWAY_MINIO_BUCKET", "batch-gateway-results"),
		MinIOUseSSL:    getenvBool("BATCH_GATEWAY_MINIO_USE_SSL", true),

		OTelServiceName: getenv("BATCH_GATEWAY_OTEL_SERVICE_NAME", "batch-gateway"),
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("VLLM_MAX_BATCH_SIZE must be positive, got %d", c.MaxBatchSize)
	}
	if c.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("VLLM_MAX_CONCURRENT_BATCHES must be positive, got %d", c.MaxConcurrentBatches)
	}
	if c.BatchWaitTimeout < 0 {
		return fmt.Errorf("VLLM_BATCH_WAIT_TIMEOUT must be non-negative")
	}
	if c.UseRealEngine && strings.TrimSpace(c.RealEngineURL) == "" {
		return fmt.Errorf("REAL_VLLM_URL is required when USE_REAL_VLLM=true")
	}
	if c.QueueMaxDepth <= 0 {
		return fmt.Errorf("QUEUE_MAX_DEPTH must be positive, got %d", c.QueueMaxDepth)
	}
	if c.ResultArchive != "none" && c.ResultArchive != "minio" {
		return fmt.Errorf("unsupported BATCH_GATEWAY_RESULT_ARCHIVE value %q", c.ResultArchive)
	}
	if c.ResultArchive == "minio" && strings.TrimSpace(c.MinIOEndpoint) == "" {
		return fmt.Errorf("BATCH_GATEWAY_MINIO_ENDPOINT is required when BATCH_GATEWAY_RESULT_ARCHIVE=minio")
	}
	return nil
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func getenvSeconds(key string, fallback float64) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return durationFromSeconds(fallback)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return durationFromSeconds(fallback)
	}
	return durationFromSeconds(f)
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
