package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	DatabaseURL        string
	RedisURL           string
	NatsURL            string
	NatsSubject        string
	JWTSecret          string
	JWTRefreshSecret   string
	DockerHost         string
	ExecutionTimeout   time.Duration
	ExpressionTimeout  time.Duration
	CodeRunMemoryMB    int
	CodeRunCPUShares   int
	SandboxWorkspace   string
	SandboxDataRoot    string
	OpenAIAPIKey       string
	EmbeddingModel     string
	EmbeddingThreshold float64
	AnalyticsCacheTTL  time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADEFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GradeFlow API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject", "gradeflow.evaluations")
	v.SetDefault("execution_timeout_ms", 10000)
	v.SetDefault("expression_timeout_ms", 10000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("embedding.threshold", 0.8)
	v.SetDefault("analytics.cache_ttl", "5m")

	ttlString := v.GetString("analytics.cache_ttl")
	if ttlString == "" {
		ttlString = "5m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid analytics cache ttl: %w", err)
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}

	exprTimeoutMs := v.GetInt("expression_timeout_ms")
	if exprTimeoutMs <= 0 {
		exprTimeoutMs = 10000
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NatsURL:            v.GetString("nats.url"),
		NatsSubject:        v.GetString("nats.subject"),
		JWTSecret:          v.GetString("jwt.secret"),
		JWTRefreshSecret:   v.GetString("jwt.refresh_secret"),
		DockerHost:         v.GetString("docker_host"),
		ExecutionTimeout:   time.Duration(timeoutMs) * time.Millisecond,
		ExpressionTimeout:  time.Duration(exprTimeoutMs) * time.Millisecond,
		CodeRunMemoryMB:    v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:   v.GetInt("code_run_cpu_shares"),
		SandboxWorkspace:   v.GetString("sandbox.workspace"),
		SandboxDataRoot:    v.GetString("sandbox.data_root"),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		EmbeddingModel:     v.GetString("embedding.model"),
		EmbeddingThreshold: v.GetFloat64("embedding.threshold"),
		AnalyticsCacheTTL:  ttl,
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}
