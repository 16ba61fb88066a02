// Package config loads service configuration from an optional YAML file
// overlaid with environment variables. Environment wins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL      string        `yaml:"database_url"`
	ServerPort       string        `yaml:"server_port"`
	FrontendURL      string        `yaml:"frontend_url"`
	OpenAIKey        string        `yaml:"openai_api_key"`
	AIModel          string        `yaml:"ai_model"`
	AIBaseURL        string        `yaml:"ai_base_url"`
	JWTSecret        string        `yaml:"jwt_secret"`
	EnableHSTS       bool          `yaml:"enable_hsts"`
	AllowAnyOrigin   bool          `yaml:"allow_any_origin"`
	RedisURL         string        `yaml:"redis_url"`
	RateLimit        string        `yaml:"rate_limit"`
	RabbitMQURL      string        `yaml:"rabbitmq_url"`
	SessionIdleTTL   time.Duration `yaml:"session_idle_ttl"`
	ArchiveRetention time.Duration `yaml:"archive_retention"`
	ServerDebugMode  bool          `yaml:"server_debug_mode"`
	OTELEnabled      bool          `yaml:"otel_enabled"`
	OTELEndpoint     string        `yaml:"otel_endpoint"`
}

// Load reads the optional config file named by TASKMATE_CONFIG, then applies
// environment variables on top.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:       "8080",
		FrontendURL:      "http://localhost:3000",
		RedisURL:         "redis://localhost:6379/0",
		RateLimit:        "30-M",
		SessionIdleTTL:   30 * time.Minute,
		ArchiveRetention: 90 * 24 * time.Hour,
	}

	if path := os.Getenv("TASKMATE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setEnv(&cfg.DatabaseURL, "DATABASE_URL")
	setEnv(&cfg.ServerPort, "SERVER_PORT")
	setEnv(&cfg.FrontendURL, "FRONTEND_URL")
	setEnv(&cfg.OpenAIKey, "OPENAI_API_KEY")
	setEnv(&cfg.AIModel, "AI_MODEL")
	setEnv(&cfg.AIBaseURL, "AI_BASE_URL")
	setEnv(&cfg.JWTSecret, "JWT_SECRET")
	setEnvBool(&cfg.EnableHSTS, "ENABLE_HSTS")
	setEnvBool(&cfg.AllowAnyOrigin, "ALLOW_ANY_ORIGIN")
	setEnv(&cfg.RedisURL, "REDIS_URL")
	setEnv(&cfg.RateLimit, "RATE_LIMIT")
	setEnv(&cfg.RabbitMQURL, "RABBITMQ_URL")
	setEnvDuration(&cfg.SessionIdleTTL, "SESSION_IDLE_TTL")
	setEnvDuration(&cfg.ArchiveRetention, "ARCHIVE_RETENTION")
	setEnvBool(&cfg.ServerDebugMode, "SERVER_DEBUG_MODE")
	setEnvBool(&cfg.OTELEnabled, "OTEL_ENABLED")
	setEnv(&cfg.OTELEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setEnv(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setEnvBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value == "true" || value == "1" || value == "yes"
	}
}

func setEnvDuration(dst *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*dst = d
			return
		}
		// Bare numbers are hours, for operator convenience.
		if h, err := strconv.Atoi(value); err == nil {
			*dst = time.Duration(h) * time.Hour
		}
	}
}
