// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	DeepSeek    DeepSeekConfig
	Chat        ChatConfig
	Retention   RetentionConfig
}

// DeepSeekConfig controls the upstream chat-completions client.
type DeepSeekConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatConfig controls the chat endpoints.
type ChatConfig struct {
	HistoryLimit       int
	MaxRequestBody     int64
	RateLimitPerMinute int
	SSEKeepalive       time.Duration
}

// RetentionConfig controls the background retention sweep.
type RetentionConfig struct {
	Enabled      bool
	Interval     time.Duration
	ChatTTL      time.Duration
	RecommendTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/compass.db"),
		DeepSeek: DeepSeekConfig{
			APIKey:      getEnv("DEEPSEEK_API_KEY", ""),
			BaseURL:     getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
			Model:       getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
			Temperature: getEnvFloat("DEEPSEEK_TEMPERATURE", 0.7),
			MaxTokens:   getEnvInt("DEEPSEEK_MAX_TOKENS", 2000),
		},
		Chat: ChatConfig{
			HistoryLimit:       getEnvInt("CHAT_HISTORY_LIMIT", 40),
			MaxRequestBody:     int64(getEnvInt("CHAT_MAX_REQUEST_BODY", 64*1024)),
			RateLimitPerMinute: getEnvInt("CHAT_RATE_LIMIT_PER_MINUTE", 20),
			SSEKeepalive:       getEnvDuration("CHAT_SSE_KEEPALIVE", 15*time.Second),
		},
		Retention: RetentionConfig{
			Enabled:      getEnvBool("RETENTION_ENABLED", true),
			Interval:     getEnvDuration("RETENTION_INTERVAL", time.Hour),
			ChatTTL:      getEnvDuration("RETENTION_CHAT_TTL", 90*24*time.Hour),
			RecommendTTL: getEnvDuration("RETENTION_RECOMMEND_TTL", 30*24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.DeepSeek.BaseURL == "" {
		return fmt.Errorf("DEEPSEEK_BASE_URL cannot be empty")
	}
	if c.DeepSeek.Model == "" {
		return fmt.Errorf("DEEPSEEK_MODEL cannot be empty")
	}
	if c.DeepSeek.Temperature < 0 || c.DeepSeek.Temperature > 2 {
		return fmt.Errorf("DEEPSEEK_TEMPERATURE must be in [0, 2]")
	}
	if c.DeepSeek.MaxTokens <= 0 {
		return fmt.Errorf("DEEPSEEK_MAX_TOKENS must be > 0")
	}
	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be >= 0")
	}
	if c.Chat.MaxRequestBody <= 0 {
		return fmt.Errorf("CHAT_MAX_REQUEST_BODY must be > 0")
	}
	if c.Chat.RateLimitPerMinute <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT_PER_MINUTE must be > 0")
	}
	if c.Chat.SSEKeepalive <= 0 {
		return fmt.Errorf("CHAT_SSE_KEEPALIVE must be > 0")
	}
	if c.Retention.Enabled {
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("RETENTION_INTERVAL must be > 0")
		}
		if c.Retention.ChatTTL <= 0 {
			return fmt.Errorf("RETENTION_CHAT_TTL must be > 0")
		}
		if c.Retention.RecommendTTL <= 0 {
			return fmt.Errorf("RETENTION_RECOMMEND_TTL must be > 0")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
