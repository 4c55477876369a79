// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string
	MongoDBURL  string
	MongoDBName string

	// WhatsApp Cloud API
	WhatsAppAccessToken string
	WebhookVerifyToken  string

	// Admin API
	AdminJWTSecret string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	EmbeddingModel string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMMaxRetries  int

	// OAuth - Google Calendar
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// CRM
	CRMBaseURL string
	CRMAPIKey  string

	// Classification cache
	CacheMaxEntries    int
	CacheMemoryTTL     time.Duration
	CacheDurableTTL    time.Duration
	CacheSweepInterval time.Duration

	// FAQ matching
	FAQThresholds  []float64
	FAQKeywordMin  float64
	FAQSetCacheTTL time.Duration

	// Conversation state
	PendingPromptTTL time.Duration

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "wbot"),

		WhatsAppAccessToken: getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WebhookVerifyToken:  getEnv("WEBHOOK_VERIFY_TOKEN", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-ada-002"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxRetries:  getEnvInt("LLM_MAX_RETRIES", 3),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		CRMBaseURL: getEnv("CRM_BASE_URL", ""),
		CRMAPIKey:  getEnv("CRM_API_KEY", ""),

		CacheMaxEntries:    getEnvInt("CACHE_MAX_ENTRIES", 10000),
		CacheMemoryTTL:     time.Duration(getEnvInt("CACHE_MEMORY_TTL_MIN", 60)) * time.Minute,
		CacheDurableTTL:    time.Duration(getEnvInt("CACHE_DURABLE_TTL_HOUR", 24)) * time.Hour,
		CacheSweepInterval: time.Duration(getEnvInt("CACHE_SWEEP_INTERVAL_MIN", 5)) * time.Minute,

		FAQThresholds:  getEnvFloatSlice("FAQ_THRESHOLDS", []float64{0.65, 0.55, 0.45}),
		FAQKeywordMin:  getEnvFloat("FAQ_KEYWORD_MIN", 0.2),
		FAQSetCacheTTL: time.Duration(getEnvInt("FAQ_SET_CACHE_TTL_MIN", 10)) * time.Minute,

		PendingPromptTTL: time.Duration(getEnvInt("PENDING_PROMPT_TTL_MIN", 30)) * time.Minute,

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.DatabaseURL == "" {
		return nil, apperr.ConfigError("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, apperr.ConfigError("REDIS_URL is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, apperr.ConfigError("OPENAI_API_KEY is required")
	}
	if cfg.WebhookVerifyToken == "" {
		return nil, apperr.ConfigError("WEBHOOK_VERIFY_TOKEN is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getEnvFloatSlice(key string, defaultValue []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var parsed []float64
	for _, part := range strings.Split(value, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return defaultValue
		}
		parsed = append(parsed, f)
	}
	if len(parsed) == 0 {
		return defaultValue
	}
	return parsed
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
