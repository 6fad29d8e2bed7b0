package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
)

// Config holds the configuration for the application.
type Config struct {
	LLMProvider          string
	GeminiAPIKey         string
	GroqAPIKey           string
	LLMModel             string
	GenerationTimeout    time.Duration
	LLMRequestsPerMinute int
	SystemInstructions   string

	DatabasePath     string
	PlanExportDir    string
	PlanVersionsKept int

	// SessionIdleTimeout releases a user's session after this long without
	// activity. Zero keeps sessions until shutdown.
	SessionIdleTimeout time.Duration

	LogLevel  string
	LogFormat string

	// HTTP API Config
	HTTPAddr              string
	JWTSecret             string
	HTTPRequestsPerMinute int

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	TelegramAdminID        int64
}

// NewFromEnv creates a new Config object from environment variables. A .env
// file in the working directory is loaded first if present; variables that
// are already set win.
func NewFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LLMProvider:        strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GroqAPIKey:         os.Getenv("GROQ_API_KEY"),
		LLMModel:           os.Getenv("LLM_MODEL"),
		SystemInstructions: os.Getenv("SYSTEM_INSTRUCTIONS"),
		DatabasePath:       getEnv("DATABASE_PATH", "data/fitness.db"),
		PlanExportDir:      getEnv("PLAN_EXPORT_DIR", "data/plans"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		LogFormat:          os.Getenv("LOG_FORMAT"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
	}

	switch cfg.LLMProvider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	}

	var err error
	if cfg.GenerationTimeout, err = getDuration("GENERATION_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PlanVersionsKept, err = getInt("PLAN_VERSIONS_KEPT", 10); err != nil {
		return nil, err
	}
	if cfg.LLMRequestsPerMinute, err = getInt("LLM_REQUESTS_PER_MINUTE", 15); err != nil {
		return nil, err
	}
	if cfg.HTTPRequestsPerMinute, err = getInt("HTTP_REQUESTS_PER_MINUTE", 6); err != nil {
		return nil, err
	}
	if cfg.TelegramAllowedUserIDs, err = getIDList("TELEGRAM_ALLOWED_USER_IDS"); err != nil {
		return nil, err
	}
	if v := os.Getenv("TELEGRAM_ADMIN_ID"); v != "" {
		if cfg.TelegramAdminID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_ID: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges that NewFromEnv cannot express as defaults.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.LLMProvider, validation.Required, validation.In(ProviderGemini, ProviderGroq)),
		validation.Field(&c.GenerationTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.LLMRequestsPerMinute, validation.Min(0)),
		validation.Field(&c.HTTPRequestsPerMinute, validation.Min(0)),
		validation.Field(&c.DatabasePath, validation.Required),
		validation.Field(&c.PlanExportDir, validation.Required),
		validation.Field(&c.PlanVersionsKept, validation.Min(0)),
		validation.Field(&c.SessionIdleTimeout, validation.Min(time.Duration(0))),
	)
}

// RequireTelegram reports the settings the Telegram bot cannot run without.
func (c Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

// RequireHTTP reports the settings the HTTP API cannot run without.
func (c Config) RequireHTTP() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable not set")
	}
	return nil
}

// ModelName returns the configured model or the provider default.
func (c Config) ModelName(def string) string {
	if c.LLMModel != "" {
		return c.LLMModel
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getIDList(key string) ([]int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
