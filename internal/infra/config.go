package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	DBMaxConns         int
	SessionStore       string
	SessionIdleTTL     time.Duration
	StoragePath        string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	ProviderTimeout    time.Duration
	RateLimitPerMin    int
	MaxUploadBytes     int64
	ResultMaxBytes     int

	StabilityAPIKey  string
	StabilityBaseURL string

	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIOrg            string
	OpenAITransformModel string
	OpenAIInpaintModel   string

	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	InpaintProvider string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Provider keys are optional; a missing key only disables that provider.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		DBMaxConns:           getEnvInt("DB_MAX_CONNS", 10),
		SessionStore:         strings.ToLower(getEnv("SESSION_STORE", "memory")),
		SessionIdleTTL:       time.Minute * time.Duration(getEnvInt("SESSION_IDLE_TTL_MINUTES", 60)),
		StoragePath:          getEnv("STORAGE_PATH", "./data/images"),
		CORSAllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 330)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 120)),
		ProviderTimeout:      time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 300)),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		MaxUploadBytes:       int64(getEnvInt("MAX_UPLOAD_BYTES", 50<<20)),
		ResultMaxBytes:       getEnvInt("RESULT_MAX_BYTES", 8<<20),
		StabilityAPIKey:      os.Getenv("STABILITY_API_KEY"),
		StabilityBaseURL:     getEnv("STABILITY_BASE_URL", "https://api.stability.ai"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:            os.Getenv("OPENAI_ORG"),
		OpenAITransformModel: getEnv("OPENAI_TRANSFORM_MODEL", "gpt-image-1"),
		OpenAIInpaintModel:   getEnv("OPENAI_INPAINT_MODEL", "dall-e-2"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:        os.Getenv("GEMINI_BASE_URL"),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash-preview-image-generation"),
		InpaintProvider:      strings.ToLower(getEnv("INPAINT_PROVIDER", "stability")),
	}

	switch cfg.SessionStore {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when SESSION_STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("SESSION_STORE must be memory or postgres, got %q", cfg.SessionStore)
	}

	switch cfg.InpaintProvider {
	case "stability", "openai":
	default:
		return nil, fmt.Errorf("INPAINT_PROVIDER must be stability or openai, got %q", cfg.InpaintProvider)
	}

	// A dispatching session must outlive its provider call.
	if cfg.SessionIdleTTL > 0 && cfg.SessionIdleTTL <= cfg.ProviderTimeout {
		return nil, fmt.Errorf("SESSION_IDLE_TTL_MINUTES must exceed PROVIDER_TIMEOUT_SECONDS or be 0")
	}

	if cfg.ProviderTimeout >= cfg.HTTPWriteTimeout {
		return nil, fmt.Errorf("HTTP_WRITE_TIMEOUT_SECONDS must exceed PROVIDER_TIMEOUT_SECONDS")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
