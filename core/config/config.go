package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel   OTelConfig
	Log    LogConfig
	LLM    LLMConfig
	Notes  NotesConfig
	GitLab GitLabConfig
	Cache  CacheConfig
	Client ClientConfig
	Env    string
	Port   string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRatio    float64 // fraction of root traces kept, 0..1
}

// LogConfig overrides the environment defaults (debug text in development,
// info JSON elsewhere). Empty values keep the default.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type LLMConfig struct {
	Provider string // "openai" or "anthropic"
	APIKey   string
	BaseURL  string // Optional: for custom endpoints
	Model    string
}

// NotesConfig tunes the two generation phases. MaxTokens is the budget for
// both phases combined and is split evenly between them.
type NotesConfig struct {
	MaxTokens            int
	TechnicalTemperature float64
	UserTemperature      float64
}

type GitLabConfig struct {
	BaseURL string // Optional: self-managed instance, e.g. "https://gitlab.example.com"
	Token   string
}

type CacheBackend string

const (
	CacheBackendFile   CacheBackend = "file"
	CacheBackendRedis  CacheBackend = "redis"
	CacheBackendMemory CacheBackend = "memory"
)

type CacheConfig struct {
	Backend  CacheBackend
	Path     string // file backend only
	RedisURL string // redis backend only
	Expiry   time.Duration
}

type ClientConfig struct {
	ServerURL string
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeClient ServiceType = "client"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the HTTP server
//   - .env.client for the terminal client
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("DIGEST_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("DIGEST_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "diff-digest"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("DIGEST_ENV", "development"),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", ""),
			Format: getEnv("LOG_FORMAT", ""),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "openai"),
			APIKey:   getEnv("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			BaseURL:  getEnv("LLM_BASE_URL", ""),
			Model:    getEnv("LLM_MODEL", "gpt-4.1-mini"),
		},
		Notes: NotesConfig{
			MaxTokens:            getEnvInt("NOTES_MAX_TOKENS", 1500),
			TechnicalTemperature: getEnvFloat("NOTES_TECHNICAL_TEMPERATURE", 0.3),
			UserTemperature:      getEnvFloat("NOTES_USER_TEMPERATURE", 0.7),
		},
		GitLab: GitLabConfig{
			BaseURL: getEnv("GITLAB_BASE_URL", ""),
			Token:   getEnv("GITLAB_TOKEN", ""),
		},
		Cache: CacheConfig{
			Backend:  CacheBackend(getEnv("CACHE_BACKEND", string(CacheBackendFile))),
			Path:     getEnv("CACHE_PATH", defaultCachePath()),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Expiry:   getEnvDuration("CACHE_EXPIRY", 30*time.Minute),
		},
		Client: ClientConfig{
			ServerURL: getEnv("DIGEST_SERVER_URL", "http://localhost:8080"),
		},
	}

	switch serviceType {
	case ServiceTypeServer:
		if !cfg.LLM.Enabled() {
			return Config{}, fmt.Errorf("LLM_API_KEY is required and LLM_PROVIDER must be openai or anthropic")
		}
	case ServiceTypeClient:
		cfg.OTel.ServiceName = getEnv("OTEL_SERVICE_NAME", "diff-digest-cli")
		switch cfg.Cache.Backend {
		case CacheBackendFile, CacheBackendRedis, CacheBackendMemory:
		default:
			return Config{}, fmt.Errorf("unsupported CACHE_BACKEND: %s", cfg.Cache.Backend)
		}
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func (c GitLabConfig) Enabled() bool {
	return c.Token != ""
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "diff-digest", "store.json")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
