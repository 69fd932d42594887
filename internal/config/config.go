package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Upstream services
	EnergisaAPIURL string
	PlatformAPIURL string

	// Platform credentials (service client, token refreshed on 401)
	PlatformClientID     string
	PlatformClientSecret string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	// BatchDelay is the fixed inter-item delay of the serialized
	// multi-invoice download.
	BatchDelay time.Duration

	// Linking sessions
	SessionTTL time.Duration

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// JWT / operator sessions
	JWTSecret    string
	JWTAccessTTL time.Duration

	// Admin routes (bcrypt hash of the admin API key)
	AdminKeyHash string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		EnergisaAPIURL: getEnv("ENERGISA_API_URL", "http://localhost:8081"),
		PlatformAPIURL: getEnv("PLATFORM_API_URL", "http://localhost:8082"),

		PlatformClientID:     getEnv("PLATFORM_CLIENT_ID", ""),
		PlatformClientSecret: getEnv("PLATFORM_CLIENT_SECRET", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		BatchDelay:     getEnvDuration("BATCH_DELAY", 700*time.Millisecond),

		SessionTTL: getEnvDuration("SESSION_TTL", 15*time.Minute),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		JWTSecret:    getEnv("JWT_SECRET", "gdbfa-default-dev-secret-change-me"),
		JWTAccessTTL: getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),

		AdminKeyHash: getEnv("ADMIN_KEY_HASH", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
