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

	// External services
	BankingAPIURL string
	BankingAPIKey string
	ViaCEPURL     string
	BrasilAPIURL  string

	// Payment gateway
	GatewayBaseURL   string
	GatewayPublicKey string
	GatewayToken     string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	InfoCacheTTL      time.Duration
	InfoStaleAfter    time.Duration
	HistoryCacheTTL   time.Duration
	HistoryStaleAfter time.Duration
	DirectoryCacheTTL time.Duration

	// PIX validation flow
	PixPollInterval   time.Duration
	PixCountdownTick  time.Duration
	PixSuccessDelay   time.Duration
	PixFallbackExpiry time.Duration

	// Observability
	OTLPEndpoint string

	// JWT / Auth
	JWTSecret string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BankingAPIURL: getEnv("BANKING_API_URL", "http://localhost:8081"),
		BankingAPIKey: getEnv("BANKING_API_KEY", ""),
		ViaCEPURL:     getEnv("VIACEP_URL", "https://viacep.com.br"),
		BrasilAPIURL:  getEnv("BRASILAPI_URL", "https://brasilapi.com.br"),

		GatewayBaseURL:   getEnv("GATEWAY_BASE_URL", "https://api.mercadopago.com"),
		GatewayPublicKey: getEnv("GATEWAY_PUBLIC_KEY", ""),
		GatewayToken:     getEnv("GATEWAY_ACCESS_TOKEN", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		InfoCacheTTL:      getEnvDuration("INFO_CACHE_TTL", 5*time.Minute),
		InfoStaleAfter:    getEnvDuration("INFO_STALE_AFTER", 30*time.Second),
		HistoryCacheTTL:   getEnvDuration("HISTORY_CACHE_TTL", 15*time.Minute),
		HistoryStaleAfter: getEnvDuration("HISTORY_STALE_AFTER", 60*time.Second),
		DirectoryCacheTTL: getEnvDuration("DIRECTORY_CACHE_TTL", 24*time.Hour),

		PixPollInterval:   getEnvDuration("PIX_POLL_INTERVAL", 3*time.Second),
		PixCountdownTick:  getEnvDuration("PIX_COUNTDOWN_TICK", time.Second),
		PixSuccessDelay:   getEnvDuration("PIX_SUCCESS_DELAY", 2*time.Second),
		PixFallbackExpiry: getEnvDuration("PIX_FALLBACK_EXPIRY", 15*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		JWTSecret: getEnv("JWT_SECRET", "caixinha-default-dev-secret-change-me"),
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
