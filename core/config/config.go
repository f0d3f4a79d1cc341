// Package config loads configuration from environment variables,
// following the same plain getEnv/getEnvInt pattern the original
// single-service config used, extended with one typed sub-config per
// component the keyword pipeline wires up.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"keywordintel/core/db"
)

// Config holds all application configuration.
type Config struct {
	Env  string
	Port string

	DB           db.Config
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	Breaker      BreakerConfig
	Session      SessionConfig
	Enrich       EnrichConfig
	MLAdjuster   MLAdjusterConfig
	Orchestrator OrchestratorConfig
	History      HistoryConfig
	OTel         OTelConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	DefaultPerMinute int
	DefaultPerHour   int
}

type BreakerConfig struct {
	FailureRatio        float64
	MinRequests         uint32
	OpenTimeout         time.Duration
	HalfOpenMaxRequests uint32
}

type SessionConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	GoogleSearchConsoleSiteURL  string
	GoogleOAuthClientID         string
	GoogleOAuthClientSecret     string
	GoogleOAuthTokenURL         string
	InstagramOAuthClientID      string
	InstagramOAuthClientSecret  string
	InstagramOAuthTokenURL      string
}

type EnrichConfig struct {
	ConfidenceThreshold float64
	CacheSize           int
}

// MLAdjusterConfig selects and configures the optional ML Adjuster
// backend; Backend is one of "", "openai", "anthropic" ("" disables the
// stage, falling back to mladjuster.NoopAdjuster).
type MLAdjusterConfig struct {
	Backend string
	APIKey  string
	BaseURL string
	Model   string
}

type OrchestratorConfig struct {
	Concurrency   int
	StageDeadline time.Duration
}

type HistoryConfig struct {
	PostgresDSN string
	ArangoURL   string
	ArangoUser  string
	ArangoPass  string
	ArangoDB    string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

func (o OTelConfig) Enabled() bool {
	return o.Endpoint != ""
}

// Load loads configuration from environment variables, with sensible
// development defaults.
func Load() Config {
	return Config{
		Env:  getEnv("KEYWORDINTEL_ENV", "development"),
		Port: getEnv("PORT", "8080"),

		DB: db.Config{
			DSN:      getEnv("HISTORY_POSTGRES_DSN", buildPostgresDSN()),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			DefaultPerMinute: getEnvInt("RATELIMIT_DEFAULT_PER_MINUTE", 60),
			DefaultPerHour:   getEnvInt("RATELIMIT_DEFAULT_PER_HOUR", 1000),
		},
		Breaker: BreakerConfig{
			FailureRatio:        getEnvFloat("BREAKER_FAILURE_RATIO", 0.5),
			MinRequests:         uint32(getEnvInt("BREAKER_MIN_REQUESTS", 5)),
			OpenTimeout:         getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
			HalfOpenMaxRequests: uint32(getEnvInt("BREAKER_HALF_OPEN_MAX_REQUESTS", 1)),
		},
		Session: SessionConfig{
			Timeout:                    getEnvDuration("SESSION_TIMEOUT", 15*time.Second),
			MaxRetries:                 getEnvInt("SESSION_MAX_RETRIES", 3),
			RetryWaitMin:               getEnvDuration("SESSION_RETRY_WAIT_MIN", 250*time.Millisecond),
			RetryWaitMax:               getEnvDuration("SESSION_RETRY_WAIT_MAX", 5*time.Second),
			GoogleSearchConsoleSiteURL: getEnv("GSC_SITE_URL", ""),
			GoogleOAuthClientID:        getEnv("GOOGLE_OAUTH_CLIENT_ID", ""),
			GoogleOAuthClientSecret:    getEnv("GOOGLE_OAUTH_CLIENT_SECRET", ""),
			GoogleOAuthTokenURL:        getEnv("GOOGLE_OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			InstagramOAuthClientID:     getEnv("INSTAGRAM_OAUTH_CLIENT_ID", ""),
			InstagramOAuthClientSecret: getEnv("INSTAGRAM_OAUTH_CLIENT_SECRET", ""),
			InstagramOAuthTokenURL:     getEnv("INSTAGRAM_OAUTH_TOKEN_URL", "https://api.instagram.com/oauth/access_token"),
		},
		Enrich: EnrichConfig{
			ConfidenceThreshold: getEnvFloat("ENRICH_CONFIDENCE_THRESHOLD", 0.3),
			CacheSize:           getEnvInt("ENRICH_CACHE_SIZE", 2048),
		},
		MLAdjuster: MLAdjusterConfig{
			Backend: getEnv("ML_ADJUSTER_BACKEND", ""),
			APIKey:  getEnv("ML_ADJUSTER_API_KEY", ""),
			BaseURL: getEnv("ML_ADJUSTER_BASE_URL", ""),
			Model:   getEnv("ML_ADJUSTER_MODEL", ""),
		},
		Orchestrator: OrchestratorConfig{
			Concurrency:   getEnvInt("ORCHESTRATOR_CONCURRENCY", 0),
			StageDeadline: getEnvDuration("ORCHESTRATOR_STAGE_DEADLINE", 20*time.Second),
		},
		History: HistoryConfig{
			PostgresDSN: getEnv("HISTORY_POSTGRES_DSN", ""),
			ArangoURL:   getEnv("HISTORY_ARANGO_URL", ""),
			ArangoUser:  getEnv("HISTORY_ARANGO_USER", "root"),
			ArangoPass:  getEnv("HISTORY_ARANGO_PASS", ""),
			ArangoDB:    getEnv("HISTORY_ARANGO_DB", "keywordintel"),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "keywordintel"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
	}
}

func buildPostgresDSN() string {
	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "keywordintel")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode,
	)
}

func (c Config) IsProduction() bool  { return c.Env == "production" }
func (c Config) IsDevelopment() bool { return c.Env == "development" }

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
