package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Routing      RoutingConfig
	SLA          SLAConfig
	Responder    ResponderConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// RoutingConfig controls queue-catalog caching.
type RoutingConfig struct {
	CatalogTTLSeconds int
}

// SLAConfig controls SLA sweep cadence, the at-risk window, and the default
// target table. Zero target values keep the built-in defaults.
type SLAConfig struct {
	SweepIntervalSeconds int
	RiskWindowMinutes    int

	HighFirstResponseMinutes     int
	HighResolutionHours          int
	StandardFirstResponseMinutes int
	StandardResolutionHours      int
	LowFirstResponseMinutes      int
	LowResolutionHours           int
}

// ResponderConfig configures the automated-response backend.
type ResponderConfig struct {
	APIKey         string
	Model          string
	MaxTokens      int64
	TimeoutSeconds int
	JobQueueKey    string
}

// NotificationConfig holds the webhook notification endpoint.
type NotificationConfig struct {
	WebhookURL            string
	WebhookTimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "conversation-orchestrator"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Routing: RoutingConfig{
			CatalogTTLSeconds: getEnvAsInt("ROUTING_CATALOG_TTL_SECONDS", 300),
		},
		SLA: SLAConfig{
			SweepIntervalSeconds: getEnvAsInt("SLA_SWEEP_INTERVAL_SECONDS", 60),
			RiskWindowMinutes:    getEnvAsInt("SLA_RISK_WINDOW_MINUTES", 15),

			HighFirstResponseMinutes:     getEnvAsInt("SLA_HIGH_FIRST_RESPONSE_MINUTES", 15),
			HighResolutionHours:          getEnvAsInt("SLA_HIGH_RESOLUTION_HOURS", 2),
			StandardFirstResponseMinutes: getEnvAsInt("SLA_STANDARD_FIRST_RESPONSE_MINUTES", 60),
			StandardResolutionHours:      getEnvAsInt("SLA_STANDARD_RESOLUTION_HOURS", 24),
			LowFirstResponseMinutes:      getEnvAsInt("SLA_LOW_FIRST_RESPONSE_MINUTES", 240),
			LowResolutionHours:           getEnvAsInt("SLA_LOW_RESOLUTION_HOURS", 72),
		},
		Responder: ResponderConfig{
			APIKey:         os.Getenv("RESPONDER_API_KEY"),
			Model:          getEnv("RESPONDER_MODEL", "claude-3-5-sonnet-20241022"),
			MaxTokens:      int64(getEnvAsInt("RESPONDER_MAX_TOKENS", 1024)),
			TimeoutSeconds: getEnvAsInt("RESPONDER_TIMEOUT_SECONDS", 30),
			JobQueueKey:    getEnv("RESPONDER_JOB_QUEUE_KEY", "orchestrator:automation:jobs"),
		},
		Notification: NotificationConfig{
			WebhookURL:            getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeoutSeconds: getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 5),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// CatalogTTL returns the queue-catalog cache TTL.
func (r RoutingConfig) CatalogTTL() time.Duration {
	if r.CatalogTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(r.CatalogTTLSeconds) * time.Second
}

// Timeout returns the responder call timeout.
func (r ResponderConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// RiskWindow returns the SLA at-risk lookahead window.
func (s SLAConfig) RiskWindow() time.Duration {
	if s.RiskWindowMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.RiskWindowMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
