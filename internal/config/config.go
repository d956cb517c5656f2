package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	devEnv = "development"

	// devTokenSecret signs session tokens only in development.
	devTokenSecret = "dev-secret"
)

// Config aggregates runtime configuration for the gateway.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	AMQP     AMQPConfig
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
	Addr            string
	Password        string
	DB              int
	KeyPrefix       string
	SessionCacheTTL time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines the static credential pair and session token settings.
type AuthConfig struct {
	User              string
	Password          string
	PasswordHash      string
	BcryptCost        int
	TokenSecret       string
	SessionTTLMinutes int
	SessionName       string
}

// GatewayConfig holds the protocol facade settings.
type GatewayConfig struct {
	BasePath                    string
	TicketNumberPrefix          string
	IDMaxAttempts               int
	CreateTicketRequiresSession bool
	StorageTimeoutSeconds       int
}

// AMQPConfig configures audit event forwarding.
type AMQPConfig struct {
	URL           string
	Exchange      string
	RetryAttempts int
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
			Name:                  getEnv("APP_NAME", "ticket-gateway"),
			Env:                   getEnv("APP_ENV", devEnv),
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
			Addr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			KeyPrefix:       getEnv("REDIS_KEY_PREFIX", "ticketgw"),
			SessionCacheTTL: time.Duration(getEnvAsInt("REDIS_SESSION_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			User:              getEnv("GATEWAY_USER", "zsoar"),
			Password:          os.Getenv("GATEWAY_PASSWORD"),
			PasswordHash:      os.Getenv("GATEWAY_PASSWORD_HASH"),
			BcryptCost:        getEnvAsInt("AUTH_BCRYPT_COST", 12),
			TokenSecret:       getEnv("AUTH_TOKEN_SECRET", devTokenSecret),
			SessionTTLMinutes: getEnvAsInt("AUTH_SESSION_TTL_MINUTES", 480),
			SessionName:       getEnv("AUTH_SESSION_NAME", "ZSOAR-SESSION"),
		},
		Gateway: GatewayConfig{
			BasePath:                    strings.TrimRight(getEnv("GATEWAY_BASE_PATH", "/znuny/nph-genericinterface.pl/Webservice/ALERTELAST_API"), "/"),
			TicketNumberPrefix:          getEnv("GATEWAY_TICKET_NUMBER_PREFIX", "MOCK-"),
			IDMaxAttempts:               getEnvAsInt("GATEWAY_ID_MAX_ATTEMPTS", 5),
			CreateTicketRequiresSession: getEnvAsBool("GATEWAY_CREATE_TICKET_REQUIRES_SESSION", true),
			StorageTimeoutSeconds:       getEnvAsInt("GATEWAY_STORAGE_TIMEOUT_SECONDS", 5),
		},
		AMQP: AMQPConfig{
			URL:           os.Getenv("AMQP_URL"),
			Exchange:      getEnv("AMQP_AUDIT_EXCHANGE", "ticketgw.audit"),
			RetryAttempts: getEnvAsInt("AMQP_RETRY_ATTEMPTS", 5),
		},
	}

	if cfg.Auth.Password == "" && cfg.Auth.PasswordHash == "" {
		return nil, fmt.Errorf("one of GATEWAY_PASSWORD or GATEWAY_PASSWORD_HASH is required")
	}
	if os.Getenv("AUTH_TOKEN_SECRET") == "" && cfg.App.Env != devEnv {
		return nil, fmt.Errorf("AUTH_TOKEN_SECRET is required when APP_ENV is %q", cfg.App.Env)
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

// SessionTTL returns the fixed session lifetime.
func (a AuthConfig) SessionTTL() time.Duration {
	if a.SessionTTLMinutes <= 0 {
		return 8 * time.Hour
	}
	return time.Duration(a.SessionTTLMinutes) * time.Minute
}

// StorageTimeout bounds every storage round trip.
func (g GatewayConfig) StorageTimeout() time.Duration {
	if g.StorageTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(g.StorageTimeoutSeconds) * time.Second
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
