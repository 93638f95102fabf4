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
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Cache    CacheConfig
	Chat     ChatConfig
	Assets   AssetsConfig
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

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// CacheConfig holds cache TTLs per snapshot kind.
type CacheConfig struct {
	RoomTTLSeconds       int
	HistoryTTLSeconds    int
	MessagesTTLSeconds   int
	ModeratorsTTLSeconds int
}

// ChatConfig tunes the live session layer.
type ChatConfig struct {
	TypingQuietSeconds int
	DefaultPageSize    int
	MaxPageSize        int
	SendBufferSize     int
	MaxMessageBytes    int64
}

// AssetsConfig configures the image asset collaborator.
type AssetsConfig struct {
	BaseURL      string
	MaxSizeBytes int64
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
			Name:                  getEnv("APP_NAME", "exchange-chat-service"),
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
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Cache: CacheConfig{
			RoomTTLSeconds:       getEnvAsInt("CACHE_ROOM_TTL_SECONDS", 600),
			HistoryTTLSeconds:    getEnvAsInt("CACHE_HISTORY_TTL_SECONDS", 1800),
			MessagesTTLSeconds:   getEnvAsInt("CACHE_MESSAGES_TTL_SECONDS", 300),
			ModeratorsTTLSeconds: getEnvAsInt("CACHE_MODERATORS_TTL_SECONDS", 300),
		},
		Chat: ChatConfig{
			TypingQuietSeconds: getEnvAsInt("CHAT_TYPING_QUIET_SECONDS", 3),
			DefaultPageSize:    getEnvAsInt("CHAT_DEFAULT_PAGE_SIZE", 50),
			MaxPageSize:        getEnvAsInt("CHAT_MAX_PAGE_SIZE", 100),
			SendBufferSize:     getEnvAsInt("CHAT_SEND_BUFFER_SIZE", 256),
			MaxMessageBytes:    int64(getEnvAsInt("CHAT_MAX_MESSAGE_BYTES", 65536)),
		},
		Assets: AssetsConfig{
			BaseURL:      getEnv("ASSETS_BASE_URL", "https://assets.local/chat-images"),
			MaxSizeBytes: int64(getEnvAsInt("ASSETS_MAX_SIZE_BYTES", 5*1024*1024)),
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

// TypingQuiet returns how long typing state survives without refresh.
func (c ChatConfig) TypingQuiet() time.Duration {
	if c.TypingQuietSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.TypingQuietSeconds) * time.Second
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
