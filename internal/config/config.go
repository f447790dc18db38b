package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends accepted in TOKEN_STORE.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	JWT      JWTConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	MetricsEnabled        bool
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
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines login and authorization parameters.
type AuthConfig struct {
	TokenStore     string
	APIGroup       string
	APIPermission  string
	ReissueExpired bool
	BcryptCost     int
}

// JWTConfig holds the signing identity and token lifetime offsets.
// The offsets are optional at load time; issuance fails without them.
type JWTConfig struct {
	SecretKey         string
	Issuer            string
	Audience          string
	RequestTimeOffset time.Duration
	ExpireOffset      time.Duration

	hasRequestTimeOffset bool
	hasExpireOffset      bool
}

// Offsets returns the not-before and expiry offsets and whether both are configured.
func (j JWTConfig) Offsets() (notBefore, expire time.Duration, ok bool) {
	return j.RequestTimeOffset, j.ExpireOffset, j.hasRequestTimeOffset && j.hasExpireOffset
}

// WithOffsets returns a copy with both offsets set.
func (j JWTConfig) WithOffsets(notBefore, expire time.Duration) JWTConfig {
	j.RequestTimeOffset, j.hasRequestTimeOffset = notBefore, true
	j.ExpireOffset, j.hasExpireOffset = expire, true
	return j
}

// Load reads configuration from environment variables and the optional
// settings file, applying defaults where possible.
func Load(settingsPath string) (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	jwtCfg, err := resolveJWT(settings)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "api-token-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			MetricsEnabled:        getEnvAsBool("METRICS_ENABLED", true),
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
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "api-token"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			TokenStore:     strings.ToLower(getEnv("TOKEN_STORE", StorePostgres)),
			APIGroup:       getEnv("AUTH_API_GROUP", "apiAccess"),
			APIPermission:  getEnv("AUTH_API_PERMISSION", "jwt-use-api"),
			ReissueExpired: getEnvAsBool("AUTH_REISSUE_EXPIRED", false),
			BcryptCost:     getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		JWT: jwtCfg,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Auth.TokenStore {
	case StorePostgres, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("invalid TOKEN_STORE %q", c.Auth.TokenStore)
	}
	if c.JWT.SecretKey == "" {
		return errors.New("jwt secret key is required (settings jwtSecretKey or JWT_SECRET_KEY)")
	}
	if c.JWT.Issuer == "" {
		return errors.New("jwt issuer is required (settings jwtIssuer, JWT_ISSUER or PRIMARY_SITE_URL)")
	}
	return nil
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
