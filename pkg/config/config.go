package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Storage    StorageConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Completion CompletionConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

// StorageConfig bounds every storage call: each attempt gets Timeout and
// transient failures are retried up to MaxAttempts times.
type StorageConfig struct {
	Timeout        time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

type JWTConfig struct {
	Secret    string
	Issuer    string
	AccessTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CompletionConfig drives the background sweeper that completes finished events.
type CompletionConfig struct {
	Enabled           bool
	Interval          time.Duration
	Workers           int
	BatchSize         int
	MaxRetries        int
	SystemPrincipalID string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	maxAttempts := v.GetInt("STORAGE_MAX_ATTEMPTS")
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	cfg.Storage = StorageConfig{
		Timeout:        parseDuration(v.GetString("STORAGE_TIMEOUT"), 3*time.Second),
		MaxAttempts:    maxAttempts,
		RetryBaseDelay: parseDuration(v.GetString("STORAGE_RETRY_BASE_DELAY"), 100*time.Millisecond),
	}

	cfg.JWT = JWTConfig{
		Secret:    v.GetString("JWT_SECRET"),
		Issuer:    v.GetString("JWT_ISSUER"),
		AccessTTL: parseDuration(v.GetString("JWT_ACCESS_TTL"), 15*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Completion = CompletionConfig{
		Enabled:           v.GetBool("ENABLE_COMPLETION_SWEEPER"),
		Interval:          parseDuration(v.GetString("COMPLETION_SWEEP_INTERVAL"), 5*time.Minute),
		Workers:           v.GetInt("COMPLETION_WORKERS"),
		BatchSize:         v.GetInt("COMPLETION_BATCH_SIZE"),
		MaxRetries:        v.GetInt("COMPLETION_MAX_RETRIES"),
		SystemPrincipalID: v.GetString("SYSTEM_PRINCIPAL_ID"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_events")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("STORAGE_TIMEOUT", "3s")
	v.SetDefault("STORAGE_MAX_ATTEMPTS", 3)
	v.SetDefault("STORAGE_RETRY_BASE_DELAY", "100ms")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "campus-events-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_COMPLETION_SWEEPER", false)
	v.SetDefault("COMPLETION_SWEEP_INTERVAL", "5m")
	v.SetDefault("COMPLETION_WORKERS", 1)
	v.SetDefault("COMPLETION_BATCH_SIZE", 100)
	v.SetDefault("COMPLETION_MAX_RETRIES", 3)
	v.SetDefault("SYSTEM_PRINCIPAL_ID", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
