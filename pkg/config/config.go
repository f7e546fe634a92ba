package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Request store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Log           LogConfig
	CORS          CORSConfig
	CoachChange   CoachChangeConfig
	Notifications NotificationConfig
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
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// CoachChangeConfig tunes the approval workflow.
type CoachChangeConfig struct {
	Store            string
	MaxAttempts      int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration
	StoreTimeout     time.Duration
	NotifyTimeout    time.Duration
	CacheEnabled     bool
	CacheTTL         time.Duration
}

// NotificationConfig controls asynchronous delivery of workflow events.
type NotificationConfig struct {
	Workers      int
	Retries      int
	RetryDelay   time.Duration
	EmailEnabled bool
	ResendAPIKey string
	EmailFrom    string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS"))}

	store := strings.ToLower(strings.TrimSpace(v.GetString("COACH_CHANGE_STORE")))
	if store != StoreMemory {
		store = StorePostgres
	}
	maxAttempts := v.GetInt("COACH_CHANGE_MAX_ATTEMPTS")
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	cfg.CoachChange = CoachChangeConfig{
		Store:            store,
		MaxAttempts:      maxAttempts,
		RetryInitialWait: parseDuration(v.GetString("COACH_CHANGE_RETRY_INITIAL_WAIT"), 10*time.Millisecond),
		RetryMaxWait:     parseDuration(v.GetString("COACH_CHANGE_RETRY_MAX_WAIT"), 200*time.Millisecond),
		StoreTimeout:     parseDuration(v.GetString("COACH_CHANGE_STORE_TIMEOUT"), 3*time.Second),
		NotifyTimeout:    parseDuration(v.GetString("COACH_CHANGE_NOTIFY_TIMEOUT"), time.Second),
		CacheEnabled:     v.GetBool("COACH_CHANGE_CACHE_ENABLED"),
		CacheTTL:         parseDuration(v.GetString("COACH_CHANGE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Notifications = NotificationConfig{
		Workers:      v.GetInt("NOTIFY_WORKERS"),
		Retries:      v.GetInt("NOTIFY_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
		EmailEnabled: v.GetBool("NOTIFY_EMAIL_ENABLED"),
		ResendAPIKey: v.GetString("RESEND_API_KEY"),
		EmailFrom:    v.GetString("NOTIFY_EMAIL_FROM"),
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
	v.SetDefault("DB_NAME", "coach_change")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	v.SetDefault("COACH_CHANGE_STORE", StorePostgres)
	v.SetDefault("COACH_CHANGE_MAX_ATTEMPTS", 5)
	v.SetDefault("COACH_CHANGE_RETRY_INITIAL_WAIT", "10ms")
	v.SetDefault("COACH_CHANGE_RETRY_MAX_WAIT", "200ms")
	v.SetDefault("COACH_CHANGE_STORE_TIMEOUT", "3s")
	v.SetDefault("COACH_CHANGE_NOTIFY_TIMEOUT", "1s")
	v.SetDefault("COACH_CHANGE_CACHE_ENABLED", false)
	v.SetDefault("COACH_CHANGE_CACHE_TTL", "5m")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")
	v.SetDefault("NOTIFY_EMAIL_ENABLED", false)
	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("NOTIFY_EMAIL_FROM", "Coach Desk <no-reply@example.com>")
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

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// isMissingFile reports a missing explicit .env file, which viper surfaces as a path error.
func isMissingFile(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no such file")
}
