package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr               string
	DatabaseURL        string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string

	APIMaxBodyBytes    int64
	ImportMaxBodyBytes int64
	ImportMaxRows      int
	ImportRowTimeout   time.Duration
	ImportTaskTimeout  time.Duration
	KindsFile          string

	Currency       string
	MatchPoolLimit int

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	WorkerConcurrency int
	ProgressTTL       time.Duration

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	ImportRateLimit int
	RateLimitWindow time.Duration
	RateLimitMaxIPs int
}

// Load reads the environment (and .env when present) and requires a
// database URL.
func Load() (Config, error) {
	cfg := FromEnv()
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// FromEnv reads the environment without validating it. Commands that
// never touch the database use it directly.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Addr:        getEnv("API_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Env:         getEnv("APP_ENV", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvCSV("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		}),

		APIMaxBodyBytes:    int64(getEnvInt("API_MAX_BODY_MB", 2)) * 1024 * 1024,
		ImportMaxBodyBytes: int64(getEnvInt("IMPORT_MAX_BODY_MB", 25)) * 1024 * 1024,
		ImportMaxRows:      getEnvInt("IMPORT_MAX_ROWS", 5000),
		ImportRowTimeout:   time.Duration(getEnvInt("IMPORT_ROW_TIMEOUT_MS", 5000)) * time.Millisecond,
		ImportTaskTimeout:  time.Duration(getEnvInt("IMPORT_TASK_TIMEOUT_SECONDS", 1800)) * time.Second,
		KindsFile:          os.Getenv("IMPORT_KINDS_FILE"),

		Currency:       strings.ToUpper(getEnv("TENANT_CURRENCY", "KWD")),
		MatchPoolLimit: getEnvInt("MATCH_POOL_LIMIT", 500),

		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		ProgressTTL:       time.Duration(getEnvInt("PROGRESS_TTL_HOURS", 24)) * time.Hour,

		ReadHeaderTimeout: time.Duration(getEnvInt("API_READ_HEADER_TIMEOUT_SEC", 5)) * time.Second,
		ReadTimeout:       time.Duration(getEnvInt("API_READ_TIMEOUT_SEC", 30)) * time.Second,
		WriteTimeout:      time.Duration(getEnvInt("API_WRITE_TIMEOUT_SEC", 120)) * time.Second,
		IdleTimeout:       time.Duration(getEnvInt("API_IDLE_TIMEOUT_SEC", 60)) * time.Second,
		ShutdownTimeout:   time.Duration(getEnvInt("API_SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,

		ImportRateLimit: getEnvInt("IMPORT_RATE_LIMIT_PER_WINDOW", 30),
		RateLimitWindow: time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SEC", 60)) * time.Second,
		RateLimitMaxIPs: getEnvInt("RATE_LIMIT_MAX_IPS", 10000),
	}
}

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.SlogLevel()}))
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvCSV(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
