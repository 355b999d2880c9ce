package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the indexer
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Port string
	Env  string // development, staging, production

	Database  DatabaseConfig
	Redis     RedisConfig
	Polygon   PolygonConfig
	Scheduler SchedulerConfig

	// IndexConfigPath points at the YAML index definitions
	IndexConfigPath string

	LogLevel  string
	LogFormat string // json, console
}

// DatabaseConfig holds PostgreSQL pool settings. An empty URL means
// commands run without persistence.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds the market data cache connection
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// PolygonConfig holds Polygon.io market data settings
type PolygonConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int // free tier: 5 req/min
	Timeout           time.Duration
	Concurrency       int // enrichment fan-out
}

// Enabled reports whether a Polygon API key is configured
func (p PolygonConfig) Enabled() bool {
	return p.APIKey != ""
}

// SchedulerConfig controls cron evaluation and job retries
type SchedulerConfig struct {
	Timezone   string // IANA name, cron expressions are evaluated here
	Retries    int
	RetryDelay time.Duration
}

// Location resolves Timezone
func (s SchedulerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// Load reads configuration from the environment (.env honoured)
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	var env envReader
	cfg := &Config{
		Port: env.str("PORT", "3000"),
		Env:  env.str("ENV", "development"),

		Database: DatabaseConfig{
			URL:             env.str("DATABASE_URL", ""),
			MaxConns:        env.int("DB_MAX_CONNS", 10),
			MinConns:        env.int("DB_MIN_CONNS", 2),
			MaxConnLifetime: env.duration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: env.duration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},

		Redis: RedisConfig{
			Host:     env.str("REDIS_HOST", "localhost"),
			Port:     env.str("REDIS_PORT", "6379"),
			Password: env.str("REDIS_PASSWORD", ""),
			DB:       env.int("REDIS_DB", 0),
			Enabled:  env.bool("REDIS_ENABLED", false),
		},

		Polygon: PolygonConfig{
			APIKey:            env.str("POLYGON_API_KEY", ""),
			BaseURL:           env.str("POLYGON_BASE_URL", "https://api.polygon.io"),
			RequestsPerMinute: env.int("POLYGON_REQUESTS_PER_MINUTE", 5),
			Timeout:           env.duration("POLYGON_TIMEOUT", 30*time.Second),
			Concurrency:       env.int("POLYGON_CONCURRENCY", 4),
		},

		Scheduler: SchedulerConfig{
			Timezone:   env.str("SCHEDULER_TZ", "UTC"),
			Retries:    env.int("SCHEDULER_RETRIES", 2),
			RetryDelay: env.duration("SCHEDULER_RETRY_DELAY", time.Minute),
		},

		IndexConfigPath: env.str("INDEX_CONFIG", "config/indices.yaml"),

		LogLevel:  env.str("LOG_LEVEL", "info"),
		LogFormat: env.str("LOG_FORMAT", "json"),
	}

	if err := errors.Join(append(env.errs, cfg.validate())...); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks values every command depends on.
// DATABASE_URL is checked by database.New since `index calculate` runs without one.
func (c *Config) validate() error {
	var errs []error

	switch c.Env {
	case "development", "staging", "production":
	default:
		errs = append(errs, fmt.Errorf("ENV must be one of: development, staging, production"))
	}

	if c.Polygon.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("POLYGON_REQUESTS_PER_MINUTE must be > 0"))
	}
	if c.Polygon.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("POLYGON_CONCURRENCY must be > 0"))
	}

	if c.Scheduler.Retries < 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_RETRIES must be >= 0"))
	}
	if _, err := c.Scheduler.Location(); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_TZ: %w", err))
	}

	return errors.Join(errs...)
}

// loadEnvFile loads the first .env found next to the working dir or binary
func loadEnvFile() {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(dir, ".env"), filepath.Join(dir, "..", ".env"))
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// envReader reads typed variables, collecting parse errors instead of
// silently using the default
type envReader struct {
	errs []error
}

func (r *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	return parseEnv(r, key, def, strconv.Atoi)
}

func (r *envReader) bool(key string, def bool) bool {
	return parseEnv(r, key, def, strconv.ParseBool)
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	return parseEnv(r, key, def, time.ParseDuration)
}

func parseEnv[T any](r *envReader, key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		return def
	}
	return v
}
