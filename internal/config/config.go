package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Classification modes for deciding which leagues are ingested
const (
	ClassificationAllowlist = "allowlist"
	ClassificationEsoccer   = "esoccer"
)

// Config holds all application configuration
type Config struct {
	// BetsAPI
	BetsAPIToken     string        `envconfig:"BETSAPI_TOKEN" required:"true"`
	BetsAPIBaseURLV1 string        `envconfig:"BETSAPI_BASE_URL_V1" default:"https://api.b365api.com/v1"`
	BetsAPIBaseURLV2 string        `envconfig:"BETSAPI_BASE_URL_V2" default:"https://api.b365api.com/v2"`
	BetsAPITimeout   time.Duration `envconfig:"BETSAPI_TIMEOUT" default:"30s"`

	// API Rate Limiting
	RequestDelay        time.Duration `envconfig:"REQUEST_DELAY" default:"1100ms"`
	MaxRetries          int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryDelay          time.Duration `envconfig:"RETRY_DELAY" default:"5s"`
	MaxRateLimitRetries int           `envconfig:"MAX_RATE_LIMIT_RETRIES" default:"10"`

	// Database
	DatabaseURL      string `envconfig:"DATABASE_URL" default:""`
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"oddscollector"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"oddscollector"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" default:""`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	AutoMigrate      bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	// Redis
	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Caching TTL
	CacheTTLOdds time.Duration `envconfig:"CACHE_TTL_ODDS" default:"6h"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Timezone string `envconfig:"TIMEZONE" default:"America/Sao_Paulo"`

	// Ingestion
	TargetSportID      int      `envconfig:"TARGET_SPORT_ID" default:"1"`
	RetentionDays      int      `envconfig:"RETENTION_DAYS" default:"60"`
	LeagueIDs          []string `envconfig:"LEAGUE_IDS" default:""`
	ClassificationMode string   `envconfig:"CLASSIFICATION_MODE" default:"allowlist"`
	DailyMaxPages      int      `envconfig:"DAILY_MAX_PAGES" default:"100"`

	// Backfill
	BackfillWorkers int `envconfig:"BACKFILL_WORKERS" default:"4"`
	BackfillDays    int `envconfig:"BACKFILL_DAYS" default:"60"`

	// Scheduler
	DailyCron         string        `envconfig:"DAILY_CRON" default:"15 */2 * * *"`
	ScoreRefreshCron  string        `envconfig:"SCORE_REFRESH_CRON" default:"45 * * * *"`
	ScoreRefreshAfter time.Duration `envconfig:"SCORE_REFRESH_AFTER" default:"3h"`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"METRICS_PORT" default:"9090"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if present
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BetsAPIToken == "" {
		return fmt.Errorf("BETSAPI_TOKEN is required")
	}

	if c.DatabaseURL == "" && c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_URL or DATABASE_PASSWORD is required")
	}

	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.RetentionDays)
	}

	if c.BackfillWorkers <= 0 {
		return fmt.Errorf("BACKFILL_WORKERS must be positive, got %d", c.BackfillWorkers)
	}

	if c.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be positive, got %d", c.MaxRetries)
	}

	switch c.ClassificationMode {
	case ClassificationAllowlist, ClassificationEsoccer:
	default:
		return fmt.Errorf("unknown CLASSIFICATION_MODE %q", c.ClassificationMode)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}

	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseName,
		c.DatabaseSSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Location returns the configured local timezone.
// Validate has already rejected unknown zones, so UTC is only a fallback.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Leagues returns the trimmed, non-empty league ids of interest
func (c *Config) Leagues() []string {
	out := make([]string, 0, len(c.LeagueIDs))
	for _, id := range c.LeagueIDs {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or exits on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
