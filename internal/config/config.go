// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/ingest.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// --------------------------------------------------------------------------
// Table names, matching the migrations.
// --------------------------------------------------------------------------

const (
	TeamsTable        = "teams"
	PlayersTable      = "players"
	SeriesTable       = "series"
	VenuesTable       = "venues"
	MatchesTable      = "matches"
	BattingTable      = "batting_stats"
	BowlingTable      = "bowling_stats"
	PartnershipsTable = "partnerships"
	FieldingTable     = "fielding_stats"
	StateTable        = "etl_state"
	CrudTable         = "crud_info"
)

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

// Config is populated from environment variables.
type Config struct {
	// Database. DatabaseURL wins when set; otherwise it is assembled from
	// the discrete DB_* variables.
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	DBHost         string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int           `envconfig:"DB_PORT" default:"5432"`
	DBName         string        `envconfig:"DB_NAME" default:"cricbuzz"`
	DBUser         string        `envconfig:"DB_USER" default:"postgres"`
	DBPassword     string        `envconfig:"DB_PASSWORD"`
	DBSSLMode      string        `envconfig:"DB_SSLMODE" default:"disable"`
	DBPoolMinConns int           `envconfig:"DB_POOL_MIN_CONNS" default:"1"`
	DBPoolMaxConns int           `envconfig:"DB_POOL_MAX_CONNS" default:"5"`
	DBPoolMaxLife  time.Duration `envconfig:"DB_POOL_MAX_LIFE" default:"30m"`

	// Cricbuzz via RapidAPI
	RapidAPIKey       string        `envconfig:"RAPIDAPI_KEY"`
	RapidAPIHost      string        `envconfig:"RAPIDAPI_HOST" default:"cricbuzz-cricket.p.rapidapi.com"`
	APIBudget         int           `envconfig:"API_BUDGET" default:"8000"`
	MaxAPICalls       int           `envconfig:"MAX_API_CALLS"` // 0 = same as APIBudget
	RequestsPerMinute int           `envconfig:"API_REQUESTS_PER_MINUTE" default:"60"`
	MaxRetries        int           `envconfig:"API_MAX_RETRIES" default:"5"`
	BackoffBase       time.Duration `envconfig:"API_BACKOFF_BASE" default:"800ms"`
	HTTPTimeout       time.Duration `envconfig:"API_HTTP_TIMEOUT" default:"20s"`
	TraceSize         int           `envconfig:"API_TRACE_SIZE" default:"50"`
	BreakerThreshold  int           `envconfig:"API_BREAKER_THRESHOLD" default:"3"`
	BreakerCooldown   time.Duration `envconfig:"API_BREAKER_COOLDOWN" default:"30s"`

	// API server
	APIHost     string `envconfig:"API_HOST" default:"0.0.0.0"`
	APIPort     int    `envconfig:"API_PORT" default:"8000"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"` // development, staging, production
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// CORS
	CORSAllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000,http://localhost:8501"`

	// Rate limiting of the operator API itself
	RateLimitEnabled  bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"100"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`

	// Cache. RedisURL adds a tier shared between API instances.
	CacheEnabled bool   `envconfig:"CACHE_ENABLED" default:"true"`
	RedisURL     string `envconfig:"REDIS_URL"`
}

// Load reads configuration from a .env file (if present) and the process
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.assembleDatabaseURL()
	}
	if cfg.MaxAPICalls <= 0 {
		cfg.MaxAPICalls = cfg.APIBudget
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks invariants envconfig cannot express.
func (c *Config) Validate() error {
	if c.APIBudget <= 0 {
		return fmt.Errorf("API_BUDGET must be > 0, got %d", c.APIBudget)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("API_MAX_RETRIES must be >= 1, got %d", c.MaxRetries)
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("API_REQUESTS_PER_MINUTE must be > 0, got %d", c.RequestsPerMinute)
	}
	if c.TraceSize <= 0 {
		return fmt.Errorf("API_TRACE_SIZE must be > 0, got %d", c.TraceSize)
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// MigrationURL returns the database URL with the scheme golang-migrate's
// pgx/v5 driver registers under.
func (c *Config) MigrationURL() string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(c.DatabaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(c.DatabaseURL, prefix)
		}
	}
	return c.DatabaseURL
}

func (c *Config) assembleDatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.DBHost + ":" + strconv.Itoa(c.DBPort),
		Path:   "/" + c.DBName,
	}
	if c.DBPassword != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	} else {
		u.User = url.User(c.DBUser)
	}
	q := url.Values{}
	q.Set("sslmode", c.DBSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
