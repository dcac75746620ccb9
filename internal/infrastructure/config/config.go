// Package config loads service configuration with viper.
// Priority (highest to lowest):
//  1. Environment variables with RETAILSTOCK_ prefix (e.g. RETAILSTOCK_DATABASE_DSN)
//  2. config.yaml in the working directory or /etc/retailstock
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // report zones resolve on images without zoneinfo

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "RETAILSTOCK"

// Idempotency backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Log         LogConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Ledger      LedgerConfig
	HTTP        HTTPConfig
	Idempotency IdempotencyConfig
	Redis       RedisConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Env  string
	Port string
}

// IsDevelopment reports whether the service runs in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
	TxRetries        int
	TxRetryDelay     time.Duration
}

// AuthConfig holds JWT and login settings
type AuthConfig struct {
	JWTSecret        string
	Issuer           string
	AccessTokenTTL   time.Duration
	MaxLoginAttempts int
	LockDuration     time.Duration
}

// LedgerConfig holds report settings of the ledger
type LedgerConfig struct {
	// RecentWindow bounds the "recent movements" listing.
	RecentWindow time.Duration
	// ReportTimeZone is the IANA zone calendar days are cut in.
	ReportTimeZone string
}

// Location resolves ReportTimeZone.
func (l LedgerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(l.ReportTimeZone)
	if err != nil {
		return nil, fmt.Errorf("ledger.report_timezone %q: %w", l.ReportTimeZone, err)
	}
	return loc, nil
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RateLimitEnabled  bool
	RateLimitRequests int64
	RateLimitWindow   time.Duration
}

// IdempotencyConfig holds idempotency-key settings
type IdempotencyConfig struct {
	Enabled bool
	Backend string // postgres, redis or memory
	TTL     time.Duration
	// CleanupInterval is how often expired keys are purged. Redis expires
	// keys itself and ignores it.
	CleanupInterval time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.statement_timeout", 30*time.Second)
	v.SetDefault("database.tx_retries", 3)
	v.SetDefault("database.tx_retry_delay", 20*time.Millisecond)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "retailstock")
	v.SetDefault("auth.access_token_ttl", 12*time.Hour)
	v.SetDefault("auth.max_login_attempts", 5)
	v.SetDefault("auth.lock_duration", 15*time.Minute)

	v.SetDefault("ledger.recent_window", 24*time.Hour)
	v.SetDefault("ledger.report_timezone", "Africa/Kigali")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.rate_limit_enabled", true)
	v.SetDefault("http.rate_limit_requests", 300)
	v.SetDefault("http.rate_limit_window", time.Minute)

	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("idempotency.backend", BackendPostgres)
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("idempotency.cleanup_interval", time.Hour)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// Load reads configuration. configPath may name an explicit file; when it
// is empty config.yaml is searched for and its absence is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/retailstock")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			DSN:              v.GetString("database.dsn"),
			MaxConns:         v.GetInt32("database.max_conns"),
			MinConns:         v.GetInt32("database.min_conns"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
			TxRetries:        v.GetInt("database.tx_retries"),
			TxRetryDelay:     v.GetDuration("database.tx_retry_delay"),
		},
		Auth: AuthConfig{
			JWTSecret:        v.GetString("auth.jwt_secret"),
			Issuer:           v.GetString("auth.issuer"),
			AccessTokenTTL:   v.GetDuration("auth.access_token_ttl"),
			MaxLoginAttempts: v.GetInt("auth.max_login_attempts"),
			LockDuration:     v.GetDuration("auth.lock_duration"),
		},
		Ledger: LedgerConfig{
			RecentWindow:   v.GetDuration("ledger.recent_window"),
			ReportTimeZone: v.GetString("ledger.report_timezone"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt64("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("idempotency.enabled"),
			Backend: strings.ToLower(v.GetString("idempotency.backend")),
			TTL:     v.GetDuration("idempotency.ttl"),

			CleanupInterval: v.GetDuration("idempotency.cleanup_interval"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}
}

// Validate checks that required settings are present and consistent.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	} else if len(c.Auth.JWTSecret) < 32 && !c.App.IsDevelopment() {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes outside development"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("auth.access_token_ttl must be positive"))
	}
	if c.Ledger.RecentWindow <= 0 {
		errs = append(errs, errors.New("ledger.recent_window must be positive"))
	}
	if _, err := c.Ledger.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Database.TxRetries < 1 {
		errs = append(errs, errors.New("database.tx_retries must be at least 1"))
	}
	if c.HTTP.RateLimitEnabled && (c.HTTP.RateLimitRequests <= 0 || c.HTTP.RateLimitWindow <= 0) {
		errs = append(errs, errors.New("http rate limit requires positive requests and window"))
	}
	if c.Idempotency.Enabled {
		switch c.Idempotency.Backend {
		case BackendPostgres, BackendRedis, BackendMemory:
		default:
			errs = append(errs, fmt.Errorf("idempotency.backend %q: want postgres, redis or memory", c.Idempotency.Backend))
		}
		if c.Idempotency.TTL <= 0 {
			errs = append(errs, errors.New("idempotency.ttl must be positive"))
		}
		if c.Idempotency.CleanupInterval <= 0 {
			errs = append(errs, errors.New("idempotency.cleanup_interval must be positive"))
		}
	}

	return errors.Join(errs...)
}
