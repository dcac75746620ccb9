package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RETAILSTOCK_DATABASE_DSN", "postgres://localhost/retailstock")
	t.Setenv("RETAILSTOCK_AUTH_JWT_SECRET", testSecret)
	t.Setenv("RETAILSTOCK_LEDGER_RECENT_WINDOW", "6h")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "postgres://localhost/retailstock", cfg.Database.DSN)
	assert.Equal(t, 6*time.Hour, cfg.Ledger.RecentWindow)
	assert.Equal(t, "Africa/Kigali", cfg.Ledger.ReportTimeZone)
	assert.Equal(t, BackendPostgres, cfg.Idempotency.Backend)
	assert.Equal(t, time.Hour, cfg.Idempotency.CleanupInterval)
	assert.Equal(t, 12*time.Hour, cfg.Auth.AccessTokenTTL)
	assert.EqualValues(t, 3, cfg.Database.TxRetries)
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retailstock.yaml")
	content := `
app:
  env: production
database:
  dsn: postgres://db/retailstock
auth:
  jwt_secret: ` + testSecret + `
idempotency:
  backend: redis
redis:
  addr: cache:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, BackendRedis, cfg.Idempotency.Backend)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		App:         AppConfig{Env: "production"},
		Database:    DatabaseConfig{DSN: "postgres://x", TxRetries: 3},
		Auth:        AuthConfig{JWTSecret: testSecret, AccessTokenTTL: time.Hour},
		Ledger:      LedgerConfig{RecentWindow: time.Hour, ReportTimeZone: "UTC"},
		HTTP:        HTTPConfig{RateLimitEnabled: true, RateLimitRequests: 10, RateLimitWindow: time.Second},
		Idempotency: IdempotencyConfig{Enabled: true, Backend: BackendMemory, TTL: time.Hour, CleanupInterval: time.Minute},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret is required"},
		{"short secret in production", func(c *Config) { c.Auth.JWTSecret = "short" }, "at least 32 bytes"},
		{"short secret in development", func(c *Config) { c.Auth.JWTSecret = "short"; c.App.Env = "development" }, ""},
		{"zero recent window", func(c *Config) { c.Ledger.RecentWindow = 0 }, "ledger.recent_window"},
		{"unknown zone", func(c *Config) { c.Ledger.ReportTimeZone = "Mars/Olympus" }, "report_timezone"},
		{"unknown backend", func(c *Config) { c.Idempotency.Backend = "etcd" }, "idempotency.backend"},
		{"zero cleanup interval", func(c *Config) { c.Idempotency.CleanupInterval = 0 }, "cleanup_interval"},
		{"disabled idempotency ignores backend", func(c *Config) { c.Idempotency.Enabled = false; c.Idempotency.Backend = "" }, ""},
		{"bad rate limit", func(c *Config) { c.HTTP.RateLimitRequests = 0 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLedgerConfig_DefaultZoneResolves(t *testing.T) {
	loc, err := LedgerConfig{ReportTimeZone: "Africa/Kigali"}.Location()
	require.NoError(t, err)

	_, offset := time.Date(2026, 6, 1, 12, 0, 0, 0, loc).Zone()
	assert.Equal(t, 2*60*60, offset)
}
