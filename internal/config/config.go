// Package config loads process configuration for the sessiond and migrate
// commands from the environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/sessioncap"
)

// Session backends selectable with SESSION_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds process configuration. Durations stay strings so a bad value
// falls back to the default instead of failing the whole load.
type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// RedisAddr is required for the redis backend. Other backends use it for
	// the login throttle when set and fall back to an embedded server.
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SessionBackend is memory, redis or postgres.
	SessionBackend string `mapstructure:"SESSION_BACKEND"`
	// AutoMigrate applies the embedded migrations at startup.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`

	JWTSecret     string `mapstructure:"JWT_SECRET"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAccessTTL  string `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	SessionLimit  int    `mapstructure:"SESSION_LIMIT"`

	// PasswordScheme is argon2id or bcrypt.
	PasswordScheme string `mapstructure:"PASSWORD_SCHEME"`
	BcryptCost     int    `mapstructure:"BCRYPT_COST"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	// CORSOrigins is a comma-separated allow list; empty disables CORS.
	CORSOrigins  string `mapstructure:"CORS_ORIGINS"`
	CookieSecure bool   `mapstructure:"COOKIE_SECURE"`
	AuditLog     bool   `mapstructure:"AUDIT_LOG"`

	// JanitorInterval is how often idle Postgres sessions are purged.
	JanitorInterval string `mapstructure:"JANITOR_INTERVAL"`
}

// Load reads .env from the working directory, if present, then the
// environment. Environment variables override the file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit .env path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads the same sources as Load but only requires DATABASE_URL.
// The migrate command uses it so schema changes do not need signing secrets.
func LoadDatabase(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set")
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_BACKEND", BackendMemory)
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "sessioncap")
	v.SetDefault("JWT_ACCESS_TTL", "10m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("SESSION_LIMIT", 2)
	v.SetDefault("PASSWORD_SCHEME", "argon2id")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("AUDIT_LOG", true)
	v.SetDefault("JANITOR_INTERVAL", "10m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set when SESSION_BACKEND=redis")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when SESSION_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("config: JWT_SECRET must be at least 32 bytes")
	}
	if c.SessionLimit < 1 {
		return errors.New("config: SESSION_LIMIT must be >= 1")
	}
	return nil
}

// AccessTTL parses JWTAccessTTL, returning 10m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 10*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL, returning 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

func (c *Config) JanitorEvery() time.Duration {
	return parseDuration(c.JanitorInterval, 10*time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// CORSOriginList splits CORSOrigins on commas, dropping blanks.
func (c *Config) CORSOriginList() []string {
	if c == nil || c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Engine maps the process settings onto the library configuration.
func (c *Config) Engine() sessioncap.Config {
	cfg := sessioncap.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(c.JWTSecret)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.AccessTTL = c.AccessTTL()
	cfg.JWT.RefreshTTL = c.RefreshTTL()
	cfg.Session.Limit = c.SessionLimit
	cfg.Password.Scheme = strings.ToLower(strings.TrimSpace(c.PasswordScheme))
	cfg.Password.BcryptCost = c.BcryptCost
	cfg.Audit.Enabled = c.AuditLog
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Security.EnableLoginThrottle = true
	cfg.Security.EnableIPThrottle = true
	return cfg
}
