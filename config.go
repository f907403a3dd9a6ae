package sessioncap

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/MrEthical07/sessioncap/password"
	"github.com/MrEthical07/sessioncap/session"
)

// Config is the complete engine configuration. It is copied by
// [Builder.WithConfig] and never changes after Build.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds token lifetimes and signing material.
type JWTConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// SigningMethod is "hs256" (default) or "ed25519".
	SigningMethod string
	// PrivateKey is the HS256 secret (at least 32 bytes) or an Ed25519 private key.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	KeyID      string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the per-user cap and backend naming.
type SessionConfig struct {
	// Limit is the maximum number of concurrent sessions per user.
	Limit int
	// RedisPrefix namespaces every key written by the Redis backend.
	RedisPrefix string
	// PostgresSchema holds the sessions table for the Postgres backend.
	PostgresSchema string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing scheme used by identity backends.
type PasswordConfig struct {
	// Scheme is "argon2id" (default) or "bcrypt" for new hashes. Both formats
	// are always accepted on verification.
	Scheme      string
	Memory      uint32 // KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls login throttling. Throttling needs a Redis client
// and is skipped when the engine has none.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// DefaultConfig returns production-leaning defaults. Signing keys are left
// empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     10 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "sessioncap",
		},
		Session: SessionConfig{
			Limit:          session.DefaultLimit,
			RedisPrefix:    "sc",
			PostgresSchema: "public",
		},
		Password: PasswordConfig{
			Scheme:      "argon2id",
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			BcryptCost:  12,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   true,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var schemaRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return fmt.Errorf("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}

	// Session
	if c.Session.Limit < 1 {
		return errors.New("Session Limit must be >= 1")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if !schemaRe.MatchString(c.Session.PostgresSchema) {
		return errors.New("Session PostgresSchema is not a valid identifier")
	}

	// Password
	switch c.Password.Scheme {
	case "argon2id", "bcrypt":
	default:
		return fmt.Errorf("unsupported password scheme %q", c.Password.Scheme)
	}
	if err := c.Password.argon2Config().Validate(); err != nil {
		return err
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security LoginCooldownDuration must be > 0")
		}
	}
	return nil
}

func (p PasswordConfig) argon2Config() password.Config {
	return password.Config{
		Memory:      p.Memory,
		Time:        p.Time,
		Parallelism: p.Parallelism,
		SaltLength:  p.SaltLength,
		KeyLength:   p.KeyLength,
	}
}

// NewHasher builds the password hasher described by p. New hashes use the
// configured scheme; existing argon2id and bcrypt hashes both verify.
func (p PasswordConfig) NewHasher() (password.Hasher, error) {
	a2, err := password.NewArgon2(p.argon2Config())
	if err != nil {
		return nil, err
	}
	bc, err := password.NewBcrypt(p.BcryptCost)
	if err != nil {
		return nil, err
	}
	auto := password.Auto{Primary: a2, Argon2: a2, Bcrypt: bc}
	if p.Scheme == "bcrypt" {
		auto.Primary = bc
	}
	return auto, nil
}
