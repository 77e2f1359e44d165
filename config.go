package veriauth

import (
	"errors"
	"strings"
	"time"
)

// Config groups all Manager tuning parameters. Construct with
// [DefaultConfig] and override fields before [Builder.Build]; the Manager
// treats its config as immutable afterwards.
type Config struct {
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	Verification VerificationConfig
	Session      SessionConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters for credential hashing.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig bounds authentication attempts per client identity.
// The login window guards Login only; the global hourly and daily windows
// guard every limited operation for the client. Every attempt counts,
// including malformed and failed ones.
type RateLimitConfig struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration

	EnableGlobal bool
	GlobalHourly int
	GlobalDaily  int
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls code issuance and the verification link.
type VerificationConfig struct {
	// CodeLength is the number of random alphanumeric characters in a
	// verification code. Minimum 6.
	CodeLength int
	// CodeTTL, when positive, rejects codes older than this with
	// ErrCodeExpired. Zero keeps codes valid until consumed or overwritten.
	CodeTTL time.Duration
	// BaseURL is the public prefix for verification links, e.g.
	// "https://example.com". The link path is /verify_email/{username}/{code}.
	BaseURL string
	// Subject of the verification email.
	Subject string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session store.
type SessionConfig struct {
	RedisPrefix string
	// TTL is the absolute session lifetime. Idle-timeout refinements are a
	// transport-layer concern.
	TTL time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of applying backpressure when the
	// buffer is full.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: argon2id at 64 MB / t=3,
// login limited to 5 attempts per minute, global budgets of 50 per hour and
// 200 per day, 8-character codes without expiry, and 24 h sessions.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		RateLimit: RateLimitConfig{
			LoginMaxAttempts: 5,
			LoginWindow:      time.Minute,
			EnableGlobal:     true,
			GlobalHourly:     50,
			GlobalDaily:      200,
		},
		Verification: VerificationConfig{
			CodeLength: 8,
			CodeTTL:    0,
			BaseURL:    "http://127.0.0.1:8080",
			Subject:    "Verify Your Email",
		},
		Session: SessionConfig{
			RedisPrefix: "vs",
			TTL:         24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the Manager cannot operate under.
func (c Config) Validate() error {
	if c.Password.Memory < 8*1024 {
		return errors.New("password memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("password time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("password parallelism must be >= 1")
	}
	if c.RateLimit.LoginMaxAttempts < 1 {
		return errors.New("login max attempts must be >= 1")
	}
	if c.RateLimit.LoginWindow < time.Second {
		return errors.New("login window must be >= 1s")
	}
	if c.RateLimit.EnableGlobal {
		if c.RateLimit.GlobalHourly < 1 || c.RateLimit.GlobalDaily < 1 {
			return errors.New("global rate budgets must be >= 1 when enabled")
		}
		if c.RateLimit.GlobalDaily < c.RateLimit.GlobalHourly {
			return errors.New("global daily budget must be >= hourly budget")
		}
	}
	if c.Verification.CodeLength < 6 {
		return errors.New("verification code length must be >= 6")
	}
	if c.Verification.CodeTTL < 0 {
		return errors.New("verification code TTL must not be negative")
	}
	if strings.TrimSpace(c.Verification.BaseURL) == "" {
		return errors.New("verification base URL required")
	}
	if c.Session.TTL < time.Minute {
		return errors.New("session TTL must be >= 1m")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("audit buffer size must be >= 1 when enabled")
	}
	return nil
}

func cloneConfig(c Config) Config {
	// All fields are value types; a shallow copy is a deep copy.
	return c
}
