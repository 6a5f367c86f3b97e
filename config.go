package goIdentity

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/goIdentity/jwt"
)

// EnvPrefix is prepended to every variable read by LoadConfigFromEnv.
const EnvPrefix = "GOIDENTITY_"

// Config holds every engine tunable. Build it from DefaultConfig and
// override fields, or load it with LoadConfigFromEnv.
type Config struct {
	// AppBaseURL prefixes links in verification and reset emails.
	AppBaseURL      string `env:"APP_BASE_URL"`
	DefaultCurrency string `env:"DEFAULT_CURRENCY"`

	JWT      JWTConfig      `envPrefix:"JWT_"`
	Session  SessionConfig  `envPrefix:"SESSION_"`
	Lockout  LockoutConfig  `envPrefix:"LOCKOUT_"`
	Tokens   TokenConfig    `envPrefix:"TOKENS_"`
	Password PasswordConfig `envPrefix:"PASSWORD_"`
	Notify   NotifyConfig   `envPrefix:"NOTIFY_"`
	Audit    AuditConfig    `envPrefix:"AUDIT_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
	Timeouts TimeoutConfig  `envPrefix:"TIMEOUT_"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens.
type JWTConfig struct {
	AccessTTL     time.Duration `env:"ACCESS_TTL"`
	SigningMethod string        `env:"SIGNING_METHOD"` // "hs256" (default) or "ed25519"
	// Secret is the HS256 key. Ed25519 keys go in PrivateKey / PublicKey.
	Secret     string        `env:"SECRET"`
	PrivateKey []byte        `env:"-"`
	PublicKey  []byte        `env:"-"`
	Issuer     string        `env:"ISSUER"`
	Audience   string        `env:"AUDIENCE"`
	Leeway     time.Duration `env:"LEEWAY"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures refresh sessions in Redis.
type SessionConfig struct {
	RedisPrefix string        `env:"REDIS_PREFIX"`
	TTL         time.Duration `env:"TTL"`
}

// LockoutConfig configures the account guard.
type LockoutConfig struct {
	Threshold int           `env:"THRESHOLD"`
	Duration  time.Duration `env:"DURATION"`
}

// TokenConfig sets one-time token lifetimes.
type TokenConfig struct {
	VerificationTTL time.Duration `env:"VERIFICATION_TTL"`
	ResetTTL        time.Duration `env:"RESET_TTL"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters for new hashes.
type PasswordConfig struct {
	Memory         uint32 `env:"MEMORY_KB"`
	Time           uint32 `env:"TIME"`
	Parallelism    uint8  `env:"PARALLELISM"`
	SaltLength     uint32 `env:"SALT_LENGTH"`
	KeyLength      uint32 `env:"KEY_LENGTH"`
	UpgradeOnLogin bool   `env:"UPGRADE_ON_LOGIN"`
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyPolicy decides what a failed email does to the operation that sent it.
type NotifyPolicy string

const (
	// NotifyFailOpen logs and audits failed sends and lets the operation succeed.
	NotifyFailOpen NotifyPolicy = "fail-open"
	// NotifyFailClosed makes signup and resend-verification return a
	// transient error when the email cannot be sent. Forgot-password is
	// always fail-open so its response does not depend on registration.
	NotifyFailClosed NotifyPolicy = "fail-closed"
)

// NotifyConfig configures outbound email.
type NotifyConfig struct {
	Policy      NotifyPolicy  `env:"POLICY"`
	Timeout     time.Duration `env:"TIMEOUT"`
	ProductName string        `env:"PRODUCT_NAME"`
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// TimeoutConfig bounds store round trips.
type TimeoutConfig struct {
	Store time.Duration `env:"STORE"`
}

// DefaultConfig returns production defaults. JWT.Secret must still be set.
func DefaultConfig() Config {
	return Config{
		AppBaseURL:      "http://localhost:3000",
		DefaultCurrency: "USD",
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "goidentity",
		},
		Session: SessionConfig{
			RedisPrefix: "gid:sess",
			TTL:         30 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		Tokens: TokenConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           1,
			Parallelism:    4,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Notify: NotifyConfig{
			Policy:      NotifyFailOpen,
			Timeout:     10 * time.Second,
			ProductName: "goIdentity",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Timeouts: TimeoutConfig{
			Store: 5 * time.Second,
		},
	}
}

// LoadConfigFromEnv overlays GOIDENTITY_* variables on DefaultConfig and
// validates the result.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
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

/*
====================================
VALIDATION
====================================
*/

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	u, err := url.Parse(c.AppBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("AppBaseURL must be an absolute http(s) URL")
	}
	if !isCurrencyCode(c.DefaultCurrency) {
		return errors.New("DefaultCurrency must be a 3-letter code")
	}

	// JWT
	if c.JWT.AccessTTL < jwt.MinAccessTTL || c.JWT.AccessTTL > jwt.MaxAccessTTL {
		return errors.New("JWT AccessTTL must be between 1m and 60m")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256:
		if len(c.JWT.Secret) < 32 {
			return errors.New("hs256 requires a Secret of at least 32 bytes")
		}
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must be set")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.TTL < time.Minute {
		return errors.New("Session TTL must be >= 1m")
	}
	if c.Session.TTL <= c.JWT.AccessTTL {
		return errors.New("Session TTL must exceed JWT AccessTTL")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must be set")
	}

	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// One-time tokens
	if c.Tokens.VerificationTTL <= 0 {
		return errors.New("Tokens VerificationTTL must be > 0")
	}
	if c.Tokens.ResetTTL <= 0 {
		return errors.New("Tokens ResetTTL must be > 0")
	}
	if c.Tokens.ResetTTL > 24*time.Hour {
		return errors.New("Tokens ResetTTL must be <= 24h")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Notify
	switch c.Notify.Policy {
	case NotifyFailOpen, NotifyFailClosed:
	default:
		return errors.New("Notify Policy must be fail-open or fail-closed")
	}
	if c.Notify.Timeout <= 0 {
		return errors.New("Notify Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Timeouts.Store <= 0 {
		return errors.New("Timeouts Store must be > 0")
	}

	return nil
}
