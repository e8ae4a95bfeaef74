// Package config provides configuration loading and validation for the portal.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the process configuration decoded from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// HTTP
	Port              int    `env:"PORT,default=8080"`
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN,default=*"`

	// Identity
	JWTSecret          string `env:"JWT_SECRET"`
	JWTExpirationHours int    `env:"JWT_EXPIRATION_HOURS,default=24"`
	BcryptCost         int    `env:"BCRYPT_COST,default=12"`
	PasswordPepper     string `env:"PASSWORD_PEPPER"`

	// Object storage
	StorageURL       string `env:"STORAGE_URL"`
	StorageKey       string `env:"STORAGE_KEY"`
	StoragePublicURL string `env:"STORAGE_PUBLIC_URL"`

	// Redis is optional; when set it backs the event bridge and the rate limiter.
	RedisURL     string `env:"REDIS_URL"`
	EventChannel string `env:"EVENT_CHANNEL,default=portal:events"`

	// Rate limiting
	RateLimitEnabled   bool          `env:"RATE_LIMIT_ENABLED,default=true"`
	RateLimitDefault   int           `env:"RATE_LIMIT_DEFAULT_LIMIT,default=1000"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_DEFAULT_WINDOW,default=1m"`
	RateLimitCleanup   time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL,default=5m"`
	RateLimitWhitelist string        `env:"RATE_LIMIT_WHITELIST"`
	RateLimitBlacklist string        `env:"RATE_LIMIT_BLACKLIST"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Load decodes the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// The database URL is checked by the commands that need it.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: PORT must be between 1 and 65535, got: %d", c.Port)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config error: LOG_FORMAT must be text or json, got: %q", c.LogFormat)
	}
	if c.RateLimitEnabled && (c.RateLimitDefault < 1 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("config error: RATE_LIMIT_DEFAULT_LIMIT and RATE_LIMIT_DEFAULT_WINDOW must be positive")
	}
	if (c.StorageURL == "") != (c.StorageKey == "") {
		return fmt.Errorf("config error: STORAGE_URL and STORAGE_KEY must be set together")
	}
	return nil
}

// RequireDatabase returns an error when DATABASE_URL is unset.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required but not set")
	}
	return nil
}

// StorageEnabled reports whether document uploads are configured.
func (c *Config) StorageEnabled() bool {
	return c.StorageURL != "" && c.StorageKey != ""
}

// JWT returns the token configuration derived from c.
func (c *Config) JWT() (*JWTConfig, error) {
	jc := &JWTConfig{
		Secret:          c.JWTSecret,
		ExpirationHours: c.JWTExpirationHours,
	}
	if err := jc.normalize(); err != nil {
		return nil, err
	}
	return jc, nil
}

// Password returns the hashing configuration derived from c.
func (c *Config) Password() (*PasswordConfig, error) {
	pc := &PasswordConfig{
		BcryptCost: c.BcryptCost,
		Pepper:     c.PasswordPepper,
	}
	if err := pc.normalize(); err != nil {
		return nil, err
	}
	return pc, nil
}
