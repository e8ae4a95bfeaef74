package config

import (
	"fmt"
	"time"
)

// MinJWTSecretLength is the shortest HMAC secret accepted for JWT_SECRET.
const MinJWTSecretLength = 16

// JWTConfig is the signing key and lifetime of portal bearer tokens.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// TTL is the lifetime of an issued token.
func (c *JWTConfig) TTL() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}

func (c *JWTConfig) normalize() error {
	switch {
	case c.Secret == "":
		return fmt.Errorf("JWT_SECRET is required but not set")
	case len(c.Secret) < MinJWTSecretLength:
		return fmt.Errorf("JWT_SECRET must be at least %d characters, got: %d", MinJWTSecretLength, len(c.Secret))
	case c.ExpirationHours < 1:
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
