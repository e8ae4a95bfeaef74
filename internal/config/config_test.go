package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DATABASE_URL", "PORT", "CORS_ALLOWED_ORIGIN", "JWT_SECRET", "JWT_EXPIRATION_HOURS",
		"BCRYPT_COST", "PASSWORD_PEPPER", "STORAGE_URL", "STORAGE_KEY", "STORAGE_PUBLIC_URL",
		"REDIS_URL", "EVENT_CHANNEL", "LOG_LEVEL", "LOG_FORMAT",
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_DEFAULT_LIMIT", "RATE_LIMIT_DEFAULT_WINDOW",
		"RATE_LIMIT_CLEANUP_INTERVAL", "RATE_LIMIT_WHITELIST", "RATE_LIMIT_BLACKLIST",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "*", cfg.CORSAllowedOrigin)
	assert.Equal(t, 24, cfg.JWTExpirationHours)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "portal:events", cfg.EventChannel)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, 1000, cfg.RateLimitDefault)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.False(t, cfg.StorageEnabled())
	assert.Error(t, cfg.RequireDatabase())
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/portal")
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_SECRET", "a-very-long-test-secret")
	t.Setenv("JWT_EXPIRATION_HOURS", "8")
	t.Setenv("STORAGE_URL", "http://localhost:54321")
	t.Setenv("STORAGE_KEY", "service-key")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.NoError(t, cfg.RequireDatabase())
	assert.True(t, cfg.StorageEnabled())
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)

	jc, err := cfg.JWT()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, jc.TTL())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"non-numeric port", map[string]string{"PORT": "http"}, "failed to decode environment"},
		{"port out of range", map[string]string{"PORT": "70000"}, "PORT must be between"},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"zero rate limit", map[string]string{"RATE_LIMIT_DEFAULT_LIMIT": "0"}, "RATE_LIMIT_DEFAULT_LIMIT"},
		{"storage url without key", map[string]string{"STORAGE_URL": "http://x"}, "STORAGE_URL and STORAGE_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_JWT(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		hours   int
		wantErr string
	}{
		{"valid", "0123456789abcdef", 24, ""},
		{"missing secret", "", 24, "JWT_SECRET is required"},
		{"short secret", "short", 24, "at least 16 characters"},
		{"zero expiration", "0123456789abcdef", 0, "at least 1 hour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{JWTSecret: tt.secret, JWTExpirationHours: tt.hours}
			jc, err := cfg.JWT()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.secret, jc.Secret)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Password(t *testing.T) {
	for _, cost := range []int{9, 15} {
		_, err := (&Config{BcryptCost: cost}).Password()
		assert.Error(t, err, cost)
	}

	pc, err := (&Config{BcryptCost: 10, PasswordPepper: "pepper"}).Password()
	require.NoError(t, err)

	hash, err := pc.HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, pc.VerifyPassword("s3cret-pass", hash))
	assert.False(t, pc.VerifyPassword("wrong", hash))

	// a different pepper invalidates existing hashes
	other := &PasswordConfig{BcryptCost: 10, Pepper: "rotated"}
	assert.False(t, other.VerifyPassword("s3cret-pass", hash))

	again, err := pc.HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salts differ per hash")
}

func TestPasswordConfig_NeedsRehash(t *testing.T) {
	old := &PasswordConfig{BcryptCost: MinBcryptCost}
	hash, err := old.HashPassword("s3cret-pass")
	require.NoError(t, err)

	assert.False(t, old.NeedsRehash(hash))
	assert.True(t, (&PasswordConfig{BcryptCost: MinBcryptCost + 1}).NeedsRehash(hash))
	assert.False(t, old.NeedsRehash("not-a-bcrypt-hash"))
}
