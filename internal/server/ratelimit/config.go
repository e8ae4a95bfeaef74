package ratelimit

import (
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// Settings are the raw RATE_LIMIT_* values decoded by the config package.
type Settings struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       string // comma-separated client IPs never limited
	Blacklist       string // comma-separated client IPs always refused
}

// NewConfig builds the limiter configuration with the portal's endpoint tiers.
func NewConfig(s Settings) *Config {
	if !s.Enabled {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    s.DefaultLimit,
		DefaultWindow:   s.DefaultWindow,
		CleanupInterval: s.CleanupInterval,
		Whitelist:       parseIPList(s.Whitelist),
		Blacklist:       parseIPList(s.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Tier 1: credential endpoints (strictest limits)
		{Path: "/v1/auth/login", Method: "POST", Limit: 10, Window: time.Minute, Burst: 5},
		{Path: "/v1/auth/register", Method: "POST", Limit: 20, Window: time.Hour, Burst: 5},
		{Path: "/v1/auth/password", Method: "PUT", Limit: 10, Window: time.Hour, Burst: 3},

		// Tier 2: uploads
		{Path: "/v1/me/cv", Method: "PUT", Limit: 20, Window: time.Minute, Burst: 5},
		{Path: "/v1/me/avatar", Method: "PUT", Limit: 20, Window: time.Minute, Burst: 5},
		{Path: "/v1/company/logo", Method: "PUT", Limit: 20, Window: time.Minute, Burst: 5},

		// Tier 3: lifecycle writes
		{Path: "/v1/postings/", Method: "POST", Limit: 30, Window: time.Minute, Burst: 10},
		{Path: "/v1/applications/", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/v1/company/applications/", Method: "POST", Limit: 120, Window: time.Minute, Burst: 20},
		{Path: "/v1/company/postings", Method: "POST", Limit: 60, Window: time.Hour, Burst: 10},
		{Path: "/v1/groups", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/v1/groups/", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},

		// Tier 4: reads use the default limit; health and metrics are unlimited (see matcher)
	}
}

// parseIPList parses a comma-separated list of IP addresses into a map.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
